package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dpxrk/Pactwise-sub001/api"
	"github.com/dpxrk/Pactwise-sub001/internal/activity"
	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/ai"
	"github.com/dpxrk/Pactwise-sub001/internal/auth"
	"github.com/dpxrk/Pactwise-sub001/internal/config"
	"github.com/dpxrk/Pactwise-sub001/internal/extraction"
	"github.com/dpxrk/Pactwise-sub001/internal/infra"
	"github.com/dpxrk/Pactwise-sub001/internal/infra/queue"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/notification"
	"github.com/dpxrk/Pactwise-sub001/internal/pipeline"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
	"github.com/dpxrk/Pactwise-sub001/internal/worker"
)

func main() {
	// 0. 统一加载 .env，便于集中管理 APP_* 环境变量
	if err := godotenv.Load(); err == nil {
		fmt.Println("已加载 .env 文件")
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, "")
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
	)

	// 3. 初始化数据库
	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := runMigrations(db); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	}

	// 4. 初始化 Redis
	redisClient, err := infra.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Fatal("初始化 Redis 失败", zap.Error(err))
	}

	// 5. 任务存储与变更事件总线
	feed := task.NewFeed(64)
	store := task.NewStore(db, feed)

	// 6. Agent 目录，带 Redis 解析缓存
	directory := agents.NewDirectory(db,
		agents.WithRedisCache(redisClient, time.Duration(cfg.Pipeline.AgentCacheTTL)*time.Second),
	)

	// 7. 通知链路: WebSocket Hub + 可选的外部 Webhook
	hub := notification.NewHub()
	webhook := notification.NewWebhookNotifier(&notification.WebhookConfig{
		URL:     cfg.Notification.WebhookURL,
		Timeout: time.Duration(cfg.Notification.WebhookTimeout) * time.Second,
		Headers: cfg.Notification.WebhookHeaders,
	})
	sink := notification.NewMultiSink(hub, webhook)

	// 8. 活动追踪器，消费任务变更事件
	tracker := activity.NewTracker(feed, sink, directory, activity.Policy{
		GraceDelay: cfg.Pipeline.GraceDelay(),
	})
	trackerCtx, cancelTracker := context.WithCancel(context.Background())
	tracker.Start(trackerCtx)

	// 9. Worker: AI 执行器 + asynq 消费端
	aiClient, err := ai.NewClient(&cfg.AI.OpenAI)
	if err != nil {
		logger.Fatal("初始化 AI 客户端失败", zap.Error(err))
	}
	executor := worker.NewModelExecutor(aiClient)
	workerServer := worker.NewServer(cfg.Redis, store, directory, executor, logger.Get())

	// 10. 流水线: 目录 → 派发器 → 轮询器 → 编排器
	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	catalog := pipeline.NewCatalog()
	if cfg.Pipeline.CatalogPath != "" {
		if err := catalog.LoadFile(cfg.Pipeline.CatalogPath); err != nil {
			logger.Fatal("加载流水线目录失败", zap.Error(err))
		}
	}

	dispatcher := pipeline.NewDispatcher(directory, store, queueClient)
	poller := pipeline.NewCompletionPoller(store, sink,
		pipeline.WithPollInterval(cfg.Pipeline.PollInterval()),
		pipeline.WithMaxAttempts(cfg.Pipeline.MaxAttempts()),
		pipeline.WithRemovalScheduler(tracker),
	)
	extractionSvc := extraction.NewService(db, cfg.Storage.BasePath, cfg.Storage.MaxFileSize)
	orchestrator := pipeline.NewOrchestrator(dispatcher, poller, extractionSvc, catalog)

	// 11. HTTP 路由
	gin.SetMode(cfg.Server.Mode)
	router := api.SetupRouter(api.Services{
		DB:           db,
		JWT:          auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Directory:    directory,
		Orchestrator: orchestrator,
		Watcher:      activity.NewWatcher(store),
		Tracker:      tracker,
		Hub:          hub,
		Extraction:   extractionSvc,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	go func() {
		if err := workerServer.Run(); err != nil {
			logger.Fatal("Worker 服务器启动失败", zap.Error(err))
		}
	}()

	gracefulShutdown(server, workerServer, cancelTracker, tracker)
}

// runMigrations 执行数据库迁移
func runMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&agents.AgentDefinition{},
		&task.Task{},
		&extraction.Document{},
	)
}

// gracefulShutdown 优雅关闭
func gracefulShutdown(server *http.Server, workerServer *worker.Server, cancelTracker context.CancelFunc, tracker *activity.Tracker) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，开始优雅关闭...")

	workerServer.Shutdown()
	cancelTracker()
	tracker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP 服务器关闭失败", zap.Error(err))
	}

	logger.Info("应用已退出")
}
