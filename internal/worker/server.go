package worker

import (
	"context"
	"fmt"

	"github.com/dpxrk/Pactwise-sub001/internal/config"
	"github.com/dpxrk/Pactwise-sub001/internal/task"
	"github.com/dpxrk/Pactwise-sub001/internal/worker/handlers"
	"github.com/dpxrk/Pactwise-sub001/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewServer(
	cfg config.RedisConfig,
	store *task.Store,
	resolver handlers.AgentResolver,
	runner AgentExecutor,
	logger *zap.Logger,
) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		asynq.Config{
			Concurrency: 10, // 并发 worker 数
			Queues: map[string]int{
				"agents":  8, // Agent 任务优先级高
				"default": 2,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", t.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()

	// 注册 Agent 任务处理器
	agentHandler := handlers.NewAgentHandler(store, resolver, runner, logger)
	mux.HandleFunc(tasks.TypeExecuteAgentTask, agentHandler.HandleExecuteAgentTask)

	return &Server{
		server: srv,
		mux:    mux,
		logger: logger,
	}
}

// Run 启动 Worker 服务器
func (s *Server) Run() error {
	s.logger.Info("Worker 服务器启动中...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}
