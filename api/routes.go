package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	activityHandlers "github.com/dpxrk/Pactwise-sub001/api/handlers/activity"
	agentHandlers "github.com/dpxrk/Pactwise-sub001/api/handlers/agents"
	documentHandlers "github.com/dpxrk/Pactwise-sub001/api/handlers/documents"
	pipelineHandlers "github.com/dpxrk/Pactwise-sub001/api/handlers/pipeline"
	taskHandlers "github.com/dpxrk/Pactwise-sub001/api/handlers/tasks"

	"github.com/dpxrk/Pactwise-sub001/internal/activity"
	"github.com/dpxrk/Pactwise-sub001/internal/agents"
	"github.com/dpxrk/Pactwise-sub001/internal/auth"
	"github.com/dpxrk/Pactwise-sub001/internal/extraction"
	"github.com/dpxrk/Pactwise-sub001/internal/notification"
	"github.com/dpxrk/Pactwise-sub001/internal/pipeline"
)

// Services 路由依赖的服务集合
type Services struct {
	DB           *gorm.DB
	JWT          *auth.JWTService
	Directory    *agents.Directory
	Orchestrator *pipeline.Orchestrator
	Watcher      *activity.Watcher
	Tracker      *activity.Tracker
	Hub          *notification.Hub
	Extraction   *extraction.Service
}

// SetupRouter 构建 HTTP 路由
func SetupRouter(svc Services) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), CORS())

	// 系统端点不走认证
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(svc.DB))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pipelineHandler := pipelineHandlers.NewHandler(svc.Orchestrator)
	taskHandler := taskHandlers.NewHandler(svc.Watcher)
	activityHandler := activityHandlers.NewHandler(svc.Tracker, svc.Hub)
	agentHandler := agentHandlers.NewHandler(svc.Directory)
	documentHandler := documentHandlers.NewHandler(svc.Extraction)

	v1 := router.Group("/api/v1")
	v1.Use(auth.Middleware(svc.JWT))
	{
		v1.POST("/pipeline/run", pipelineHandler.Run)
		v1.POST("/pipeline/analyze", pipelineHandler.Analyze)

		v1.GET("/tasks/:id/watch", taskHandler.GetProgress)
		v1.POST("/tasks/watch", taskHandler.GetProgressMany)

		v1.GET("/activity", activityHandler.GetActive)
		v1.GET("/activity/ws", activityHandler.Stream)

		v1.POST("/agents", agentHandler.Register)
		v1.GET("/agents/:id", agentHandler.Get)
		v1.PATCH("/agents/:id/enabled", agentHandler.SetEnabled)

		v1.GET("/documents/:id", documentHandler.Get)
	}

	return router
}
