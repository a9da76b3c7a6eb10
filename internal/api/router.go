package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/timmy/flatsync/internal/api/handler"
	"github.com/timmy/flatsync/internal/api/middleware"
	"github.com/timmy/flatsync/internal/logger"
)

// RouterConfig carries the router's dependencies.
type RouterConfig struct {
	Tasks       handler.TaskReader
	Discoverer  handler.Discoverer // nil disables POST /api/v1/discover
	Runs        handler.RunReader  // nil disables the run history routes
	Ping        func(ctx context.Context) error
	Logger      *logger.Logger
	Mode        string
	CORSOrigins []string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(cfg.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins}))

	healthHandler := handler.NewHealthHandler(cfg.Ping)
	taskHandler := handler.NewTaskHandler(cfg.Tasks)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		tasks.GET("", taskHandler.List)
		tasks.GET("/stats", taskHandler.Stats)
		tasks.GET("/lookup", taskHandler.Lookup)
		tasks.GET("/:id", taskHandler.Get)
		tasks.POST("/release-stale", taskHandler.ReleaseStale)

		if cfg.Discoverer != nil {
			discoverHandler := handler.NewDiscoverHandler(cfg.Discoverer)
			v1.POST("/discover", discoverHandler.Trigger)
			v1.GET("/discover/status", discoverHandler.Status)
		}
		if cfg.Runs != nil {
			runHandler := handler.NewRunHandler(cfg.Runs)
			v1.GET("/discover/runs", runHandler.List)
			v1.GET("/discover/runs/:id", runHandler.Get)
		}
	}

	return r
}
