package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterConfig struct {
	AllowedOrigins []string

	HealthHandler  *HealthHandler
	StatusHandler  *StatusHandler
	MachineHandler *MachineHandler
	JobHandler     *JobHandler
	StockHandler   *StockHandler
	FeedHandler    *FeedHandler
}

// NewRouter builds the read-only status API. All writes go through the
// watchers and the lifecycle engine; the HTTP surface only observes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("floorwatch"))

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Authorization", "Content-Type", "X-Requested-With"}
	router.Use(cors.New(corsCfg))

	if cfg.HealthHandler != nil {
		router.GET("/healthz", cfg.HealthHandler.Healthz)
	}

	api := router.Group("/api/v1")
	{
		if cfg.StatusHandler != nil {
			api.GET("/status", cfg.StatusHandler.Status)
		}
		if cfg.MachineHandler != nil {
			api.GET("/machines", cfg.MachineHandler.List)
			api.GET("/machines/:id/telemetry", cfg.MachineHandler.Telemetry)
		}
		if cfg.JobHandler != nil {
			api.GET("/jobs", cfg.JobHandler.List)
			api.GET("/job-events", cfg.JobHandler.Events)
		}
		if cfg.StockHandler != nil {
			api.GET("/stock", cfg.StockHandler.List)
		}
		if cfg.FeedHandler != nil {
			api.GET("/feed", cfg.FeedHandler.Recent)
		}
	}

	return router
}
