package http

import (
	"github.com/gin-gonic/gin"
	"github.com/ozonscraper/backend/config"
	"github.com/ozonscraper/backend/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupRouter creates and configures the Gin router. m may be nil when metrics are disabled.
func SetupRouter(cfg *config.Config, handler *Handler, m *metrics.Metrics, logger *logrus.Entry) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	router := gin.New()

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	if m != nil {
		router.Use(MetricsMiddleware(m))
	}

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	if cfg.Metrics.Enabled && m != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	limited := RateLimitMiddleware(cfg.RateLimit.PerIP, cfg.RateLimit.Burst)

	// Original path kept for existing clients
	router.POST("/search", limited, handler.Search)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/search", limited, handler.Search)
	}

	return router
}
