// Package http assembles the MorphoScreen HTTP API: routing, middleware,
// and the server lifecycle.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/internal/interfaces/http/handlers"
	"github.com/turtacn/MorphoScreen/internal/interfaces/http/middleware"
)

// RouterConfig aggregates every handler and dependency required to build
// the complete route tree.
type RouterConfig struct {
	// Mode is the gin mode: "debug", "release" or "test".
	Mode string

	Logger logging.Logger

	// MetricsHandler serves the Prometheus scrape endpoint; nil disables
	// the /metrics route.
	MetricsHandler http.Handler

	Health   *handlers.HealthHandler
	Runs     *handlers.RunHandler
	Rankings *handlers.RankingHandler
}

// NewRouter builds the gin engine with the full MorphoScreen route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger.Named("http")),
		middleware.Recovery(logger.Named("http")),
		middleware.CORS(),
	)

	r.GET("/healthz", cfg.Health.Healthz)
	r.GET("/readyz", cfg.Health.Readyz)
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/runs", cfg.Runs.Create)
		v1.GET("/runs", cfg.Runs.List)
		v1.GET("/runs/:id", cfg.Runs.Get)
		v1.GET("/runs/:id/ranking", cfg.Rankings.Get)
		v1.GET("/runs/:id/hits", cfg.Rankings.Hits)
		v1.GET("/runs/:id/compounds/:compound/rank", cfg.Rankings.CompoundRank)
	}

	return r
}
