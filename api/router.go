package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scout/api/handler"
	"github.com/use-agent/scout/api/middleware"
	"github.com/use-agent/scout/config"
	"github.com/use-agent/scout/stream"
)

// Deps are the long-lived components the routes talk to.
type Deps struct {
	Sites     handler.SiteCatalog
	Queue     handler.UnitQueue
	Hub       *stream.Hub
	Logger    *slog.Logger
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
// ctx bounds the rate limiter's background eviction.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health, no auth required.
	v1.GET("/health", handler.Health(deps.Sites, deps.Queue, deps.Hub, deps.StartTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	protected.GET("/sites", handler.Sites(deps.Sites))
	protected.POST("/search", handler.PostSearch(deps.Sites, deps.Queue, deps.Hub, deps.Logger))
	protected.GET("/session", handler.Session(deps.Sites, deps.Queue, deps.Hub, cfg.Stream.AllowedOrigins, deps.Logger))

	return r
}
