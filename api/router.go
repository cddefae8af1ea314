package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/renderd/api/handler"
	"github.com/use-agent/renderd/api/middleware"
	"github.com/use-agent/renderd/batch"
	"github.com/use-agent/renderd/cache"
	"github.com/use-agent/renderd/config"
	"github.com/use-agent/renderd/scraper"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(svc *batch.Service, sc *scraper.Scraper, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(sc, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Scrape: single URL or batch, decided by the request shape.
	protected.POST("/scrape", handler.Scrape(svc, cc))

	return r
}
