package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/jobscrape/api/handler"
	"github.com/use-agent/jobscrape/api/middleware"
	"github.com/use-agent/jobscrape/config"
	"github.com/use-agent/jobscrape/jobs"
	"github.com/use-agent/jobscrape/scraper"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	Workers: RateLimit
//
// Health and platform listing stay outside the rate limit so monitoring
// checks always work.
func NewRouter(sc *scraper.Scraper, m *jobs.Manager, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		r.Use(gin.Logger())
	}

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(sc, startTime))
	v1.GET("/platforms", handler.Platforms(sc))

	// Everything that launches a worker is rate limited.
	limited := v1.Group("")
	limited.Use(middleware.RateLimit(cfg.RateLimit))

	// Scrape
	limited.POST("/scrape", handler.Scrape(sc))
	limited.POST("/scrape/stream", handler.ScrapeStream(sc))

	// Runs
	limited.POST("/runs", handler.PostRun(m))
	v1.GET("/runs/:id", handler.GetRun(m))
	v1.GET("/runs/:id/events", handler.RunEvents(m))
	v1.GET("/runs/:id/export", handler.ExportRun(m))
	v1.DELETE("/runs/:id", handler.CancelRun(m))

	return r
}
