package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/jobscrape/models"
	"github.com/use-agent/jobscrape/scraper"
)

// Version is reported by the health endpoint. Overridden at build time.
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports worker slot utilisation and degrades status when > 80% of slots are busy.
func Health(sc *scraper.Scraper, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sc.Stats()

		status := "healthy"
		if stats.MaxWorkers > 0 && stats.ActiveWorkers > int(float64(stats.MaxWorkers)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:      status,
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			WorkerStats: stats,
			Version:     Version,
		})
	}
}

// Platforms returns a handler for GET /api/v1/platforms.
func Platforms(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.PlatformsResponse{
			Platforms: sc.Platforms(),
			Default:   sc.DefaultPlatform(),
		})
	}
}
