package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scout/models"
	"github.com/use-agent/scout/stream"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Degrades status when no site is configured or a lane queue is more than
// 80% full.
func Health(catalog SiteCatalog, queue UnitQueue, hub *stream.Hub, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := queue.Stats()

		status := "healthy"
		threshold := int(float64(stats.QueueCapacity) * 0.8)
		if catalog.Len() == 0 || stats.PlainQueued > threshold || stats.BrowserQueued > threshold {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Sites:     catalog.Len(),
			Sessions:  hub.Len(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}

// Sites returns a handler for GET /api/v1/sites.
func Sites(catalog SiteCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		defs := catalog.List()
		out := make([]models.SiteSummary, 0, len(defs))
		for i := range defs {
			out = append(out, defs[i].Summary())
		}
		c.JSON(http.StatusOK, models.SitesResponse{Sites: out})
	}
}
