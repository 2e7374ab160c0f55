package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scout/engine"
	"github.com/use-agent/scout/models"
)

// SiteCatalog is the read side of the site registry.
type SiteCatalog interface {
	Lookup(id string) (*models.SiteConfig, bool)
	List() []models.SiteConfig
	IDs() []string
	Len() int
}

// UnitQueue accepts units for asynchronous execution.
type UnitQueue interface {
	Submit(u engine.Unit) error
	Stats() models.PoolStats
}

// planSearch validates a search and builds one unit per target site.
// An empty id list means every configured site.
func planSearch(catalog SiteCatalog, query string, ids []string, channel string) ([]engine.Unit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "query must not be empty", nil)
	}

	if len(ids) == 0 {
		ids = catalog.IDs()
	}

	seen := make(map[string]struct{}, len(ids))
	targets := make([]string, 0, len(ids))
	var unknown []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := catalog.Lookup(id); !ok {
			unknown = append(unknown, id)
			continue
		}
		targets = append(targets, id)
	}
	if len(unknown) > 0 {
		return nil, models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown sites: %s", strings.Join(unknown, ", ")),
			nil,
		)
	}
	if len(targets) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no sites configured", nil)
	}

	return engine.FanOut(targets, query, channel), nil
}

// submitAll queues units in order and stops at the first rejection.
// It returns how many were accepted.
func submitAll(queue UnitQueue, units []engine.Unit) (int, error) {
	for i, u := range units {
		if err := queue.Submit(u); err != nil {
			return i, err
		}
	}
	return len(units), nil
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, engine.ErrPoolStopped) {
		return http.StatusServiceUnavailable
	}
	switch models.CodeOf(err) {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case models.ErrCodeQueueFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorDetail(err error) *models.ErrorDetail {
	code := models.CodeOf(err)
	if errors.Is(err, engine.ErrPoolStopped) {
		code = models.ErrCodeQueueFull
	}
	return &models.ErrorDetail{Code: code, Message: models.MessageOf(err)}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.SearchResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: message},
	})
}
