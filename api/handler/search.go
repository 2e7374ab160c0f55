package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scout/models"
	"github.com/use-agent/scout/stream"
)

// PostSearch returns a handler for POST /api/v1/search.
//
// Flow:
//  1. Parse & validate request.
//  2. Resolve destination: callback URL, or the channel of an open session.
//  3. Plan one unit per site and queue them.
//  4. Return 202 immediately; messages arrive on the destination.
func PostSearch(catalog SiteCatalog, queue UnitQueue, hub *stream.Hub, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		// ── 2. Destination ──────────────────────────────────────────
		var channel string
		switch {
		case req.CallbackURL != "" && req.Channel != "":
			badRequest(c, "set either callback_url or channel, not both")
			return
		case req.CallbackURL != "":
			if !stream.IsCallbackURL(req.CallbackURL) {
				badRequest(c, "callback_url must be an http(s) URL")
				return
			}
			channel = req.CallbackURL
		case req.Channel != "":
			if !hub.Has(req.Channel) {
				badRequest(c, "channel has no open session")
				return
			}
			channel = req.Channel
		default:
			badRequest(c, "callback_url or channel is required")
			return
		}

		// ── 3. Plan & queue ─────────────────────────────────────────
		units, err := planSearch(catalog, req.Query, req.Sites, channel)
		if err != nil {
			c.JSON(statusFor(err), models.SearchResponse{Success: false, Error: errorDetail(err)})
			return
		}

		queued, err := submitAll(queue, units)
		if err != nil {
			logger.Warn("search partially queued", "queued", queued, "requested", len(units), "error", err)
			c.JSON(statusFor(err), models.SearchResponse{
				Success: false,
				Channel: channel,
				Units:   queued,
				Error:   errorDetail(err),
			})
			return
		}

		// ── 4. Accepted ─────────────────────────────────────────────
		c.JSON(http.StatusAccepted, models.SearchResponse{
			Success: true,
			Channel: channel,
			Units:   queued,
		})
	}
}
