package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/scout/models"
	"github.com/use-agent/scout/stream"
)

// Session returns a handler for GET /api/v1/session.
//
// Each connection owns a fresh channel token, announced in the first frame.
// Search frames ({query, sites?}) sent by the client are queued against that
// token and every message for it is forwarded as it is published.
func Session(catalog SiteCatalog, queue UnitQueue, hub *stream.Hub, originPatterns []string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			// Accept has already written the HTTP error.
			logger.Debug("websocket upgrade refused", "error", err)
			return
		}
		defer conn.CloseNow()

		channel := uuid.NewString()
		sub, err := hub.Subscribe(channel)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "channel unavailable")
			return
		}
		defer hub.Unsubscribe(sub)

		log := logger.With("channel", channel)
		log.Info("session opened", "remote", c.ClientIP())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := wsjson.Write(ctx, conn, models.SessionFrame{Type: "session", Channel: channel}); err != nil {
			return
		}

		go func() {
			defer cancel()
			readSearches(ctx, conn, catalog, queue, channel, log)
		}()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				log.Info("session closed")
				return
			case msg := <-sub.Messages():
				if err := wsjson.Write(ctx, conn, msg); err != nil {
					log.Debug("session write failed", "error", err)
					return
				}
			}
		}
	}
}

// readSearches queues every search frame until the client goes away.
// Rejected searches are answered with an error message on the same socket.
func readSearches(ctx context.Context, conn *websocket.Conn, catalog SiteCatalog, queue UnitQueue, channel string, log *slog.Logger) {
	for {
		var req models.SearchRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug("session read failed", "error", err)
			}
			return
		}

		units, err := planSearch(catalog, req.Query, req.Sites, channel)
		if err == nil {
			var queued int
			queued, err = submitAll(queue, units)
			log.Info("session search queued", "query", req.Query, "units", queued)
		}
		if err != nil {
			if werr := wsjson.Write(ctx, conn, models.NewErrorMessage(models.MessageOf(err))); werr != nil {
				return
			}
		}
	}
}
