package handlers

import (
	"context"
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"io"
	"krosty/internal/app/adapters/metrics"
	"krosty/internal/app/domain/chat"
	"log/slog"
	"net/http"
	"time"
)

const (
	eventsBatch     = 64
	eventsKeepalive = 15 * time.Second
)

// EventsHandler streams bus events as server-sent events. ?channel= limits
// the stream to one channel; overflow markers are always delivered.
func (h *Handlers) EventsHandler(c *gin.Context) {
	var only chat.ChannelID
	if raw := c.Query("channel"); raw != "" {
		id, err := chat.ParseChannelID(raw)
		if err != nil {
			h.abortWithError(c, err)
			return
		}
		only = id
	}

	clientID := uuid.NewString()
	cursor := h.bus.Subscribe()
	defer cursor.Close()

	metrics.SSEClients.Inc()
	defer metrics.SSEClients.Dec()

	h.log.Debug("Event stream opened", slog.String("client", clientID), slog.String("channel", string(only)))
	defer h.log.Debug("Event stream closed", slog.String("client", clientID))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		waitCtx, cancel := context.WithTimeout(ctx, eventsKeepalive)
		evs, err := cursor.Next(waitCtx, eventsBatch)
		cancel()

		switch {
		case ctx.Err() != nil:
			return false
		case errors.Is(err, context.DeadlineExceeded):
			c.SSEvent("ping", "")
			return true
		case err != nil:
			return false
		}

		for _, ev := range evs {
			if only != "" && ev.EventChannel() != "" && ev.EventChannel() != only {
				continue
			}
			c.SSEvent(chat.EventType(ev), newEventView(ev))
		}
		return true
	})
}
