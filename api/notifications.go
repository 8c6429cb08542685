package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
	"github.com/thinmintdev/moltbot-dashboard-sub002/notifications"
)

// heartbeatInterval paces SSE comments and WebSocket pings
var heartbeatInterval = 30 * time.Second

// EventStream handles GET /events (SSE)
func (h *Handlers) EventStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Status(http.StatusOK)

	events, unsubscribe := h.server.Notifications().Subscribe()
	defer unsubscribe()

	if !writeSSEEvent(c, connectedEvent()) {
		return
	}

	log.Debug().Int("subscribers", h.server.Notifications().SubscriberCount()).Msg("client connected to event stream")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	shutdown := h.server.ShutdownContext().Done()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if !writeSSEEvent(c, event) {
				return
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			log.Debug().Msg("client disconnected from event stream")
			return

		case <-shutdown:
			return
		}
	}
}

func connectedEvent() notifications.Event {
	return notifications.Event{
		Type:      notifications.EventConnected,
		Timestamp: time.Now().UnixMilli(),
	}
}

func writeSSEEvent(c *gin.Context, event notifications.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return true
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}

// EventWebSocket handles GET /events/ws. The feed is one-way; anything the
// client sends is discarded.
func (h *Handlers) EventWebSocket(c *gin.Context) {
	// Accept writes the 101 itself, so hand it the raw writer. Gin's wrapper
	// would refuse the hijack once the status line is out.
	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}

	log.MarkHijacked(c)
	conn, err := websocket.Accept(w, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS is open on every endpoint
	})
	if err != nil {
		log.Warn().Err(err).Msg("event WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Abort Gin context to prevent middleware from writing headers on hijacked connection
	c.Abort()

	// CloseRead keeps reading control frames so pings get their pongs
	ctx := conn.CloseRead(c.Request.Context())

	events, unsubscribe := h.server.Notifications().Subscribe()
	defer unsubscribe()

	if err := writeWSEvent(ctx, conn, connectedEvent()); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	shutdown := h.server.ShutdownContext().Done()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event feed closed")
				return
			}
			if err := writeWSEvent(ctx, conn, event); err != nil {
				log.Debug().Err(err).Msg("event WebSocket write failed")
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("event WebSocket ping failed")
				return
			}

		case <-ctx.Done():
			log.Debug().Msg("event WebSocket client disconnected")
			return

		case <-shutdown:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}

func writeWSEvent(ctx context.Context, conn *websocket.Conn, event notifications.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
