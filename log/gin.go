package log

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Gin context keys shared with the api middleware
const (
	ContextKeyHijacked  = "connection_hijacked"
	ContextKeyRequestID = "request_id"
)

// MarkHijacked marks the connection as hijacked in Gin's context.
// WebSocket handlers call it before websocket.Accept so the request logger
// never touches the hijacked writer.
func MarkHijacked(c *gin.Context) {
	c.Set(ContextKeyHijacked, true)
}

// IsHijacked checks if the connection has been marked as hijacked.
func IsHijacked(c *gin.Context) bool {
	hijacked, exists := c.Get(ContextKeyHijacked)
	return exists && hijacked.(bool)
}

// GinLogger returns a Gin middleware that logs requests using zerolog
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if IsHijacked(c) {
			return
		}

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		event := Info()
		if status >= 500 {
			event = Error()
		} else if status >= 400 {
			event = Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", c.ClientIP())

		if id := c.GetString(ContextKeyRequestID); id != "" {
			event.Str("requestId", id)
		}
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			event.Str("error", errorMessage)
		}

		event.Msg("request")
	}
}
