package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
)

const (
	headerRequestID    = "X-Request-ID"
	headerResponseTime = "X-Response-Time"

	contextKeyStart = "request_start"
)

// RequestContext stamps every request with an id and a start time.
// An incoming X-Request-ID is kept so callers can correlate.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextKeyStart, time.Now())

		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(log.ContextKeyRequestID, id)
		c.Header(headerRequestID, id)

		c.Next()
	}
}

// setResponseTime must run before the status line is written
func setResponseTime(c *gin.Context) {
	start, ok := c.Get(contextKeyStart)
	if !ok {
		return
	}
	if t, ok := start.(time.Time); ok {
		c.Header(headerResponseTime, fmt.Sprintf("%dms", time.Since(t).Milliseconds()))
	}
}

// CORS opens every endpoint to any origin and answers preflights directly
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Response-Time")

		if c.Request.Method == http.MethodOptions {
			setResponseTime(c)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Recovery converts a panic anywhere below it into a 500 envelope
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Error().
			Interface("panic", recovered).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("requestId", c.GetString(log.ContextKeyRequestID)).
			Msg("recovered from panic")

		if c.Writer.Written() {
			c.Abort()
			return
		}
		RespondError(c, NewError(ErrCodeExecution, "Internal server error"))
	})
}
