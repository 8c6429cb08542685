package api

import (
	"github.com/gin-gonic/gin"
	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
	"github.com/thinmintdev/moltbot-dashboard-sub002/validate"
)

// DefaultLogLines is used when /logs is called without ?lines=
const DefaultLogLines = 100

// GetContext handles GET /context
func (h *Handlers) GetContext(c *gin.Context) {
	RespondData(c, h.server.Workspace().Context())
}

// GetLogs handles GET /logs?lines=
func (h *Handlers) GetLogs(c *gin.Context) {
	lines := DefaultLogLines
	if raw, ok := c.GetQuery("lines"); ok {
		n, res := validate.LogLines(raw)
		if !res.Valid {
			RespondInvalidParameter(c, "lines", res.Error)
			return
		}
		lines = n
	}

	tail, err := h.server.Workspace().Tail(lines)
	if err != nil {
		log.Error().Err(err).Str("file", tail.File).Msg("failed to read log file")
		RespondError(c, NewError(ErrCodeFileRead, "Failed to read log file").
			WithDetails(gin.H{"file": tail.File}))
		return
	}

	RespondData(c, tail)
}
