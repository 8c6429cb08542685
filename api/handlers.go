package api

import (
	"context"

	"github.com/thinmintdev/moltbot-dashboard-sub002/cliexec"
	"github.com/thinmintdev/moltbot-dashboard-sub002/notifications"
	"github.com/thinmintdev/moltbot-dashboard-sub002/tasks"
	"github.com/thinmintdev/moltbot-dashboard-sub002/workspace"
)

// Components is the part of the server the handlers depend on
type Components interface {
	Runner() cliexec.Runner
	ChatRunner() cliexec.Runner
	Tasks() *tasks.Service
	Workspace() *workspace.Reader
	Notifications() *notifications.Service
	ShutdownContext() context.Context
}

// Handlers holds references to server components
type Handlers struct {
	server Components
}

// NewHandlers creates a new Handlers instance with server reference
func NewHandlers(srv Components) *Handlers {
	return &Handlers{server: srv}
}
