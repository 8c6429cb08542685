package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

// Route is one entry of the gateway's route table
type Route struct {
	Method      string
	Path        string
	Handler     gin.HandlerFunc
	Description string
}

// Endpoint is the public description of a route, listed in 404 responses
type Endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Routes returns the route table
func (h *Handlers) Routes() []Route {
	return []Route{
		// Agent
		{http.MethodGet, "/status", h.GetStatus, "Agent status"},
		{http.MethodGet, "/health", h.GetHealth, "Agent health"},
		{http.MethodGet, "/combined", h.GetCombined, "Status and health in one call"},
		{http.MethodGet, "/models", h.GetModels, "Available models"},
		{http.MethodPost, "/model/set", h.SetModel, "Switch the active model (?model=)"},
		{http.MethodPost, "/chat", h.Chat, "Send a message to the agent"},

		// Tasks
		{http.MethodGet, "/tasks", h.GetTasks, "Task board"},
		{http.MethodPost, "/tasks", h.CreateTask, "Create a task"},
		{http.MethodPost, "/task/update", h.UpdateTaskStatus, "Move a task to another status"},

		// Workspace
		{http.MethodGet, "/context", h.GetContext, "Workspace config and memory snippet"},
		{http.MethodGet, "/logs", h.GetLogs, "Tail of the gateway log (?lines=)"},

		// Live updates
		{http.MethodGet, "/events", h.EventStream, "Server-sent event feed"},
		{http.MethodGet, "/events/ws", h.EventWebSocket, "WebSocket event feed"},
	}
}

// SetupRoutes registers the route table and the 404/405 fallbacks
func SetupRoutes(r *gin.Engine, h *Handlers) {
	routes := h.Routes()
	for _, route := range routes {
		r.Handle(route.Method, route.Path, route.Handler)
	}

	// Only exact paths match; /status/ is a 404 rather than a redirect
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleMethodNotAllowed = true
	r.NoRoute(notFound(routes))
	r.NoMethod(methodNotAllowed(routes))
}

func endpoints(routes []Route) []Endpoint {
	out := make([]Endpoint, 0, len(routes))
	for _, route := range routes {
		out = append(out, Endpoint{Method: route.Method, Path: route.Path, Description: route.Description})
	}
	return out
}

func notFound(routes []Route) gin.HandlerFunc {
	list := endpoints(routes)
	return func(c *gin.Context) {
		RespondError(c, NewError(ErrCodeNotFound, "Endpoint not found: %s %s", c.Request.Method, c.Request.URL.Path).
			WithDetails(gin.H{"availableEndpoints": list}))
	}
}

func methodNotAllowed(routes []Route) gin.HandlerFunc {
	allowed := make(map[string][]string)
	for _, route := range routes {
		if !slices.Contains(allowed[route.Path], route.Method) {
			allowed[route.Path] = append(allowed[route.Path], route.Method)
		}
	}
	return func(c *gin.Context) {
		methods := allowed[c.Request.URL.Path]
		if len(methods) > 0 {
			c.Header("Allow", strings.Join(methods, ", "))
		}
		RespondError(c, NewError(ErrCodeMethodNotAllowed, "Method %s not allowed on %s", c.Request.Method, c.Request.URL.Path).
			WithDetails(gin.H{"allowed": methods}))
	}
}
