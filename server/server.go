package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/thinmintdev/moltbot-dashboard-sub002/api"
	"github.com/thinmintdev/moltbot-dashboard-sub002/cliexec"
	"github.com/thinmintdev/moltbot-dashboard-sub002/config"
	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
	"github.com/thinmintdev/moltbot-dashboard-sub002/notifications"
	"github.com/thinmintdev/moltbot-dashboard-sub002/tasks"
	"github.com/thinmintdev/moltbot-dashboard-sub002/workspace"
)

// Server owns and coordinates all application components
type Server struct {
	cfg *Config

	// Components (owned by server)
	runner       cliexec.Runner
	chatRunner   cliexec.Runner
	store        tasks.Store
	taskService  *tasks.Service
	taskWatcher  *tasks.Watcher
	workspace    *workspace.Reader
	notifService *notifications.Service

	// Shutdown context - cancelled when server is shutting down.
	// Long-running handlers (WebSocket, SSE) listen to this.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	// HTTP
	router *gin.Engine
	http   *http.Server
}

// New creates a new server with all components initialized
func New(cfg *Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	// 1. Notifications
	log.Info().Msg("initializing notifications service")
	s.notifService = notifications.NewService()

	// 2. CLI runners; chat gets its own, longer timeout
	if cfg.Runner != nil {
		s.runner = cfg.Runner
		s.chatRunner = cfg.Runner
	} else {
		cli := cliexec.NewCLIRunner(cfg.ToRunnerOptions())
		s.runner = cli
		s.chatRunner = cli.WithTimeout(cfg.ChatTimeout)
		log.Info().Str("cli", cli.CLIPath()).Dur("timeout", cfg.ExecTimeout).Msg("CLI runner configured")
	}

	// 3. Task store
	switch cfg.TasksBackend {
	case config.BackendSQLite:
		log.Info().Str("path", cfg.TasksDB).Msg("opening sqlite task store")
		store, err := tasks.OpenSQLiteStore(cfg.TasksDB)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open task database: %w", err)
		}
		s.store = store

	case config.BackendFile, "":
		log.Info().Str("path", cfg.TasksFile).Msg("using file task store")
		fileStore := tasks.NewFileStore(fsys, cfg.TasksFile)
		s.store = fileStore

		// fsnotify only sees the real filesystem
		if cfg.WatchTasks && cfg.Fs == nil {
			s.taskWatcher = tasks.NewWatcher(fileStore, s.notifService)
		}

	default:
		cancel()
		return nil, fmt.Errorf("unknown task backend %q", cfg.TasksBackend)
	}

	// 4. Task service (single writer)
	s.taskService = tasks.NewService(s.store, s.notifService)

	// 5. Workspace readers
	s.workspace = workspace.NewReader(fsys, cfg.ToWorkspaceOptions())

	// 6. HTTP router and listener config. Built here so Shutdown never
	// races Start over the field.
	s.setupRouter()
	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.StdErrorLogger(), // Route Go's internal HTTP errors through zerolog
	}

	log.Info().Msg("server initialized successfully")
	return s, nil
}

// setupRouter creates the Gin engine and its middleware chain.
// Routes are registered by the api package.
func (s *Server) setupRouter() {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(api.RequestContext())
	s.router.Use(log.GinLogger())
	s.router.Use(api.Recovery())
	s.router.Use(api.CORS())

	// Gzip compression (skip SSE and WebSocket endpoints)
	s.router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/events", // SSE and WebSocket - need streaming / protocol upgrade
	})))

	s.router.SetTrustedProxies(nil)

	api.SetupRoutes(s.router, api.NewHandlers(s))
}

// Start starts background services and the HTTP server (blocks)
func (s *Server) Start() error {
	log.Info().Msg("starting server components")

	if s.taskWatcher != nil {
		if err := s.taskWatcher.Start(); err != nil {
			// The board still works without live updates
			log.Warn().Err(err).Msg("task file watcher disabled")
		}
	}

	log.Info().
		Str("addr", s.http.Addr).
		Str("env", s.cfg.Env).
		Msg("HTTP server starting")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	// 1. Signal long-running handlers (WebSocket, SSE) to stop
	s.shutdownCancel()

	// 2. Drain HTTP (stop accepting new requests and wait for in-flight ones)
	if err := s.http.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	// 3. Stop background services in reverse order of startup
	if s.taskWatcher != nil {
		s.taskWatcher.Stop()
	}
	s.taskService.Stop()

	// 4. Close the store
	var closeErr error
	if err := s.store.Close(); err != nil {
		log.Error().Err(err).Msg("task store close error")
		closeErr = err
	}

	// 5. Disconnect any remaining event subscribers
	s.notifService.Shutdown()

	log.Info().Msg("server shutdown complete")
	return closeErr
}

// Component accessors for API handlers
func (s *Server) Runner() cliexec.Runner                { return s.runner }
func (s *Server) ChatRunner() cliexec.Runner            { return s.chatRunner }
func (s *Server) Tasks() *tasks.Service                 { return s.taskService }
func (s *Server) Workspace() *workspace.Reader          { return s.workspace }
func (s *Server) Notifications() *notifications.Service { return s.notifService }
func (s *Server) Router() *gin.Engine                   { return s.router }
func (s *Server) ShutdownContext() context.Context      { return s.shutdownCtx }
