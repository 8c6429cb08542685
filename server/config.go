package server

import (
	"net"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/thinmintdev/moltbot-dashboard-sub002/cliexec"
	"github.com/thinmintdev/moltbot-dashboard-sub002/config"
	"github.com/thinmintdev/moltbot-dashboard-sub002/workspace"
)

// Config holds server configuration
type Config struct {
	// Server infrastructure
	Port int
	Host string
	Env  string // "development" or "production"

	// MoltBot CLI
	CLIPath     string
	ExecTimeout time.Duration
	ChatTimeout time.Duration

	// Workspace files (read-only)
	WorkspaceDir string
	ConfigFile   string
	MemoryFile   string
	LogFile      string
	SnippetBytes int

	// Task board
	TasksBackend string // config.BackendFile or config.BackendSQLite
	TasksFile    string
	TasksDB      string
	WatchTasks   bool

	// Fs backs the task file and workspace readers; nil means the OS filesystem
	Fs afero.Fs

	// Runner replaces the CLI runner for both status checks and chat when set
	Runner cliexec.Runner
}

// FromAppConfig converts the environment configuration
func FromAppConfig(c *config.Config) *Config {
	return &Config{
		Port:         c.Port,
		Host:         c.Host,
		Env:          c.Env,
		CLIPath:      c.CLIPath,
		ExecTimeout:  c.ExecTimeout,
		ChatTimeout:  c.ChatTimeout,
		WorkspaceDir: c.WorkspaceDir,
		ConfigFile:   c.ConfigFile,
		MemoryFile:   c.MemoryFile,
		LogFile:      c.LogFile,
		SnippetBytes: c.ContextSnippetBytes,
		TasksBackend: c.TasksBackend,
		TasksFile:    c.TasksFile,
		TasksDB:      c.TasksDB,
		WatchTasks:   c.WatchTasks,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ToRunnerOptions converts server config to CLI runner options
func (c *Config) ToRunnerOptions() cliexec.Options {
	return cliexec.Options{
		CLIPath: c.CLIPath,
		Timeout: c.ExecTimeout,
	}
}

// ToWorkspaceOptions converts server config to workspace reader options
func (c *Config) ToWorkspaceOptions() workspace.Options {
	return workspace.Options{
		WorkspaceDir: c.WorkspaceDir,
		ConfigFile:   c.ConfigFile,
		MemoryFile:   c.MemoryFile,
		LogFile:      c.LogFile,
		SnippetBytes: c.SnippetBytes,
	}
}
