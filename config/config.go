package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Task store backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     int
	Host     string
	Env      string // "development" or "production"
	LogLevel string

	// MoltBot CLI
	CLIPath     string
	ExecTimeout time.Duration
	ChatTimeout time.Duration

	// MoltBot workspace
	HomeDir             string
	WorkspaceDir        string
	ConfigFile          string
	MemoryFile          string
	LogFile             string
	ContextSnippetBytes int

	// Task board
	TasksFile    string
	TasksBackend string
	TasksDB      string
	WatchTasks   bool
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		// A missing .env is the normal case outside development
		_ = godotenv.Load()
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	home := getEnv("MOLTBOT_HOME", defaultHome())
	workspace := getEnv("MOLTBOT_WORKSPACE", filepath.Join(home, "workspace"))

	return &Config{
		// Server
		Port:     getEnvInt("PORT", 18790),
		Host:     getEnv("HOST", "0.0.0.0"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// CLI
		CLIPath:     getEnv("MOLTBOT_CLI", "moltbot"),
		ExecTimeout: getEnvDuration("EXEC_TIMEOUT", 30*time.Second),
		ChatTimeout: getEnvDuration("CHAT_TIMEOUT", 120*time.Second),

		// Workspace
		HomeDir:             home,
		WorkspaceDir:        workspace,
		ConfigFile:          getEnv("MOLTBOT_CONFIG_FILE", filepath.Join(home, "moltbot.json")),
		MemoryFile:          getEnv("MOLTBOT_MEMORY_FILE", filepath.Join(workspace, "MEMORY.md")),
		LogFile:             getEnv("MOLTBOT_LOG_FILE", filepath.Join(home, "logs", "gateway.log")),
		ContextSnippetBytes: getEnvInt("CONTEXT_SNIPPET_BYTES", 2000),

		// Tasks
		TasksFile:    getEnv("TASKS_FILE", filepath.Join(home, "tasks.json")),
		TasksBackend: strings.ToLower(getEnv("TASKS_BACKEND", BackendFile)),
		TasksDB:      getEnv("TASKS_DB", filepath.Join(home, "tasks.sqlite")),
		WatchTasks:   getEnvBool("WATCH_TASKS", true),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// Helper functions

func defaultHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".moltbot"
	}
	return filepath.Join(dir, ".moltbot")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
