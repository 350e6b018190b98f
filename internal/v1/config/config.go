package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Listener
	ServerPort   int
	OpsPort      int
	ThreadPool   int
	EpollTimeout time.Duration

	// Per-connection buffer caps (bytes)
	MaxReadBuffer  int
	MaxWriteBuffer int

	// Sessions
	TokenExpire     time.Duration
	CleanupInterval time.Duration

	// Database
	DBHost        string
	DBPort        int
	DBUsername    string
	DBPassword    string
	DBDatabase    string
	DBPoolMin     int
	DBPoolMax     int
	DBConnTimeout time.Duration
	DBIdleTimeout time.Duration

	// Ambient
	GoEnv             string
	LogLevel          string
	OtelCollectorAddr string
}

// ValidateEnv validates all required environment variables and returns a
// Config object. Returns an error listing every missing or invalid variable.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: SERVER_PORT (valid port number)
	cfg.ServerPort = requireInt(&errors, "SERVER_PORT")
	if cfg.ServerPort != 0 && (cfg.ServerPort < 1 || cfg.ServerPort > 65535) {
		errors = append(errors, fmt.Sprintf("SERVER_PORT must be between 1 and 65535 (got %d)", cfg.ServerPort))
	}

	// Optional with defaults
	cfg.OpsPort = optionalInt(&errors, "OPS_PORT", 8080)
	cfg.ThreadPool = optionalInt(&errors, "THREAD_POOL_SIZE", runtime.NumCPU())
	if cfg.ThreadPool < 1 {
		errors = append(errors, fmt.Sprintf("THREAD_POOL_SIZE must be at least 1 (got %d)", cfg.ThreadPool))
	}
	cfg.EpollTimeout = time.Duration(optionalInt(&errors, "EPOLL_TIMEOUT_MS", 1000)) * time.Millisecond
	cfg.MaxReadBuffer = optionalInt(&errors, "MAX_READ_BUFFER_SIZE", 1<<20)
	cfg.MaxWriteBuffer = optionalInt(&errors, "MAX_WRITE_BUFFER_SIZE", 1<<20)
	cfg.TokenExpire = time.Duration(optionalInt(&errors, "TOKEN_EXPIRE_MINUTES", 30)) * time.Minute
	cfg.CleanupInterval = time.Duration(optionalInt(&errors, "CLEANUP_INTERVAL_MINUTES", 10)) * time.Minute

	// Required: database coordinates
	cfg.DBHost = requireString(&errors, "DB_HOST")
	cfg.DBPort = optionalInt(&errors, "DB_PORT", 3306)
	cfg.DBUsername = requireString(&errors, "DB_USERNAME")
	cfg.DBPassword = requireString(&errors, "DB_PASSWORD")
	cfg.DBDatabase = requireString(&errors, "DB_DATABASE")
	cfg.DBPoolMin = requireInt(&errors, "DB_POOL_MIN")
	cfg.DBPoolMax = requireInt(&errors, "DB_POOL_MAX")
	if cfg.DBPoolMax != 0 && cfg.DBPoolMax < cfg.DBPoolMin {
		errors = append(errors, fmt.Sprintf("DB_POOL_MAX (%d) must be >= DB_POOL_MIN (%d)", cfg.DBPoolMax, cfg.DBPoolMin))
	}
	cfg.DBConnTimeout = time.Duration(requireInt(&errors, "DB_CONN_TIMEOUT")) * time.Millisecond
	cfg.DBIdleTimeout = time.Duration(requireInt(&errors, "DB_IDLE_TIMEOUT")) * time.Second

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// Optional: tracing is off unless a collector address is given
	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// Development reports whether the server runs with development logging.
func (c *Config) Development() bool {
	return c.GoEnv != "production"
}

// requireString reads a required variable, recording an error when missing.
func requireString(errors *[]string, key string) string {
	value := os.Getenv(key)
	if value == "" {
		*errors = append(*errors, key+" is required")
	}
	return value
}

// requireInt reads a required integer variable, recording an error when
// missing or unparsable.
func requireInt(errors *[]string, key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		*errors = append(*errors, key+" is required")
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("%s must be an integer (got '%s')", key, raw))
		return 0
	}
	return value
}

// optionalInt reads an integer variable, falling back to a default when
// unset and recording an error when set but unparsable.
func optionalInt(errors *[]string, key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("%s must be an integer (got '%s')", key, raw))
		return defaultValue
	}
	return value
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated")
	slog.Info("Configuration",
		"server_port", cfg.ServerPort,
		"ops_port", cfg.OpsPort,
		"thread_pool_size", cfg.ThreadPool,
		"epoll_timeout", cfg.EpollTimeout,
		"token_expire", cfg.TokenExpire,
		"cleanup_interval", cfg.CleanupInterval,
		"db_host", cfg.DBHost,
		"db_port", cfg.DBPort,
		"db_username", cfg.DBUsername,
		"db_password", "***",
		"db_database", cfg.DBDatabase,
		"db_pool_min", cfg.DBPoolMin,
		"db_pool_max", cfg.DBPoolMax,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
	)
}
