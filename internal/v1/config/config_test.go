package config

import (
	"os"
	"runtime"
	"strings"
	"testing"
	"time"
)

var configVars = []string{
	"SERVER_PORT", "OPS_PORT", "THREAD_POOL_SIZE", "EPOLL_TIMEOUT_MS",
	"MAX_READ_BUFFER_SIZE", "MAX_WRITE_BUFFER_SIZE",
	"TOKEN_EXPIRE_MINUTES", "CLEANUP_INTERVAL_MINUTES",
	"DB_HOST", "DB_PORT", "DB_USERNAME", "DB_PASSWORD", "DB_DATABASE",
	"DB_POOL_MIN", "DB_POOL_MAX", "DB_CONN_TIMEOUT", "DB_IDLE_TIMEOUT",
	"GO_ENV", "LOG_LEVEL", "OTEL_COLLECTOR_ADDR",
}

// setupTestEnv clears the configuration environment and returns a cleanup
// function restoring the original values.
func setupTestEnv(t *testing.T) func() {
	t.Helper()

	origVars := map[string]string{}
	for _, key := range configVars {
		origVars[key] = os.Getenv(key)
		os.Unsetenv(key)
	}

	return func() {
		for key, val := range origVars {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	os.Setenv("SERVER_PORT", "9000")
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("DB_USERNAME", "chat")
	os.Setenv("DB_PASSWORD", "secret")
	os.Setenv("DB_DATABASE", "chatroom")
	os.Setenv("DB_POOL_MIN", "2")
	os.Setenv("DB_POOL_MAX", "8")
	os.Setenv("DB_CONN_TIMEOUT", "3000")
	os.Setenv("DB_IDLE_TIMEOUT", "300")
}

func TestValidateEnv_ValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	setRequired(t)

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.ServerPort != 9000 {
		t.Errorf("Expected SERVER_PORT 9000, got %d", cfg.ServerPort)
	}
	if cfg.DBPort != 3306 {
		t.Errorf("Expected DB_PORT default 3306, got %d", cfg.DBPort)
	}
	if cfg.ThreadPool != runtime.NumCPU() {
		t.Errorf("Expected THREAD_POOL_SIZE default %d, got %d", runtime.NumCPU(), cfg.ThreadPool)
	}
	if cfg.EpollTimeout != time.Second {
		t.Errorf("Expected EPOLL_TIMEOUT_MS default 1s, got %v", cfg.EpollTimeout)
	}
	if cfg.MaxReadBuffer != 1<<20 || cfg.MaxWriteBuffer != 1<<20 {
		t.Errorf("Expected 1 MiB buffer defaults, got %d/%d", cfg.MaxReadBuffer, cfg.MaxWriteBuffer)
	}
	if cfg.TokenExpire != 30*time.Minute {
		t.Errorf("Expected TOKEN_EXPIRE default 30m, got %v", cfg.TokenExpire)
	}
	if cfg.CleanupInterval != 10*time.Minute {
		t.Errorf("Expected CLEANUP_INTERVAL default 10m, got %v", cfg.CleanupInterval)
	}
	if cfg.DBConnTimeout != 3*time.Second {
		t.Errorf("Expected DB_CONN_TIMEOUT 3s, got %v", cfg.DBConnTimeout)
	}
	if cfg.DBIdleTimeout != 5*time.Minute {
		t.Errorf("Expected DB_IDLE_TIMEOUT 5m, got %v", cfg.DBIdleTimeout)
	}
	if cfg.Development() {
		// GO_ENV defaults to production
		t.Errorf("Expected production default, got %q", cfg.GoEnv)
	}
}

func TestValidateEnv_MissingRequired(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("Expected error for empty environment")
	}

	for _, key := range []string{"SERVER_PORT", "DB_HOST", "DB_USERNAME", "DB_PASSWORD", "DB_DATABASE", "DB_POOL_MIN", "DB_POOL_MAX", "DB_CONN_TIMEOUT", "DB_IDLE_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("Expected error to mention %s, got: %v", key, err)
		}
	}
}

func TestValidateEnv_InvalidPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	setRequired(t)
	os.Setenv("SERVER_PORT", "70000")

	_, err := ValidateEnv()
	if err == nil || !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Fatalf("Expected SERVER_PORT range error, got: %v", err)
	}
}

func TestValidateEnv_NonIntegerValue(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	setRequired(t)
	os.Setenv("THREAD_POOL_SIZE", "many")

	_, err := ValidateEnv()
	if err == nil || !strings.Contains(err.Error(), "THREAD_POOL_SIZE") {
		t.Fatalf("Expected THREAD_POOL_SIZE parse error, got: %v", err)
	}
}

func TestValidateEnv_PoolBounds(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	setRequired(t)
	os.Setenv("DB_POOL_MIN", "10")
	os.Setenv("DB_POOL_MAX", "2")

	_, err := ValidateEnv()
	if err == nil || !strings.Contains(err.Error(), "DB_POOL_MAX") {
		t.Fatalf("Expected pool bound error, got: %v", err)
	}
}

func TestValidateEnv_Overrides(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	setRequired(t)
	os.Setenv("TOKEN_EXPIRE_MINUTES", "0")
	os.Setenv("THREAD_POOL_SIZE", "3")
	os.Setenv("GO_ENV", "development")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.TokenExpire != 0 {
		t.Errorf("Expected zero token expiry, got %v", cfg.TokenExpire)
	}
	if cfg.ThreadPool != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.ThreadPool)
	}
	if !cfg.Development() {
		t.Error("Expected development mode")
	}
}
