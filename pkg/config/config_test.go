package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	cfg, err := LoadAPIConfig()
	if err != nil {
		t.Fatalf("LoadAPIConfig: %v", err)
	}
	if cfg.Addr != ":4000" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if !cfg.AutoMigrate {
		t.Fatal("expected auto migrate by default")
	}
	if cfg.StreamHeartbeat != 25*time.Second {
		t.Fatalf("unexpected heartbeat %s", cfg.StreamHeartbeat)
	}
	if cfg.Storage != "postgres" {
		t.Fatalf("unexpected storage %q", cfg.Storage)
	}
}

func TestLoadAPIConfigFromEnv(t *testing.T) {
	t.Setenv("API_ADDR", ":8080")
	t.Setenv("RATE_LIMIT_REDIS_DB", "3")
	t.Setenv("STREAM_HEARTBEAT", "5s")

	cfg, err := LoadAPIConfig()
	if err != nil {
		t.Fatalf("LoadAPIConfig: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.RateLimitRedisDB != 3 || cfg.StreamHeartbeat != 5*time.Second {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestLoadAPIConfigRejectsBadValue(t *testing.T) {
	t.Setenv("RATE_LIMIT_REDIS_DB", "three")
	if _, err := LoadAPIConfig(); err == nil {
		t.Fatal("expected error for non-numeric redis db")
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("POLL_TEST_A=from-file\nPOLL_TEST_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("POLL_TEST_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("POLL_TEST_B") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("POLL_TEST_A"); got != "from-env" {
		t.Fatalf("existing variable overwritten: %q", got)
	}
	if got := os.Getenv("POLL_TEST_B"); got != "from-file" {
		t.Fatalf("file variable not loaded: %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != slog.LevelDebug {
		t.Fatal("debug not parsed")
	}
	if ParseLevel("WARN") != slog.LevelWarn {
		t.Fatal("warn not parsed")
	}
	if ParseLevel("chatty") != slog.LevelInfo {
		t.Fatal("unknown level should fall back to info")
	}
}
