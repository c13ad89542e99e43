package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raysh454/zapdash/internal/reconciler"
)

func TestDefaultConfig_Validates(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Reconciler.Interval != reconciler.DefaultInterval {
		t.Errorf("unexpected interval %v", cfg.Reconciler.Interval)
	}
	if filepath.Base(cfg.DBPath()) != "records.db" {
		t.Errorf("unexpected db path %q", cfg.DBPath())
	}
}

func TestConfig_ValidateErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"storage", func(c *Config) { c.StorageRoot = " " }, ErrNoStorageRoot},
		{"addr", func(c *Config) { c.HTTP.Addr = "" }, ErrNoListenAddr},
		{"shutdown", func(c *Config) { c.HTTP.ShutdownTimeout = -time.Second }, ErrInvalidTimeout},
		{"zap", func(c *Config) { c.Zap.BaseURL = "" }, ErrNoScanService},
		{"interval", func(c *Config) { c.Reconciler.Interval = 0 }, reconciler.ErrInvalidInterval},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zapdash.yaml")
	data := []byte(`
storage_root: ` + dir + `
http:
  addr: ":9090"
reconciler:
  interval: 3s
  max_concurrent: 4
zap:
  base_url: http://zap.internal:8000/
assistant:
  base_url: http://ai.internal/
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ZAPDASH_ZAP_API_KEY", "secret")
	t.Setenv("ZAPDASH_RECONCILER_INITIAL_DELAY", "250ms")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StorageRoot != dir || cfg.HTTP.Addr != ":9090" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Reconciler.Interval != 3*time.Second || cfg.Reconciler.MaxConcurrent != 4 {
		t.Errorf("unexpected reconciler config %+v", cfg.Reconciler)
	}
	if cfg.Reconciler.InitialDelay != 250*time.Millisecond {
		t.Errorf("env delay not applied: %v", cfg.Reconciler.InitialDelay)
	}
	if cfg.Zap.APIKey != "secret" {
		t.Errorf("env api key not applied: %q", cfg.Zap.APIKey)
	}
	if cfg.Assistant.Tool != "owasp" {
		t.Errorf("default tool lost: %q", cfg.Assistant.Tool)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Errorf("default shutdown timeout lost: %v", cfg.HTTP.ShutdownTimeout)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestExpandPath(t *testing.T) {
	t.Parallel()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got, err := expandPath("~/zapdash")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "zapdash") {
		t.Errorf("got %q", got)
	}
}
