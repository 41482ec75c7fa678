package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Workers.Min != 1 || cfg.Workers.Max != 32 {
		t.Fatalf("expected default pool bounds [1,32], got [%d,%d]", cfg.Workers.Min, cfg.Workers.Max)
	}
	if cfg.Storage.Dir != "./data" {
		t.Fatalf("expected default storage dir, got %q", cfg.Storage.Dir)
	}
	if cfg.Server.Port != 8090 {
		t.Fatalf("expected default server port 8090, got %d", cfg.Server.Port)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "barforge.yaml")
	contents := []byte("storage:\n  dir: /srv/barforge\nworkers:\n  max: 8\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Storage.Dir != "/srv/barforge" {
		t.Fatalf("expected overridden storage dir, got %q", cfg.Storage.Dir)
	}
	if cfg.Workers.Max != 8 {
		t.Fatalf("expected overridden worker max 8, got %d", cfg.Workers.Max)
	}
}

func TestLoadClampsOutOfRangeWorkerBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "barforge.yaml")
	contents := []byte("workers:\n  min: 0\n  max: 1000\n  default: 2000\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Workers.Min != 1 {
		t.Fatalf("expected min clamped to 1, got %d", cfg.Workers.Min)
	}
	if cfg.Workers.Max != 32 {
		t.Fatalf("expected max clamped to 32, got %d", cfg.Workers.Max)
	}
	if cfg.Workers.Default != 32 {
		t.Fatalf("expected default clamped to max 32, got %d", cfg.Workers.Default)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load("/nonexistent/barforge.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestIsCSVRootAllowed(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{AllowedCSVRoots: []string{"/data/csv"}}}
	if !cfg.IsCSVRootAllowed("/data/csv/BTCUSD_1h.csv") {
		t.Fatal("expected path under allowed root to be allowed")
	}
	if cfg.IsCSVRootAllowed("/etc/passwd") {
		t.Fatal("expected path outside allowed roots to be rejected")
	}
	if cfg.IsCSVRootAllowed("/data/csv-evil/x.csv") {
		t.Fatal("expected prefix-only match without path separator to be rejected")
	}
}

func TestNewLoggerBuildsConsoleLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "console"})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	defer logger.Sync()
	logger.Info("config logger smoke test")
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "not-a-level", Format: "console"}); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}
