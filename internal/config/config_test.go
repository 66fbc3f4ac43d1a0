package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want :8080", cfg.Listen)
	}
	if cfg.Database.Path != "./driftsync.db" {
		t.Errorf("Database.Path = %q, want ./driftsync.db", cfg.Database.Path)
	}
	if cfg.Runner.MaxRuntime.Duration() != 30*time.Minute {
		t.Errorf("MaxRuntime = %v, want 30m", cfg.Runner.MaxRuntime.Duration())
	}
	if cfg.Runner.SweepInterval.Duration() != 5*time.Minute {
		t.Errorf("SweepInterval = %v, want 5m", cfg.Runner.SweepInterval.Duration())
	}
	if cfg.Runner.TickInterval.Duration() != time.Minute {
		t.Errorf("TickInterval = %v, want 1m", cfg.Runner.TickInterval.Duration())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driftsync.yaml")

	content := `
listen: ":9090"
database:
  path: /var/lib/driftsync/driftsync.db
runner:
  max_runtime: 1h
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, gotPath, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if gotPath != path {
		t.Errorf("path = %q, want %q", gotPath, path)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q, want :9090", cfg.Listen)
	}
	if cfg.Database.Path != "/var/lib/driftsync/driftsync.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Runner.MaxRuntime.Duration() != time.Hour {
		t.Errorf("MaxRuntime = %v, want 1h", cfg.Runner.MaxRuntime.Duration())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}

	// Unset values still get defaults
	if cfg.Runner.SweepInterval.Duration() != 5*time.Minute {
		t.Errorf("SweepInterval = %v, want default 5m", cfg.Runner.SweepInterval.Duration())
	}
}

func TestLoadFromPathBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driftsync.yaml")

	if err := os.WriteFile(path, []byte("runner:\n  max_runtime: soon\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected parse error for bad duration")
	}
}

func TestFindConfigPathEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9090\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvConfigPath, path)
	// Keep the working-directory fallback from matching a real file.
	t.Chdir(dir)

	if got := FindConfigPath(); got != path {
		t.Errorf("FindConfigPath() = %q, want %q", got, path)
	}
}
