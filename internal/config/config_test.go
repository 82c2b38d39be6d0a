package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoad_File tests loading an explicit config file over the defaults.
func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data_dir: /var/lib/taskloom
user_id: user-42
remote:
  base_url: https://sync.example.com
  token: abc123
sync:
  push_interval: 10s
  batch_size: 25
  max_attempts: 5
log:
  file: /var/log/taskloom.log
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != "/var/lib/taskloom" {
		t.Errorf("data_dir = %q, want /var/lib/taskloom", cfg.DataDir)
	}
	if cfg.Remote.BaseURL != "https://sync.example.com" {
		t.Errorf("remote.base_url = %q, want https://sync.example.com", cfg.Remote.BaseURL)
	}
	if cfg.Sync.PushInterval != 10*time.Second {
		t.Errorf("sync.push_interval = %v, want 10s", cfg.Sync.PushInterval)
	}
	if cfg.Sync.BatchSize != 25 {
		t.Errorf("sync.batch_size = %d, want 25", cfg.Sync.BatchSize)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("sync.max_attempts = %d, want 5", cfg.Sync.MaxAttempts)
	}

	// Untouched keys keep their defaults.
	if cfg.Sync.MaxDelay != 5*time.Minute {
		t.Errorf("sync.max_delay = %v, want default 5m", cfg.Sync.MaxDelay)
	}
	if cfg.Log.MaxSizeMB != 10 {
		t.Errorf("log.max_size_mb = %d, want default 10", cfg.Log.MaxSizeMB)
	}
}

// TestLoad_MissingExplicitFile tests that a named but absent file errors.
func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() of missing explicit file succeeded, want error")
	}
}

// TestLoad_EnvOverride tests TASKLOOM_* environment precedence over the file.
func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("user_id: from-file\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("TASKLOOM_USER_ID", "from-env")
	t.Setenv("TASKLOOM_PASSPHRASE", "hunter2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.UserID != "from-env" {
		t.Errorf("user_id = %q, want env value", cfg.UserID)
	}
	if cfg.Passphrase != "hunter2" {
		t.Errorf("passphrase = %q, want env value", cfg.Passphrase)
	}
}

// TestConfig_Paths tests the derived data directory layout.
func TestConfig_Paths(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	if got := cfg.StorePath(); got != filepath.Join("/data", "taskloom.db.enc") {
		t.Errorf("StorePath() = %q", got)
	}
	if got := cfg.BlobDir(); got != filepath.Join("/data", "blobs") {
		t.Errorf("BlobDir() = %q", got)
	}
	if got := cfg.SpoolDir(); got != filepath.Join("/data", "spool") {
		t.Errorf("SpoolDir() = %q", got)
	}
}
