// Package config loads taskloom configuration from file, environment, and
// flags via viper. Precedence: flags > TASKLOOM_* env vars > config file >
// defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full daemon/CLI configuration.
type Config struct {
	// DataDir holds the encrypted store, blobs, spool, and logs.
	DataDir string `mapstructure:"data_dir"`
	// Passphrase unlocks the encrypted store. Usually supplied via
	// TASKLOOM_PASSPHRASE or an interactive prompt, not the config file.
	Passphrase string `mapstructure:"passphrase"`
	// ReplicaID identifies this replica in revision origin_id. Generated
	// and persisted on first run when empty.
	ReplicaID string `mapstructure:"replica_id"`
	// UserID is the signed-in user for repository sessions.
	UserID string `mapstructure:"user_id"`

	Remote RemoteConfig `mapstructure:"remote"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Log    LogConfig    `mapstructure:"log"`
}

// RemoteConfig points at the multi-tenant backend.
type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// SyncConfig tunes the push engine and health monitor.
type SyncConfig struct {
	PushInterval  time.Duration `mapstructure:"push_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

// LogConfig controls the daemon's rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StorePath returns the encrypted database file path.
func (c *Config) StorePath() string { return filepath.Join(c.DataDir, "taskloom.db.enc") }

// BlobDir returns the local blob storage root.
func (c *Config) BlobDir() string { return filepath.Join(c.DataDir, "blobs") }

// SpoolDir returns the attachment drop directory.
func (c *Config) SpoolDir() string { return filepath.Join(c.DataDir, "spool") }

// Load reads configuration. path may be empty to rely on the default search
// locations ($HOME/.taskloom and the working directory).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so AutomaticEnv can resolve it during
	// Unmarshal even when the config file omits it.
	v.SetDefault("data_dir", ".taskloom")
	v.SetDefault("passphrase", "")
	v.SetDefault("replica_id", "")
	v.SetDefault("user_id", "")
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("log.file", "")
	v.SetDefault("sync.push_interval", 30*time.Second)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.base_delay", 2*time.Second)
	v.SetDefault("sync.max_delay", 5*time.Minute)
	v.SetDefault("sync.max_attempts", 0)
	v.SetDefault("sync.probe_interval", 15*time.Second)
	v.SetDefault("sync.probe_timeout", 5*time.Second)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)

	v.SetEnvPrefix("TASKLOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.taskloom")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}
