package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mkessler/taskloom/internal/blob"
	"github.com/mkessler/taskloom/internal/config"
	"github.com/mkessler/taskloom/internal/remote"
	"github.com/mkessler/taskloom/internal/repo"
	"github.com/mkessler/taskloom/internal/store"
)

var (
	flagConfig  string
	flagDataDir string
)

var rootCmd = &cobra.Command{
	Use:   "taskloom",
	Short: "Local-first encrypted task store with background sync",
	Long: `taskloom keeps an encrypted on-device task database synchronized
with a remote backend. Local writes land immediately and are pushed in the
background; remote changes stream in over a realtime feed and are merged
with last-write-wins.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (overrides config)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(deadletterCmd)
}

// loadConfig reads configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	return cfg, nil
}

// passphrase returns the store passphrase, prompting interactively when it
// is not configured.
func passphrase(cfg *config.Config) (string, error) {
	if cfg.Passphrase != "" {
		return cfg.Passphrase, nil
	}

	var entered string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Store passphrase").
			EchoMode(huh.EchoModePassword).
			Value(&entered),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if entered == "" {
		return "", fmt.Errorf("a passphrase is required")
	}
	return entered, nil
}

// newLogger builds the daemon logger, rotating via lumberjack when a log
// file is configured.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
		}
	}
	return log.New(out, prefix, log.LstdFlags)
}

// replicaID returns the configured replica id, generating and persisting one
// on first run.
func replicaID(cfg *config.Config) (string, error) {
	if cfg.ReplicaID != "" {
		return cfg.ReplicaID, nil
	}
	idPath := filepath.Join(cfg.DataDir, "replica-id")
	if data, err := os.ReadFile(idPath); err == nil && len(data) > 0 {
		return string(data), nil
	}
	id := uuid.NewString()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.WriteFile(idPath, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist replica id: %w", err)
	}
	return id, nil
}

// openEnv opens the store and builds the repository layer shared by most
// commands. The returned cleanup closes and re-encrypts the store.
func openEnv(cfg *config.Config, logger *log.Logger) (*store.Store, *repo.Repo, remote.Client, repo.Session, func(), error) {
	pass, err := passphrase(cfg)
	if err != nil {
		return nil, nil, nil, repo.Session{}, nil, err
	}

	st, err := store.Open(cfg.StorePath(), pass, logger)
	if err != nil {
		return nil, nil, nil, repo.Session{}, nil, err
	}

	var rc remote.Client
	if cfg.Remote.BaseURL != "" {
		rc = remote.NewHTTPClient(remote.HTTPOptions{
			BaseURL:   cfg.Remote.BaseURL,
			Token:     cfg.Remote.Token,
			UserAgent: "taskloom",
		})
	}

	blobs, err := blob.NewFS(cfg.BlobDir())
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, repo.Session{}, nil, err
	}

	replica, err := replicaID(cfg)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, repo.Session{}, nil, err
	}
	sess := repo.Session{UserID: cfg.UserID, ReplicaID: replica}

	repos := repo.New(st, rc, blobs, logger)
	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Printf("Warning: failed to close store: %v", err)
		}
	}
	return st, repos, rc, sess, cleanup, nil
}
