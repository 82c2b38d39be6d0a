package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkessler/taskloom/internal/engine"
	"github.com/mkessler/taskloom/internal/ui"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push unsynced revisions to the remote backend once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required")
		}
		logger := newLogger(cfg, "[push] ")
		st, _, rc, _, cleanup, err := openEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		pending, err := st.CountUnsynced(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s Pushing %d pending revision(s)...\n", ui.RenderAccent("⇡"), pending)
		start := time.Now()

		pusher := engine.NewPusher(st, rc, nil, engine.PushConfig{
			BatchSize:   cfg.Sync.BatchSize,
			BaseDelay:   cfg.Sync.BaseDelay,
			MaxDelay:    cfg.Sync.MaxDelay,
			MaxAttempts: cfg.Sync.MaxAttempts,
		}, nil, logger)
		synced := pusher.RunOnce(ctx)

		fmt.Printf("%s Pushed %d revision(s) in %v\n",
			ui.RenderPass("✓"), synced, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull remote state into the local store once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required")
		}
		logger := newLogger(cfg, "[pull] ")
		st, _, rc, _, cleanup, err := openEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Printf("%s Pulling from %s...\n", ui.RenderAccent("⇣"), cfg.Remote.BaseURL)
		start := time.Now()

		puller := engine.NewPuller(st, rc, nil, logger)
		applied := puller.PullAll(context.Background())

		fmt.Printf("%s Applied %d remote change(s) in %v\n",
			ui.RenderPass("✓"), applied, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "[status] ")
		st, _, _, _, cleanup, err := openEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		version, err := st.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		total, err := st.CountRevisions(ctx)
		if err != nil {
			return err
		}
		pending, err := st.CountUnsynced(ctx)
		if err != nil {
			return err
		}
		dead, err := st.DeadRevisions(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s taskloom store\n", ui.RenderAccent("●"))
		fmt.Printf("   Path:       %s\n", cfg.StorePath())
		fmt.Printf("   Schema:     v%d\n", version)
		fmt.Printf("   Revisions:  %d total, %d pending\n", total, pending)
		if len(dead) > 0 {
			fmt.Printf("   %s %d dead-lettered revision(s), see 'taskloom deadletter'\n",
				ui.RenderWarn("⚠"), len(dead))
		}
		if cfg.Remote.BaseURL == "" {
			fmt.Printf("   Remote:     %s\n", ui.RenderDim("not configured"))
		} else {
			fmt.Printf("   Remote:     %s\n", cfg.Remote.BaseURL)
		}
		fmt.Println()
		return nil
	},
}
