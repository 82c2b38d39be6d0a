package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkessler/taskloom/internal/blob"
	"github.com/mkessler/taskloom/internal/engine"
	"github.com/mkessler/taskloom/internal/remote"
	"github.com/mkessler/taskloom/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground.

The daemon opens the encrypted store and keeps it synchronized:
  - pushes unsynced revisions on an interval with retry backoff
  - subscribes to realtime change feeds per table
  - probes network health and resyncs on recovery
  - watches the attachment spool directory for dropped files`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required to run the daemon")
		}

		logger := newLogger(cfg, "[taskloom] ")
		st, repos, rc, sess, cleanup, err := openEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		httpClient, ok := rc.(*remote.HTTPClient)
		host := ""
		if ok {
			host = httpClient.Host()
		}

		daemon := engine.NewDaemon(st, rc, engine.DaemonConfig{
			Push: engine.PushConfig{
				Interval:    cfg.Sync.PushInterval,
				BatchSize:   cfg.Sync.BatchSize,
				BaseDelay:   cfg.Sync.BaseDelay,
				MaxDelay:    cfg.Sync.MaxDelay,
				MaxAttempts: cfg.Sync.MaxAttempts,
			},
			Health: engine.HealthConfig{
				Host:         host,
				Interval:     cfg.Sync.ProbeInterval,
				ProbeTimeout: cfg.Sync.ProbeTimeout,
			},
			Logger: logger,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Attachment spool: files dropped here become attachments on the
		// inbox task for this user.
		spool, err := blob.NewSpool(blob.SpoolConfig{Dir: cfg.SpoolDir(), Logger: logger},
			func(ctx context.Context, path string) error {
				_, err := repos.AttachFile(ctx, sess, "inbox", path)
				return err
			})
		if err != nil {
			return err
		}
		if err := spool.Start(ctx); err != nil {
			return err
		}
		defer spool.Stop()

		daemon.Start(ctx)
		defer daemon.Stop()

		fmt.Printf("%s Sync daemon running (data: %s)\n", ui.RenderAccent("●"), cfg.DataDir)

		events := daemon.Bus.Subscribe(0)
		for {
			select {
			case <-ctx.Done():
				fmt.Printf("\n%s Shutting down\n", ui.RenderDim("…"))
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				printEvent(ev)
			}
		}
	},
}

func printEvent(ev engine.Event) {
	switch e := ev.(type) {
	case engine.StatusEvent:
		if e.Online {
			fmt.Printf("%s online\n", ui.RenderPass("✓"))
		} else {
			fmt.Printf("%s offline\n", ui.RenderWarn("⚠"))
		}
	case engine.NoticeEvent:
		marker := ui.RenderAccent("·")
		switch e.Level {
		case engine.LevelSuccess:
			marker = ui.RenderPass("✓")
		case engine.LevelWarning:
			marker = ui.RenderWarn("⚠")
		case engine.LevelError:
			marker = ui.RenderFail("✗")
		}
		fmt.Printf("%s %s\n", marker, e.Message)
	case engine.PullEvent:
		fmt.Printf("%s pulled %d change(s)\n", ui.RenderAccent("⇣"), e.Count)
	case engine.PushedEvent:
		fmt.Printf("%s pushed %d, failed %d (%d background)\n",
			ui.RenderAccent("⇡"), e.Synced, e.Failed, e.Background)
	}
}
