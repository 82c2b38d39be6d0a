package engine

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mkessler/taskloom/internal/remote"
	"github.com/mkessler/taskloom/internal/store"
)

// DaemonConfig holds the tunables for the whole sync daemon.
type DaemonConfig struct {
	Push   PushConfig
	Health HealthConfig
	Logger *log.Logger
}

// Daemon owns the background sync loops: push engine, realtime subscription
// manager, and network health monitor, all sharing one store and one event
// bus. The pull engine has no own timer; it runs at startup, on recovery,
// and on manual triggers.
type Daemon struct {
	Bus      *Bus
	Pusher   *Pusher
	Puller   *Puller
	Realtime *Realtime
	Monitor  *Monitor

	logger *log.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDaemon wires the sync components together.
func NewDaemon(st *store.Store, rc remote.Client, config DaemonConfig) *Daemon {
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	bus := NewBus()
	puller := NewPuller(st, rc, bus, logger)
	realtime := NewRealtime(st, rc, bus, logger)

	d := &Daemon{
		Bus:      bus,
		Puller:   puller,
		Realtime: realtime,
		logger:   logger,
	}

	d.Monitor = NewMonitor(config.Health, rc, bus, d.recover, logger)
	d.Pusher = NewPusher(st, rc, bus, config.Push, d.Monitor.Online, logger)
	return d
}

// Start launches the background loops and performs an initial push+pull so a
// replica that was offline catches up immediately.
func (d *Daemon) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.logger.Println("Starting sync daemon")

	d.Realtime.Start(ctx)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.Monitor.Run(ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.Pusher.Run(ctx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Pusher.RunOnce(ctx)
		d.Puller.PullAll(ctx)
	}()
}

// Stop cancels the loops, waits for them, and closes the bus. In-flight
// remote calls finish or fail naturally; nothing is hard-cancelled beyond
// the context.
func (d *Daemon) Stop() {
	d.logger.Println("Stopping sync daemon")
	if d.cancel != nil {
		d.cancel()
	}
	d.Realtime.Stop()
	d.wg.Wait()
	d.Bus.Close()
	d.logger.Println("Sync daemon stopped")
}

// recover is the monitor's OFFLINE→ONLINE sequence: recreate subscriptions,
// full push, then full pull. The monitor guarantees no two recovery
// sequences overlap.
func (d *Daemon) recover(ctx context.Context) {
	d.logger.Println("Running recovery: resubscribe, push, pull")
	d.Realtime.Restart(ctx)
	d.Pusher.RunOnce(ctx)
	d.Puller.PullAll(ctx)
}

// SyncNow triggers a manual full push+pull, for the UI's "pull now" action.
func (d *Daemon) SyncNow(ctx context.Context) {
	d.Pusher.RunOnce(ctx)
	d.Puller.PullAll(ctx)
}

// WaitQuiet is a test/CLI helper: polls until no retries are pending or the
// timeout elapses.
func (d *Daemon) WaitQuiet(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.Pusher.PendingRetries() == 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
