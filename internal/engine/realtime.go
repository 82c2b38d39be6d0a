package engine

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mkessler/taskloom/internal/model"
	"github.com/mkessler/taskloom/internal/remote"
	"github.com/mkessler/taskloom/internal/store"
)

// Realtime manages one persistent change-feed subscription per entity kind.
// Inbound notifications are merged into the local store through the same
// last-write-wins path as the pull engine, because the transport gives no
// timestamp-ordering guarantee.
type Realtime struct {
	store  *store.Store
	remote remote.Client
	bus    *Bus
	logger *log.Logger

	// reopenDelay spaces reconnect attempts after a feed error.
	reopenDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRealtime creates the subscription manager. A nil logger writes to stderr.
func NewRealtime(st *store.Store, rc remote.Client, bus *Bus, logger *log.Logger) *Realtime {
	if logger == nil {
		logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}
	return &Realtime{
		store:       st,
		remote:      rc,
		bus:         bus,
		logger:      logger,
		reopenDelay: 2 * time.Second,
	}
}

// Start opens one subscription per entity kind. Safe to call again after
// Stop; Restart is the combination used on network recovery.
func (r *Realtime) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	for _, kind := range model.Kinds {
		r.wg.Add(1)
		go r.feedLoop(ctx, kind)
	}
}

// Stop closes every open subscription and waits for the feed loops.
func (r *Realtime) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Restart closes all subscriptions and immediately reopens them. Messages
// lost during the window are reconciled by the subsequent full pull.
func (r *Realtime) Restart(ctx context.Context) {
	r.Stop()
	r.Start(ctx)
}

// feedLoop keeps one kind's subscription open, reopening on error until ctx
// is cancelled.
func (r *Realtime) feedLoop(ctx context.Context, kind model.Kind) {
	defer r.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		feed, err := r.remote.Subscribe(ctx, kind.Table())
		if err != nil {
			r.logger.Printf("Warning: subscribe %s failed: %v", kind, err)
			if !sleepCtx(ctx, r.reopenDelay) {
				return
			}
			continue
		}

		err = r.consume(ctx, kind, feed)
		_ = feed.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.logger.Printf("Warning: %s feed closed: %v, reconnecting", kind, err)
		}
		if !sleepCtx(ctx, r.reopenDelay) {
			return
		}
	}
}

func (r *Realtime) consume(ctx context.Context, kind model.Kind, feed remote.Feed) error {
	for {
		change, err := feed.Next(ctx)
		if err != nil {
			return err
		}
		r.apply(ctx, kind, change)
	}
}

// apply merges one notification into the local store and notifies the UI.
func (r *Realtime) apply(ctx context.Context, kind model.Kind, change remote.Change) {
	switch change.Type {
	case remote.ChangeDelete:
		id := model.RowID(change.Row)
		if id == "" {
			return
		}
		if err := r.store.DeleteRow(ctx, kind, id); err != nil {
			r.logger.Printf("Warning: failed to apply remote delete of %s %s: %v", kind, id, err)
			return
		}
	case remote.ChangeInsert, remote.ChangeUpdate:
		applied, err := mergeRow(ctx, r.store, kind, change.Row)
		if err != nil {
			r.logger.Printf("Warning: failed to apply remote %s change: %v", kind, err)
			return
		}
		if !applied {
			return
		}
	default:
		r.logger.Printf("Warning: unknown change type %q on %s feed", change.Type, kind)
		return
	}

	if r.bus != nil {
		r.bus.Publish(RemoteUpdateEvent{Table: kind.Table(), Row: change.Row})
	}
}

// sleepCtx waits for d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
