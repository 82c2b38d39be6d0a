package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkessler/taskloom/internal/model"
	"github.com/mkessler/taskloom/internal/remote"
	"github.com/mkessler/taskloom/internal/store"
)

// PushConfig holds the push engine's tunables.
type PushConfig struct {
	// Interval between periodic batch runs.
	Interval time.Duration
	// BatchSize is the maximum number of revisions per run.
	BatchSize int
	// BaseDelay and MaxDelay bound the exponential retry backoff:
	// delay after the Nth failure = min(MaxDelay, 2^N * BaseDelay).
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts dead-letters a revision after this many failures.
	// Zero means unbounded retries.
	MaxAttempts int
}

// DefaultPushConfig returns the production defaults.
func DefaultPushConfig() PushConfig {
	return PushConfig{
		Interval:  30 * time.Second,
		BatchSize: 100,
		BaseDelay: 2 * time.Second,
		MaxDelay:  5 * time.Minute,
	}
}

// Pusher delivers unsynced revisions to the remote backend, oldest first,
// with capped exponential backoff on failure. At most one batch run is in
// flight at a time.
type Pusher struct {
	store  *store.Store
	remote remote.Client
	bus    *Bus
	logger *log.Logger
	config PushConfig
	online func() bool

	running atomic.Bool
	queue   *retryQueue

	attemptsMu sync.Mutex
	attempts   map[string]int

	wake chan struct{}
	now  func() time.Time
}

// NewPusher creates a push engine. The online func gates batch runs; nil
// means always online. A nil logger writes to stderr.
func NewPusher(st *store.Store, rc remote.Client, bus *Bus, config PushConfig, online func() bool, logger *log.Logger) *Pusher {
	if logger == nil {
		logger = log.New(os.Stderr, "[push] ", log.LstdFlags)
	}
	if online == nil {
		online = func() bool { return true }
	}
	if config.Interval <= 0 {
		config.Interval = DefaultPushConfig().Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultPushConfig().BatchSize
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultPushConfig().BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultPushConfig().MaxDelay
	}
	return &Pusher{
		store:    st,
		remote:   rc,
		bus:      bus,
		logger:   logger,
		config:   config,
		online:   online,
		queue:    newRetryQueue(),
		attempts: make(map[string]int),
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Run starts the periodic batch loop and the retry loop. Blocks until ctx is
// cancelled.
func (p *Pusher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.RunOnce(ctx)
			}
		}
	}()
	go func() {
		defer wg.Done()
		p.retryLoop(ctx)
	}()
	wg.Wait()
}

// RunOnce executes a single batch run. Skipped entirely when offline or when
// another run is already in flight. Returns the number of revisions synced.
func (p *Pusher) RunOnce(ctx context.Context) int {
	if !p.online() {
		return 0
	}
	if !p.running.CompareAndSwap(false, true) {
		return 0
	}
	defer p.running.Store(false)

	revs, err := p.store.UnsyncedRevisions(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Printf("Warning: failed to read unsynced revisions: %v", err)
		return 0
	}
	if len(revs) == 0 {
		return 0
	}

	synced, failed, background := 0, 0, 0
	for _, rev := range revs {
		if rev.ObjectType.Background() {
			background++
		}
		if err := p.pushRevision(ctx, rev); err != nil {
			failed++
			p.recordFailure(ctx, rev, err)
			continue
		}
		synced++
		p.recordSuccess(ctx, rev)
	}

	if p.bus != nil {
		p.bus.Publish(PushedEvent{Synced: synced, Failed: failed, Background: background})
	}
	p.logger.Printf("Push batch complete: %d synced, %d failed (%d background)", synced, failed, background)
	return synced
}

// pushRevision delivers one revision: a tombstone payload becomes a remote
// delete, anything else a remote upsert keyed by the object id.
func (p *Pusher) pushRevision(ctx context.Context, rev *model.Revision) error {
	var row model.Row
	if err := json.Unmarshal(rev.Payload, &row); err != nil {
		return fmt.Errorf("corrupt revision payload: %w", err)
	}

	if deleted, _ := row["deleted"].(bool); deleted {
		return p.remote.Delete(ctx, rev.ObjectType.Table(), map[string]string{"id": rev.ObjectID})
	}
	return p.remote.Upsert(ctx, rev.ObjectType.Table(), row)
}

func (p *Pusher) recordSuccess(ctx context.Context, rev *model.Revision) {
	if err := p.store.MarkSynced(ctx, rev.ID); err != nil {
		p.logger.Printf("Warning: %v", err)
		return
	}
	p.queue.Remove(rev.ID)
	p.attemptsMu.Lock()
	delete(p.attempts, rev.ID)
	p.attemptsMu.Unlock()

	if p.bus != nil && !rev.ObjectType.Background() {
		p.bus.Publish(NoticeEvent{
			Level:   LevelSuccess,
			Message: fmt.Sprintf("synced %s %s", rev.ObjectType, rev.ObjectID),
		})
	}
}

func (p *Pusher) recordFailure(ctx context.Context, rev *model.Revision, cause error) {
	p.attemptsMu.Lock()
	p.attempts[rev.ID]++
	n := p.attempts[rev.ID]
	p.attemptsMu.Unlock()

	if p.config.MaxAttempts > 0 && n >= p.config.MaxAttempts {
		if err := p.store.MarkDead(ctx, rev.ID); err != nil {
			p.logger.Printf("Warning: %v", err)
		}
		p.queue.Remove(rev.ID)
		p.logger.Printf("Dead-lettered revision %s after %d attempts: %v", rev.ID, n, cause)
		if p.bus != nil && !rev.ObjectType.Background() {
			p.bus.Publish(NoticeEvent{
				Level:   LevelError,
				Message: fmt.Sprintf("gave up syncing %s %s after %d attempts", rev.ObjectType, rev.ObjectID, n),
			})
		}
		return
	}

	delay := Backoff(p.config.BaseDelay, p.config.MaxDelay, n)
	p.queue.Schedule(rev.ID, p.now().Add(delay))
	p.wakeRetryLoop()
	p.logger.Printf("Push of revision %s failed (attempt %d), retrying in %v: %v", rev.ID, n, delay, cause)

	if p.bus != nil && !rev.ObjectType.Background() {
		p.bus.Publish(NoticeEvent{
			Level:   LevelWarning,
			Message: fmt.Sprintf("failed to sync %s %s, will retry", rev.ObjectType, rev.ObjectID),
		})
	}
}

// Backoff returns the retry delay after the given number of consecutive
// failures: min(max, 2^failures * base).
func Backoff(base, max time.Duration, failures int) time.Duration {
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func (p *Pusher) wakeRetryLoop() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// retryLoop is the single poller of the scheduled-retry queue. It sleeps
// until the earliest entry is due, then retries each due revision through
// the same push path. A revision already synced by an intervening batch run
// is skipped; marking synced is idempotent so the race is harmless.
func (p *Pusher) retryLoop(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := time.Hour
		if next, ok := p.queue.NextAt(); ok {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-timer.C:
		}

		if !p.online() {
			// Leave entries queued; recovery triggers a full push anyway.
			continue
		}
		for _, entry := range p.queue.PopDue(p.now()) {
			p.retryOne(ctx, entry.revisionID)
		}
	}
}

func (p *Pusher) retryOne(ctx context.Context, revisionID string) {
	rev, err := p.store.GetRevision(ctx, revisionID)
	if err != nil {
		p.logger.Printf("Warning: retry lookup of revision %s failed: %v", revisionID, err)
		return
	}
	if rev.Synced || rev.Dead {
		return
	}
	if err := p.pushRevision(ctx, rev); err != nil {
		p.recordFailure(ctx, rev, err)
		return
	}
	p.recordSuccess(ctx, rev)
}

// PendingRetries reports the size of the retry queue.
func (p *Pusher) PendingRetries() int {
	return p.queue.Len()
}
