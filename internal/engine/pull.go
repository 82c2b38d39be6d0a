package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mkessler/taskloom/internal/model"
	"github.com/mkessler/taskloom/internal/remote"
	"github.com/mkessler/taskloom/internal/store"
)

// Puller is the pull half of the sync loop: it ingests remote state into the
// local store with row-level last-write-wins.
type Puller struct {
	store  *store.Store
	remote remote.Client
	bus    *Bus
	logger *log.Logger
}

// NewPuller creates a pull engine. A nil logger writes to stderr.
func NewPuller(st *store.Store, rc remote.Client, bus *Bus, logger *log.Logger) *Puller {
	if logger == nil {
		logger = log.New(os.Stderr, "[pull] ", log.LstdFlags)
	}
	return &Puller{store: st, remote: rc, bus: bus, logger: logger}
}

// PullKind fetches every remote row of the kind ordered by last-modified
// ascending and merges each into the local store. Re-running with no new
// remote data applies zero local writes.
func (p *Puller) PullKind(ctx context.Context, kind model.Kind) (applied int, err error) {
	rows, err := p.remote.Select(ctx, kind.Table(), kind.TimestampColumn())
	if err != nil {
		return 0, fmt.Errorf("failed to select remote %s: %w", kind, err)
	}

	for _, row := range rows {
		ok, err := mergeRow(ctx, p.store, kind, row)
		if err != nil {
			return applied, fmt.Errorf("failed to merge %s row: %w", kind, err)
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

// PullAll pulls every entity kind sequentially. A single kind's failure is
// logged and does not abort the remaining kinds. The total applied count is
// published as a PullEvent.
func (p *Puller) PullAll(ctx context.Context) int {
	total := 0
	failures := 0
	for _, kind := range model.Kinds {
		applied, err := p.PullKind(ctx, kind)
		total += applied
		if err != nil {
			failures++
			p.logger.Printf("Warning: pull %s failed: %v", kind, err)
			continue
		}
	}

	if p.bus != nil {
		p.bus.Publish(PullEvent{Count: total})
		if failures > 0 {
			p.bus.Publish(NoticeEvent{
				Level:   LevelWarning,
				Message: fmt.Sprintf("pull finished with %d table(s) failing", failures),
			})
		}
	}
	p.logger.Printf("Pull complete: %d row(s) applied, %d table(s) failed", total, failures)
	return total
}
