package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mkessler/taskloom/internal/model"
)

// Fake is an in-memory Client used by tests and by `taskloom daemon
// --offline` demos. It supports failure injection per table and manual
// change-feed delivery.
type Fake struct {
	mu      sync.Mutex
	tables  map[string]map[string]model.Row
	order   map[string]string // table -> order column used by Select
	failing map[string]error  // table -> injected error, "" key = all tables
	feeds   []subscribedFeed
	healthy bool

	UpsertCalls int
	DeleteCalls int
}

// NewFake creates an empty fake backend in a healthy state.
func NewFake() *Fake {
	return &Fake{
		tables:  make(map[string]map[string]model.Row),
		order:   make(map[string]string),
		failing: make(map[string]error),
		healthy: true,
	}
}

// FailTable injects an error for every operation on the table. Pass table ""
// to fail all tables. A nil err clears the injection.
func (f *Fake) FailTable(table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failing, table)
		return
	}
	f.failing[table] = err
}

// SetHealthy controls the result of Health.
func (f *Fake) SetHealthy(healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
}

// Seed stores a row without counting it as an Upsert call.
func (f *Fake) Seed(table string, row model.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(table, row)
}

// Get returns a stored row, or nil when absent.
func (f *Fake) Get(table, id string) model.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table][id]
}

func (f *Fake) put(table string, row model.Row) {
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]model.Row)
	}
	f.tables[table][model.RowID(row)] = row
}

func (f *Fake) tableErr(table string) error {
	if err, ok := f.failing[""]; ok {
		return err
	}
	return f.failing[table]
}

func (f *Fake) Upsert(ctx context.Context, table string, row model.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpsertCalls++
	if err := f.tableErr(table); err != nil {
		return err
	}
	if model.RowID(row) == "" {
		return fmt.Errorf("row for %s has no id", table)
	}
	f.put(table, row)
	return nil
}

func (f *Fake) Delete(ctx context.Context, table string, filter map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if err := f.tableErr(table); err != nil {
		return err
	}
	for id, row := range f.tables[table] {
		matches := true
		for col, want := range filter {
			got, _ := row[col].(string)
			if got != want {
				matches = false
				break
			}
		}
		if matches {
			delete(f.tables[table], id)
		}
	}
	return nil
}

func (f *Fake) Select(ctx context.Context, table, orderColumn string) ([]model.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tableErr(table); err != nil {
		return nil, err
	}
	f.order[table] = orderColumn

	rows := make([]model.Row, 0, len(f.tables[table]))
	for _, row := range f.tables[table] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return model.RowTime(rows[i], orderColumn).Before(model.RowTime(rows[j], orderColumn))
	})
	return rows, nil
}

func (f *Fake) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return fmt.Errorf("backend unreachable")
	}
	return nil
}

// Subscribe returns a channel-backed feed. Use Emit to deliver changes.
func (f *Fake) Subscribe(ctx context.Context, table string) (Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tableErr(table); err != nil {
		return nil, err
	}
	feed := &fakeFeed{ch: make(chan Change, 64), done: make(chan struct{})}
	f.feeds = append(f.feeds, subscribedFeed{table: table, feed: feed})
	return feed, nil
}

type subscribedFeed struct {
	table string
	feed  *fakeFeed
}

// Emit delivers a change to every open subscription for the change's table.
func (f *Fake) Emit(change Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.feeds {
		if s.table != change.Table {
			continue
		}
		select {
		case s.feed.ch <- change:
		case <-s.feed.done:
		}
	}
}

// OpenFeeds reports the number of live fake subscriptions.
func (f *Fake) OpenFeeds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	open := 0
	for _, s := range f.feeds {
		select {
		case <-s.feed.done:
		default:
			open++
		}
	}
	return open
}

type fakeFeed struct {
	ch        chan Change
	done      chan struct{}
	closeOnce sync.Once
}

func (f *fakeFeed) Next(ctx context.Context) (Change, error) {
	select {
	case change := <-f.ch:
		return change, nil
	case <-f.done:
		return Change{}, fmt.Errorf("feed closed")
	case <-ctx.Done():
		return Change{}, ctx.Err()
	}
}

func (f *fakeFeed) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}
