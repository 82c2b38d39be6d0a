// Package engine implements the synchronization core: the push and pull
// engines, the realtime subscription manager, the network health monitor,
// and the daemon that orchestrates them over one shared store.
package engine

import (
	"sync"

	"github.com/mkessler/taskloom/internal/model"
)

// Event is a typed notification published by the sync engines for the UI
// layer. All events are fire-and-forget; the core never blocks on a
// subscriber.
type Event interface {
	event()
}

// StatusEvent reports the network health monitor's online/offline state.
type StatusEvent struct {
	Online bool
}

// Notice levels for NoticeEvent.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// NoticeEvent is a human-readable sync message for the UI.
type NoticeEvent struct {
	Level   string
	Message string
}

// RemoteUpdateEvent reports one remote row applied to the local store by the
// realtime subscription manager.
type RemoteUpdateEvent struct {
	Table string
	Row   model.Row
}

// PullEvent reports the number of rows applied by a pull pass.
type PullEvent struct {
	Count int
}

// PushedEvent reports an aggregate push result. Background kinds contribute
// only to the counts; their individual successes and failures are not
// surfaced.
type PushedEvent struct {
	Synced     int
	Failed     int
	Background int
}

func (StatusEvent) event()       {}
func (NoticeEvent) event()       {}
func (RemoteUpdateEvent) event() {}
func (PullEvent) event()         {}
func (PushedEvent) event()       {}

// Bus is a small in-process pub/sub for sync events. Publishing never
// blocks: a subscriber that falls behind loses events rather than stalling
// the engines.
type Bus struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber with the given channel buffer.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
