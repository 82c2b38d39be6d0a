package engine

import (
	"container/heap"
	"sync"
	"time"
)

// retryEntry is one scheduled retry for a failed revision push.
type retryEntry struct {
	revisionID string
	at         time.Time
	index      int
}

// retryQueue is a single scheduled-retry queue: a min-heap keyed by
// next-attempt time, polled by one loop. Creating one timer per failed
// revision would grow unbounded under many simultaneous failures; the queue
// keeps resource usage constant.
type retryQueue struct {
	mu      sync.Mutex
	entries retryHeap
	byID    map[string]*retryEntry
}

func newRetryQueue() *retryQueue {
	return &retryQueue{byID: make(map[string]*retryEntry)}
}

// Schedule queues the revision for retry at the given time. An already
// scheduled revision is rescheduled in place, never duplicated.
func (q *retryQueue) Schedule(revisionID string, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.byID[revisionID]; ok {
		e.at = at
		heap.Fix(&q.entries, e.index)
		return
	}
	e := &retryEntry{revisionID: revisionID, at: at}
	q.byID[revisionID] = e
	heap.Push(&q.entries, e)
}

// Remove drops the revision from the queue, e.g. after a successful push.
func (q *retryQueue) Remove(revisionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.byID[revisionID]; ok {
		heap.Remove(&q.entries, e.index)
		delete(q.byID, revisionID)
	}
}

// PopDue removes and returns every entry whose time has arrived.
func (q *retryQueue) PopDue(now time.Time) []*retryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*retryEntry
	for q.entries.Len() > 0 && !q.entries[0].at.After(now) {
		e := heap.Pop(&q.entries).(*retryEntry)
		delete(q.byID, e.revisionID)
		due = append(due, e)
	}
	return due
}

// NextAt returns the earliest scheduled time, ok=false when empty.
func (q *retryQueue) NextAt() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries.Len() == 0 {
		return time.Time{}, false
	}
	return q.entries[0].at, true
}

// Len returns the number of scheduled retries.
func (q *retryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}

// retryHeap implements heap.Interface ordered by entry time.
type retryHeap []*retryEntry

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retryHeap) Push(x any) {
	e := x.(*retryEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
