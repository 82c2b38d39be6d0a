package engine

import (
	"testing"
	"time"
)

// TestRetryQueue_PopDueOrder tests that due entries pop in schedule order.
func TestRetryQueue_PopDueOrder(t *testing.T) {
	q := newRetryQueue()
	now := time.Now()

	q.Schedule("rev-c", now.Add(3*time.Minute))
	q.Schedule("rev-a", now.Add(time.Minute))
	q.Schedule("rev-b", now.Add(2*time.Minute))

	due := q.PopDue(now.Add(2 * time.Minute))
	if len(due) != 2 {
		t.Fatalf("due entries = %d, want 2", len(due))
	}
	if due[0].revisionID != "rev-a" || due[1].revisionID != "rev-b" {
		t.Errorf("pop order = %s, %s; want rev-a, rev-b", due[0].revisionID, due[1].revisionID)
	}
	if q.Len() != 1 {
		t.Errorf("remaining = %d, want 1", q.Len())
	}
}

// TestRetryQueue_ScheduleReplaces tests that rescheduling a revision moves
// its single entry instead of duplicating it.
func TestRetryQueue_ScheduleReplaces(t *testing.T) {
	q := newRetryQueue()
	now := time.Now()

	q.Schedule("rev-a", now.Add(time.Minute))
	q.Schedule("rev-a", now.Add(time.Hour))

	if q.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", q.Len())
	}
	next, ok := q.NextAt()
	if !ok {
		t.Fatal("NextAt() empty, want one entry")
	}
	if !next.Equal(now.Add(time.Hour)) {
		t.Errorf("next at = %v, want the rescheduled time", next)
	}
}

// TestRetryQueue_Remove tests removal by revision id.
func TestRetryQueue_Remove(t *testing.T) {
	q := newRetryQueue()
	now := time.Now()

	q.Schedule("rev-a", now.Add(time.Minute))
	q.Schedule("rev-b", now.Add(2*time.Minute))

	q.Remove("rev-a")
	q.Remove("rev-missing")

	if q.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", q.Len())
	}
	next, _ := q.NextAt()
	if !next.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("next at = %v, want rev-b's time", next)
	}
}

// TestRetryQueue_NextAtEmpty tests the empty-queue contract.
func TestRetryQueue_NextAtEmpty(t *testing.T) {
	q := newRetryQueue()
	if _, ok := q.NextAt(); ok {
		t.Error("NextAt() on empty queue reported an entry")
	}
	if due := q.PopDue(time.Now()); len(due) != 0 {
		t.Errorf("PopDue() on empty queue = %d entries, want 0", len(due))
	}
}
