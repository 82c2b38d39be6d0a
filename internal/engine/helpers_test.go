package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkessler/taskloom/internal/model"
	"github.com/mkessler/taskloom/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db.enc")
	st, err := store.Open(path, "test passphrase", log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

// writeTask applies a task write with its revision and returns the revision.
func writeTask(t *testing.T, st *store.Store, id, title string, ts time.Time) *model.Revision {
	t.Helper()
	stamp := ts.UTC().Format(time.RFC3339Nano)
	row := model.Row{
		"id":         id,
		"title":      title,
		"status":     model.StatusOpen,
		"priority":   float64(2),
		"created_at": stamp,
		"updated_at": stamp,
	}
	return applyRevision(t, st, model.KindTasks, id, row, ts)
}

// writeHeartbeat applies a background-kind write with its revision.
func writeHeartbeat(t *testing.T, st *store.Store, id string, ts time.Time) *model.Revision {
	t.Helper()
	stamp := ts.UTC().Format(time.RFC3339Nano)
	row := model.Row{
		"id":         id,
		"user_id":    "user-1",
		"seen_at":    stamp,
		"created_at": stamp,
	}
	return applyRevision(t, st, model.KindHeartbeats, id, row, ts)
}

func applyRevision(t *testing.T, st *store.Store, kind model.Kind, id string, row model.Row, ts time.Time) *model.Revision {
	t.Helper()
	ctx := context.Background()
	seq, err := st.NextSeq(ctx)
	if err != nil {
		t.Fatalf("NextSeq() failed: %v", err)
	}
	payload, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	rev := &model.Revision{
		ID:         fmt.Sprintf("rev-%s-%d", id, seq),
		ObjectType: kind,
		ObjectID:   id,
		OriginID:   "replica-test",
		Seq:        seq,
		Payload:    payload,
		CreatedAt:  ts.UTC(),
	}
	if err := st.ApplyWrite(ctx, kind, row, rev); err != nil {
		t.Fatalf("ApplyWrite() failed: %v", err)
	}
	return rev
}

// writeTombstone applies a delete with its tombstone revision.
func writeTombstone(t *testing.T, st *store.Store, kind model.Kind, id string) *model.Revision {
	t.Helper()
	ctx := context.Background()
	seq, err := st.NextSeq(ctx)
	if err != nil {
		t.Fatalf("NextSeq() failed: %v", err)
	}
	payload, _ := json.Marshal(model.Row{"id": id, "deleted": true})
	rev := &model.Revision{
		ID:         fmt.Sprintf("rev-%s-%d", id, seq),
		ObjectType: kind,
		ObjectID:   id,
		OriginID:   "replica-test",
		Seq:        seq,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.ApplyDelete(ctx, kind, id, rev); err != nil {
		t.Fatalf("ApplyDelete() failed: %v", err)
	}
	return rev
}

func remoteTaskRow(id, title string, ts time.Time) model.Row {
	stamp := ts.UTC().Format(time.RFC3339Nano)
	return model.Row{
		"id":         id,
		"title":      title,
		"status":     model.StatusOpen,
		"priority":   float64(1),
		"created_at": stamp,
		"updated_at": stamp,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
