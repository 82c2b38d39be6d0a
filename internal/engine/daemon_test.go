package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mkessler/taskloom/internal/model"
	"github.com/mkessler/taskloom/internal/remote"
)

// TestDaemon_StartupSync tests that Start pushes local pending state and
// pulls remote state without waiting for the first tick.
func TestDaemon_StartupSync(t *testing.T) {
	st := newTestStore(t)
	fake := remote.NewFake()
	fake.Seed("tasks", remoteTaskRow("task-remote", "from backend", time.Now()))
	writeTask(t, st, "task-local", "made offline", time.Now())

	d := NewDaemon(st, fake, DaemonConfig{Logger: testLogger()})
	d.Start(context.Background())
	defer d.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return fake.Get("tasks", "task-local") != nil
	}, "pending revision to push at startup")

	waitFor(t, 5*time.Second, func() bool {
		_, err := st.GetRow(context.Background(), model.KindTasks, "task-remote")
		return err == nil
	}, "remote row to pull at startup")
}

// TestDaemon_SyncNow tests the manual full push+pull trigger.
func TestDaemon_SyncNow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fake := remote.NewFake()

	d := NewDaemon(st, fake, DaemonConfig{Logger: testLogger()})
	// Not started: SyncNow must work standalone.
	writeTask(t, st, "task-1", "manual", time.Now())
	fake.Seed("users", model.Row{
		"id":         "user-1",
		"email":      "dev@example.com",
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})

	d.SyncNow(ctx)

	if fake.Get("tasks", "task-1") == nil {
		t.Error("SyncNow() did not push the pending revision")
	}
	if _, err := st.GetRow(ctx, model.KindUsers, "user-1"); err != nil {
		t.Errorf("SyncNow() did not pull the remote row: %v", err)
	}
}

// TestDaemon_RecoveryOrder tests the OFFLINE→ONLINE sequence: feeds are
// reopened, then pending state is pushed, then remote state is pulled.
func TestDaemon_RecoveryOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fake := remote.NewFake()

	d := NewDaemon(st, fake, DaemonConfig{Logger: testLogger()})
	d.Realtime.reopenDelay = 10 * time.Millisecond
	d.Realtime.Start(ctx)
	defer d.Realtime.Stop()
	waitFor(t, 2*time.Second, func() bool {
		return fake.OpenFeeds() >= len(model.Kinds)
	}, "initial feeds to open")

	// Go offline with a write queued, then recover.
	fake.SetHealthy(false)
	d.Monitor.Observe(ctx, false)
	d.Monitor.Observe(ctx, false)
	if d.Monitor.Online() {
		t.Fatal("monitor should be offline")
	}
	writeTask(t, st, "task-1", "made offline", time.Now())
	fake.Seed("tasks", remoteTaskRow("task-2", "made elsewhere", time.Now()))

	fake.SetHealthy(true)
	d.Monitor.Observe(ctx, true)
	d.Monitor.Observe(ctx, true)

	waitFor(t, 5*time.Second, func() bool {
		return fake.Get("tasks", "task-1") != nil
	}, "recovery to push the offline write")
	waitFor(t, 5*time.Second, func() bool {
		_, err := st.GetRow(context.Background(), model.KindTasks, "task-2")
		return err == nil
	}, "recovery to pull the remote write")
	waitFor(t, 5*time.Second, func() bool {
		return fake.OpenFeeds() >= len(model.Kinds)
	}, "recovery to reopen the feeds")
}

// TestDaemon_OfflineWritesQueue tests that writes made while offline stay
// queued instead of being pushed.
func TestDaemon_OfflineWritesQueue(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	fake := remote.NewFake()

	d := NewDaemon(st, fake, DaemonConfig{Logger: testLogger()})
	d.Monitor.Observe(ctx, false)
	d.Monitor.Observe(ctx, false)

	writeTask(t, st, "task-1", "offline work", time.Now())
	if got := d.Pusher.RunOnce(ctx); got != 0 {
		t.Errorf("RunOnce() while offline = %d, want 0", got)
	}

	count, err := st.CountUnsynced(ctx)
	if err != nil {
		t.Fatalf("CountUnsynced() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("unsynced while offline = %d, want 1", count)
	}
}

// TestDaemon_WaitQuiet tests the retry-drain helper.
func TestDaemon_WaitQuiet(t *testing.T) {
	st := newTestStore(t)
	d := NewDaemon(st, remote.NewFake(), DaemonConfig{Logger: testLogger()})
	if !d.WaitQuiet(time.Second) {
		t.Error("WaitQuiet() with an empty retry queue = false, want true")
	}
}
