package repo

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/mkessler/taskloom/internal/model"
	"github.com/mkessler/taskloom/internal/remote"
	"github.com/mkessler/taskloom/internal/store"
)

var testSession = Session{UserID: "user-1", ReplicaID: "replica-test"}

func newTestRepo(t *testing.T) (*Repo, *store.Store, *remote.Fake) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.db.enc")
	st, err := store.Open(path, "test passphrase", log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	fake := remote.NewFake()
	return New(st, fake, nil, log.New(os.Stderr, "[test] ", 0)), st, fake
}

// TestCreateTask tests defaults, persistence, and the one-revision invariant.
func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	r, st, _ := newTestRepo(t)

	task, err := r.CreateTask(ctx, testSession, &model.Task{Title: "write the tests"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if task.ID == "" {
		t.Error("CreateTask() did not assign an id")
	}
	if task.Status != model.StatusOpen {
		t.Errorf("default status = %q, want %q", task.Status, model.StatusOpen)
	}

	got, err := r.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Title != "write the tests" {
		t.Errorf("title = %q, want %q", got.Title, "write the tests")
	}

	count, err := st.CountUnsynced(ctx)
	if err != nil {
		t.Fatalf("CountUnsynced() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("unsynced revisions after one create = %d, want 1", count)
	}

	revs, err := st.UnsyncedRevisions(ctx, 0)
	if err != nil {
		t.Fatalf("UnsyncedRevisions() failed: %v", err)
	}
	if revs[0].OriginID != testSession.ReplicaID {
		t.Errorf("revision origin = %q, want %q", revs[0].OriginID, testSession.ReplicaID)
	}
}

// TestCreateTask_Invalid tests that validation failures write nothing.
func TestCreateTask_Invalid(t *testing.T) {
	ctx := context.Background()
	r, st, _ := newTestRepo(t)

	if _, err := r.CreateTask(ctx, testSession, &model.Task{}); err == nil {
		t.Error("CreateTask() without title succeeded, want error")
	}
	if _, err := r.CreateTask(ctx, testSession, &model.Task{Title: "x", Priority: 9}); err == nil {
		t.Error("CreateTask() with bad priority succeeded, want error")
	}

	count, err := st.CountRevisions(ctx)
	if err != nil {
		t.Fatalf("CountRevisions() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("revisions after rejected writes = %d, want 0", count)
	}
}

// TestUpdateTask_StatusOpensTimeEntry tests that moving a task into
// in_progress opens a revisioned time-tracking interval.
func TestUpdateTask_StatusOpensTimeEntry(t *testing.T) {
	ctx := context.Background()
	r, st, _ := newTestRepo(t)

	task, err := r.CreateTask(ctx, testSession, &model.Task{Title: "track me"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	task.Status = model.StatusInProgress
	if _, err := r.UpdateTask(ctx, testSession, task); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}

	open, err := r.OpenTimeEntries(ctx, task.ID)
	if err != nil {
		t.Fatalf("OpenTimeEntries() failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open time entries = %d, want 1", len(open))
	}
	if open[0].UserID != testSession.UserID {
		t.Errorf("time entry user = %q, want %q", open[0].UserID, testSession.UserID)
	}

	// Create + update + time entry, each with its own revision.
	count, err := st.CountRevisions(ctx)
	if err != nil {
		t.Fatalf("CountRevisions() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("revisions = %d, want 3", count)
	}
}

// TestUpdateTask_StatusClosesTimeEntry tests that leaving in_progress closes
// every open interval.
func TestUpdateTask_StatusClosesTimeEntry(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t)

	task, err := r.CreateTask(ctx, testSession, &model.Task{Title: "finish me"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	task.Status = model.StatusInProgress
	if _, err := r.UpdateTask(ctx, testSession, task); err != nil {
		t.Fatalf("UpdateTask() to in_progress failed: %v", err)
	}

	task.Status = model.StatusDone
	if _, err := r.UpdateTask(ctx, testSession, task); err != nil {
		t.Fatalf("UpdateTask() to done failed: %v", err)
	}

	open, err := r.OpenTimeEntries(ctx, task.ID)
	if err != nil {
		t.Fatalf("OpenTimeEntries() failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open time entries after done = %d, want 0", len(open))
	}
}

// TestUpdateTask_PreservesCreatedAt tests that updates keep the original
// creation timestamp.
func TestUpdateTask_PreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t)

	task, err := r.CreateTask(ctx, testSession, &model.Task{Title: "immutable birth"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	created := task.CreatedAt

	task.Title = "renamed"
	updated, err := r.UpdateTask(ctx, testSession, task)
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Errorf("created_at changed on update: %v -> %v", created, updated.CreatedAt)
	}
}

// TestDeleteTask tests the tombstone revision and the inline remote delete.
func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	r, st, fake := newTestRepo(t)

	task, err := r.CreateTask(ctx, testSession, &model.Task{Title: "short lived"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	if err := r.DeleteTask(ctx, testSession, task.ID); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}

	if _, err := r.GetTask(ctx, task.ID); err == nil {
		t.Error("GetTask() after delete succeeded, want error")
	}
	if fake.DeleteCalls != 1 {
		t.Errorf("inline remote delete calls = %d, want 1", fake.DeleteCalls)
	}

	// Create revision plus tombstone revision.
	count, err := st.CountRevisions(ctx)
	if err != nil {
		t.Fatalf("CountRevisions() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("revisions = %d, want 2", count)
	}
}

// TestDeleteTask_RemoteFailureKeepsLocalDelete tests that a failed inline
// remote delete does not undo the local delete.
func TestDeleteTask_RemoteFailureKeepsLocalDelete(t *testing.T) {
	ctx := context.Background()
	r, _, fake := newTestRepo(t)

	task, err := r.CreateTask(ctx, testSession, &model.Task{Title: "stubborn"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	fake.FailTable("tasks", context.DeadlineExceeded)
	if err := r.DeleteTask(ctx, testSession, task.ID); err != nil {
		t.Fatalf("DeleteTask() with failing remote returned error: %v", err)
	}
	if _, err := r.GetTask(ctx, task.ID); err == nil {
		t.Error("local row survived despite tombstone")
	}
}

// TestListTasks_Filter tests the status and project filters.
func TestListTasks_Filter(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t)

	if _, err := r.CreateTask(ctx, testSession, &model.Task{Title: "a", ProjectID: "proj-1"}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	done := &model.Task{Title: "b", ProjectID: "proj-1", Status: model.StatusDone}
	if _, err := r.CreateTask(ctx, testSession, done); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if _, err := r.CreateTask(ctx, testSession, &model.Task{Title: "c", ProjectID: "proj-2"}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	all, err := r.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered tasks = %d, want 3", len(all))
	}

	proj, err := r.ListTasks(ctx, TaskFilter{ProjectID: "proj-1"})
	if err != nil {
		t.Fatalf("ListTasks() by project failed: %v", err)
	}
	if len(proj) != 2 {
		t.Errorf("proj-1 tasks = %d, want 2", len(proj))
	}

	openInProj, err := r.ListTasks(ctx, TaskFilter{ProjectID: "proj-1", Status: model.StatusOpen})
	if err != nil {
		t.Fatalf("ListTasks() by project and status failed: %v", err)
	}
	if len(openInProj) != 1 || openInProj[0].Title != "a" {
		t.Errorf("open proj-1 tasks = %v, want just %q", openInProj, "a")
	}
}
