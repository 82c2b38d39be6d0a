package blob

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestFS_UploadDownloadRemove tests the full blob lifecycle on disk.
func TestFS_UploadDownloadRemove(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS() failed: %v", err)
	}

	path := "attachments/abc/report.txt"
	if err := fs.Upload(ctx, path, strings.NewReader("blob contents")); err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}

	var buf bytes.Buffer
	if err := fs.Download(ctx, path, &buf); err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	if buf.String() != "blob contents" {
		t.Errorf("downloaded = %q, want %q", buf.String(), "blob contents")
	}

	if err := fs.Remove(ctx, path); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if err := fs.Download(ctx, path, &buf); err == nil {
		t.Error("Download() after Remove() succeeded, want error")
	}
	// Removing again is a no-op.
	if err := fs.Remove(ctx, path); err != nil {
		t.Errorf("Second Remove() failed: %v", err)
	}
}

// TestFS_PathEscape tests that blob paths cannot leave the root.
func TestFS_PathEscape(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fs, err := NewFS(filepath.Join(root, "blobs"))
	if err != nil {
		t.Fatalf("NewFS() failed: %v", err)
	}

	outside := filepath.Join(root, "victim.txt")
	if err := os.WriteFile(outside, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("Failed to write outside file: %v", err)
	}

	if err := fs.Remove(ctx, "../victim.txt"); err == nil {
		if _, statErr := os.Stat(outside); os.IsNotExist(statErr) {
			t.Fatal("blob path escaped the root and removed an outside file")
		}
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("outside file damaged: %v", err)
	}
}

// TestSpool_HandlesDroppedFile tests that a file dropped in the spool
// directory reaches the handler after settling.
func TestSpool_HandlesDroppedFile(t *testing.T) {
	dir := t.TempDir()
	handled := make(chan string, 1)
	spool, err := NewSpool(SpoolConfig{Dir: dir, SettleInterval: 20 * time.Millisecond}, func(ctx context.Context, path string) error {
		handled <- path
		return os.Remove(path)
	})
	if err != nil {
		t.Fatalf("NewSpool() failed: %v", err)
	}
	if err := spool.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer spool.Stop()

	dropped := filepath.Join(dir, "dropped.txt")
	if err := os.WriteFile(dropped, []byte("payload"), 0o644); err != nil {
		t.Fatalf("Failed to drop file: %v", err)
	}

	select {
	case got := <-handled:
		if got != dropped {
			t.Errorf("handled path = %q, want %q", got, dropped)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never saw the dropped file")
	}
}

// TestSpool_QueuesExistingFiles tests that files present before Start are
// not missed.
func TestSpool_QueuesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "waiting.txt")
	if err := os.WriteFile(existing, []byte("early"), 0o644); err != nil {
		t.Fatalf("Failed to write existing file: %v", err)
	}

	handled := make(chan string, 1)
	spool, err := NewSpool(SpoolConfig{Dir: dir, SettleInterval: 20 * time.Millisecond}, func(ctx context.Context, path string) error {
		handled <- path
		return os.Remove(path)
	})
	if err != nil {
		t.Fatalf("NewSpool() failed: %v", err)
	}
	if err := spool.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer spool.Stop()

	select {
	case got := <-handled:
		if got != existing {
			t.Errorf("handled path = %q, want %q", got, existing)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pre-existing file never handled")
	}
}

// TestSpool_RetriesFailedHandler tests that a handler failure leaves the
// file queued for another attempt.
func TestSpool_RetriesFailedHandler(t *testing.T) {
	dir := t.TempDir()
	attempts := make(chan int, 8)
	count := 0
	spool, err := NewSpool(SpoolConfig{Dir: dir, SettleInterval: 20 * time.Millisecond}, func(ctx context.Context, path string) error {
		count++
		attempts <- count
		if count == 1 {
			return context.DeadlineExceeded
		}
		return os.Remove(path)
	})
	if err != nil {
		t.Fatalf("NewSpool() failed: %v", err)
	}
	if err := spool.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer spool.Stop()

	if err := os.WriteFile(filepath.Join(dir, "flaky.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to drop file: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case n := <-attempts:
			if n >= 2 {
				return
			}
		case <-deadline:
			t.Fatal("handler never retried after a failure")
		}
	}
}
