package store

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkessler/taskloom/internal/model"
)

// testStorePath returns a temporary path for the encrypted store file.
func testStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "taskloom.db.enc")
}

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	st, err := Open(path, "correct horse battery staple", log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return st
}

// TestOpen_Fresh tests that opening a nonexistent store creates it and
// migrates to the current schema.
func TestOpen_Fresh(t *testing.T) {
	path := testStorePath(t)
	st := openTestStore(t, path)
	defer st.Close()

	version, err := st.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}

	for _, kind := range model.Kinds {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := st.conn.QueryRow(query, kind.Table()).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", kind, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", kind)
		}
	}
}

// TestOpen_EncryptedAtRest tests that after Close the on-disk file is sealed
// and no plaintext working copy remains.
func TestOpen_EncryptedAtRest(t *testing.T) {
	path := testStorePath(t)
	st := openTestStore(t, path)

	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read encrypted file: %v", err)
	}
	// SQLite files start with this magic; the sealed file must not.
	if len(blob) >= 16 && string(blob[:15]) == "SQLite format 3" {
		t.Error("encrypted file contains plaintext SQLite header")
	}

	if _, err := os.Stat(path + ".work"); !os.IsNotExist(err) {
		t.Errorf("working copy still on disk after Close: %v", err)
	}
}

// TestOpen_Reopen tests that data written before Close survives a reopen
// with the same passphrase.
func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := testStorePath(t)

	st := openTestStore(t, path)
	row := model.Row{
		"id":         "task-1",
		"title":      "survive reopen",
		"status":     model.StatusOpen,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := st.UpsertRow(ctx, model.KindTasks, row); err != nil {
		t.Fatalf("UpsertRow() failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	st = openTestStore(t, path)
	defer st.Close()

	got, err := st.GetRow(ctx, model.KindTasks, "task-1")
	if err != nil {
		t.Fatalf("GetRow() after reopen failed: %v", err)
	}
	if got["title"] != "survive reopen" {
		t.Errorf("title = %v, want %q", got["title"], "survive reopen")
	}
}

// TestOpen_WrongPassphrase tests that a wrong passphrase fails loudly with
// ErrDecrypt instead of opening an empty store.
func TestOpen_WrongPassphrase(t *testing.T) {
	path := testStorePath(t)
	st := openTestStore(t, path)
	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	_, err := Open(path, "wrong passphrase", nil)
	if err == nil {
		t.Fatal("Open() with wrong passphrase succeeded, want error")
	}
	if !errors.Is(err, ErrDecrypt) {
		t.Errorf("error = %v, want ErrDecrypt", err)
	}
}

// TestOpen_Tampered tests that a modified ciphertext fails authentication.
func TestOpen_Tampered(t *testing.T) {
	path := testStorePath(t)
	st := openTestStore(t, path)
	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read encrypted file: %v", err)
	}
	blob[len(blob)/2] ^= 0xff
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("Failed to write tampered file: %v", err)
	}

	_, err = Open(path, "correct horse battery staple", nil)
	if !errors.Is(err, ErrDecrypt) {
		t.Errorf("Open() on tampered file: error = %v, want ErrDecrypt", err)
	}
}

// TestClose_Idempotent tests that closing twice is safe.
func TestClose_Idempotent(t *testing.T) {
	st := openTestStore(t, testStorePath(t))
	if err := st.Close(); err != nil {
		t.Fatalf("First Close() failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("Second Close() failed: %v", err)
	}
}
