// Package store provides the encrypted local database for taskloom.
//
// At rest the database is a single AES-256-GCM encrypted file. Open decrypts
// it to a plaintext working copy next to the encrypted file and opens that
// copy as an embedded SQLite database (WAL mode for concurrent reads). Close
// checkpoints, re-encrypts the working copy, atomically replaces the
// encrypted file, and removes the plaintext.
//
// The store also owns the revision log: an append-only changelog table
// recording every local mutation, consumed by the push engine.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the embedded SQLite connection together with the encryption
// state needed to seal it back to disk on Close.
type Store struct {
	conn     *sql.DB
	path     string // encrypted file
	workPath string // plaintext working copy
	key      [32]byte
	logger   *log.Logger
}

// Open opens the encrypted store at path with the given passphrase.
//
// If an encrypted file exists it is authenticated and decrypted into a
// private working copy; a failed decrypt returns ErrDecrypt and never
// fabricates an empty store. If no file exists a fresh database is created
// and migrated to the current schema version.
//
// The caller MUST call Close to flush and re-encrypt.
func Open(path, passphrase string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	key := deriveKey(passphrase)
	workPath := path + ".work"

	if blob, err := os.ReadFile(path); err == nil {
		plaintext, err := unseal(key, blob)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(workPath, plaintext, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write working copy: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read encrypted store: %w", err)
	} else {
		// Fresh store: working copy starts empty, schema created below.
		if err := os.WriteFile(workPath, nil, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create working copy: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", "file:"+workPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:     conn,
		path:     path,
		workPath: workPath,
		key:      key,
		logger:   logger,
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := s.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// DB returns the underlying sql.DB connection for direct parameterized
// queries. Callers must not close it.
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Close flushes the database, re-encrypts the working copy, atomically
// replaces the on-disk encrypted file, and deletes the plaintext copy.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil

	plaintext, err := os.ReadFile(s.workPath)
	if err != nil {
		return fmt.Errorf("failed to read working copy: %w", err)
	}
	blob, err := seal(s.key, plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write encrypted store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace encrypted store: %w", err)
	}

	if err := os.Remove(s.workPath); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("Warning: failed to remove working copy: %v", err)
	}
	// WAL sidecars may linger after an unclean shutdown.
	_ = os.Remove(s.workPath + "-wal")
	_ = os.Remove(s.workPath + "-shm")

	return nil
}
