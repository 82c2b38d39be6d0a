package store

import (
	"context"
	"fmt"
)

// migration is one schema step. Migrations are applied in ascending version
// order inside a single transaction; any failure rolls the whole batch back.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
		CREATE TABLE IF NOT EXISTS schema_meta (
			version INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS revisions (
			id TEXT PRIMARY KEY,
			object_type TEXT NOT NULL,
			object_id TEXT NOT NULL,
			origin_id TEXT,
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			synced INTEGER NOT NULL DEFAULT 0,
			dead INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_revisions_unsynced
		    ON revisions(synced, created_at) WHERE synced = 0;
		CREATE INDEX IF NOT EXISTS idx_revisions_object
		    ON revisions(object_type, object_id);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			name TEXT,
			avatar_path TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS team_members (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_team_members_team ON team_members(team_id);

		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			team_id TEXT,
			name TEXT NOT NULL,
			color TEXT,
			archived INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT,
			team_id TEXT,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'open',
			priority INTEGER NOT NULL DEFAULT 2,
			assignee_id TEXT,
			due_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
		CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee_id);

		CREATE TABLE IF NOT EXISTS calendar_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			starts_at TEXT NOT NULL,
			ends_at TEXT NOT NULL,
			source TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_calendar_events_user ON calendar_events(user_id);

		CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			name TEXT NOT NULL,
			blob_path TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			mime_type TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_attachments_task ON attachments(task_id);

		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			kind TEXT NOT NULL,
			payload TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS time_entries (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			user_id TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_time_entries_task ON time_entries(task_id);
		CREATE INDEX IF NOT EXISTS idx_time_entries_open
		    ON time_entries(task_id) WHERE ended_at IS NULL;

		CREATE TABLE IF NOT EXISTS heartbeats (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			seen_at TEXT NOT NULL,
			active_window TEXT,
			created_at TEXT NOT NULL
		);
		`,
	},
}

// migrate brings the schema up to the latest version. All pending migrations
// run inside one transaction; a failure aborts the whole batch.
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	// schema_meta may not exist yet on a fresh database.
	var current int
	row := tx.QueryRowContext(ctx, `SELECT version FROM schema_meta LIMIT 1`)
	if err := row.Scan(&current); err != nil {
		current = 0
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		current = m.version
		applied++
	}

	if applied > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_meta`); err != nil {
			return fmt.Errorf("failed to reset schema version: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_meta (version) VALUES (?)`, current); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migrations: %w", err)
		}
		s.logger.Printf("Applied %d migration(s), schema version %d", applied, current)
	}

	return nil
}

// SchemaVersion returns the current schema_meta version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.conn.QueryRowContext(ctx, `SELECT version FROM schema_meta LIMIT 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
