package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mkessler/taskloom/internal/model"
)

// ApplyWrite upserts an entity row and appends its revision in a single
// transaction, preserving the invariant that every local mutation produces
// exactly one revision atomically with the entity write.
func (s *Store) ApplyWrite(ctx context.Context, kind model.Kind, row model.Row, rev *model.Revision) error {
	if err := rev.Validate(); err != nil {
		return fmt.Errorf("invalid revision: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := execUpsertRow(ctx, tx, kind, row); err != nil {
		return err
	}
	if err := appendRevision(ctx, tx, rev); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit write: %w", err)
	}
	return nil
}

// ApplyDelete removes an entity row and appends its tombstone revision in a
// single transaction. The tombstone keeps the delete replayable by the push
// engine even when the inline remote delete fails.
func (s *Store) ApplyDelete(ctx context.Context, kind model.Kind, id string, rev *model.Revision) error {
	if err := rev.Validate(); err != nil {
		return fmt.Errorf("invalid revision: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", kind.Table())
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s row %s: %w", kind, id, err)
	}
	if err := appendRevision(ctx, tx, rev); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func appendRevision(ctx context.Context, ex dbExecer, rev *model.Revision) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO revisions (id, object_type, object_id, origin_id, seq, payload, created_at, synced, dead)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)`,
		rev.ID, string(rev.ObjectType), rev.ObjectID, rev.OriginID, rev.Seq,
		string(rev.Payload), rev.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append revision: %w", err)
	}
	return nil
}

// NextSeq returns the next monotonic sequence hint for this replica's log.
func (s *Store) NextSeq(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := s.conn.QueryRowContext(ctx, `SELECT MAX(seq) FROM revisions`).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to read revision seq: %w", err)
	}
	return max.Int64 + 1, nil
}

// UnsyncedRevisions returns up to limit pending revisions, oldest first.
// Dead-lettered revisions are skipped; they stay in the log but are no
// longer batched.
func (s *Store) UnsyncedRevisions(ctx context.Context, limit int) ([]*model.Revision, error) {
	query := `
		SELECT id, object_type, object_id, origin_id, seq, payload, created_at, synced, dead
		FROM revisions
		WHERE synced = 0 AND dead = 0
		ORDER BY created_at ASC, seq ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced revisions: %w", err)
	}
	defer rows.Close()

	return scanRevisions(rows)
}

// GetRevision fetches a single revision by id.
func (s *Store) GetRevision(ctx context.Context, id string) (*model.Revision, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, object_type, object_id, origin_id, seq, payload, created_at, synced, dead
		FROM revisions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query revision: %w", err)
	}
	defer rows.Close()

	revs, err := scanRevisions(rows)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, sql.ErrNoRows
	}
	return revs[0], nil
}

// MarkSynced flips a revision's synced flag. Idempotent: marking an already
// synced revision is a no-op.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE revisions SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark revision %s synced: %w", id, err)
	}
	return nil
}

// MarkDead classifies a revision as dead-lettered after exhausting its retry
// budget. It stays unsynced in the log but is excluded from batches until
// requeued.
func (s *Store) MarkDead(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE revisions SET dead = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark revision %s dead: %w", id, err)
	}
	return nil
}

// RequeueDead clears the dead flag so the revision is batched again.
func (s *Store) RequeueDead(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE revisions SET dead = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to requeue revision %s: %w", id, err)
	}
	return nil
}

// DeadRevisions lists dead-lettered revisions, oldest first.
func (s *Store) DeadRevisions(ctx context.Context) ([]*model.Revision, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, object_type, object_id, origin_id, seq, payload, created_at, synced, dead
		FROM revisions
		WHERE dead = 1
		ORDER BY created_at ASC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead revisions: %w", err)
	}
	defer rows.Close()

	return scanRevisions(rows)
}

// CountUnsynced returns the number of revisions still pending push.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM revisions WHERE synced = 0 AND dead = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced revisions: %w", err)
	}
	return count, nil
}

// CountRevisions returns the total size of the revision log.
func (s *Store) CountRevisions(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM revisions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count revisions: %w", err)
	}
	return count, nil
}

func scanRevisions(rows *sql.Rows) ([]*model.Revision, error) {
	var revs []*model.Revision
	for rows.Next() {
		var (
			rev       model.Revision
			objType   string
			originID  sql.NullString
			payload   string
			createdAt string
			synced    int
			dead      int
		)
		if err := rows.Scan(&rev.ID, &objType, &rev.ObjectID, &originID, &rev.Seq,
			&payload, &createdAt, &synced, &dead); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		rev.ObjectType = model.Kind(objType)
		rev.OriginID = originID.String
		rev.Payload = []byte(payload)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rev.CreatedAt = t
		}
		rev.Synced = synced == 1
		rev.Dead = dead == 1
		revs = append(revs, &rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}
	return revs, nil
}
