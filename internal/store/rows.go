package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mkessler/taskloom/internal/model"
)

// normalizeValue converts row values coming from JSON into SQLite-friendly
// bindings. JSON numbers arrive as float64; integral ones are stored as
// integers so they scan back cleanly.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

// upsertSQL builds an INSERT ... ON CONFLICT(id) DO UPDATE statement for the
// kind's full column list.
func upsertSQL(kind model.Kind) string {
	cols := kind.Columns()
	placeholders := strings.TrimRight(strings.Repeat("?, ", len(cols)), ", ")
	var sets []string
	for _, c := range cols {
		if c == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		kind.Table(), strings.Join(cols, ", "), placeholders, strings.Join(sets, ", "),
	)
}

// UpsertRow inserts or replaces a row of the given kind. Missing columns are
// stored as NULL; unknown keys in the row are ignored.
func (s *Store) UpsertRow(ctx context.Context, kind model.Kind, row model.Row) error {
	return execUpsertRow(ctx, s.conn, kind, row)
}

// dbExecer is satisfied by both *sql.DB and *sql.Tx.
type dbExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execUpsertRow(ctx context.Context, ex dbExecer, kind model.Kind, row model.Row) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	if model.RowID(row) == "" {
		return fmt.Errorf("row for %s has no id", kind)
	}
	args := make([]any, 0, len(kind.Columns()))
	for _, c := range kind.Columns() {
		v, ok := row[c]
		if !ok {
			args = append(args, nil)
			continue
		}
		args = append(args, normalizeValue(v))
	}
	if _, err := ex.ExecContext(ctx, upsertSQL(kind), args...); err != nil {
		return fmt.Errorf("failed to upsert %s row: %w", kind, err)
	}
	return nil
}

// GetRow fetches one row by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetRow(ctx context.Context, kind model.Kind, id string) (model.Row, error) {
	cols := kind.Columns()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(cols, ", "), kind.Table())

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := s.conn.QueryRowContext(ctx, query, id).Scan(ptrs...); err != nil {
		return nil, err
	}

	return buildRow(kind, cols, vals), nil
}

// buildRow assembles a scanned value slice into a Row, mapping integer
// booleans back to JSON booleans.
func buildRow(kind model.Kind, cols []string, vals []any) model.Row {
	row := make(model.Row, len(cols))
	for i, c := range cols {
		if vals[i] != nil {
			row[c] = vals[i]
		}
	}
	for _, c := range kind.BoolColumns() {
		if n, ok := row[c].(int64); ok {
			row[c] = n != 0
		}
	}
	return row
}

// RowTimestamp returns the last-modified timestamp of a local row, or
// found=false when the row does not exist. Used for last-write-wins merges.
func (s *Store) RowTimestamp(ctx context.Context, kind model.Kind, id string) (ts time.Time, found bool, err error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", kind.TimestampColumn(), kind.Table())
	var raw sql.NullString
	switch err := s.conn.QueryRowContext(ctx, query, id).Scan(&raw); err {
	case nil:
	case sql.ErrNoRows:
		return time.Time{}, false, nil
	default:
		return time.Time{}, false, fmt.Errorf("failed to read %s timestamp: %w", kind, err)
	}
	if !raw.Valid {
		return time.Time{}, true, nil
	}
	t, perr := time.Parse(time.RFC3339Nano, raw.String)
	if perr != nil {
		return time.Time{}, true, nil
	}
	return t, true, nil
}

// QueryRows returns rows of the kind matching an optional WHERE clause,
// ordered by the kind's timestamp column ascending. The clause must use
// placeholders; callers own parameterization.
func (s *Store) QueryRows(ctx context.Context, kind model.Kind, where string, args ...any) ([]model.Row, error) {
	cols := kind.Columns()
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), kind.Table())
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY %s ASC", kind.TimestampColumn())

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s rows: %w", kind, err)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", kind, err)
		}
		out = append(out, buildRow(kind, cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", kind, err)
	}
	return out, nil
}

// DeleteRow removes a row by id. Idempotent: deleting a missing row is a no-op.
func (s *Store) DeleteRow(ctx context.Context, kind model.Kind, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", kind.Table())
	if _, err := s.conn.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s row %s: %w", kind, id, err)
	}
	return nil
}

// CountRows returns the number of rows in the kind's table.
func (s *Store) CountRows(ctx context.Context, kind model.Kind) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", kind.Table())
	if err := s.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", kind, err)
	}
	return count, nil
}
