// Package sqlite stores exported message rows in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
)

// DefaultTable receives exported rows when no table is configured.
const DefaultTable = "thread_rows"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RowStore writes aggregated rows into SQLite.
type RowStore struct {
	db    *sql.DB
	table string
}

// NewRowStore opens (or creates) the database at path and ensures the table
// exists.
func NewRowStore(path, table string) (*RowStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &RowStore{db: db, table: table}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RowStore) migrate() error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	run_id      TEXT    NOT NULL,
	seq         INTEGER NOT NULL,
	from_name   TEXT    NOT NULL DEFAULT '',
	to_name     TEXT    NOT NULL DEFAULT '',
	date_raw    TEXT    NOT NULL DEFAULT '',
	subject     TEXT    NOT NULL DEFAULT '',
	reviewed_by TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS %[1]s_subject ON %[1]s (subject);
`, s.table)
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *RowStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// WriteRows inserts rows tagged with runID in one transaction. Rewriting the
// same run replaces its rows.
func (s *RowStore) WriteRows(ctx context.Context, runID string, rows []aggregate.Row) (int64, error) {
	if runID == "" {
		return 0, fmt.Errorf("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (run_id, seq, from_name, to_name, date_raw, subject, reviewed_by)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, seq) DO UPDATE SET
	from_name   = excluded.from_name,
	to_name     = excluded.to_name,
	date_raw    = excluded.date_raw,
	subject     = excluded.subject,
	reviewed_by = excluded.reviewed_by`, s.table))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, i, r.From, r.To, r.Date, r.Subject, r.ReviewedBy); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int64(len(rows)), nil
}

// Rows returns the rows stored for runID in insertion order.
func (s *RowStore) Rows(ctx context.Context, runID string) ([]aggregate.Row, error) {
	q := fmt.Sprintf(`SELECT from_name, to_name, date_raw, subject, reviewed_by FROM %s WHERE run_id = ? ORDER BY seq`, s.table)
	rs, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rs.Close() //nolint:errcheck

	var out []aggregate.Row
	for rs.Next() {
		var r aggregate.Row
		if err := rs.Scan(&r.From, &r.To, &r.Date, &r.Subject, &r.ReviewedBy); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
