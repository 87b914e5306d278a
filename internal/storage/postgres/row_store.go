// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
)

// DefaultTable receives exported rows when no table is configured.
const DefaultTable = "thread_rows"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// columns is the COPY column order.
var columns = []string{"run_id", "seq", "from_name", "to_name", "date_raw", "subject", "reviewed_by"}

// RowStoreConfig controls the Postgres connection pool used for exported rows.
type RowStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type copyExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
	Close()
}

// RowStore writes aggregated message rows into Postgres.
type RowStore struct {
	pool  copyExecCloser
	table string
}

// NewRowStore creates a Postgres-backed RowStore using the provided config.
func NewRowStore(ctx context.Context, cfg RowStoreConfig) (*RowStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("export.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RowStore{pool: pool, table: table}, nil
}

// NewRowStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRowStoreWithPool(pool copyExecCloser, table string) (*RowStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RowStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RowStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the row table when it does not exist.
func (s *RowStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT    NOT NULL,
	seq         INTEGER NOT NULL,
	from_name   TEXT    NOT NULL,
	to_name     TEXT    NOT NULL,
	date_raw    TEXT    NOT NULL,
	subject     TEXT    NOT NULL,
	reviewed_by TEXT    NOT NULL,
	PRIMARY KEY (run_id, seq)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// WriteRows bulk-copies rows tagged with runID and returns the number copied.
func (s *RowStore) WriteRows(ctx context.Context, runID string, rows []aggregate.Row) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("row store is not configured")
	}
	if runID == "" {
		return 0, fmt.Errorf("run id is required")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{runID, i, r.From, r.To, r.Date, r.Subject, r.ReviewedBy}, nil
	})
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, columns, src)
	if err != nil {
		return n, fmt.Errorf("copy rows: %w", err)
	}
	return n, nil
}
