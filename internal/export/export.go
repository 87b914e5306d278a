// Package export flushes aggregated rows to CSV, SQLite or Postgres.
package export

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
	"github.com/JakeFAU/lore-harvester/internal/config"
	"github.com/JakeFAU/lore-harvester/internal/logging"
	"github.com/JakeFAU/lore-harvester/internal/storage/postgres"
	"github.com/JakeFAU/lore-harvester/internal/storage/sqlite"
)

// RowWriter persists one analyze walk's rows. runID distinguishes walks in
// stores that keep history.
type RowWriter interface {
	WriteRows(ctx context.Context, runID string, rows []aggregate.Row) (int64, error)
	Close() error
}

// Open builds the writer selected by cfg.Format. It returns nil for the
// "none" format.
func Open(ctx context.Context, cfg config.ExportConfig, logger *zap.Logger) (RowWriter, error) {
	logger = logging.OrNop(logger).Named("export")
	switch cfg.Format {
	case config.ExportNone, "":
		return nil, nil
	case config.ExportCSV:
		logger.Info("exporting rows to csv", zap.String("path", cfg.Path))
		return NewCSVWriter(cfg.Path), nil
	case config.ExportSQLite:
		logger.Info("exporting rows to sqlite", zap.String("path", cfg.Path), zap.String("table", cfg.Table))
		store, err := sqlite.NewRowStore(cfg.Path, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("open sqlite export: %w", err)
		}
		return store, nil
	case config.ExportPostgres:
		logger.Info("exporting rows to postgres", zap.String("table", cfg.Table))
		store, err := postgres.NewRowStore(ctx, postgres.RowStoreConfig{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("open postgres export: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return postgresWriter{store}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", cfg.Format)
	}
}

type postgresWriter struct {
	*postgres.RowStore
}

func (w postgresWriter) Close() error {
	w.RowStore.Close()
	return nil
}
