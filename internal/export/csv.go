package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
)

// CSVWriter writes rows to a single CSV file with a header line. Each call
// replaces the file.
type CSVWriter struct {
	path string
}

// NewCSVWriter returns a writer targeting path.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

// WriteRows writes rows atomically. runID is not recorded.
func (w *CSVWriter) WriteRows(ctx context.Context, _ string, rows []aggregate.Row) (int64, error) {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	cw := csv.NewWriter(tmp)
	if err := cw.Write(aggregate.Columns); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		if i%1000 == 0 && ctx.Err() != nil {
			_ = tmp.Close()
			return 0, fmt.Errorf("write rows: %w", ctx.Err())
		}
		if err := cw.Write(r.Values()); err != nil {
			_ = tmp.Close()
			return 0, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return 0, fmt.Errorf("rename csv: %w", err)
	}
	return int64(len(rows)), nil
}

// Close is a no-op.
func (w *CSVWriter) Close() error { return nil }
