package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lore-harvester/internal/aggregate"
)

func TestRowStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "rows.db")
	store, err := NewRowStore(path, "")
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	rows := []aggregate.Row{
		{From: "Alice", Date: "Mon, 1 Jan 2024 00:00:00 +0000", Subject: "Fix bug"},
		{From: "Bob", To: "Alice", Subject: "Fix bug", ReviewedBy: "Carol, Dan"},
	}
	n, err := store.WriteRows(context.Background(), "run-1", rows)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	// Rewriting a run replaces rather than duplicates.
	_, err = store.WriteRows(context.Background(), "run-1", rows)
	require.NoError(t, err)

	got, err := store.Rows(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, rows, got)

	other, err := store.Rows(context.Background(), "run-2")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestRowStoreRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewRowStore(filepath.Join(t.TempDir(), "rows.db"), "bad-name")
	require.Error(t, err)

	store, err := NewRowStore(filepath.Join(t.TempDir(), "rows.db"), "custom_rows")
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	_, err = store.WriteRows(context.Background(), "", nil)
	require.Error(t, err)
}
