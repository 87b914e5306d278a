package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/app"
	"github.com/JakeFAU/lore-harvester/internal/config"
)

var errStop = errors.New("stop before running")

// captureConfig swaps the application factory for one that records the
// resolved configuration and aborts.
func captureConfig(t *testing.T) *config.Config {
	t.Helper()
	var got config.Config
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (*app.App, error) {
		got = cfg
		return nil, errStop
	}
	t.Cleanup(func() { newApp = orig })
	return &got
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd(viper.New())
	root.SetArgs(append(args, "--dev=false", "--log-level=error"))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.ExecuteContext(context.Background())
}

func TestFetchRequiresBaseURL(t *testing.T) {
	err := execute(t, "fetch", "--oldest", "2024-12-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.base_url")
}

func TestFetchFlagsReachConfig(t *testing.T) {
	got := captureConfig(t)
	out := filepath.Join(t.TempDir(), "threads")

	err := execute(t, "fetch",
		"--base-url", "https://lore.kernel.org/netdev/",
		"--oldest", "2024-12-01",
		"--start", "2024-12-10",
		"--output-dir", out,
		"--concurrency", "3",
		"--no-cache",
	)
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, "https://lore.kernel.org/netdev/", got.Crawl.BaseURL)
	assert.Equal(t, "2024-12-10", got.Crawl.StartDate)
	assert.Equal(t, out, got.Fetch.OutputDir)
	assert.Equal(t, 3, got.Fetch.Concurrency)
	assert.False(t, got.Crawl.CacheEnabled)
	assert.Equal(t, "error", got.Logging.Level)
}

func TestAnalyzeFlagsReachConfig(t *testing.T) {
	got := captureConfig(t)
	dir := t.TempDir()

	err := execute(t, "analyze",
		"--input-dir", dir,
		"--thread-key", "composite",
		"--export-format", "csv",
		"--export-path", filepath.Join(dir, "rows.csv"),
		"--top", "5",
	)
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, dir, got.Analyze.InputDir)
	assert.Equal(t, config.ThreadKeyComposite, got.Analyze.ThreadKey)
	assert.Equal(t, config.ExportCSV, got.Export.Format)
	assert.Equal(t, 5, got.Analyze.TopCount)
	assert.True(t, got.Crawl.CacheEnabled)
}

func TestServeSharesAnalyzeFlags(t *testing.T) {
	got := captureConfig(t)
	dir := t.TempDir()

	err := execute(t, "serve", "--input-dir", dir, "--port", "9191")
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, dir, got.Analyze.InputDir)
	assert.Equal(t, 9191, got.Server.Port)
	assert.Equal(t, config.ExportNone, got.Export.Format)
}

func TestAnalyzeRejectsUnknownExport(t *testing.T) {
	err := execute(t, "analyze", "--export-format", "parquet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export.format")
}
