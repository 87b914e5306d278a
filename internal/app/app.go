// Package app wires the harvester components into the fetch and analyze
// workflows used by the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/clock/system"
	"github.com/JakeFAU/lore-harvester/internal/config"
	"github.com/JakeFAU/lore-harvester/internal/crawler"
	"github.com/JakeFAU/lore-harvester/internal/export"
	"github.com/JakeFAU/lore-harvester/internal/hash/sha256"
	"github.com/JakeFAU/lore-harvester/internal/id/uuid"
	"github.com/JakeFAU/lore-harvester/internal/logging"
	"github.com/JakeFAU/lore-harvester/internal/metrics"
)

// App holds the shared, long-lived services for one command invocation.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  crawler.Clock
	ids    crawler.IDGenerator
	hasher crawler.Hasher
	writer export.RowWriter
	out    io.Writer

	pageFetcher crawler.PageFetcher
	httpClient  *http.Client
	jitter      func(time.Duration) time.Duration
	writerSet   bool
}

// Option customises an App.
type Option func(*App)

// WithRowWriter replaces the export writer selected by configuration.
func WithRowWriter(w export.RowWriter) Option {
	return func(a *App) {
		a.writer = w
		a.writerSet = true
	}
}

// WithOutput sets where the report goes when analyze.report_path is empty.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithClock replaces the system clock.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithPageFetcher replaces the Colly index page fetcher.
func WithPageFetcher(f crawler.PageFetcher) Option {
	return func(a *App) { a.pageFetcher = f }
}

// WithHTTPClient replaces the archive download client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// WithJitter replaces the backoff jitter source.
func WithJitter(fn func(time.Duration) time.Duration) Option {
	return func(a *App) { a.jitter = fn }
}

// New builds an App. The export writer is opened here so configuration
// errors surface before any work starts.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logging.OrNop(logger),
		clock:  system.New(),
		ids:    uuid.New(),
		hasher: sha256.New(),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if !a.writerSet {
		w, err := export.Open(ctx, cfg.Export, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init export: %w", err)
		}
		a.writer = w
	}
	return a, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// Close releases the export writer and flushes the logger.
func (a *App) Close() {
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			a.logger.Warn("error closing export writer", zap.Error(err))
		}
	}
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}

// serveMetrics exposes /metrics on addr until ctx ends.
func (a *App) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics listener started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func (a *App) reportWriter() (io.Writer, func() error, error) {
	path := a.cfg.Analyze.ReportPath
	if path == "" {
		return a.out, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create report: %w", err)
	}
	return f, f.Close, nil
}
