package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/crawler"
	"github.com/JakeFAU/lore-harvester/internal/fetcher"
	"github.com/JakeFAU/lore-harvester/internal/progress"
	"github.com/JakeFAU/lore-harvester/internal/progress/sinks"
	"github.com/JakeFAU/lore-harvester/internal/telemetry"
	"github.com/JakeFAU/lore-harvester/internal/worker"
)

const eventsCloseTimeout = 5 * time.Second

// runEvents stamps events with the run ID and clock before handing them to
// the hub.
type runEvents struct {
	hub     *progress.Hub
	runID   [16]byte
	clock   crawler.Clock
	started time.Time
	logger  *zap.Logger
}

func (a *App) newEvents(runID, outputDir string) (*runEvents, error) {
	id, err := progress.ParseRunID(runID)
	if err != nil {
		return nil, err
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(a.logger)}
	if name := a.cfg.Fetch.JournalName; name != "" {
		journal, err := sinks.NewJournalSink(filepath.Join(outputDir, name))
		if err != nil {
			return nil, fmt.Errorf("init run journal: %w", err)
		}
		hubSinks = append(hubSinks, journal)
	}
	return &runEvents{
		hub:     progress.NewHub(progress.Config{Logger: a.logger}, hubSinks...),
		runID:   id,
		clock:   a.clock,
		started: a.clock.Now(),
		logger:  a.logger,
	}, nil
}

func (e *runEvents) emit(evt progress.Event) {
	evt.RunID = e.runID
	evt.TS = e.clock.Now()
	e.hub.Emit(evt)
}

func (e *runEvents) close() {
	ctx, cancel := context.WithTimeout(context.Background(), eventsCloseTimeout)
	defer cancel()
	if err := e.hub.Close(ctx); err != nil {
		e.logger.Warn("progress hub close failed", zap.Error(err))
	}
}

// observedFetcher traces every fetch and reports its outcome as a
// THREAD_DONE event.
type observedFetcher struct {
	inner  worker.ThreadFetcher
	events *runEvents
	clock  crawler.Clock
}

func (o *observedFetcher) Fetch(ctx context.Context, link crawler.ThreadLink) fetcher.Result {
	ctx, span := telemetry.Tracer().Start(ctx, "thread.fetch",
		trace.WithAttributes(attribute.String("thread.url", link.URL)))
	defer span.End()

	start := o.clock.Now()
	res := o.inner.Fetch(ctx, link)
	span.SetAttributes(
		attribute.String("thread.outcome", string(res.Outcome)),
		attribute.Int("thread.attempts", res.Attempts),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "thread fetch failed")
	}
	evt := progress.Event{
		Stage:    progress.StageThreadDone,
		URL:      link.URL,
		Title:    link.Title,
		Outcome:  string(res.Outcome),
		Attempts: res.Attempts,
		Dur:      max(o.clock.Now().Sub(start), 0),
	}
	if res.Err != nil {
		evt.Note = res.Err.Error()
	}
	o.events.emit(evt)
	return res
}
