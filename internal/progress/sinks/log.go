package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/logging"
	"github.com/JakeFAU/lore-harvester/internal/progress"
)

// LogSink turns progress events into structured logs. Crawl progress is
// logged once per ten percent; failed threads are logged at warn.
type LogSink struct {
	logger     *zap.Logger
	lastDecile int
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(logger), lastDecile: -1}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		run := zap.Stringer("run_id", evt.RunUUID())
		switch evt.Stage {
		case progress.StageRunStart:
			s.logger.Info("fetch run started", run, zap.String("note", evt.Note))
		case progress.StageCrawlPage:
			if d := int(evt.Percent) / 10; d != s.lastDecile {
				s.lastDecile = d
				s.logger.Info("crawl progress", run, zap.Float64("percent", evt.Percent), zap.String("page", evt.URL))
			}
		case progress.StageThreadDone:
			fields := []zap.Field{
				run,
				zap.String("url", evt.URL),
				zap.String("title", evt.Title),
				zap.String("outcome", evt.Outcome),
				zap.Int("attempts", evt.Attempts),
				zap.Duration("dur", evt.Dur),
			}
			if evt.Outcome == "failed" {
				s.logger.Warn("thread fetch failed", append(fields, zap.String("error", evt.Note))...)
			} else {
				s.logger.Debug("thread fetch done", fields...)
			}
		case progress.StageRunDone:
			s.logger.Info("fetch run finished", run, zap.Duration("dur", evt.Dur), zap.String("note", evt.Note))
		case progress.StageRunError:
			s.logger.Error("fetch run failed", run, zap.Duration("dur", evt.Dur), zap.String("error", evt.Note))
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
