// Package worker implements the thread fetch execution loop.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/crawler"
	"github.com/JakeFAU/lore-harvester/internal/fetcher"
	"github.com/JakeFAU/lore-harvester/internal/logging"
	"github.com/JakeFAU/lore-harvester/internal/metrics"
	"github.com/JakeFAU/lore-harvester/internal/queue/memory"
)

// ThreadFetcher downloads one thread.
type ThreadFetcher interface {
	Fetch(ctx context.Context, link crawler.ThreadLink) fetcher.Result
}

// Completed pairs a fetch result with the queue position it came from.
type Completed struct {
	Seq    int
	Result fetcher.Result
}

// Worker consumes queue items and runs the thread fetcher on each.
type Worker struct {
	id      int
	queue   crawler.Queue
	fetcher ThreadFetcher
	logger  *zap.Logger
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, f ThreadFetcher, logger *zap.Logger) *Worker {
	return &Worker{
		id:      id,
		queue:   queue,
		fetcher: f,
		logger:  logging.OrNop(logger).Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run consumes items until the queue is closed and drained or ctx ends,
// passing every result to emit.
func (w *Worker) Run(ctx context.Context, emit func(Completed)) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, memory.ErrClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued thread", zap.Int("seq", item.Seq), zap.String("url", item.Link.URL))

		metrics.IncActiveWorkers()
		res := w.fetcher.Fetch(ctx, item.Link)
		metrics.DecActiveWorkers()

		emit(Completed{Seq: item.Seq, Result: res})
	}
}
