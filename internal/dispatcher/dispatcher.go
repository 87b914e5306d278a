// Package dispatcher fans thread fetches out to a bounded worker pool and
// drives the sequential recovery pass over failures.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/crawler"
	"github.com/JakeFAU/lore-harvester/internal/fetcher"
	"github.com/JakeFAU/lore-harvester/internal/logging"
	"github.com/JakeFAU/lore-harvester/internal/queue/memory"
	"github.com/JakeFAU/lore-harvester/internal/worker"
)

// DefaultRecoveryPasses bounds the sequential retry of failed threads.
const DefaultRecoveryPasses = 3

// Dispatcher runs a batch of thread fetches on a fixed pool of workers. The
// queue holds at most one item per worker, so submission blocks while every
// worker is busy.
type Dispatcher struct {
	fetcher worker.ThreadFetcher
	size    int
	logger  *zap.Logger
}

// New creates a Dispatcher with size workers.
func New(f worker.ThreadFetcher, size int, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		fetcher: f,
		size:    size,
		logger:  logging.OrNop(logger).Named("dispatcher"),
	}
}

// Run fetches every link and returns the results in input order. If ctx ends
// early, links never handed to a worker are absent from the results.
func (d *Dispatcher) Run(ctx context.Context, links []crawler.ThreadLink) ([]fetcher.Result, error) {
	q := memory.NewQueue(d.size)

	var (
		mu        sync.Mutex
		completed = make([]worker.Completed, 0, len(links))
		wg        sync.WaitGroup
	)
	emit := func(c worker.Completed) {
		mu.Lock()
		completed = append(completed, c)
		mu.Unlock()
	}
	for i := 0; i < d.size; i++ {
		w := worker.New(i, q, d.fetcher, d.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, emit)
		}()
	}

	var enqueueErr error
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			enqueueErr = fmt.Errorf("queue enqueue: %w", err)
			break
		}
		if err := q.Enqueue(ctx, crawler.QueueItem{Seq: i, Link: link}); err != nil {
			enqueueErr = fmt.Errorf("queue enqueue: %w", err)
			break
		}
	}
	q.Close()
	wg.Wait()

	sort.Slice(completed, func(i, j int) bool { return completed[i].Seq < completed[j].Seq })
	results := make([]fetcher.Result, len(completed))
	for i, c := range completed {
		results[i] = c.Result
	}
	return results, enqueueErr
}

// Recover re-fetches failed links one at a time, for up to passes passes.
// Each pass retries only what the previous pass left failed. It returns the
// links still failing.
func Recover(ctx context.Context, f worker.ThreadFetcher, failed []crawler.ThreadLink, passes int, logger *zap.Logger) []crawler.ThreadLink {
	logger = logging.OrNop(logger).Named("recovery")
	remaining := failed
	for pass := 1; pass <= passes && len(remaining) > 0; pass++ {
		logger.Info("recovery pass started", zap.Int("pass", pass), zap.Int("threads", len(remaining)))
		var next []crawler.ThreadLink
		for _, link := range remaining {
			if ctx.Err() != nil {
				return remaining
			}
			if res := f.Fetch(ctx, link); res.Outcome == fetcher.OutcomeFailed {
				next = append(next, link)
			}
		}
		logger.Info("recovery pass finished",
			zap.Int("pass", pass),
			zap.Int("recovered", len(remaining)-len(next)),
			zap.Int("still_failing", len(next)),
		)
		remaining = next
	}
	return remaining
}

// Summary counts results by outcome.
type Summary struct {
	Fetched int
	Cached  int
	Skipped int
	Failed  []crawler.ThreadLink
}

// Summarize tallies results and collects the failed links.
func Summarize(results []fetcher.Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Outcome {
		case fetcher.OutcomeFetched:
			s.Fetched++
		case fetcher.OutcomeCached:
			s.Cached++
		case fetcher.OutcomeSkipped:
			s.Skipped++
		case fetcher.OutcomeFailed:
			s.Failed = append(s.Failed, r.Link)
		}
	}
	return s
}
