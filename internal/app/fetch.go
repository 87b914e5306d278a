package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/crawler"
	"github.com/JakeFAU/lore-harvester/internal/dispatcher"
	"github.com/JakeFAU/lore-harvester/internal/fetcher"
	"github.com/JakeFAU/lore-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/lore-harvester/internal/progress"
	"github.com/JakeFAU/lore-harvester/internal/storage/local"
)

// FetchReport summarises one fetch run.
type FetchReport struct {
	RunID        string
	Links        int
	Summary      dispatcher.Summary
	StillFailing []crawler.ThreadLink
}

// Fetch crawls the index, downloads every discovered thread through the
// worker pool and retries failures sequentially. Threads that still fail are
// listed in the report and do not make Fetch return an error.
func (a *App) Fetch(ctx context.Context) (FetchReport, error) {
	cfg := a.cfg
	var report FetchReport

	req, err := crawlRequest(cfg.Crawl.BaseURL, cfg.Crawl.StartDate, cfg.Crawl.OldestDate)
	if err != nil {
		return report, err
	}

	store, err := local.New(local.Config{BaseDir: cfg.Fetch.OutputDir})
	if err != nil {
		return report, fmt.Errorf("init output directory: %w", err)
	}

	if cfg.Metrics.ListenAddr != "" {
		a.serveMetrics(ctx, cfg.Metrics.ListenAddr)
	}

	f, err := fetcher.New(fetcher.Options{
		Config: fetcher.Config{
			BaseURL:         cfg.Crawl.BaseURL,
			UserAgent:       cfg.Crawl.UserAgent,
			MaxRetries:      cfg.Fetch.MaxRetries,
			BackoffUnit:     cfg.Fetch.BackoffUnit,
			ConnectTimeout:  cfg.Fetch.ConnectTimeout,
			ReadTimeout:     cfg.Fetch.ReadTimeout,
			MaxTitleLength:  cfg.Fetch.MaxTitleLength,
			TitleHashSuffix: cfg.Fetch.TitleHashSuffix,
		},
		Store:   store,
		Clock:   a.clock,
		Hasher:  a.hasher,
		IDs:     a.ids,
		Limiter: ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Fetch.RequestsPerSecond}),
		Client:  a.httpClient,
		Jitter:  a.jitter,
		Logger:  a.logger,
	})
	if err != nil {
		return report, fmt.Errorf("init fetcher: %w", err)
	}
	report.RunID = f.RunID()

	events, err := a.newEvents(report.RunID, store.BaseDir())
	if err != nil {
		return report, err
	}
	defer events.close()
	events.emit(progress.Event{Stage: progress.StageRunStart, URL: cfg.Crawl.BaseURL, Note: "oldest=" + req.Oldest.Format(crawler.DateLayout)})

	report, err = a.runFetch(ctx, req, f, events, report)
	dur := max(a.clock.Now().Sub(events.started), 0)
	if err != nil {
		events.emit(progress.Event{Stage: progress.StageRunError, Dur: dur, Note: err.Error()})
		return report, err
	}
	events.emit(progress.Event{
		Stage: progress.StageRunDone,
		Dur:   dur,
		Note:  fmt.Sprintf("links=%d still_failing=%d", report.Links, len(report.StillFailing)),
	})
	return report, nil
}

func (a *App) runFetch(ctx context.Context, req crawler.Request, f *fetcher.Fetcher, events *runEvents, report FetchReport) (FetchReport, error) {
	cfg := a.cfg
	c, err := a.newCrawler(events)
	if err != nil {
		return report, err
	}
	links, err := c.Crawl(ctx, req)
	report.Links = len(links)
	if err != nil {
		return report, fmt.Errorf("crawl: %w", err)
	}
	a.logger.Info("crawl finished", zap.Int("links", len(links)))

	observed := &observedFetcher{inner: f, events: events, clock: a.clock}
	results, err := dispatcher.New(observed, cfg.Fetch.Concurrency, a.logger).Run(ctx, links)
	report.Summary = dispatcher.Summarize(results)
	if err != nil {
		return report, fmt.Errorf("fetch threads: %w", err)
	}
	a.logger.Info("thread fetch finished",
		zap.Int("fetched", report.Summary.Fetched),
		zap.Int("cached", report.Summary.Cached),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Int("failed", len(report.Summary.Failed)),
	)

	report.StillFailing = dispatcher.Recover(ctx, observed, report.Summary.Failed, cfg.Fetch.RecoveryPasses, a.logger)
	for _, link := range report.StillFailing {
		a.logger.Error("thread could not be fetched", zap.String("url", link.URL), zap.String("title", link.Title))
	}
	if ctx.Err() != nil {
		return report, fmt.Errorf("fetch threads: %w", ctx.Err())
	}
	return report, nil
}

func (a *App) newCrawler(events *runEvents) (*crawler.Crawler, error) {
	cfg := a.cfg.Crawl
	pages := a.pageFetcher
	if pages == nil {
		pages = crawler.NewCollyPageFetcher(crawler.CollyConfig{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.RequestTimeout,
		}, a.logger)
	}
	var cache crawler.PageCache
	if cfg.CacheEnabled {
		path := filepath.Join(cfg.CacheDir, crawler.CacheFileName(cfg.BaseURL))
		a.logger.Info("using page cache", zap.String("path", path))
		cache = crawler.NewFileCache(path)
	}

	c, err := crawler.New(crawler.Options{
		Fetcher:          pages,
		Cache:            cache,
		Clock:            a.clock,
		UnavailableDelay: cfg.UnavailableDelay,
		Progress: func(pct float64, pageURL string) {
			events.emit(progress.Event{Stage: progress.StageCrawlPage, URL: pageURL, Percent: pct})
		},
		Logger: a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init crawler: %w", err)
	}
	return c, nil
}

func crawlRequest(baseURL, start, oldest string) (crawler.Request, error) {
	req := crawler.Request{BaseURL: baseURL}
	o, err := crawler.ParseDate(oldest)
	if err != nil {
		return req, fmt.Errorf("crawl.oldest_date: %w", err)
	}
	req.Oldest = o
	if start != "" {
		s, err := crawler.ParseDate(start)
		if err != nil {
			return req, fmt.Errorf("crawl.start_date: %w", err)
		}
		req.Start = &s
	}
	return req, nil
}

