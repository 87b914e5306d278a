package crawler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/logging"
	"github.com/JakeFAU/lore-harvester/internal/metrics"
)

// DefaultUnavailableDelay is the pause before re-requesting a page that
// answered 503.
const DefaultUnavailableDelay = 10 * time.Second

// Request describes one crawl.
type Request struct {
	BaseURL string
	// Start is the newest day to begin from. Nil starts at the live head.
	Start *time.Time
	// Oldest is the cutoff; pages older than this end the crawl.
	Oldest time.Time
}

// Options configures a Crawler.
type Options struct {
	Fetcher PageFetcher
	// Cache is optional; nil disables the page cache.
	Cache            PageCache
	Clock            Clock
	UnavailableDelay time.Duration
	Progress         ProgressFunc
	Logger           *zap.Logger
}

// Crawler paginates an archive index from newest to oldest.
type Crawler struct {
	fetcher          PageFetcher
	cache            PageCache
	clock            Clock
	unavailableDelay time.Duration
	progress         ProgressFunc
	logger           *zap.Logger
}

// New builds a Crawler.
func New(opts Options) (*Crawler, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("crawler: page fetcher is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("crawler: clock is required")
	}
	delay := opts.UnavailableDelay
	if delay <= 0 {
		delay = DefaultUnavailableDelay
	}
	return &Crawler{
		fetcher:          opts.Fetcher,
		cache:            opts.Cache,
		clock:            opts.Clock,
		unavailableDelay: delay,
		progress:         opts.Progress,
		logger:           logging.OrNop(opts.Logger).Named("crawler"),
	}, nil
}

// crawlState carries the per-run bookkeeping.
type crawlState struct {
	links   []ThreadLink
	seen    map[string]struct{}
	entries []PageCacheEntry

	armed        bool
	newestCached time.Time
	oldestCached time.Time
}

func (s *crawlState) add(links []ThreadLink) int {
	added := 0
	for _, l := range links {
		if _, ok := s.seen[l.URL]; ok {
			continue
		}
		s.seen[l.URL] = struct{}{}
		s.links = append(s.links, l)
		added++
	}
	return added
}

// Crawl returns the de-duplicated thread links from the index, cached pages
// first. Page failures other than 503 end the crawl early with the links
// gathered so far and a nil error. Cancellation returns the partial result
// with the context error.
func (c *Crawler) Crawl(ctx context.Context, req Request) ([]ThreadLink, error) {
	start := c.clock.Now().UTC()
	next := strings.TrimSpace(req.BaseURL)
	if next == "" {
		return nil, errors.New("crawler: base url is required")
	}
	if req.Start != nil {
		start = req.Start.UTC()
		next = StartPageURL(req.BaseURL, start)
	}
	if !start.After(req.Oldest) {
		return nil, fmt.Errorf("%w: start %s, oldest %s", ErrInvalidRange,
			start.Format(DateLayout), req.Oldest.Format(DateLayout))
	}

	st := &crawlState{seen: make(map[string]struct{})}
	c.seedFromCache(st)

	logger := c.logger.With(zap.String("base_url", req.BaseURL))
	logger.Info("crawl started",
		zap.String("first_page", next),
		zap.Time("oldest", req.Oldest),
		zap.Int("cached_links", len(st.links)),
	)

	for next != "" {
		page, err := c.fetcher.FetchPage(ctx, next)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return st.links, fmt.Errorf("crawl canceled: %w", ctxErr)
			}
			if errors.Is(err, ErrUnavailable) {
				metrics.ObserveCrawlPage(503)
				logger.Warn("index page unavailable, retrying",
					zap.String("page", next),
					zap.Duration("delay", c.unavailableDelay),
				)
				if err := c.clock.Sleep(ctx, c.unavailableDelay); err != nil {
					return st.links, fmt.Errorf("crawl canceled: %w", err)
				}
				continue
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				metrics.ObserveCrawlPage(statusErr.StatusCode)
			}
			logger.Error("index page fetch failed, stopping crawl", zap.String("page", next), zap.Error(err))
			break
		}
		metrics.ObserveCrawlPage(page.StatusCode)

		extracted, err := ExtractPage(page.Body)
		if err != nil {
			logger.Error("index page parse failed, stopping crawl", zap.String("page", next), zap.Error(err))
			break
		}

		added := st.add(extracted.Links)
		metrics.AddLinksDiscovered(added)
		logger.Debug("index page crawled",
			zap.String("page", next),
			zap.Int("links", len(extracted.Links)),
			zap.Int("new_links", added),
		)
		if added > 0 && next != req.BaseURL {
			c.persist(st, next, extracted.Links)
		}

		if extracted.Next == "" {
			break
		}
		nextURL, done, err := c.advance(st, req, start, extracted.Next)
		if err != nil {
			logger.Error("bad next link, stopping crawl", zap.String("href", extracted.Next), zap.Error(err))
			break
		}
		if done {
			logger.Info("reached cutoff date", zap.String("next", nextURL))
			break
		}
		next = nextURL
	}

	logger.Info("crawl finished", zap.Int("threads", len(st.links)))
	return st.links, nil
}

// advance resolves the next href, applies the cache fast-forward and reports
// progress. done is true when the next page is older than the cutoff.
func (c *Crawler) advance(st *crawlState, req Request, start time.Time, href string) (string, bool, error) {
	nextURL, err := ResolveURL(req.BaseURL, href)
	if err != nil {
		return "", false, err
	}
	cursor, ok, err := CursorOf(nextURL)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return nextURL, false, nil
	}

	if st.armed && cursor.Before(st.newestCached) {
		st.armed = false
		cursor = st.oldestCached
		nextURL, err = WithCursor(nextURL, cursor)
		if err != nil {
			return "", false, err
		}
		c.logger.Info("fast-forwarding past cached pages", zap.String("next", nextURL))
	}

	c.reportProgress(start, req.Oldest, cursor, nextURL)
	return nextURL, cursor.Before(req.Oldest), nil
}

func (c *Crawler) reportProgress(start, oldest, cursor time.Time, pageURL string) {
	total := start.Sub(oldest).Seconds()
	pct := 100.0
	if total > 0 {
		pct = math.Min(100, math.Max(0, start.Sub(cursor).Seconds()/total*100))
	}
	metrics.SetCrawlProgress(pct)
	if c.progress != nil {
		c.progress(pct, pageURL)
	}
}

func (c *Crawler) seedFromCache(st *crawlState) {
	if c.cache == nil {
		return
	}
	entries, err := c.cache.Load()
	if err != nil {
		c.logger.Warn("page cache unreadable, starting fresh", zap.Error(err))
		return
	}
	st.entries = entries
	found := false
	for _, entry := range entries {
		st.add(entry.Links)
		cursor, ok, err := CursorOf(entry.PageURL)
		if err != nil || !ok {
			continue
		}
		if !found || cursor.After(st.newestCached) {
			st.newestCached = cursor
		}
		if !found || cursor.Before(st.oldestCached) {
			st.oldestCached = cursor
		}
		found = true
	}
	st.armed = found
}

func (c *Crawler) persist(st *crawlState, pageURL string, links []ThreadLink) {
	if c.cache == nil {
		return
	}
	st.entries = append(st.entries, PageCacheEntry{PageURL: pageURL, Links: links})
	if err := c.cache.Save(st.entries); err != nil {
		c.logger.Warn("page cache write failed", zap.String("page", pageURL), zap.Error(err))
	}
}
