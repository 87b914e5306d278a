package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testBase = "https://lore.example.org/netdev/"

type fakeResponse struct {
	status int
	body   string
	err    error
}

// fakeFetcher serves queued responses per URL; the last response repeats.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]fakeResponse
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string][]fakeResponse)}
}

func (f *fakeFetcher) on(url string, rs ...fakeResponse) {
	f.responses[url] = append(f.responses[url], rs...)
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	queue := f.responses[url]
	if len(queue) == 0 {
		return Page{}, fmt.Errorf("unexpected fetch of %s", url)
	}
	r := queue[0]
	if len(queue) > 1 {
		f.responses[url] = queue[1:]
	}
	if r.err != nil {
		return Page{}, r.err
	}
	if r.status != http.StatusOK {
		return Page{URL: url, StatusCode: r.status}, &StatusError{URL: url, StatusCode: r.status}
	}
	return Page{URL: url, StatusCode: r.status, Body: []byte(r.body)}, nil
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}

type memCache struct {
	entries []PageCacheEntry
	saves   int
}

func (m *memCache) Load() ([]PageCacheEntry, error) { return m.entries, nil }

func (m *memCache) Save(entries []PageCacheEntry) error {
	m.entries = append([]PageCacheEntry(nil), entries...)
	m.saves++
	return nil
}

func indexPage(next string, hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><pre>")
	for i, h := range hrefs {
		fmt.Fprintf(&b, "<a href=\"%s\">Thread %d </a>\n<a href=\"%s\">permalink</a>\n", h, i, strings.TrimSuffix(h, "/T/#t")+"/")
	}
	if next != "" {
		fmt.Fprintf(&b, "<a rel=\"next\" href=\"%s\">next (older)</a>", next)
	}
	b.WriteString("</pre></body></html>")
	return b.String()
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestCrawler(t *testing.T, f PageFetcher, cache PageCache, clock *fakeClock) *Crawler {
	t.Helper()
	c, err := New(Options{Fetcher: f, Cache: cache, Clock: clock, Logger: zap.NewNop()})
	require.NoError(t, err)
	return c
}

func TestCrawlStopsAtCutoff(t *testing.T) {
	t.Parallel()

	start := date(2024, time.December, 10)
	first := StartPageURL(testBase, start)
	f := newFakeFetcher()
	f.on(first, fakeResponse{status: 200, body: indexPage("?t=20241130000000", "a@x/T/#t", "b@x/T/#t")})

	var progress []float64
	c, err := New(Options{
		Fetcher:  f,
		Clock:    &fakeClock{now: date(2025, time.January, 1)},
		Progress: func(p float64, _ string) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	links, err := c.Crawl(context.Background(), Request{BaseURL: testBase, Start: &start, Oldest: date(2024, time.December, 1)})
	require.NoError(t, err)
	require.Equal(t, []ThreadLink{{URL: "a@x/T/", Title: "Thread 0"}, {URL: "b@x/T/", Title: "Thread 1"}}, links)
	require.Equal(t, []string{first}, f.calls)
	require.Equal(t, []float64{100}, progress)
}

func TestCrawlFollowsNextAndDeduplicates(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.on(testBase, fakeResponse{status: 200, body: indexPage("?t=20241205000000", "a@x/T/#t", "b@x/T/#t", "a@x/T/#t")})
	f.on(testBase+"?t=20241205000000", fakeResponse{status: 200, body: indexPage("", "b@x/T/#t", "c@x/T/#t")})

	cache := &memCache{}
	clock := &fakeClock{now: date(2024, time.December, 10)}
	links, err := newTestCrawler(t, f, cache, clock).Crawl(context.Background(),
		Request{BaseURL: testBase, Oldest: date(2024, time.December, 1)})
	require.NoError(t, err)

	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	require.Equal(t, []string{"a@x/T/", "b@x/T/", "c@x/T/"}, urls)
	require.Len(t, cache.entries, 1, "the live head page is never cached")
	require.Equal(t, testBase+"?t=20241205000000", cache.entries[0].PageURL)
	require.Len(t, cache.entries[0].Links, 2)
}

func TestCrawlRetriesUnavailablePage(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.on(testBase,
		fakeResponse{status: http.StatusServiceUnavailable},
		fakeResponse{status: http.StatusServiceUnavailable},
		fakeResponse{status: 200, body: indexPage("", "a@x/T/#t")},
	)
	clock := &fakeClock{now: date(2024, time.December, 10)}
	c, err := New(Options{Fetcher: f, Clock: clock, UnavailableDelay: 3 * time.Second})
	require.NoError(t, err)

	links, err := c.Crawl(context.Background(), Request{BaseURL: testBase, Oldest: date(2024, time.December, 1)})
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, clock.sleeps)
	require.Len(t, f.calls, 3)
}

func TestCrawlReturnsPartialOnOtherErrors(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.on(testBase, fakeResponse{status: 200, body: indexPage("?t=20241205000000", "a@x/T/#t")})
	f.on(testBase+"?t=20241205000000", fakeResponse{status: http.StatusNotFound})

	links, err := newTestCrawler(t, f, nil, &fakeClock{now: date(2024, time.December, 10)}).Crawl(
		context.Background(), Request{BaseURL: testBase, Oldest: date(2024, time.December, 1)})
	require.NoError(t, err)
	require.Len(t, links, 1)
}

func TestCrawlStopsOnMalformedCursor(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.on(testBase, fakeResponse{status: 200, body: indexPage("?t=yesterday", "a@x/T/#t")})

	links, err := newTestCrawler(t, f, nil, &fakeClock{now: date(2024, time.December, 10)}).Crawl(
		context.Background(), Request{BaseURL: testBase, Oldest: date(2024, time.December, 1)})
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Len(t, f.calls, 1)
}

func TestCrawlRejectsInvertedRange(t *testing.T) {
	t.Parallel()

	start := date(2024, time.December, 1)
	_, err := newTestCrawler(t, newFakeFetcher(), nil, &fakeClock{now: date(2025, time.January, 1)}).Crawl(
		context.Background(), Request{BaseURL: testBase, Start: &start, Oldest: start})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestCrawlCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.on(testBase, fakeResponse{status: http.StatusServiceUnavailable})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCrawler(t, f, nil, &fakeClock{now: date(2024, time.December, 10)}).Crawl(
		ctx, Request{BaseURL: testBase, Oldest: date(2024, time.December, 1)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCrawlIsIdempotentWithCache(t *testing.T) {
	t.Parallel()

	start := date(2024, time.December, 10)
	first := StartPageURL(testBase, start)
	second := testBase + "?t=20241205000000"
	site := func() *fakeFetcher {
		f := newFakeFetcher()
		f.on(first, fakeResponse{status: 200, body: indexPage("?t=20241205000000", "a@x/T/#t", "b@x/T/#t")})
		f.on(second, fakeResponse{status: 200, body: indexPage("?t=20241128000000", "c@x/T/#t")})
		return f
	}
	req := Request{BaseURL: testBase, Start: &start, Oldest: date(2024, time.December, 1)}
	cache := NewFileCache(filepath.Join(t.TempDir(), CacheFileName(testBase)))
	clock := &fakeClock{now: date(2025, time.January, 1)}

	firstRun, err := newTestCrawler(t, site(), cache, clock).Crawl(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, firstRun, 3)

	entries, err := cache.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Every link found on the second run is already known from the cache.
	secondCache := &countingCache{PageCache: cache}
	secondRun, err := newTestCrawler(t, site(), secondCache, clock).Crawl(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, firstRun, secondRun)
	require.Zero(t, secondCache.saves)
}

type countingCache struct {
	PageCache
	saves int
}

func (c *countingCache) Save(entries []PageCacheEntry) error {
	c.saves++
	return c.PageCache.Save(entries)
}

func TestCrawlFastForwardsPastCachedRange(t *testing.T) {
	t.Parallel()

	cache := &memCache{entries: []PageCacheEntry{
		{PageURL: testBase + "?t=20241208000000", Links: []ThreadLink{{URL: "old1@x/T/", Title: "old 1"}}},
		{PageURL: testBase + "?t=20241204000000", Links: []ThreadLink{{URL: "old2@x/T/", Title: "old 2"}}},
		{PageURL: testBase + "?t=bogus", Links: []ThreadLink{{URL: "old1@x/T/", Title: "dup"}}},
	}}
	f := newFakeFetcher()
	f.on(testBase, fakeResponse{status: 200, body: indexPage("?t=20241207000000", "new@x/T/#t")})
	f.on(testBase+"?t=20241204000000", fakeResponse{status: 200, body: indexPage("?t=20241130000000", "older@x/T/#t", "old2@x/T/#t")})

	links, err := newTestCrawler(t, f, cache, &fakeClock{now: date(2024, time.December, 12)}).Crawl(
		context.Background(), Request{BaseURL: testBase, Oldest: date(2024, time.December, 1)})
	require.NoError(t, err)

	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	require.Equal(t, []string{"old1@x/T/", "old2@x/T/", "new@x/T/", "older@x/T/"}, urls)
	require.Equal(t, []string{testBase, testBase + "?t=20241204000000"}, f.calls)
	require.Len(t, cache.entries, 4)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Clock: &fakeClock{}})
	require.Error(t, err)
	_, err = New(Options{Fetcher: newFakeFetcher()})
	require.Error(t, err)
}

func TestStatusErrorMatchesUnavailable(t *testing.T) {
	t.Parallel()

	var err error = &StatusError{URL: testBase, StatusCode: http.StatusServiceUnavailable}
	require.True(t, errors.Is(err, ErrUnavailable))
	err = &StatusError{URL: testBase, StatusCode: http.StatusBadGateway}
	require.False(t, errors.Is(err, ErrUnavailable))
	require.Contains(t, err.Error(), "502")
}
