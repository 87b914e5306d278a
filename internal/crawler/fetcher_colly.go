package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/logging"
)

// CollyConfig controls the index page collector.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyPageFetcher implements PageFetcher using the Colly collector.
type CollyPageFetcher struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewCollyPageFetcher constructs a synchronous collector. Revisits are allowed
// so a page that answered 503 can be requested again.
func NewCollyPageFetcher(cfg CollyConfig, logger *zap.Logger) *CollyPageFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	base := colly.NewCollector(opts...)
	base.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(timeout)

	return &CollyPageFetcher{
		baseCollector: base,
		logger:        logging.OrNop(logger).Named("colly"),
	}
}

// FetchPage retrieves rawURL. Any non-2xx answer is returned as a *StatusError
// alongside the page.
func (f *CollyPageFetcher) FetchPage(ctx context.Context, rawURL string) (Page, error) {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	var (
		page     Page
		fetchErr error
	)

	collector.OnResponse(func(r *colly.Response) {
		page = Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			page = Page{URL: rawURL, StatusCode: r.StatusCode, Body: append([]byte(nil), r.Body...)}
			fetchErr = &StatusError{URL: rawURL, StatusCode: r.StatusCode}
			return
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return page, fetchErr
		}
		if err != nil {
			return Page{}, fmt.Errorf("colly visit failed: %w", err)
		}
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		return page, &StatusError{URL: rawURL, StatusCode: page.StatusCode}
	}
	f.logger.Debug("page fetched", zap.String("url", rawURL), zap.Int("bytes", len(page.Body)))
	return page, nil
}
