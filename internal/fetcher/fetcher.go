// Package fetcher downloads the mbox archive of each crawled thread into its
// own directory, retrying transient failures with exponential backoff.
package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/crawler"
	"github.com/JakeFAU/lore-harvester/internal/logging"
	"github.com/JakeFAU/lore-harvester/internal/metrics"
	"github.com/JakeFAU/lore-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/lore-harvester/internal/storage/local"
)

// Artifact names inside a thread directory.
const (
	ArchiveExt      = ".mbx"
	compressedName  = "t.mbox.gz"
	AuditNoteName   = "source.txt"
	ErrorNoteName   = "error.txt"
	hashSuffixChars = 8
)

// Outcome classifies a Fetch result.
type Outcome string

// Fetch outcomes.
const (
	OutcomeFetched Outcome = "fetched"
	OutcomeCached  Outcome = "cached"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result reports what Fetch did for one thread.
type Result struct {
	Link     crawler.ThreadLink
	Outcome  Outcome
	Dir      string
	Attempts int
	Err      error
}

// HTTPStatusError reports a non-200 archive response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Detail     string
}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Config holds the fetcher settings.
type Config struct {
	BaseURL         string
	UserAgent       string
	MaxRetries      int
	BackoffUnit     time.Duration
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	MaxTitleLength  int
	TitleHashSuffix bool
}

// Options wires the fetcher collaborators. Client, Limiter and Jitter are
// optional.
type Options struct {
	Config  Config
	Store   *local.BlobStore
	Clock   crawler.Clock
	Hasher  crawler.Hasher
	IDs     crawler.IDGenerator
	Limiter *ratelimit.Limiter
	Client  *http.Client
	Jitter  func(time.Duration) time.Duration
	Logger  *zap.Logger
}

// Fetcher retrieves thread archives. It is safe for concurrent use; each
// thread writes only inside its own directory.
type Fetcher struct {
	cfg     Config
	store   *local.BlobStore
	clock   crawler.Clock
	hasher  crawler.Hasher
	runID   string
	limiter *ratelimit.Limiter
	client  *http.Client
	policy  *ExponentialRetryPolicy
	logger  *zap.Logger
}

// New builds a Fetcher.
func New(opts Options) (*Fetcher, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("fetcher: store is required")
	case opts.Clock == nil:
		return nil, errors.New("fetcher: clock is required")
	case opts.IDs == nil:
		return nil, errors.New("fetcher: id generator is required")
	case opts.Config.TitleHashSuffix && opts.Hasher == nil:
		return nil, errors.New("fetcher: hasher is required for title hash suffixes")
	case strings.TrimSpace(opts.Config.BaseURL) == "":
		return nil, errors.New("fetcher: base url is required")
	}
	cfg := opts.Config
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.MaxTitleLength <= 0 {
		cfg.MaxTitleLength = DefaultMaxTitleLength
	}
	runID, err := opts.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("fetcher: run id: %w", err)
	}
	client := opts.Client
	if client == nil {
		client = newHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	return &Fetcher{
		cfg:     cfg,
		store:   opts.Store,
		clock:   opts.Clock,
		hasher:  opts.Hasher,
		runID:   runID,
		limiter: opts.Limiter,
		client:  client,
		policy:  NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffUnit, opts.Jitter),
		logger:  logging.OrNop(opts.Logger).Named("fetcher").With(zap.String("run_id", runID)),
	}, nil
}

// RunID identifies this fetcher's run in audit notes and logs.
func (f *Fetcher) RunID() string {
	return f.runID
}

// Fetch downloads link's archive unless its directory already holds one.
// Failures are reported in the Result and leave an error note on disk.
func (f *Fetcher) Fetch(ctx context.Context, link crawler.ThreadLink) Result {
	res := f.fetch(ctx, link)
	metrics.ObserveThreadFetch(string(res.Outcome))
	return res
}

func (f *Fetcher) fetch(ctx context.Context, link crawler.ThreadLink) Result {
	res := Result{Link: link}
	name, truncated := DirName(link.Title, f.cfg.MaxTitleLength)
	if skippable(name) {
		f.logger.Debug("skipping thread with unusable title", zap.String("url", link.URL), zap.String("title", link.Title))
		res.Outcome = OutcomeSkipped
		return res
	}
	if f.cfg.TitleHashSuffix {
		digest, err := f.hasher.Hash([]byte(link.Title))
		if err != nil {
			res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("hash title: %w", err)
			return res
		}
		name += "-" + digest[:min(hashSuffixChars, len(digest))]
	}
	res.Dir = name
	logger := f.logger.With(zap.String("dir", name), zap.String("url", link.URL))

	done, err := f.store.HasObjectWithExt(name, ArchiveExt)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("check existing archive: %w", err)
		logger.Error("thread directory unreadable", zap.Error(err))
		return res
	}
	if done {
		res.Outcome = OutcomeCached
		return res
	}

	archiveURL, err := ArchiveURL(f.cfg.BaseURL, link.URL)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		f.writeFailure(ctx, name, link, link.URL, truncated, res.Attempts, err)
		return res
	}

	for {
		res.Attempts++
		err = f.attempt(ctx, archiveURL, name)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("fetch canceled: %w", ctx.Err())
			return res
		}
		if !f.policy.ShouldRetry(err, res.Attempts) {
			break
		}
		delay := f.policy.Backoff(res.Attempts)
		metrics.ObserveRetry(delay)
		logger.Warn("archive download failed, retrying",
			zap.Int("attempt", res.Attempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleepErr := f.clock.Sleep(ctx, delay); sleepErr != nil {
			res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("fetch canceled: %w", sleepErr)
			return res
		}
	}

	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		logger.Error("archive download failed", zap.Int("attempts", res.Attempts), zap.Error(err))
		f.writeFailure(ctx, name, link, archiveURL, truncated, res.Attempts, err)
		return res
	}

	if err := f.store.Delete(name + "/" + ErrorNoteName); err != nil {
		logger.Warn("stale error note not removed", zap.Error(err))
	}
	f.writeAudit(ctx, name, link, archiveURL, truncated)
	res.Outcome = OutcomeFetched
	logger.Info("thread archived", zap.Int("attempts", res.Attempts))
	return res
}

// attempt performs one download and decompression.
func (f *Fetcher) attempt(ctx context.Context, archiveURL, name string) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, archiveURL); err != nil {
			return err
		}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", archiveURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully consumed or abandoned

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPStatusError{
			URL:        archiveURL,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(detail)),
		}
	}

	body := newIdleReader(resp.Body, f.cfg.ReadTimeout, cancel)
	defer body.Stop()
	gzPath := name + "/" + compressedName
	if _, _, err := f.store.PutObject(ctx, gzPath, body); err != nil {
		return fmt.Errorf("download archive: %w", err)
	}
	defer func() {
		if err := f.store.Delete(gzPath); err != nil {
			f.logger.Warn("compressed archive not removed", zap.String("path", gzPath), zap.Error(err))
		}
	}()

	return f.decompress(ctx, gzPath, name+"/"+name+ArchiveExt)
}

func (f *Fetcher) decompress(ctx context.Context, src, dst string) error {
	in, err := f.store.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close() //nolint:errcheck // read-only

	if _, _, err := f.store.PutObject(ctx, dst, gz); err != nil {
		return fmt.Errorf("decompress archive: %w", err)
	}
	return nil
}

func (f *Fetcher) writeAudit(ctx context.Context, name string, link crawler.ThreadLink, source string, truncated bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "source: %s\n", source)
	fmt.Fprintf(&b, "thread: %s\n", link.URL)
	fmt.Fprintf(&b, "destination: %s/%s%s\n", name, name, ArchiveExt)
	fmt.Fprintf(&b, "run: %s\n", f.runID)
	fmt.Fprintf(&b, "recorded_at: %s\n", f.clock.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "truncated: %t\n", truncated)
	if truncated {
		b.WriteString("Thread title was too long, so it was truncated\n")
	}
	fmt.Fprintf(&b, "title: %s\n", link.Title)
	if _, _, err := f.store.PutObject(ctx, name+"/"+AuditNoteName, strings.NewReader(b.String())); err != nil {
		f.logger.Warn("audit note not written", zap.String("dir", name), zap.Error(err))
	}
}

func (f *Fetcher) writeFailure(ctx context.Context, name string, link crawler.ThreadLink, source string, truncated bool, attempts int, cause error) {
	var b strings.Builder
	fmt.Fprintf(&b, "class: %s\n", errorClass(cause))
	fmt.Fprintf(&b, "message: %s\n", cause.Error())
	fmt.Fprintf(&b, "source: %s\n", source)
	fmt.Fprintf(&b, "attempts: %d\n", attempts)
	if _, _, err := f.store.PutObject(ctx, name+"/"+ErrorNoteName, strings.NewReader(b.String())); err != nil {
		f.logger.Error("error note not written", zap.String("dir", name), zap.Error(err))
		return
	}
	f.writeAudit(ctx, name, link, source, truncated)
}

func errorClass(err error) string {
	var statusErr *HTTPStatusError
	switch {
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.Is(err, gzip.ErrHeader), errors.Is(err, gzip.ErrChecksum):
		return "decode"
	case IsRetryable(err):
		return "transient_network"
	default:
		return "permanent"
	}
}
