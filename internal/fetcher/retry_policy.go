package fetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"net"
	"net/http"
	"syscall"
	"time"
)

// DefaultMaxRetries is the number of retries after the first attempt.
const DefaultMaxRetries = 4

// DefaultBackoffUnit scales the exponential backoff.
const DefaultBackoffUnit = time.Second

// ExponentialRetryPolicy retries transient download failures with jittered
// exponential backoff.
type ExponentialRetryPolicy struct {
	maxRetries int
	unit       time.Duration
	jitter     func(limit time.Duration) time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxRetries retries.
// A nil jitter uses crypto/rand.
func NewExponentialRetryPolicy(maxRetries int, unit time.Duration, jitter func(time.Duration) time.Duration) *ExponentialRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if unit <= 0 {
		unit = DefaultBackoffUnit
	}
	if jitter == nil {
		jitter = randomJitter
	}
	return &ExponentialRetryPolicy{maxRetries: maxRetries, unit: unit, jitter: jitter}
}

// MaxRetries returns the retry budget.
func (p *ExponentialRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry decides whether another attempt follows failed attempt number
// attempt (1-based).
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt > p.maxRetries {
		return false
	}
	return IsRetryable(err)
}

// Backoff returns the wait before retry number retry (1-based):
// 2^retry units plus up to one unit of jitter.
func (p *ExponentialRetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	if retry > 30 {
		retry = 30
	}
	base := p.unit * time.Duration(1<<uint(retry))
	return base + p.jitter(p.unit)
}

// IsRetryable classifies transient failures: throttling and gateway status
// codes, timeouts, connection resets and truncated bodies.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusServiceUnavailable, http.StatusTooManyRequests,
			http.StatusBadGateway, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, ErrReadTimeout) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
