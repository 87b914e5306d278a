package fetcher

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrReadTimeout reports a response body that stalled longer than the read
// timeout.
var ErrReadTimeout = errors.New("read timeout: no data received")

// newHTTPClient separates the connect timeout (dial and TLS) from the read
// timeout (waiting for headers). Body stalls are caught by idleReader.
func newHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			ExpectContinueTimeout: time.Second,
			MaxIdleConns:          64,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// idleReader cancels the request when no bytes arrive for the idle period.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	idle    time.Duration
	expired atomic.Bool
}

func newIdleReader(r io.Reader, idle time.Duration, cancel func()) *idleReader {
	ir := &idleReader{r: r, idle: idle}
	ir.timer = time.AfterFunc(idle, func() {
		ir.expired.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if err != nil && ir.expired.Load() {
		return n, ErrReadTimeout
	}
	if n > 0 {
		ir.timer.Reset(ir.idle)
	}
	return n, err //nolint:wrapcheck // io.Reader contract requires io.EOF unwrapped
}

func (ir *idleReader) Stop() {
	ir.timer.Stop()
}
