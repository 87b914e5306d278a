package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollyPageFetcherFetchesAndRevisits(t *testing.T) {
	t.Parallel()

	var (
		hits      atomic.Int32
		userAgent atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		userAgent.Store(r.UserAgent())
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<a href="x/T/#t">x</a>`))
	}))
	defer srv.Close()

	f := NewCollyPageFetcher(CollyConfig{UserAgent: "harvester-test", Timeout: 5 * time.Second}, zap.NewNop())

	page, err := f.FetchPage(context.Background(), srv.URL+"/netdev/")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnavailable))
	require.Equal(t, http.StatusServiceUnavailable, page.StatusCode)

	page, err = f.FetchPage(context.Background(), srv.URL+"/netdev/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "x/T/#t")
	require.EqualValues(t, 2, hits.Load())
	require.Equal(t, "harvester-test", userAgent.Load())
}

func TestCollyPageFetcherNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewCollyPageFetcher(CollyConfig{}, nil).FetchPage(context.Background(), srv.URL)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestCollyPageFetcherCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewCollyPageFetcher(CollyConfig{}, nil).FetchPage(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
