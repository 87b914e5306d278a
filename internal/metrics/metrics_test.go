package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if crawlPagesTotal == nil || threadFetchTotal == nil || dateParseFailuresTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveThreadFetch(t *testing.T) {
	Init()
	before := testutil.ToFloat64(threadFetchTotal.WithLabelValues("fetched"))
	ObserveThreadFetch("fetched")
	after := testutil.ToFloat64(threadFetchTotal.WithLabelValues("fetched"))
	if after-before != 1 {
		t.Fatalf("expected fetched counter to grow by 1, got %f", after-before)
	}
}

func TestObserveRetryAndProgress(t *testing.T) {
	Init()
	before := testutil.ToFloat64(threadFetchRetriesTotal)
	ObserveRetry(2 * time.Second)
	if got := testutil.ToFloat64(threadFetchRetriesTotal) - before; got != 1 {
		t.Fatalf("expected retry counter to grow by 1, got %f", got)
	}

	SetCrawlProgress(42)
	if got := testutil.ToFloat64(crawlProgressPercent); got != 42 {
		t.Fatalf("expected progress 42, got %f", got)
	}
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	if after-before != 1 {
		t.Fatalf("expected request counter to grow by 1, got %f", after-before)
	}
}

func TestHandlerServesHarvesterMetrics(t *testing.T) {
	Init()
	AddMessagesParsed(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "harvester_messages_parsed_total") {
		t.Fatal("expected harvester metrics in exposition output")
	}
}
