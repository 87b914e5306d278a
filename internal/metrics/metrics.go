// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlLinksDiscoveredTotal  prometheus.Counter
	crawlProgressPercent       prometheus.Gauge
	threadFetchTotal           *prometheus.CounterVec
	threadFetchRetriesTotal    prometheus.Counter
	threadFetchBackoffSeconds  prometheus.Histogram
	fetchActiveWorkers         prometheus.Gauge
	messagesParsedTotal        prometheus.Counter
	dateParseFailuresTotal     prometheus.Counter
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_crawl_pages_total",
				Help: "Total number of index pages fetched, labeled by status.",
			},
			[]string{"status"},
		)

		crawlLinksDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_crawl_links_discovered_total",
				Help: "Total number of distinct thread links discovered on index pages.",
			},
		)

		crawlProgressPercent = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_crawl_progress_percent",
				Help: "Crawl progress through the requested date range.",
			},
		)

		threadFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_thread_fetch_total",
				Help: "Total number of thread fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		threadFetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_thread_fetch_retries_total",
				Help: "Total number of retried thread archive downloads.",
			},
		)

		threadFetchBackoffSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_thread_fetch_backoff_seconds",
				Help:    "Histogram of backoff delays before retrying a thread download.",
				Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32},
			},
		)

		fetchActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_fetch_active_workers",
				Help: "Number of fetch workers currently downloading a thread.",
			},
		)

		messagesParsedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_messages_parsed_total",
				Help: "Total number of messages produced by the mbox splitter.",
			},
		)

		dateParseFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_date_parse_failures_total",
				Help: "Total number of Date headers that could not be normalized.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting on the client-side request cap, labeled by host.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_http_requests_total",
				Help: "Total number of read API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_http_request_duration_seconds",
				Help:    "Histogram of read API latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlPage counts one index page fetch with its HTTP status.
func ObserveCrawlPage(code int) {
	Init()
	crawlPagesTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// AddLinksDiscovered adds n newly discovered thread links.
func AddLinksDiscovered(n int) {
	Init()
	if n > 0 {
		crawlLinksDiscoveredTotal.Add(float64(n))
	}
}

// SetCrawlProgress records the crawl progress percentage.
func SetCrawlProgress(percent float64) {
	Init()
	crawlProgressPercent.Set(percent)
}

// ObserveThreadFetch counts one thread fetch outcome.
func ObserveThreadFetch(outcome string) {
	Init()
	threadFetchTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry records a retried download and the delay that precedes it.
func ObserveRetry(delay time.Duration) {
	Init()
	threadFetchRetriesTotal.Inc()
	threadFetchBackoffSeconds.Observe(delay.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	fetchActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	fetchActiveWorkers.Dec()
}

// AddMessagesParsed adds n parsed messages.
func AddMessagesParsed(n int) {
	Init()
	if n > 0 {
		messagesParsedTotal.Add(float64(n))
	}
}

// ObserveDateParseFailure counts one unparseable Date header.
func ObserveDateParseFailure() {
	Init()
	dateParseFailuresTotal.Inc()
}

// ObserveRateLimitDelay records time spent waiting for a request token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
