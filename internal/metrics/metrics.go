// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlRequestsTotal         *prometheus.CounterVec
	crawlDurationSeconds       *prometheus.HistogramVec
	crawlActive                prometheus.Gauge
	cacheLookupsTotal          *prometheus.CounterVec
	sourceFetchTotal           *prometheus.CounterVec
	sourceFetchDuration        *prometheus.HistogramVec
	sourceItemsTotal           *prometheus.CounterVec
	creditsChargedTotal        *prometheus.CounterVec
	rateLimitRejectionsTotal   prometheus.Counter
	fetchThrottleDelaySeconds  *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buzzcrawl_crawl_requests_total",
				Help: "Crawl requests partitioned by outcome (success, cache_hit or an error kind).",
			},
			[]string{"outcome"},
		)

		crawlDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buzzcrawl_crawl_duration_seconds",
				Help:    "End-to-end crawl latency partitioned by outcome.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		)

		crawlActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "buzzcrawl_crawls_in_flight",
				Help: "Number of crawls currently fanning out to sources.",
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buzzcrawl_cache_lookups_total",
				Help: "Response cache lookups partitioned by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		sourceFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buzzcrawl_source_fetch_total",
				Help: "Source fetches partitioned by source and status.",
			},
			[]string{"source", "status"},
		)

		sourceFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buzzcrawl_source_fetch_duration_seconds",
				Help:    "Per-source fetch latency.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"source"},
		)

		sourceItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buzzcrawl_source_items_total",
				Help: "Raw items returned per source.",
			},
			[]string{"source"},
		)

		creditsChargedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buzzcrawl_credits_charged_total",
				Help: "Credits deducted, partitioned by charge type (paid, free_trial, waived).",
			},
			[]string{"type"},
		)

		rateLimitRejectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "buzzcrawl_rate_limit_rejections_total",
				Help: "Requests rejected because the caller's window was full.",
			},
		)

		fetchThrottleDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buzzcrawl_fetch_throttle_delay_seconds",
				Help:    "Histogram of per-host politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl records a finished crawl.
func ObserveCrawl(outcome string, duration time.Duration) {
	crawlRequestsTotal.WithLabelValues(outcome).Inc()
	crawlDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncActiveCrawls increments the in-flight crawl gauge.
func IncActiveCrawls() {
	crawlActive.Inc()
}

// DecActiveCrawls decrements the in-flight crawl gauge.
func DecActiveCrawls() {
	crawlActive.Dec()
}

// ObserveCacheLookup records a cache lookup result.
func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveSourceFetch records one source fetch.
func ObserveSourceFetch(sourceID, status string, items int, duration time.Duration) {
	sourceFetchTotal.WithLabelValues(sourceID, status).Inc()
	sourceFetchDuration.WithLabelValues(sourceID).Observe(duration.Seconds())
	if items > 0 {
		sourceItemsTotal.WithLabelValues(sourceID).Add(float64(items))
	}
}

// ObserveCreditCharge records credits deducted for a crawl.
func ObserveCreditCharge(chargeType string, amount int) {
	creditsChargedTotal.WithLabelValues(chargeType).Add(float64(amount))
}

// ObserveRateLimitRejection increments the rejection counter.
func ObserveRateLimitRejection() {
	rateLimitRejectionsTotal.Inc()
}

// ObserveThrottleDelay records the duration of a politeness wait.
func ObserveThrottleDelay(host string, duration time.Duration) {
	fetchThrottleDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
