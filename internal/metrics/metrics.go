// Package metrics exposes Prometheus collectors for the collection pipeline.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	searchRequestsTotal        *prometheus.CounterVec
	searchBackoffSeconds       prometheus.Histogram
	urlsCollectedTotal         *prometheus.CounterVec
	filterDroppedTotal         *prometheus.CounterVec
	ingestTotal                *prometheus.CounterVec
	archiveBytesTotal          *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	robotsFallbackTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climatedb_search_requests_total",
				Help: "Search requests issued, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		searchBackoffSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "climatedb_search_backoff_seconds",
				Help:    "Sleeps taken after rate-limited search attempts.",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
			},
		)

		urlsCollectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climatedb_urls_collected_total",
				Help: "Candidate URLs retrieved, labeled by source and mode.",
			},
			[]string{"source", "mode"},
		)

		filterDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climatedb_filter_dropped_total",
				Help: "URLs dropped by the filter pipeline, labeled by source and stage.",
			},
			[]string{"source", "stage"},
		)

		ingestTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climatedb_ingest_total",
				Help: "Ingestion attempts, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		archiveBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climatedb_archive_bytes_total",
				Help: "Bytes written to the archive, labeled by source and store kind.",
			},
			[]string{"source", "kind"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climatedb_runs_total",
				Help: "Collection runs, labeled by status.",
			},
			[]string{"status"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "climatedb_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		robotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climatedb_robots_fallback_total",
				Help: "robots.txt probes that timed out and fell back to allow-all, labeled by host.",
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

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
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

// Push sends the default registry to a Pushgateway. Batch runs call it once
// before exiting since nothing scrapes a short-lived process.
func Push(ctx context.Context, gatewayURL, job string) error {
	Init()
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// ObserveSearch counts one search request.
func ObserveSearch(source, outcome string) {
	Init()
	searchRequestsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveBackoff records a rate-limit sleep.
func ObserveBackoff(d time.Duration) {
	Init()
	searchBackoffSeconds.Observe(d.Seconds())
}

// ObserveCollected counts retrieved candidate URLs.
func ObserveCollected(source, mode string, n int) {
	Init()
	if n > 0 {
		urlsCollectedTotal.WithLabelValues(source, mode).Add(float64(n))
	}
}

// ObserveDropped counts URLs removed by a filter stage.
func ObserveDropped(source, stage string, n int) {
	Init()
	if n > 0 {
		filterDroppedTotal.WithLabelValues(source, stage).Add(float64(n))
	}
}

// ObserveIngest counts one ingestion outcome.
func ObserveIngest(source, outcome string) {
	Init()
	ingestTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveArchiveBytes records bytes written to a store.
func ObserveArchiveBytes(source, kind string, n int) {
	Init()
	if n > 0 {
		archiveBytesTotal.WithLabelValues(source, kind).Add(float64(n))
	}
}

// ObserveRun counts a finished collection run.
func ObserveRun(status string) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback(host string) {
	Init()
	robotsFallbackTotal.WithLabelValues(host).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
