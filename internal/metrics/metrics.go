// Package metrics provides Prometheus metrics for the metrolive application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream feed metrics
	FeedFetchesTotal    *prometheus.CounterVec
	FeedFetchDuration   prometheus.Histogram
	FeedDecodeFailures  prometheus.Counter
	FeedEntitiesDecoded prometheus.Gauge

	// Cache metrics
	CacheResultsTotal *prometheus.CounterVec
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrolive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metrolive_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	feedFetchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrolive_feed_fetches_total",
			Help: "Total number of upstream GTFS-RT fetch attempts by outcome",
		},
		[]string{"outcome"},
	)

	feedFetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "metrolive_feed_fetch_duration_seconds",
		Help:    "Upstream GTFS-RT fetch latency distribution",
		Buckets: prometheus.DefBuckets,
	})

	feedDecodeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metrolive_feed_decode_failures_total",
		Help: "Total number of GTFS-RT payloads that failed to decode",
	})

	feedEntitiesDecoded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metrolive_feed_entities_decoded",
		Help: "Number of entities in the most recently decoded feed",
	})

	cacheResultsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrolive_cache_results_total",
			Help: "Feed cache lookups by result (hit, miss, stale, unavailable)",
		},
		[]string{"result"},
	)

	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		feedFetchesTotal,
		feedFetchDuration,
		feedDecodeFailures,
		feedEntitiesDecoded,
		cacheResultsTotal,
	)

	return &Metrics{
		Registry:            registry,
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		FeedFetchesTotal:    feedFetchesTotal,
		FeedFetchDuration:   feedFetchDuration,
		FeedDecodeFailures:  feedDecodeFailures,
		FeedEntitiesDecoded: feedEntitiesDecoded,
		CacheResultsTotal:   cacheResultsTotal,
	}
}
