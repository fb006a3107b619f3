// Package metrics defines the Prometheus metric collectors used by the trix
// services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

// Metrics holds all Prometheus collectors for the search service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	WordLookupsTotal     *prometheus.CounterVec
	IndexLinesScanned    *prometheus.CounterVec
	SnippetFailuresTotal *prometheus.CounterVec
	OpenIndexes          prometheus.Gauge
	SearchEventsDropped  prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trix_search_queries_total",
				Help: "Total search queries by index and result type (hit, zero_result, error).",
			},
			[]string{"index", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trix_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trix_search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
			[]string{"index"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trix_query_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trix_query_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		WordLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trix_word_lookups_total",
				Help: "Word posting lookups by index and whether the handle had them cached.",
			},
			[]string{"index", "cached"},
		),
		IndexLinesScanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trix_index_lines_scanned_total",
				Help: "Word index lines read while looking up postings.",
			},
			[]string{"index"},
		),
		SnippetFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trix_snippet_failures_total",
				Help: "Snippet requests that could not be served.",
			},
			[]string{"index"},
		),
		OpenIndexes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trix_open_indexes",
				Help: "Number of indexes currently open.",
			},
		),
		SearchEventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trix_search_events_dropped_total",
				Help: "Search analytics events dropped because the publish buffer was full.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.WordLookupsTotal,
		m.IndexLinesScanned,
		m.SnippetFailuresTotal,
		m.OpenIndexes,
		m.SearchEventsDropped,
		m.CircuitBreakerState,
	)

	return m
}

// indexObserver feeds trix engine counters for one index into the
// collectors.
type indexObserver struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	scanned  prometheus.Counter
	snippets prometheus.Counter
}

// IndexObserver returns a trix.Observer that records engine counters
// labelled with the index name.
func (m *Metrics) IndexObserver(index string) trix.Observer {
	return &indexObserver{
		hits:     m.WordLookupsTotal.WithLabelValues(index, "true"),
		misses:   m.WordLookupsTotal.WithLabelValues(index, "false"),
		scanned:  m.IndexLinesScanned.WithLabelValues(index),
		snippets: m.SnippetFailuresTotal.WithLabelValues(index),
	}
}

func (o *indexObserver) WordLookup(cached bool) {
	if cached {
		o.hits.Inc()
	} else {
		o.misses.Inc()
	}
}

func (o *indexObserver) LinesScanned(n int) { o.scanned.Add(float64(n)) }

func (o *indexObserver) SnippetFailure() { o.snippets.Inc() }

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
