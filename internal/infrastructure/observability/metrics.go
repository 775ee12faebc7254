package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Every method
// is safe on a nil *Collector so services can run without metrics.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Embedding metrics
	EmbeddingCalls    *prometheus.CounterVec
	EmbeddingDuration prometheus.Histogram
	EmbeddingCache    *prometheus.CounterVec

	// Search metrics
	RankRequests   *prometheus.CounterVec
	RankCandidates prometheus.Histogram

	// Linking metrics
	Merges         *prometheus.CounterVec
	VectorsRemoved *prometheus.CounterVec
	StaleResponses prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		EmbeddingCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_calls_total",
				Help:      "Embedding calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		EmbeddingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_duration_seconds",
				Help:      "Embedding call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		EmbeddingCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cache_total",
				Help:      "Embedding cache lookups by result",
			},
			[]string{"result"},
		),
		RankRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rank_requests_total",
				Help:      "Similarity rank requests by outcome",
			},
			[]string{"outcome"},
		),
		RankCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rank_candidates",
				Help:      "Number of candidates scanned per rank request",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		Merges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topic_merges_total",
				Help:      "Topic merges by resolution and final state",
			},
			[]string{"resolution", "state"},
		),
		VectorsRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vectors_removed_total",
				Help:      "Standalone vectors removed by reason",
			},
			[]string{"reason"},
		),
		StaleResponses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_responses_total",
				Help:      "Search responses discarded because a newer request superseded them",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.EmbeddingCalls,
		c.EmbeddingDuration,
		c.EmbeddingCache,
		c.RankRequests,
		c.RankCandidates,
		c.Merges,
		c.VectorsRemoved,
		c.StaleResponses,
	)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTP(method, route, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) ObserveEmbedding(provider, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.EmbeddingCalls.WithLabelValues(provider, outcome).Inc()
	c.EmbeddingDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.EmbeddingCache.WithLabelValues("hit").Inc()
	} else {
		c.EmbeddingCache.WithLabelValues("miss").Inc()
	}
}

func (c *Collector) ObserveRank(outcome string, candidates int) {
	if c == nil {
		return
	}
	c.RankRequests.WithLabelValues(outcome).Inc()
	c.RankCandidates.Observe(float64(candidates))
}

func (c *Collector) ObserveMerge(resolution, state string) {
	if c == nil {
		return
	}
	c.Merges.WithLabelValues(resolution, state).Inc()
}

func (c *Collector) ObserveVectorRemoved(reason string) {
	if c == nil {
		return
	}
	c.VectorsRemoved.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveStaleResponse() {
	if c == nil {
		return
	}
	c.StaleResponses.Inc()
}
