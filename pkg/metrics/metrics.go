// Package metrics exposes scoring counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hed1ad/fraudshield/pkg/pipeline"
)

const namespace = "fraudshield"

// Batch outcomes.
const (
	OutcomeScored      = "scored"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
	OutcomeCached      = "cached"
	OutcomeUnsupported = "unsupported"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	batches      *prometheus.CounterVec
	transactions prometheus.Counter
	frauds       prometheus.Counter
	duration     *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
}

// New creates and registers the collectors, including process and Go
// runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Scoring requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_scored_total",
			Help:      "Transactions scored.",
		}),
		frauds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_flagged_total",
			Help:      "Transactions predicted as fraud.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time spent scoring a batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}, []string{"endpoint"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.batches,
		m.transactions,
		m.frauds,
		m.duration,
		m.cacheLookups,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Scored records a successfully scored batch.
func (m *Metrics) Scored(endpoint string, s pipeline.Summary, took time.Duration) {
	m.batches.WithLabelValues(endpoint, OutcomeScored).Inc()
	m.transactions.Add(float64(s.TotalTransactions))
	m.frauds.Add(float64(s.PredictedFrauds))
	m.duration.WithLabelValues(endpoint).Observe(took.Seconds())
}

// Outcome records a batch that did not reach the scoring path.
func (m *Metrics) Outcome(endpoint, outcome string) {
	m.batches.WithLabelValues(endpoint, outcome).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
