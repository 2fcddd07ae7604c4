// Package metrics holds the Prometheus collectors for the quote engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quoteengine"

// Metrics groups the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	Results       *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	BatchSize     prometheus.Histogram
	BatchDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Quote results returned, by status and source.",
		}, []string{"status", "source"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Terminal per-symbol fetch failures, by reason.",
		}, []string{"reason"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream provider call latency.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"venue", "outcome"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Symbols requested per batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of FetchBatch calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Results, m.Failures, m.FetchDuration, m.BatchSize, m.BatchDuration)
	}
	return m
}

func (m *Metrics) ObserveResult(status, source string) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(status, source).Inc()
}

func (m *Metrics) ObserveFailure(reason string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveFetch(venue, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(venue, outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveBatch(size int, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(d.Seconds())
}
