// Package metrics provides a Prometheus-backed collector for limiter events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourusername/floodgate/pkg/floodgate"
)

// Metric and label names.
const (
	metricDecisionsTotal      = "floodgate_decisions_total"
	metricBuckets             = "floodgate_buckets"
	metricSweepEvictionsTotal = "floodgate_sweep_evictions_total"

	labelOutcome    = "outcome"
	outcomeAdmitted = "admitted"
	outcomeRejected = "rejected"
)

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics implements floodgate.MetricsCollector on top of
// Prometheus collectors.
type PrometheusMetrics struct {
	DecisionsTotal      *prometheus.CounterVec
	Buckets             prometheus.Gauge
	SweepEvictionsTotal prometheus.Counter
}

var _ floodgate.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        metricDecisionsTotal,
			Help:        "Total number of admission decisions by outcome.",
			ConstLabels: opts.ConstLabels,
		},
		[]string{labelOutcome},
	)
	buckets := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        metricBuckets,
			Help:        "Number of token buckets currently tracked.",
			ConstLabels: opts.ConstLabels,
		},
	)
	sweepEvictionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        metricSweepEvictionsTotal,
			Help:        "Total number of idle buckets removed by the sweep.",
			ConstLabels: opts.ConstLabels,
		},
	)
	return &PrometheusMetrics{
		DecisionsTotal:      decisionsTotal,
		Buckets:             buckets,
		SweepEvictionsTotal: sweepEvictionsTotal,
	}
}

// MustRegister registers all metrics in the default Prometheus registry and
// panics if any of them cannot be registered.
func (m *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		m.DecisionsTotal,
		m.Buckets,
		m.SweepEvictionsTotal,
	)
}

// Unregister removes all metrics from the default Prometheus registry.
func (m *PrometheusMetrics) Unregister() {
	prometheus.Unregister(m.DecisionsTotal)
	prometheus.Unregister(m.Buckets)
	prometheus.Unregister(m.SweepEvictionsTotal)
}

// IncAdmitted implements floodgate.MetricsCollector.
func (m *PrometheusMetrics) IncAdmitted() {
	m.DecisionsTotal.With(prometheus.Labels{labelOutcome: outcomeAdmitted}).Inc()
}

// IncRejected implements floodgate.MetricsCollector.
func (m *PrometheusMetrics) IncRejected() {
	m.DecisionsTotal.With(prometheus.Labels{labelOutcome: outcomeRejected}).Inc()
}

// SetBuckets implements floodgate.MetricsCollector.
func (m *PrometheusMetrics) SetBuckets(n int) {
	m.Buckets.Set(float64(n))
}

// AddSweepEvictions implements floodgate.MetricsCollector.
func (m *PrometheusMetrics) AddSweepEvictions(n int) {
	m.SweepEvictionsTotal.Add(float64(n))
}
