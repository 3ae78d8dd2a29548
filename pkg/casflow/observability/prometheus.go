package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements MetricsRecorder with Prometheus collectors.
// Use it when metrics are scraped from a /metrics endpoint rather than
// exported through an OTel meter provider.
type PrometheusMetrics struct {
	componentCalls   *prometheus.CounterVec
	componentLatency *prometheus.HistogramVec
	componentErrors  *prometheus.CounterVec
	casSpawned       *prometheus.CounterVec
	casTerminated    *prometheus.CounterVec
	aggregateRuns    *prometheus.CounterVec
	aggregateLatency *prometheus.HistogramVec
}

// Compile-time interface check.
var _ MetricsRecorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the casflow collectors and registers them
// with reg. Registering twice with the same registerer fails.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	latencyBuckets := prometheus.ExponentialBuckets(0.5, 2, 14)

	m := &PrometheusMetrics{
		componentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casflow_component_invocations_total",
			Help: "Number of component calls",
		}, []string{"component"}),
		componentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casflow_component_latency_ms",
			Help:    "Component call latency in milliseconds",
			Buckets: latencyBuckets,
		}, []string{"component"}),
		componentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casflow_component_errors_total",
			Help: "Number of failed component calls",
		}, []string{"component"}),
		casSpawned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casflow_cas_spawned_total",
			Help: "Number of CASes output by multipliers",
		}, []string{"component"}),
		casTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casflow_cas_terminated_total",
			Help: "Number of CASes leaving an aggregate, by outcome",
		}, []string{"outcome"}),
		aggregateRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "casflow_aggregate_runs_total",
			Help: "Number of root CASes processed",
		}, []string{"aggregate", "success"}),
		aggregateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casflow_aggregate_latency_ms",
			Help:    "Root CAS lineage latency in milliseconds",
			Buckets: latencyBuckets,
		}, []string{"aggregate", "success"}),
	}

	for _, c := range []prometheus.Collector{
		m.componentCalls,
		m.componentLatency,
		m.componentErrors,
		m.casSpawned,
		m.casTerminated,
		m.aggregateRuns,
		m.aggregateLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordComponentCall records a component call.
func (m *PrometheusMetrics) RecordComponentCall(_ context.Context, component string, duration time.Duration, err error) {
	m.componentCalls.WithLabelValues(component).Inc()
	m.componentLatency.WithLabelValues(component).Observe(float64(duration.Milliseconds()))
	if err != nil {
		m.componentErrors.WithLabelValues(component).Inc()
	}
}

// RecordCASSpawned records a spawned CAS.
func (m *PrometheusMetrics) RecordCASSpawned(_ context.Context, producer string) {
	m.casSpawned.WithLabelValues(producer).Inc()
}

// RecordCASTerminated records a CAS outcome.
func (m *PrometheusMetrics) RecordCASTerminated(_ context.Context, outcome string) {
	m.casTerminated.WithLabelValues(outcome).Inc()
}

// RecordAggregateRun records a root CAS lineage.
func (m *PrometheusMetrics) RecordAggregateRun(_ context.Context, aggregate string, success bool, duration time.Duration) {
	label := strconv.FormatBool(success)
	m.aggregateRuns.WithLabelValues(aggregate, label).Inc()
	m.aggregateLatency.WithLabelValues(aggregate, label).Observe(float64(duration.Milliseconds()))
}
