package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records casflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordComponentCall records a component call with its duration and error status.
	RecordComponentCall(ctx context.Context, component string, duration time.Duration, err error)

	// RecordCASSpawned records a new CAS output by a multiplier.
	RecordCASSpawned(ctx context.Context, producer string)

	// RecordCASTerminated records a CAS leaving the aggregate with the given outcome.
	RecordCASTerminated(ctx context.Context, outcome string)

	// RecordAggregateRun records the completion of a root CAS lineage.
	RecordAggregateRun(ctx context.Context, aggregate string, success bool, duration time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	componentCalls   metric.Int64Counter
	componentLatency metric.Float64Histogram
	componentErrors  metric.Int64Counter
	casSpawned       metric.Int64Counter
	casTerminated    metric.Int64Counter
	aggregateRuns    metric.Int64Counter
	aggregateLatency metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("casflow")

	componentCalls, err := meter.Int64Counter("casflow.component.invocations",
		metric.WithDescription("Number of component calls"),
	)
	if err != nil {
		return nil, err
	}

	componentLatency, err := meter.Float64Histogram("casflow.component.latency_ms",
		metric.WithDescription("Component call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	componentErrors, err := meter.Int64Counter("casflow.component.errors",
		metric.WithDescription("Number of failed component calls"),
	)
	if err != nil {
		return nil, err
	}

	casSpawned, err := meter.Int64Counter("casflow.cas.spawned",
		metric.WithDescription("Number of CASes output by multipliers"),
	)
	if err != nil {
		return nil, err
	}

	casTerminated, err := meter.Int64Counter("casflow.cas.terminated",
		metric.WithDescription("Number of CASes leaving an aggregate, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	aggregateRuns, err := meter.Int64Counter("casflow.aggregate.runs",
		metric.WithDescription("Number of root CASes processed"),
	)
	if err != nil {
		return nil, err
	}

	aggregateLatency, err := meter.Float64Histogram("casflow.aggregate.latency_ms",
		metric.WithDescription("Root CAS lineage latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		componentCalls:   componentCalls,
		componentLatency: componentLatency,
		componentErrors:  componentErrors,
		casSpawned:       casSpawned,
		casTerminated:    casTerminated,
		aggregateRuns:    aggregateRuns,
		aggregateLatency: aggregateLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordComponentCall records a component call.
func (m *otelMetrics) RecordComponentCall(ctx context.Context, component string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("component", component))

	m.componentCalls.Add(ctx, 1, attrs)
	m.componentLatency.Record(ctx, float64(duration.Milliseconds()), attrs)

	if err != nil {
		m.componentErrors.Add(ctx, 1, attrs)
	}
}

// RecordCASSpawned records a spawned CAS.
func (m *otelMetrics) RecordCASSpawned(ctx context.Context, producer string) {
	m.casSpawned.Add(ctx, 1, metric.WithAttributes(attribute.String("component", producer)))
}

// RecordCASTerminated records a CAS outcome.
func (m *otelMetrics) RecordCASTerminated(ctx context.Context, outcome string) {
	m.casTerminated.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAggregateRun records a root CAS lineage.
func (m *otelMetrics) RecordAggregateRun(ctx context.Context, aggregate string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("aggregate", aggregate),
		attribute.Bool("success", success),
	)
	m.aggregateRuns.Add(ctx, 1, attrs)
	m.aggregateLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}
