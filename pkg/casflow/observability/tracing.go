package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("casflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartProcessSpan starts a span for one root CAS and everything it spawns.
	StartProcessSpan(ctx context.Context, aggregate, runID, casID string) (context.Context, trace.Span)

	// StartComponentSpan starts a span for one component call.
	// It should be a child of the process span.
	StartComponentSpan(ctx context.Context, component, casID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartProcessSpan starts a span for a root CAS lineage.
func (m *otelSpanManager) StartProcessSpan(ctx context.Context, aggregate, runID, casID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "casflow.process",
		trace.WithAttributes(
			attribute.String("aggregate.name", aggregate),
			attribute.String("run.id", runID),
			attribute.String("cas.id", casID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartComponentSpan starts a span for a component call.
func (m *otelSpanManager) StartComponentSpan(ctx context.Context, component, casID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "casflow.component."+component,
		trace.WithAttributes(
			attribute.String("component.key", component),
			attribute.String("cas.id", casID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
