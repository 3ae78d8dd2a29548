package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a test tracer provider with an in-memory span recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	// Save the original provider
	originalProvider := otel.GetTracerProvider()

	// Set test provider
	otel.SetTracerProvider(tp)

	// Update the package-level tracer
	tracer = otel.Tracer("casflow")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

// attrValue returns the string form of a span attribute.
func attrValue(s tracetest.SpanStub, key string) string {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestStartProcessSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	ctx := context.Background()
	newCtx, span := sm.StartProcessSpan(ctx, "pipeline", "run-123", "doc-1")
	require.NotNil(t, span)
	assert.NotEqual(t, ctx, newCtx)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	s := spans[0]
	assert.Equal(t, "casflow.process", s.Name)
	assert.Equal(t, "pipeline", attrValue(s, "aggregate.name"))
	assert.Equal(t, "run-123", attrValue(s, "run.id"))
	assert.Equal(t, "doc-1", attrValue(s, "cas.id"))
}

func TestStartComponentSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("creates span with component suffix", func(t *testing.T) {
		_, span := sm.StartComponentSpan(context.Background(), "tokenizer", "doc-1")
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "casflow.component.tokenizer", spans[0].Name)
		assert.Equal(t, "tokenizer", attrValue(spans[0], "component.key"))
		assert.Equal(t, "doc-1", attrValue(spans[0], "cas.id"))
	})

	t.Run("child spans have correct parent", func(t *testing.T) {
		exporter.Reset()

		ctx, processSpan := sm.StartProcessSpan(context.Background(), "pipeline", "run-1", "doc-1")
		_, componentSpan := sm.StartComponentSpan(ctx, "splitter", "doc-1")
		componentSpan.End()
		processSpan.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)

		var child, parent *tracetest.SpanStub
		for i := range spans {
			switch spans[i].Name {
			case "casflow.component.splitter":
				child = &spans[i]
			case "casflow.process":
				parent = &spans[i]
			}
		}
		require.NotNil(t, child)
		require.NotNil(t, parent)
		assert.Equal(t, parent.SpanContext.SpanID(), child.Parent.SpanID())
		assert.Equal(t, parent.SpanContext.TraceID(), child.SpanContext.TraceID())
	})
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("sets ok status on success", func(t *testing.T) {
		exporter.Reset()
		_, span := sm.StartComponentSpan(context.Background(), "ok", "doc-1")
		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("records error", func(t *testing.T) {
		exporter.Reset()
		_, span := sm.StartComponentSpan(context.Background(), "bad", "doc-1")
		sm.EndSpanWithError(span, errors.New("component failed"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "component failed", spans[0].Status.Description)
		require.NotEmpty(t, spans[0].Events)
		assert.Equal(t, "exception", spans[0].Events[0].Name)
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() { sm.EndSpanWithError(nil, errors.New("x")) })
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	ctx, span := sm.StartProcessSpan(context.Background(), "pipeline", "run-1", "doc-1")
	sm.AddSpanEvent(ctx, "cas.spawned", attribute.String("cas.id", "seg-1"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "cas.spawned", spans[0].Events[0].Name)

	t.Run("no span in context does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() { sm.AddSpanEvent(context.Background(), "orphan") })
	})
}
