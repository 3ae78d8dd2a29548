package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordComponentCall(ctx, "tok", 2*time.Millisecond, nil)
	m.RecordComponentCall(ctx, "tok", time.Millisecond, errors.New("boom"))
	m.RecordCASSpawned(ctx, "split")
	m.RecordCASSpawned(ctx, "split")
	m.RecordCASTerminated(ctx, "emitted")
	m.RecordAggregateRun(ctx, "agg", true, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.componentCalls.WithLabelValues("tok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.componentErrors.WithLabelValues("tok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.casSpawned.WithLabelValues("split")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.casTerminated.WithLabelValues("emitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.aggregateRuns.WithLabelValues("agg", "true")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.aggregateRuns.WithLabelValues("agg", "false")))

	// Histograms report one series per label set.
	assert.Equal(t, 1, testutil.CollectAndCount(m.componentLatency))
	assert.Equal(t, 2, testutil.CollectAndCount(m.aggregateLatency))
}

func TestPrometheusMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)

	_, err = NewPrometheusMetrics(reg)
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)
}
