package casflow

import (
	"log/slog"

	"github.com/randalmurphal/casflow/pkg/casflow/journal"
	"github.com/randalmurphal/casflow/pkg/casflow/observability"
)

// defaultMaxSteps bounds the component invocations of one root CAS lineage.
const defaultMaxSteps = 10000

// runConfig holds configuration for one Process call.
type runConfig struct {
	maxSteps int
	runID    string
	failFast bool
	emit     func(Output) error

	journal             journal.Store
	journalFailureFatal bool

	logger         *slog.Logger
	metricsEnabled bool
	tracingEnabled bool
	recorder       observability.MetricsRecorder
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
}

// defaultRunConfig returns the default processing configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxSteps: defaultMaxSteps,
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
}

// finalize wires the recorders selected by the enable flags.
func (c *runConfig) finalize() {
	switch {
	case c.recorder != nil:
		c.metrics = c.recorder
	case c.metricsEnabled:
		c.metrics = observability.NewMetricsRecorder()
	}
	if c.tracingEnabled {
		c.spans = observability.NewSpanManager()
	}
}

// RunOption configures a Process call.
type RunOption func(*runConfig)

// WithMaxSteps sets the maximum number of component calls for one root CAS
// and everything it spawns.
// Default: 10000
//
// This stops a multiplier that never runs dry from hanging forever.
// If the limit is exceeded, Process returns a *MaxStepsError.
func WithMaxSteps(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithRunID sets the run identifier recorded in logs, spans, and the journal.
// Defaults to the Context's RunID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithEmitter streams each output CAS to fn as soon as it terminates
// instead of collecting it in Result.Outputs. An error from fn is treated
// like a component failure of that CAS; the CAS is then owned by fn.
func WithEmitter(fn func(Output) error) RunOption {
	return func(c *runConfig) {
		c.emit = fn
	}
}

// WithFailFast abandons every queued CAS after the first failure instead
// of letting sibling lineages run to completion.
func WithFailFast() RunOption {
	return func(c *runConfig) {
		c.failFast = true
	}
}

// WithJournal records the terminal outcome of every CAS in store.
func WithJournal(store journal.Store) RunOption {
	return func(c *runConfig) {
		c.journal = store
	}
}

// WithJournalFailureFatal makes journal write failures abort processing.
// By default they are logged and ignored.
func WithJournalFailureFatal() RunOption {
	return func(c *runConfig) {
		c.journalFailureFatal = true
	}
}

// WithObservabilityLogger sets the logger for run and component events.
// Nil (the default) disables event logging.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter provider.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		c.metricsEnabled = enabled
	}
}

// WithMetricsRecorder records metrics with m, for example an
// observability.PrometheusMetrics. It takes precedence over WithMetrics.
func WithMetricsRecorder(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		c.recorder = m
	}
}

// WithTracing enables OpenTelemetry spans using the global tracer provider.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
	}
}

// aggregateConfig holds NewAggregate options.
type aggregateConfig struct {
	pool           Pool
	factory        ControllerFactory
	controllerOpts []ControllerOption
	descriptors    Descriptors
	runOpts        []RunOption
}

// AggregateOption configures an Aggregate.
type AggregateOption func(*aggregateConfig)

// WithPool sets the pool that multipliers draw new CASes from and that
// dropped CASes are released to.
func WithPool(pool Pool) AggregateOption {
	return func(c *aggregateConfig) {
		c.pool = pool
	}
}

// WithControllerFactory replaces the default FixedFlowController.
func WithControllerFactory(f ControllerFactory) AggregateOption {
	return func(c *aggregateConfig) {
		c.factory = f
	}
}

// WithControllerOptions passes options to the default FixedFlowController.
// Ignored when WithControllerFactory is used.
func WithControllerOptions(opts ...ControllerOption) AggregateOption {
	return func(c *aggregateConfig) {
		c.controllerOpts = append(c.controllerOpts, opts...)
	}
}

// WithDescriptors declares component metadata. NewAggregate fails with
// ErrMultiplierMismatch if a declared descriptor disagrees with its delegate.
func WithDescriptors(d Descriptors) AggregateOption {
	return func(c *aggregateConfig) {
		c.descriptors = d
	}
}

// WithDefaultRunOptions sets options applied before the per-call options
// of every Process call.
func WithDefaultRunOptions(opts ...RunOption) AggregateOption {
	return func(c *aggregateConfig) {
		c.runOpts = append(c.runOpts, opts...)
	}
}
