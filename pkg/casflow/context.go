package casflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context provides execution context to components.
// It extends context.Context with casflow-specific services and metadata.
//
// Context is immutable after creation. The aggregate derives a context per
// component call with the component key, the CAS id, and an enriched logger.
type Context interface {
	context.Context

	// Services

	// Logger returns the configured logger, enriched with run, CAS and
	// component fields during a component call.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// EmptyCAS acquires a fresh CAS from the aggregate's pool.
	// Multipliers use it to create the CASes they output.
	// Returns ErrNoPool outside an aggregate or when no pool is configured.
	EmptyCAS() (CAS, error)

	// Metadata

	// RunID returns the identifier of the current Process call.
	// Auto-generated if not configured.
	RunID() string

	// ComponentKey returns the component being invoked.
	// Empty outside a component call.
	ComponentKey() string

	// CASID returns the id of the CAS being processed.
	// Empty outside a component call.
	CASID() string
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger *slog.Logger
	pool   Pool
	runID  string
	key    string
	casID  string
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// EmptyCAS acquires a CAS from the pool.
func (c *executionContext) EmptyCAS() (CAS, error) {
	if c.pool == nil {
		return nil, ErrNoPool
	}
	return c.pool.Acquire(c.Context)
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	return c.runID
}

// ComponentKey returns the current component key.
func (c *executionContext) ComponentKey() string {
	return c.key
}

// CASID returns the current CAS id.
func (c *executionContext) CASID() string {
	return c.casID
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger will be enriched with run_id, cas_id, and component during processing.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a UUID will be auto-generated.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// WithContextPool sets the pool EmptyCAS draws from. Aggregates override
// it with their own pool when one is configured.
func WithContextPool(pool Pool) ContextOption {
	return func(c *executionContext) {
		c.pool = pool
	}
}

// NewContext creates an execution context from a standard context.
//
// Example:
//
//	ctx := casflow.NewContext(context.Background(),
//	    casflow.WithLogger(myLogger),
//	    casflow.WithContextRunID("run-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// forRun returns a copy of ctx bound to a run id and pool.
// Contexts not created by NewContext are wrapped.
func forRun(ctx Context, runID string, pool Pool) *executionContext {
	ec := &executionContext{
		Context: ctx,
		logger:  ctx.Logger(),
		runID:   runID,
		pool:    pool,
	}
	if src, ok := ctx.(*executionContext); ok {
		ec.Context = src.Context
		if pool == nil {
			ec.pool = src.pool
		}
	}
	if ec.logger == nil {
		ec.logger = slog.Default()
	}
	return ec
}

// withComponent returns a derived context for one component call.
func (c *executionContext) withComponent(key, casID string) *executionContext {
	return &executionContext{
		Context: c.Context,
		logger:  c.logger.With("run_id", c.runID, "cas_id", casID, "component", key),
		pool:    c.pool,
		runID:   c.runID,
		key:     key,
		casID:   casID,
	}
}
