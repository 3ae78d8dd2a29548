package casflow

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContext(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		ctx := NewContext(context.Background())

		assert.NotEmpty(t, ctx.RunID())
		assert.NotNil(t, ctx.Logger())
		assert.Empty(t, ctx.ComponentKey())
		assert.Empty(t, ctx.CASID())
	})

	t.Run("run ids are unique", func(t *testing.T) {
		assert.NotEqual(t, NewContext(context.Background()).RunID(), NewContext(context.Background()).RunID())
	})

	t.Run("options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		ctx := NewContext(context.Background(),
			WithLogger(logger),
			WithContextRunID("run-123"))

		assert.Equal(t, "run-123", ctx.RunID())
		assert.Same(t, logger, ctx.Logger())
	})

	t.Run("nil logger is ignored", func(t *testing.T) {
		ctx := NewContext(context.Background(), WithLogger(nil))
		assert.NotNil(t, ctx.Logger())
	})

	t.Run("cancellation propagates", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		ctx := NewContext(parent)
		cancel()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})
}

func TestContext_EmptyCAS(t *testing.T) {
	t.Run("without pool", func(t *testing.T) {
		_, err := testCtx().EmptyCAS()
		assert.ErrorIs(t, err, ErrNoPool)
	})

	t.Run("with pool", func(t *testing.T) {
		pool := newTestPool()
		ctx := NewContext(context.Background(), WithContextPool(pool))

		c, err := ctx.EmptyCAS()
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID())
		assert.Equal(t, 1, pool.Outstanding())
	})
}

func TestContext_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	base := forRun(NewContext(context.Background(), WithLogger(logger)), "run-9", nil)
	cctx := base.withComponent("tokenizer", "doc-1")

	assert.Equal(t, "run-9", cctx.RunID())
	assert.Equal(t, "tokenizer", cctx.ComponentKey())
	assert.Equal(t, "doc-1", cctx.CASID())

	cctx.Logger().Info("hello")
	out := buf.String()
	assert.Contains(t, out, "run_id=run-9")
	assert.Contains(t, out, "cas_id=doc-1")
	assert.Contains(t, out, "component=tokenizer")
}

func TestForRun(t *testing.T) {
	contextPool := newTestPool()
	aggPool := newTestPool()
	ctx := NewContext(context.Background(), WithContextPool(contextPool))

	t.Run("aggregate pool wins", func(t *testing.T) {
		ec := forRun(ctx, "run-1", aggPool)
		_, err := ec.EmptyCAS()
		require.NoError(t, err)
		assert.Equal(t, 1, aggPool.Outstanding())
		assert.Equal(t, "run-1", ec.RunID())
	})

	t.Run("context pool is kept without aggregate pool", func(t *testing.T) {
		ec := forRun(ctx, "run-2", nil)
		_, err := ec.EmptyCAS()
		require.NoError(t, err)
		assert.Equal(t, 1, contextPool.Outstanding())
	})

	t.Run("foreign Context implementations are wrapped", func(t *testing.T) {
		ec := forRun(foreignContext{Context: context.Background()}, "run-3", nil)
		assert.Equal(t, "run-3", ec.RunID())
		assert.NotNil(t, ec.Logger())
		_, err := ec.EmptyCAS()
		assert.ErrorIs(t, err, ErrNoPool)
	})
}

// foreignContext is a Context not built by NewContext.
type foreignContext struct {
	context.Context
}

func (foreignContext) Logger() *slog.Logger { return nil }
func (foreignContext) EmptyCAS() (CAS, error) { return nil, ErrNoPool }
func (foreignContext) RunID() string { return "foreign" }
func (foreignContext) ComponentKey() string { return "" }
func (foreignContext) CASID() string { return "" }
