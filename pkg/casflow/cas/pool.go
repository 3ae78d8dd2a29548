package cas

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/randalmurphal/casflow/pkg/casflow"
)

// Pool errors.
var (
	// ErrPoolExhausted indicates no CAS was free and the pool does not block.
	ErrPoolExhausted = errors.New("cas pool exhausted")

	// ErrDoubleRelease indicates a CAS was released while already free.
	ErrDoubleRelease = errors.New("cas released twice")

	// ErrForeignCAS indicates a CAS that was not acquired from this pool.
	ErrForeignCAS = errors.New("cas does not belong to this pool")
)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithNonBlocking makes Acquire fail with ErrPoolExhausted instead of
// waiting for a release.
func WithNonBlocking() PoolOption {
	return func(p *Pool) {
		p.nonBlocking = true
	}
}

// WithAcquireTimeout bounds how long Acquire waits for a free CAS.
// Zero (the default) waits until the context is done.
func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.timeout = d
	}
}

// WithIDPrefix sets the prefix of generated CAS ids. Default: "cas".
func WithIDPrefix(prefix string) PoolOption {
	return func(p *Pool) {
		p.prefix = prefix
	}
}

// Pool is a bounded set of Documents.
//
// At most capacity documents are outstanding at once. Released documents
// are reset and reused under a fresh id, so no two acquisitions share an
// id. Pool implements casflow.Pool.
type Pool struct {
	capacity    int
	nonBlocking bool
	timeout     time.Duration
	prefix      string

	// free holds one token per CAS that may be handed out.
	free chan struct{}

	mu          sync.Mutex
	idle        []*Document
	outstanding map[*Document]struct{}
	acquired    int
}

// Compile-time interface check.
var _ casflow.Pool = (*Pool)(nil)

// NewPool creates a pool of capacity documents.
// Capacity less than one is treated as one.
func NewPool(capacity int, opts ...PoolOption) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{
		capacity:    capacity,
		prefix:      "cas",
		free:        make(chan struct{}, capacity),
		outstanding: make(map[*Document]struct{}, capacity),
	}
	for _, opt := range opts {
		opt(p)
	}
	for range capacity {
		p.free <- struct{}{}
	}
	return p
}

// Acquire implements casflow.Pool. It returns an empty *Document.
func (p *Pool) Acquire(ctx context.Context) (casflow.CAS, error) {
	return p.AcquireDocument(ctx)
}

// AcquireDocument is Acquire with a concrete result type.
func (p *Pool) AcquireDocument(ctx context.Context) (*Document, error) {
	if err := p.take(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.acquired++
	id := fmt.Sprintf("%s-%d", p.prefix, p.acquired)

	var d *Document
	if n := len(p.idle); n > 0 {
		d = p.idle[n-1]
		p.idle = p.idle[:n-1]
		d.renew(id)
	} else {
		d = &Document{
			id:       id,
			metadata: make(map[string]string),
			pool:     p,
		}
	}
	p.outstanding[d] = struct{}{}
	return d, nil
}

// take claims a free token.
func (p *Pool) take(ctx context.Context) error {
	if p.nonBlocking {
		select {
		case <-p.free:
			return nil
		default:
			return fmt.Errorf("%w: capacity %d", ErrPoolExhausted, p.capacity)
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	select {
	case <-p.free:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire cas: %w", ctx.Err())
	}
}

// Release implements casflow.Pool.
func (p *Pool) Release(c casflow.CAS) error {
	d, ok := c.(*Document)
	if !ok || d == nil {
		return fmt.Errorf("%w: %T", ErrForeignCAS, c)
	}
	if d.pool != p {
		return fmt.Errorf("%w: %s", ErrForeignCAS, d.ID())
	}

	p.mu.Lock()
	if _, ok := p.outstanding[d]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDoubleRelease, d.ID())
	}
	delete(p.outstanding, d)
	d.reset()
	p.idle = append(p.idle, d)
	p.mu.Unlock()

	p.free <- struct{}{}
	return nil
}

// Outstanding returns the number of acquired, unreleased documents.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding)
}

// Capacity returns the maximum number of outstanding documents.
func (p *Pool) Capacity() int {
	return p.capacity
}
