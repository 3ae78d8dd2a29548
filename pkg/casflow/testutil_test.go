package casflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Test doubles used across tests

// testCAS is a minimal CAS carrying the components that touched it.
type testCAS struct {
	id    string
	trail []string
}

func (c *testCAS) ID() string { return c.id }

func newCAS(id string) *testCAS { return &testCAS{id: id} }

var errForeignCAS = errors.New("cas not outstanding")

// testPool hands out testCASes and tracks which are still outstanding.
type testPool struct {
	mu          sync.Mutex
	next        int
	capacity    int
	outstanding map[string]bool
	released    []string
	badReleases int
}

func newTestPool() *testPool {
	return &testPool{outstanding: make(map[string]bool)}
}

func (p *testPool) Acquire(ctx context.Context) (CAS, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.capacity > 0 && len(p.outstanding) >= p.capacity {
		return nil, errors.New("pool exhausted")
	}
	p.next++
	c := &testCAS{id: fmt.Sprintf("cas-%d", p.next)}
	p.outstanding[c.id] = true
	return c, nil
}

func (p *testPool) Release(c CAS) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.outstanding[c.ID()] {
		p.badReleases++
		return fmt.Errorf("%w: %s", errForeignCAS, c.ID())
	}
	delete(p.outstanding, c.ID())
	p.released = append(p.released, c.ID())
	return nil
}

func (p *testPool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding)
}

func (p *testPool) BadReleases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.badReleases
}

// tracker records component calls as "key:casID" in call order.
type tracker struct {
	mu    sync.Mutex
	calls []string
}

func (t *tracker) add(key, casID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, key+":"+casID)
}

func (t *tracker) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// track returns a component that records its calls in tr.
func track(tr *tracker) Component {
	return ComponentFunc(func(ctx Context, c CAS) error {
		tr.add(ctx.ComponentKey(), c.ID())
		if tc, ok := c.(*testCAS); ok {
			tc.trail = append(tc.trail, ctx.ComponentKey())
		}
		return nil
	})
}

// failing returns a component that always returns err.
func failing(err error) Component {
	return ComponentFunc(func(Context, CAS) error { return err })
}

// failingFor returns a component that fails only for the CAS with id.
func failingFor(tr *tracker, id string, err error) Component {
	return ComponentFunc(func(ctx Context, c CAS) error {
		tr.add(ctx.ComponentKey(), c.ID())
		if c.ID() == id {
			return err
		}
		return nil
	})
}

// panicking returns a component that panics with value.
func panicking(value any) Component {
	return ComponentFunc(func(Context, CAS) error { panic(value) })
}

// splitter is a test multiplier that outputs count(cas) new CASes per input,
// drawing them from the context's pool. Safe for concurrent lineages.
type splitter struct {
	tr      *tracker
	count   func(CAS) int
	mu      sync.Mutex
	pending map[string]int

	failHasNext error
	failNextAt  int // fail the n-th Next call for a CAS (1-based); 0 never
	nextCalls   map[string]int
	discarded   []string
}

func newSplitter(tr *tracker, n int) *splitter {
	return &splitter{
		tr:        tr,
		count:     func(CAS) int { return n },
		pending:   make(map[string]int),
		nextCalls: make(map[string]int),
	}
}

func (s *splitter) Process(ctx Context, c CAS) error {
	if s.tr != nil {
		s.tr.add(ctx.ComponentKey(), c.ID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[c.ID()] = s.count(c)
	return nil
}

func (s *splitter) HasNext(ctx Context) (bool, error) {
	if s.failHasNext != nil {
		return false, s.failHasNext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[ctx.CASID()] > 0, nil
}

func (s *splitter) Next(ctx Context) (CAS, error) {
	s.mu.Lock()
	s.nextCalls[ctx.CASID()]++
	calls := s.nextCalls[ctx.CASID()]
	if s.pending[ctx.CASID()] == 0 {
		s.mu.Unlock()
		return nil, errors.New("no pending cas")
	}
	s.pending[ctx.CASID()]--
	if s.pending[ctx.CASID()] == 0 {
		delete(s.pending, ctx.CASID())
	}
	s.mu.Unlock()

	if s.failNextAt > 0 && calls == s.failNextAt {
		return nil, errors.New("next failed")
	}
	return ctx.EmptyCAS()
}

func (s *splitter) Discard(ctx Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, ctx.CASID())
	s.discarded = append(s.discarded, ctx.CASID())
}

func (s *splitter) Discarded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.discarded...)
}

// endless is a multiplier that never runs dry.
type endless struct{}

func (endless) Process(Context, CAS) error { return nil }

func (endless) HasNext(Context) (bool, error) { return true, nil }

func (endless) Next(ctx Context) (CAS, error) { return ctx.EmptyCAS() }

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}

// drainFlow calls Next until the flow terminates or limit is hit and
// returns the rendered steps.
func drainFlow(f Flow, limit int) []string {
	var out []string
	for i := 0; i < limit; i++ {
		step, err := f.Next()
		if err != nil {
			out = append(out, "error:"+err.Error())
			return out
		}
		out = append(out, step.String())
		if step.IsTerminal() {
			return out
		}
	}
	return out
}

// multipliers declares which keys are CAS multipliers.
func multipliers(keys ...ComponentKey) Descriptors {
	d := make(Descriptors, len(keys))
	for _, k := range keys {
		d[k] = Descriptor{Key: k, OutputsNewCASes: true}
	}
	return d
}
