package casflow

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/casflow/pkg/casflow/journal"
	"github.com/randalmurphal/casflow/pkg/casflow/observability"
	"go.opentelemetry.io/otel/attribute"
)

// frame is one entry of the work list: either a CAS with its flow, or a
// pending drain of the new CASes a multiplier holds for a CAS.
type frame struct {
	cas      CAS
	flow     Flow
	parentID string
	last     ComponentKey
	drain    *drain
}

// drain marks a frame that asks a multiplier for its next new CAS.
// owner is the frame whose CAS the multiplier processed; it sits directly
// beneath the drain frame on the work list.
type drain struct {
	key   ComponentKey
	m     Multiplier
	owner *frame
}

// run is the state of one Process call.
type run struct {
	agg    *Aggregate
	cfg    *runConfig
	ctx    *executionContext
	stack  []*frame
	result *Result

	firstErr      error
	lastComponent ComponentKey
}

// fatalError marks errors that stop the whole run, not only one lineage.
type fatalError struct{ err error }

func (f fatalError) Error() string { return f.err.Error() }
func (f fatalError) Unwrap() error { return f.err }

// Process drives cas, and every CAS its multipliers produce, through the
// aggregate until each has terminated.
//
// The caller keeps ownership of cas: it is neither released nor listed in
// Result.Outputs. CASes produced inside the aggregate are either output
// (Result.Outputs or the emitter) or released to the pool, exactly once.
//
// A component error stops the lineage of the CAS it happened on; queued
// sibling CASes still run unless WithFailFast is set. The first error is
// returned together with the partial Result. Cancellation, the step limit,
// and invariant violations stop the whole run and release every queued
// internal CAS.
//
// Example:
//
//	res, err := agg.Process(casflow.NewContext(ctx), doc)
//	for _, out := range res.Outputs {
//	    // handle out.CAS, then release it to the pool
//	}
func (a *Aggregate) Process(ctx Context, cas CAS, opts ...RunOption) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if cas == nil {
		return nil, ErrNilCAS
	}

	cfg := defaultRunConfig()
	for _, opt := range a.runOpts {
		opt(&cfg)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.finalize()

	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	ec := forRun(ctx, runID, a.pool)
	spanCtx, span := cfg.spans.StartProcessSpan(ec.Context, a.name, runID, cas.ID())
	ec.Context = spanCtx

	r := &run{
		agg:    a,
		cfg:    &cfg,
		ctx:    ec,
		result: &Result{RunID: runID},
	}

	startTime := time.Now()
	observability.LogRunStart(cfg.logger, a.name, runID, cas.ID())

	err := r.drive(cas)

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())
	cfg.metrics.RecordAggregateRun(spanCtx, a.name, err == nil, duration)
	cfg.spans.EndSpanWithError(span, err)

	if err != nil {
		observability.LogRunError(cfg.logger, runID, err, durationMs, r.lastComponent)
	} else {
		observability.LogRunComplete(cfg.logger, runID, durationMs, r.result.Steps, len(r.result.Outputs), r.result.Dropped)
	}
	return r.result, err
}

// drive runs the work list until it is empty or a fatal error occurs.
func (r *run) drive(root CAS) error {
	r.push(&frame{cas: root, flow: r.agg.controller.ComputeFlow(root)})

	for len(r.stack) > 0 {
		f := r.pop()

		select {
		case <-r.ctx.Done():
			err := &CancellationError{CASID: f.cas.ID(), Cause: r.ctx.Err()}
			r.push(f)
			r.abandon(err)
			return r.record(err)
		default:
		}

		var err error
		if f.drain != nil {
			err = r.drainNext(f)
		} else {
			err = r.step(f)
		}
		if err == nil {
			continue
		}

		var fatal fatalError
		if errors.As(err, &fatal) {
			r.abandon(fatal.err)
			return r.record(fatal.err)
		}
		r.record(err)
		if r.cfg.failFast {
			r.abandon(err)
			return r.firstErr
		}
	}
	return r.firstErr
}

// record remembers the first error and returns it.
func (r *run) record(err error) error {
	if r.firstErr == nil {
		r.firstErr = err
	}
	return r.firstErr
}

func (r *run) push(f *frame) {
	r.stack = append(r.stack, f)
}

func (r *run) pop() *frame {
	f := r.stack[len(r.stack)-1]
	r.stack[len(r.stack)-1] = nil
	r.stack = r.stack[:len(r.stack)-1]
	return f
}

// remove takes f off the work list wherever it is.
func (r *run) remove(f *frame) bool {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i] == f {
			r.stack = append(r.stack[:i], r.stack[i+1:]...)
			return true
		}
	}
	return false
}

// step advances the flow of f by one step.
func (r *run) step(f *frame) error {
	step, err := f.flow.Next()
	if err != nil {
		return r.fail(f, fatalError{err: &InvariantError{Key: f.last, Err: err}})
	}

	if step.IsTerminal() {
		return r.terminate(f, step)
	}

	if err := r.countStep(f, step.Key); err != nil {
		return err
	}

	comp, ok := r.agg.delegates.get(step.Key)
	if !ok {
		return r.fail(f, fatalError{err: &InvariantError{Key: step.Key, Err: ErrComponentNotFound}})
	}

	f.last = step.Key
	r.lastComponent = step.Key

	if err := r.invoke(step.Key, f.cas, "process", func(c Context) error {
		return comp.Process(c, f.cas)
	}); err != nil {
		return r.fail(f, err)
	}

	r.push(f)
	if m, ok := comp.(Multiplier); ok {
		r.push(&frame{cas: f.cas, drain: &drain{key: step.Key, m: m, owner: f}})
	}
	return nil
}

// countStep enforces the step limit.
func (r *run) countStep(f *frame, key ComponentKey) error {
	if r.result.Steps >= r.cfg.maxSteps {
		return r.fail(f, fatalError{err: &MaxStepsError{
			Max:           r.cfg.maxSteps,
			CASID:         f.cas.ID(),
			LastComponent: key,
		}})
	}
	r.result.Steps++
	return nil
}

// drainNext asks a multiplier for one new CAS. If it has one, the drain
// frame goes back on the work list and the new CAS is pushed above it, so
// the new CAS lineage finishes before the multiplier is asked again.
// Without one, the owner's flow is next and resolves the policy.
func (r *run) drainNext(f *frame) (err error) {
	d := f.drain
	owner := d.owner
	defer func() {
		if err != nil {
			r.discard(d)
		}
	}()

	var has bool
	if err := r.invoke(d.key, owner.cas, "hasNext", func(c Context) error {
		var err error
		has, err = d.m.HasNext(c)
		return err
	}); err != nil {
		r.remove(owner)
		return r.fail(owner, err)
	}
	if !has {
		return nil
	}

	if err := r.countStep(owner, d.key); err != nil {
		r.remove(owner)
		return err
	}

	var child CAS
	if err := r.invoke(d.key, owner.cas, "next", func(c Context) error {
		var err error
		child, err = d.m.Next(c)
		return err
	}); err != nil {
		if child != nil {
			r.releaseQuietly(child)
		}
		r.remove(owner)
		return r.fail(owner, err)
	}
	if child == nil {
		r.remove(owner)
		return r.fail(owner, &ComponentError{Key: d.key, Op: "next", CASID: owner.cas.ID(), Err: ErrNilCAS})
	}

	childFlow, perr := owner.flow.NewCASProduced(d.key)
	if perr != nil {
		err = perr
		r.releaseQuietly(child)
		r.remove(owner)
		var inv *InvariantError
		if !errors.As(err, &inv) {
			err = &InvariantError{Key: d.key, Err: err}
		}
		return r.fail(owner, fatalError{err: err})
	}

	r.result.Spawned++
	r.cfg.metrics.RecordCASSpawned(r.ctx, d.key)
	r.cfg.spans.AddSpanEvent(r.ctx, "cas.spawned",
		attribute.String("cas.id", child.ID()),
		attribute.String("parent.cas.id", owner.cas.ID()),
		attribute.String("component.key", d.key),
	)
	observability.LogCASSpawned(r.cfg.logger, d.key, owner.cas.ID(), child.ID())

	r.push(f)
	r.push(&frame{cas: child, flow: childFlow, parentID: owner.cas.ID(), last: d.key})
	return nil
}

// invoke calls one component contract method with panic recovery,
// metrics, tracing, and logging.
func (r *run) invoke(key ComponentKey, cas CAS, op string, call func(Context) error) (err error) {
	spanCtx, span := r.cfg.spans.StartComponentSpan(r.ctx, key, cas.ID())
	cctx := r.ctx.withComponent(key, cas.ID())
	cctx.Context = spanCtx

	observability.LogComponentStart(r.cfg.logger, key, cas.ID())
	startTime := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{
				Key:   key,
				Op:    op,
				Value: p,
				Stack: string(debug.Stack()),
			}
		}
		duration := time.Since(startTime)
		r.cfg.metrics.RecordComponentCall(spanCtx, key, duration, err)
		r.cfg.spans.EndSpanWithError(span, err)
		if err != nil {
			observability.LogComponentError(r.cfg.logger, key, cas.ID(), err)
		} else {
			observability.LogComponentComplete(r.cfg.logger, key, cas.ID(), float64(duration.Milliseconds()))
		}
	}()

	if callErr := call(cctx); callErr != nil {
		return &ComponentError{Key: key, Op: op, CASID: cas.ID(), Err: callErr}
	}
	return nil
}

// terminate finishes a CAS whose flow returned a terminal step.
func (r *run) terminate(f *frame, step Step) error {
	if !f.flow.InternallyCreated() {
		r.result.RootTerminated = true
		return r.finish(f, journal.OutcomeCompleted, nil)
	}

	if step.Drop {
		if err := r.release(f.cas); err != nil {
			r.result.Failed++
			return r.finishFailed(f, err)
		}
		r.result.Dropped++
		return r.finish(f, journal.OutcomeDropped, nil)
	}

	out := Output{CAS: f.cas, Parent: f.parentID, LastComponent: f.last}
	if r.cfg.emit != nil {
		if err := r.cfg.emit(out); err != nil {
			r.result.Failed++
			return r.finishFailed(f, fmt.Errorf("emit cas %s: %w", f.cas.ID(), err))
		}
	} else {
		r.result.Outputs = append(r.result.Outputs, out)
	}
	return r.finish(f, journal.OutcomeEmitted, nil)
}

// fail finishes f after err and releases it if it was created internally.
func (r *run) fail(f *frame, err error) error {
	r.result.Failed++
	if f.flow.InternallyCreated() {
		r.releaseQuietly(f.cas)
	}
	return r.finishFailed(f, err)
}

// finishFailed records a failed outcome and returns err, or the journal
// error if journal failures are fatal.
func (r *run) finishFailed(f *frame, err error) error {
	if jerr := r.finish(f, journal.OutcomeFailed, err); jerr != nil {
		return jerr
	}
	return err
}

// abandon finishes every CAS still on the work list.
func (r *run) abandon(cause error) {
	for len(r.stack) > 0 {
		f := r.pop()
		if f.drain != nil {
			r.discard(f.drain)
			continue
		}
		r.result.Abandoned++
		if f.flow.InternallyCreated() {
			r.releaseQuietly(f.cas)
		}
		_ = r.finish(f, journal.OutcomeAbandoned, cause)
	}
}

// discard tells a multiplier it will not be asked for more new CASes for
// the owner of d.
func (r *run) discard(d *drain) {
	dc, ok := d.m.(Discarder)
	if !ok {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.ctx.Logger().Warn("multiplier discard panicked",
				"run_id", r.result.RunID,
				"component", d.key,
				"cas_id", d.owner.cas.ID(),
				"panic", fmt.Sprint(p),
			)
		}
	}()
	dc.Discard(r.ctx.withComponent(d.key, d.owner.cas.ID()))
}

// finish records the terminal outcome of f. It returns a fatal error only
// when the journal write failed and journal failures are fatal.
func (r *run) finish(f *frame, outcome journal.Outcome, cause error) error {
	r.cfg.metrics.RecordCASTerminated(r.ctx, string(outcome))
	observability.LogCASTerminated(r.cfg.logger, f.cas.ID(), string(outcome), f.last)

	if r.cfg.journal != nil {
		e := journal.Entry{
			RunID:         r.result.RunID,
			CASID:         f.cas.ID(),
			ParentCASID:   f.parentID,
			Outcome:       outcome,
			Internal:      f.flow.InternallyCreated(),
			LastComponent: f.last,
		}
		if cause != nil {
			e.Error = cause.Error()
		}
		if jerr := r.cfg.journal.Record(e); jerr != nil {
			observability.LogJournalError(r.cfg.logger, f.cas.ID(), jerr)
			if r.cfg.journalFailureFatal {
				return fatalError{err: fmt.Errorf("journal cas %s: %w", f.cas.ID(), jerr)}
			}
		}
	}
	return nil
}

// release returns an internally created CAS to the pool.
func (r *run) release(cas CAS) error {
	if r.agg.pool == nil {
		return nil
	}
	if err := r.agg.pool.Release(cas); err != nil {
		return fmt.Errorf("release cas %s: %w", cas.ID(), err)
	}
	return nil
}

// releaseQuietly releases cas on an error path, logging any failure.
func (r *run) releaseQuietly(cas CAS) {
	if err := r.release(cas); err != nil {
		r.ctx.Logger().Warn("cas release failed",
			"run_id", r.result.RunID,
			"cas_id", cas.ID(),
			"error", err.Error(),
		)
	}
}
