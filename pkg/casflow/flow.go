package casflow

import "fmt"

// Flow decides, one step at a time, what happens to a single CAS.
//
// A Flow is owned by the lineage processing its CAS and is not safe for
// concurrent use. Every Flow reaches a terminal step after a finite
// number of calls to Next; once it has, Next keeps returning that step.
type Flow interface {
	// Next returns the next step for the CAS.
	Next() (Step, error)

	// NewCASProduced is called after the multiplier identified by producer
	// output a new CAS while processing this flow's CAS. It returns the
	// flow for the new CAS, which resumes right after producer.
	NewCASProduced(producer ComponentKey) (Flow, error)

	// InternallyCreated reports whether the CAS was produced by a
	// multiplier inside the aggregate rather than handed in by the caller.
	InternallyCreated() bool
}

// phase is the coarse state of a fixed flow.
type phase int

const (
	// phaseAtPosition: the next call dispatches the entry the cursor resolves to.
	phaseAtPosition phase = iota

	// phaseAwaitingResolution: the last dispatch went to a multiplier and the
	// action-after-multiplier policy has not been applied yet.
	phaseAwaitingResolution

	// phaseFinished: terminal.
	phaseFinished
)

func (p phase) String() string {
	switch p {
	case phaseAtPosition:
		return "at_position"
	case phaseAwaitingResolution:
		return "awaiting_multiplier_resolution"
	case phaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// flowState is the complete state of a fixed flow.
type flowState struct {
	phase  phase
	cursor cursor
	// producedNewCAS is set when the multiplier just dispatched to output
	// at least one new CAS. Cleared when the flow moves on.
	producedNewCAS bool
	// dropped records how the flow terminated.
	dropped bool
}

// advance is the transition function of a fixed flow. It is pure: the
// result depends only on the state, the current snapshot, and the policy.
func advance(st flowState, cur *sequence, policy ActionAfterMultiplier) (flowState, Step) {
	switch st.phase {
	case phaseFinished:
		return st, TerminateStep(st.dropped)

	case phaseAwaitingResolution:
		switch policy {
		case Stop:
			return finish(st, false)
		case Drop:
			return finish(st, true)
		case DropIfNewCasProduced:
			if st.producedNewCAS {
				return finish(st, true)
			}
		}
		st.producedNewCAS = false
		st.phase = phaseAtPosition
	}

	i := st.cursor.resolve(cur)
	if i >= cur.len() {
		return finish(st, false)
	}
	e := cur.at(i)
	st.cursor = after(cur, i)
	if e.multiplier {
		st.phase = phaseAwaitingResolution
	}
	return st, RunStep(e.key)
}

func finish(st flowState, drop bool) (flowState, Step) {
	st.phase = phaseFinished
	st.producedNewCAS = false
	st.dropped = drop
	return st, TerminateStep(drop)
}

// produced applies the "multiplier output a new CAS" event to a parent
// state and returns the updated parent plus the initial child state.
func produced(st flowState, cur *sequence, producer ComponentKey) (flowState, flowState, error) {
	if st.phase != phaseAwaitingResolution {
		return st, flowState{}, &InvariantError{
			Key: producer,
			Err: fmt.Errorf("flow is %s, not awaiting multiplier resolution", st.phase),
		}
	}
	i, ok := cur.lookup(producer)
	if !ok {
		return st, flowState{}, &InvariantError{Key: producer, Err: ErrProducerNotInSequence}
	}
	st.producedNewCAS = true
	child := flowState{phase: phaseAtPosition, cursor: after(cur, i)}
	return st, child, nil
}

// FixedFlow walks the live sequence of a FixedFlowController.
type FixedFlow struct {
	controller *FixedFlowController
	state      flowState
	internal   bool
}

// Compile-time interface check.
var _ Flow = (*FixedFlow)(nil)

// Next implements Flow.
func (f *FixedFlow) Next() (Step, error) {
	var step Step
	f.state, step = advance(f.state, f.controller.snapshot(), f.controller.Policy())
	return step, nil
}

// NewCASProduced implements Flow.
//
// The producer is looked up from the start of the controller's current
// snapshot, so a child flow always starts from the live sequence even if
// components were added or removed after the producer was dispatched.
// The producer itself must still be present.
func (f *FixedFlow) NewCASProduced(producer ComponentKey) (Flow, error) {
	parent, child, err := produced(f.state, f.controller.snapshot(), producer)
	if err != nil {
		return nil, err
	}
	f.state = parent
	return &FixedFlow{controller: f.controller, state: child, internal: true}, nil
}

// InternallyCreated implements Flow.
func (f *FixedFlow) InternallyCreated() bool {
	return f.internal
}

// Finished reports whether the flow has terminated.
func (f *FixedFlow) Finished() bool {
	return f.state.phase == phaseFinished
}
