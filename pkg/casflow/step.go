package casflow

import "fmt"

// StepKind tags the variant of a Step.
type StepKind int

const (
	// StepRun asks the driver to invoke the component named by Step.Key.
	StepRun StepKind = iota + 1

	// StepTerminate ends the flow for its CAS.
	StepTerminate
)

// String returns the step kind name.
func (k StepKind) String() string {
	switch k {
	case StepRun:
		return "run"
	case StepTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Step is the single next action a Flow asks the driver to take.
type Step struct {
	Kind StepKind
	// Key is the component to invoke. Empty for StepTerminate.
	Key ComponentKey
	// Drop is set on StepTerminate when the CAS must not be output
	// if it was created inside the aggregate.
	Drop bool
}

// RunStep returns a step that invokes key.
func RunStep(key ComponentKey) Step {
	return Step{Kind: StepRun, Key: key}
}

// TerminateStep returns a terminal step.
func TerminateStep(drop bool) Step {
	return Step{Kind: StepTerminate, Drop: drop}
}

// IsTerminal reports whether s ends the flow.
func (s Step) IsTerminal() bool {
	return s.Kind == StepTerminate
}

// String returns a readable form such as "run(tokenizer)" or "terminate(drop)".
func (s Step) String() string {
	switch s.Kind {
	case StepRun:
		return fmt.Sprintf("run(%s)", s.Key)
	case StepTerminate:
		if s.Drop {
			return "terminate(drop)"
		}
		return "terminate"
	default:
		return "invalid"
	}
}
