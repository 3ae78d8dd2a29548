package casflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for controller and aggregate configuration.
var (
	// ErrUnknownPolicy indicates an unrecognized action-after-multiplier value.
	ErrUnknownPolicy = errors.New("unknown action after cas multiplier")

	// ErrEmptyKey indicates a component key was empty.
	ErrEmptyKey = errors.New("component key cannot be empty")

	// ErrDuplicateComponent indicates a component key appears more than once.
	ErrDuplicateComponent = errors.New("duplicate component key")

	// ErrComponentNotFound indicates a key has no delegate or is not in the sequence.
	ErrComponentNotFound = errors.New("component not found")

	// ErrMultiplierMismatch indicates a descriptor disagrees with the delegate
	// about whether it outputs new CASes.
	ErrMultiplierMismatch = errors.New("multiplier descriptor mismatch")

	// ErrNoPool indicates a component asked for an empty CAS but no pool is configured.
	ErrNoPool = errors.New("no cas pool configured")
)

// Sentinel errors for processing.
var (
	// ErrNilContext indicates Process() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrNilCAS indicates Process() was called with a nil CAS,
	// or a multiplier returned a nil CAS from Next().
	ErrNilCAS = errors.New("cas cannot be nil")

	// ErrMaxSteps indicates a root CAS exceeded the configured step limit.
	ErrMaxSteps = errors.New("exceeded maximum steps")

	// ErrProducerNotInSequence indicates a multiplier produced a CAS but its
	// key is no longer part of the live sequence.
	ErrProducerNotInSequence = errors.New("producing component not in sequence")
)

// ConfigError reports an invalid aggregate or controller configuration.
// Configuration errors are fatal: the aggregate does not start.
type ConfigError struct {
	// Field is the configuration field at fault (e.g. "actionAfterCasMultiplier").
	Field string
	// Value is the offending value, if any.
	Value string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config %s=%q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// InvariantError reports that the driver and the controller lost agreement
// about the component sequence. It is never recoverable.
type InvariantError struct {
	// Key is the component involved.
	Key string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("flow invariant violated at %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InvariantError) Unwrap() error {
	return e.Err
}

// ComponentError wraps an error raised by a component for a specific CAS.
type ComponentError struct {
	// Key is the component that failed.
	Key string
	// Op is the contract call that failed ("process", "hasNext", "next").
	Op string
	// CASID identifies the CAS being processed.
	CASID string
	// Err is the underlying error from the component.
	Err error
}

// Error implements the error interface.
func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s: %s cas %s: %v", e.Key, e.Op, e.CASID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ComponentError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from a component call.
type PanicError struct {
	// Key is the component that panicked.
	Key string
	// Op is the contract call that panicked.
	Op string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("component %s panicked during %s: %v", e.Key, e.Op, e.Value)
}

// CancellationError captures where processing stopped when the context was cancelled.
type CancellationError struct {
	// CASID is the CAS whose flow was about to step.
	CASID string
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before stepping cas %s: %v", e.CASID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// MaxStepsError reports a root CAS whose lineage exceeded the step limit.
type MaxStepsError struct {
	// Max is the configured limit.
	Max int
	// CASID is the CAS that would have stepped next.
	CASID string
	// LastComponent is the component that would have run next, if known.
	LastComponent string
}

// Error implements the error interface.
func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("exceeded maximum steps (%d) at cas %s", e.Max, e.CASID)
}

// Unwrap returns ErrMaxSteps for errors.Is support.
func (e *MaxStepsError) Unwrap() error {
	return ErrMaxSteps
}
