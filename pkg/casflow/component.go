package casflow

import "context"

// ComponentKey identifies one delegate component within an aggregate.
// Keys are opaque and immutable once assigned.
type ComponentKey = string

// CAS is the opaque handle to one document and its annotations.
// The flow engine never looks inside; it only routes handles between
// components and back to their pool.
type CAS interface {
	// ID returns a stable identifier used in logs, errors, and the journal.
	ID() string
}

// Pool hands out and takes back CAS handles.
// Implementations must be safe for concurrent use.
type Pool interface {
	// Acquire returns an empty CAS, blocking until one is free or ctx is done.
	Acquire(ctx context.Context) (CAS, error)

	// Release returns a CAS to the pool. Releasing the same CAS twice is an error.
	Release(cas CAS) error
}

// Component is the invocation contract for every delegate.
// Process may annotate the CAS in place.
//
// Example:
//
//	type upper struct{}
//
//	func (upper) Process(ctx casflow.Context, c casflow.CAS) error {
//	    doc := c.(*cas.Document)
//	    doc.SetText(strings.ToUpper(doc.Text()))
//	    return nil
//	}
type Component interface {
	Process(ctx Context, cas CAS) error
}

// Multiplier is a component that can output new CASes.
//
// After Process returns, the driver calls HasNext and Next until HasNext
// reports false. Each CAS returned by Next is owned by the driver from
// then on; multipliers obtain them with Context.EmptyCAS.
type Multiplier interface {
	Component

	// HasNext reports whether another new CAS is ready.
	HasNext(ctx Context) (bool, error)

	// Next returns the next new CAS.
	Next(ctx Context) (CAS, error)
}

// Discarder is implemented by multipliers that keep state per input CAS.
// When processing stops before HasNext reported false for a CAS (an error,
// cancellation, or the step limit), the aggregate calls Discard with a
// context whose CASID names that CAS.
type Discarder interface {
	Discard(ctx Context)
}

// Descriptor carries the flow-relevant metadata of a component.
type Descriptor struct {
	Key ComponentKey
	// OutputsNewCASes is true for CAS multipliers.
	OutputsNewCASes bool
}

// DescriptorSource answers descriptor queries for the flow controller.
type DescriptorSource interface {
	IsMultiplier(key ComponentKey) bool
}

// Descriptors is a static DescriptorSource keyed by component key.
// Keys that are absent are not multipliers.
type Descriptors map[ComponentKey]Descriptor

// IsMultiplier implements DescriptorSource.
func (d Descriptors) IsMultiplier(key ComponentKey) bool {
	return d[key].OutputsNewCASes
}

// ComponentFunc adapts a function to the Component interface.
type ComponentFunc func(ctx Context, cas CAS) error

// Process calls f(ctx, cas).
func (f ComponentFunc) Process(ctx Context, cas CAS) error {
	return f(ctx, cas)
}

// isMultiplier reports whether c implements the Multiplier contract.
func isMultiplier(c Component) bool {
	_, ok := c.(Multiplier)
	return ok
}
