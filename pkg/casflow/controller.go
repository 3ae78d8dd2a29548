package casflow

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/casflow/pkg/casflow/observability"
)

// FlowController owns the component sequence of one aggregate and mints a
// Flow for every CAS that enters it.
//
// Implementations must be safe for concurrent use: ComputeFlow and the
// flows it returns are used by many lineages at once, while AddComponents
// and RemoveComponents may be called by a management layer at any time.
type FlowController interface {
	// ComputeFlow returns a fresh flow for an input CAS.
	ComputeFlow(cas CAS) Flow

	// AddComponents appends keys to the end of the live sequence.
	// In-flight flows that have not yet terminated reach them.
	AddComponents(keys ...ComponentKey) error

	// RemoveComponents removes keys from the live sequence.
	// In-flight flows never dispatch a removed component.
	RemoveComponents(keys ...ComponentKey) error
}

// ControllerFactory builds a FlowController for an aggregate's declared
// sequence. Aggregates use it so the controller can consult the
// aggregate's own delegate table for descriptors.
type ControllerFactory func(sequence []ComponentKey, descriptors DescriptorSource) (FlowController, error)

// controllerConfig holds FixedFlowController options.
type controllerConfig struct {
	policy     ActionAfterMultiplier
	policyName *string
	logger     *slog.Logger
}

// ControllerOption configures a FixedFlowController.
type ControllerOption func(*controllerConfig)

// WithPolicy sets the action taken after a multiplier step.
// Default: DropIfNewCasProduced
func WithPolicy(p ActionAfterMultiplier) ControllerOption {
	return func(c *controllerConfig) {
		c.policy = p
		c.policyName = nil
	}
}

// WithPolicyName sets the action after a multiplier step from its
// configuration literal ("continue", "stop", "drop", "dropIfNewCasProduced",
// any case). An unrecognized literal makes NewFixedFlowController fail.
func WithPolicyName(name string) ControllerOption {
	return func(c *controllerConfig) {
		c.policyName = &name
	}
}

// WithControllerLogger sets the logger used for reconfiguration events.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *controllerConfig) {
		c.logger = logger
	}
}

// FixedFlowController runs every CAS through one ordered sequence.
//
// The sequence is a copy-on-write snapshot behind an atomic pointer.
// Flows read it without locking; AddComponents and RemoveComponents
// serialize on a mutex and swap in a new snapshot.
type FixedFlowController struct {
	descriptors DescriptorSource
	policy      ActionAfterMultiplier
	logger      *slog.Logger

	mu     sync.Mutex // serializes mutation
	seq    atomic.Pointer[sequence]
	nextID uint64
}

// Compile-time interface check.
var _ FlowController = (*FixedFlowController)(nil)

// NewFixedFlowController validates the sequence and policy and returns a
// ready controller. descriptors may be nil when no component is a multiplier.
//
// Returns a *ConfigError for an unknown policy literal. Empty and
// duplicate keys are reported together.
func NewFixedFlowController(keys []ComponentKey, descriptors DescriptorSource, opts ...ControllerOption) (*FixedFlowController, error) {
	cfg := controllerConfig{policy: DropIfNewCasProduced}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.policyName != nil {
		p, err := ParsePolicy(*cfg.policyName)
		if err != nil {
			return nil, err
		}
		cfg.policy = p
	}
	if !cfg.policy.Valid() {
		return nil, &ConfigError{
			Field: "actionAfterCasMultiplier",
			Value: fmt.Sprint(int(cfg.policy)),
			Err:   ErrUnknownPolicy,
		}
	}

	if err := validateKeys(keys, nil); err != nil {
		return nil, err
	}

	if descriptors == nil {
		descriptors = Descriptors(nil)
	}

	fc := &FixedFlowController{
		descriptors: descriptors,
		policy:      cfg.policy,
		logger:      cfg.logger,
	}
	fc.seq.Store(newSequence(0, fc.newEntries(keys)))
	return fc, nil
}

// FixedControllerFactory returns a ControllerFactory that builds
// FixedFlowControllers with the given options.
func FixedControllerFactory(opts ...ControllerOption) ControllerFactory {
	return func(keys []ComponentKey, descriptors DescriptorSource) (FlowController, error) {
		return NewFixedFlowController(keys, descriptors, opts...)
	}
}

// newEntries assigns fresh ids. Callers hold mu or own fc exclusively.
func (fc *FixedFlowController) newEntries(keys []ComponentKey) []entry {
	entries := make([]entry, len(keys))
	for i, k := range keys {
		fc.nextID++
		entries[i] = entry{
			key:        k,
			id:         fc.nextID,
			multiplier: fc.descriptors.IsMultiplier(k),
		}
	}
	return entries
}

// validateKeys checks for empty keys, duplicates within keys, and keys
// already present in existing.
func validateKeys(keys []ComponentKey, existing *sequence) error {
	var errs []error
	seen := make(map[ComponentKey]bool, len(keys))
	for i, k := range keys {
		if k == "" {
			errs = append(errs, fmt.Errorf("%w: position %d", ErrEmptyKey, i))
			continue
		}
		if seen[k] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateComponent, k))
			continue
		}
		seen[k] = true
		if existing != nil {
			if _, ok := existing.lookup(k); ok {
				errs = append(errs, fmt.Errorf("%w: %s already in sequence", ErrDuplicateComponent, k))
			}
		}
	}
	return errors.Join(errs...)
}

func (fc *FixedFlowController) snapshot() *sequence {
	return fc.seq.Load()
}

// ComputeFlow implements FlowController.
// The fixed controller ignores the CAS contents.
func (fc *FixedFlowController) ComputeFlow(_ CAS) Flow {
	return &FixedFlow{
		controller: fc,
		state:      flowState{phase: phaseAtPosition, cursor: startCursor},
	}
}

// AddComponents implements FlowController.
// Nothing is added if any key is empty or already present.
func (fc *FixedFlowController) AddComponents(keys ...ComponentKey) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	cur := fc.snapshot()
	if err := validateKeys(keys, cur); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	entries := make([]entry, 0, cur.len()+len(keys))
	entries = append(entries, cur.entries...)
	entries = append(entries, fc.newEntries(keys)...)
	next := newSequence(cur.gen+1, entries)
	fc.seq.Store(next)

	observability.LogReconfigure(fc.logger, "add", keys, next.gen)
	return nil
}

// RemoveComponents implements FlowController.
// Known keys are removed even if some keys are unknown; the unknown ones
// are reported as ErrComponentNotFound.
func (fc *FixedFlowController) RemoveComponents(keys ...ComponentKey) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	cur := fc.snapshot()
	remove := make(map[ComponentKey]bool, len(keys))
	var removed []ComponentKey
	var errs []error
	for _, k := range keys {
		if _, ok := cur.lookup(k); !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrComponentNotFound, k))
			continue
		}
		if !remove[k] {
			remove[k] = true
			removed = append(removed, k)
		}
	}

	if len(remove) > 0 {
		entries := make([]entry, 0, cur.len()-len(remove))
		for _, e := range cur.entries {
			if !remove[e.key] {
				entries = append(entries, e)
			}
		}
		next := newSequence(cur.gen+1, entries)
		fc.seq.Store(next)
		observability.LogReconfigure(fc.logger, "remove", removed, next.gen)
	}

	return errors.Join(errs...)
}

// Sequence returns a copy of the live component order.
func (fc *FixedFlowController) Sequence() []ComponentKey {
	return fc.snapshot().keys()
}

// Contains reports whether key is in the live sequence.
func (fc *FixedFlowController) Contains(key ComponentKey) bool {
	_, ok := fc.snapshot().lookup(key)
	return ok
}

// Generation returns the number of reconfigurations applied so far.
func (fc *FixedFlowController) Generation() uint64 {
	return fc.snapshot().gen
}

// Policy returns the action taken after a multiplier step.
// It never changes after construction.
func (fc *FixedFlowController) Policy() ActionAfterMultiplier {
	return fc.policy
}
