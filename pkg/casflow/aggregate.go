package casflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Aggregate drives CASes through an ordered set of delegate components.
//
// An Aggregate is safe for concurrent use: many goroutines may call Process
// for different root CASes while a management layer calls AddComponents or
// RemoveComponents. Each Process call handles one root CAS lineage
// sequentially.
type Aggregate struct {
	name       string
	controller FlowController
	delegates  *delegateTable
	pool       Pool
	runOpts    []RunOption
}

// Output is one CAS output by an aggregate.
type Output struct {
	// CAS is the output CAS. The receiver owns it and must release it to
	// the aggregate's pool when done.
	CAS CAS
	// Parent is the id of the CAS whose multiplier produced this one.
	Parent string
	// LastComponent is the last component the CAS was dispatched to.
	LastComponent ComponentKey
}

// Result summarizes one Process call.
type Result struct {
	RunID string
	// Outputs lists internally created CASes that terminated without drop,
	// in termination order. Empty when an emitter is configured.
	Outputs []Output
	// Spawned counts CASes output by multipliers.
	Spawned int
	// Dropped counts internally created CASes released without output.
	Dropped int
	// Failed counts CASes whose processing failed.
	Failed int
	// Abandoned counts CASes still queued when processing stopped.
	Abandoned int
	// Steps counts component invocations (Process and Next calls).
	Steps int
	// RootTerminated is true once the input CAS reached the end of its flow.
	RootTerminated bool
}

// delegateTable maps component keys to delegates and answers descriptor
// queries for the flow controller.
type delegateTable struct {
	mu       sync.RWMutex
	m        map[ComponentKey]Component
	declared Descriptors
}

// Compile-time interface check.
var _ DescriptorSource = (*delegateTable)(nil)

func (t *delegateTable) get(key ComponentKey) (Component, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.m[key]
	return c, ok
}

// IsMultiplier implements DescriptorSource. A declared descriptor wins;
// otherwise the delegate's own type decides.
func (t *delegateTable) IsMultiplier(key ComponentKey) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if d, ok := t.declared[key]; ok {
		return d.OutputsNewCASes
	}
	return isMultiplier(t.m[key])
}

// check validates one delegate against the declared descriptors.
func (t *delegateTable) check(key ComponentKey, c Component) error {
	if c == nil {
		return fmt.Errorf("%w: %s has no delegate", ErrComponentNotFound, key)
	}
	if d, ok := t.declared[key]; ok && d.OutputsNewCASes != isMultiplier(c) {
		return fmt.Errorf("%w: %s declares outputsNewCASes=%t", ErrMultiplierMismatch, key, d.OutputsNewCASes)
	}
	return nil
}

// NewAggregate builds an aggregate that runs every CAS through sequence.
//
// Every key in sequence must have a delegate. Delegates that are not in
// the sequence are registered too and can be added later with
// AddComponents. Problems are reported together as a *ConfigError.
//
// Example:
//
//	agg, err := casflow.NewAggregate("pipeline",
//	    []casflow.ComponentKey{"splitter", "tokenizer"},
//	    map[casflow.ComponentKey]casflow.Component{
//	        "splitter":  annotators.NewSentenceSplitter(),
//	        "tokenizer": annotators.WhitespaceTokenizer{},
//	    },
//	    casflow.WithPool(pool),
//	    casflow.WithControllerOptions(casflow.WithPolicy(casflow.DropIfNewCasProduced)))
func NewAggregate(name string, sequence []ComponentKey, delegates map[ComponentKey]Component, opts ...AggregateOption) (*Aggregate, error) {
	cfg := aggregateConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	table := &delegateTable{
		m:        make(map[ComponentKey]Component, len(delegates)),
		declared: cfg.descriptors,
	}

	var errs []error
	for _, k := range sortedKeys(delegates) {
		if err := table.check(k, delegates[k]); err != nil {
			errs = append(errs, err)
			continue
		}
		table.m[k] = delegates[k]
	}
	for _, k := range sequence {
		if _, ok := delegates[k]; !ok && k != "" {
			errs = append(errs, fmt.Errorf("%w: %s has no delegate", ErrComponentNotFound, k))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, &ConfigError{Field: "delegates", Value: name, Err: err}
	}

	factory := cfg.factory
	if factory == nil {
		factory = FixedControllerFactory(cfg.controllerOpts...)
	}
	controller, err := factory(sequence, table)
	if err != nil {
		return nil, err
	}

	return &Aggregate{
		name:       name,
		controller: controller,
		delegates:  table,
		pool:       cfg.pool,
		runOpts:    cfg.runOpts,
	}, nil
}

// Name returns the aggregate name.
func (a *Aggregate) Name() string {
	return a.name
}

// Controller returns the flow controller that owns the sequence.
func (a *Aggregate) Controller() FlowController {
	return a.controller
}

// Pool returns the configured pool, or nil.
func (a *Aggregate) Pool() Pool {
	return a.pool
}

// Delegate returns the component registered for key.
func (a *Aggregate) Delegate(key ComponentKey) (Component, bool) {
	return a.delegates.get(key)
}

// AddComponents registers delegates and appends keys to the live
// sequence. Each key must have a delegate, either in delegates or
// registered earlier. Flows already in flight reach the new components.
//
// A delegate given for a key that is not in keys is registered without
// being added to the sequence. Replacing the delegate of a key in the live
// sequence must keep its multiplier status; otherwise the replacement is
// rejected with ErrMultiplierMismatch.
func (a *Aggregate) AddComponents(delegates map[ComponentKey]Component, keys ...ComponentKey) error {
	a.delegates.mu.Lock()
	var errs []error
	var registered []ComponentKey
	previous := make(map[ComponentKey]Component)
	for _, k := range sortedKeys(delegates) {
		if err := a.delegates.check(k, delegates[k]); err != nil {
			errs = append(errs, err)
			continue
		}
		if old, ok := a.delegates.m[k]; ok {
			if isMultiplier(old) != isMultiplier(delegates[k]) && a.inSequence(k) {
				errs = append(errs, fmt.Errorf("%w: %s is in the sequence with outputsNewCASes=%t",
					ErrMultiplierMismatch, k, isMultiplier(old)))
				continue
			}
			previous[k] = old
		}
		a.delegates.m[k] = delegates[k]
		registered = append(registered, k)
	}
	for _, k := range keys {
		if _, ok := a.delegates.m[k]; !ok && k != "" {
			errs = append(errs, fmt.Errorf("%w: %s has no delegate", ErrComponentNotFound, k))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.rollback(registered, previous)
		a.delegates.mu.Unlock()
		return err
	}
	a.delegates.mu.Unlock()

	if err := a.controller.AddComponents(keys...); err != nil {
		a.delegates.mu.Lock()
		a.rollback(registered, previous)
		a.delegates.mu.Unlock()
		return err
	}
	return nil
}

// rollback undoes registrations. Callers hold delegates.mu.
func (a *Aggregate) rollback(registered []ComponentKey, previous map[ComponentKey]Component) {
	for _, k := range registered {
		if old, ok := previous[k]; ok {
			a.delegates.m[k] = old
		} else {
			delete(a.delegates.m, k)
		}
	}
}

// sequenceMember is implemented by controllers that can report whether a
// key is in their live sequence.
type sequenceMember interface {
	Contains(key ComponentKey) bool
}

// inSequence reports whether key is live. Controllers that cannot tell are
// assumed to hold every key.
func (a *Aggregate) inSequence(key ComponentKey) bool {
	if m, ok := a.controller.(sequenceMember); ok {
		return m.Contains(key)
	}
	return true
}

// RemoveComponents removes keys from the live sequence. In-flight flows
// never dispatch a removed component afterwards.
//
// Delegates stay registered so a step dispatched just before the removal
// can still run, and so the key can be added back later.
func (a *Aggregate) RemoveComponents(keys ...ComponentKey) error {
	return a.controller.RemoveComponents(keys...)
}

// sortedKeys returns the keys of m in a stable order for error reporting.
func sortedKeys(m map[ComponentKey]Component) []ComponentKey {
	keys := make([]ComponentKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
