package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/randalmurphal/casflow/pkg/casflow"
	"github.com/randalmurphal/casflow/pkg/casflow/cas"
	"github.com/randalmurphal/casflow/pkg/casflow/config"
)

// Registry errors.
var (
	// ErrEmptyType indicates a factory was registered without a type name.
	ErrEmptyType = errors.New("component type cannot be empty")

	// ErrNilFactory indicates a nil factory was registered.
	ErrNilFactory = errors.New("component factory cannot be nil")

	// ErrDuplicateType indicates a type name was registered twice.
	ErrDuplicateType = errors.New("component type already registered")

	// ErrUnknownType indicates a descriptor names a type with no factory.
	ErrUnknownType = errors.New("unknown component type")
)

// Factory builds a component from its descriptor section.
type Factory func(params config.Config) (casflow.Component, error)

// Registry maps component type names to factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for typ. Registering a type twice is an error.
func (r *Registry) Register(typ string, f Factory) error {
	if typ == "" {
		return ErrEmptyType
	}
	if f == nil {
		return fmt.Errorf("%w: %s", ErrNilFactory, typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[typ]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, typ)
	}
	r.factories[typ] = f
	return nil
}

// MustRegister is Register that panics on error.
// Intended for package-level wiring of built-in types.
func (r *Registry) MustRegister(typ string, f Factory) {
	if err := r.Register(typ, f); err != nil {
		panic("registry: " + err.Error())
	}
}

// Get returns the factory for typ and whether it exists.
func (r *Registry) Get(typ string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	return f, ok
}

// Has returns true if typ has a factory.
func (r *Registry) Has(typ string) bool {
	_, ok := r.Get(typ)
	return ok
}

// Unregister removes the factory for typ.
func (r *Registry) Unregister(typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, typ)
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	r.mu.RUnlock()

	sort.Strings(types)
	return types
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Components instantiates every component of spec.
// All failures are reported together.
func (r *Registry) Components(spec config.AggregateSpec) (map[casflow.ComponentKey]casflow.Component, error) {
	keys := make([]string, 0, len(spec.Components))
	for k := range spec.Components {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	delegates := make(map[casflow.ComponentKey]casflow.Component, len(keys))
	var errs []error
	for _, key := range keys {
		c := spec.Components[key]
		f, ok := r.Get(c.Type)
		if !ok {
			errs = append(errs, fmt.Errorf("component %s: %w: %q", key, ErrUnknownType, c.Type))
			continue
		}
		comp, err := f(c.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", key, err))
			continue
		}
		delegates[key] = comp
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return delegates, nil
}

// Build instantiates spec as an aggregate backed by a cas.Pool sized from
// the descriptor. Options are applied after the descriptor's own, so a
// caller may replace the pool or the controller factory.
func (r *Registry) Build(spec config.AggregateSpec, opts ...casflow.AggregateOption) (*casflow.Aggregate, error) {
	delegates, err := r.Components(spec)
	if err != nil {
		return nil, fmt.Errorf("build aggregate %s: %w", spec.Name, err)
	}

	var poolOpts []cas.PoolOption
	if spec.Pool.AcquireTimeout > 0 {
		poolOpts = append(poolOpts, cas.WithAcquireTimeout(spec.Pool.AcquireTimeout))
	}

	base := []casflow.AggregateOption{
		casflow.WithPool(cas.NewPool(spec.Pool.Capacity, poolOpts...)),
		casflow.WithDescriptors(spec.Descriptors()),
		casflow.WithControllerOptions(casflow.WithPolicy(spec.Policy)),
	}
	agg, err := casflow.NewAggregate(spec.Name, spec.Flow, delegates, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("build aggregate %s: %w", spec.Name, err)
	}
	return agg, nil
}
