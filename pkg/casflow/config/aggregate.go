package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/casflow/pkg/casflow"
)

// Aggregate descriptor keys.
const (
	KeyName       = "name"
	KeyFlow       = "flow"
	KeyPolicy     = "actionAfterCasMultiplier"
	KeyComponents = "components"
	KeyPool       = "pool"
	KeyType       = "type"
	KeyMultiplier = "outputsNewCASes"
	KeyCapacity   = "capacity"
	KeyTimeout    = "acquireTimeout"
)

// DefaultPoolCapacity is used when the descriptor has no pool section.
const DefaultPoolCapacity = 16

// ErrInvalidAggregate is wrapped by every ParseAggregate error.
var ErrInvalidAggregate = errors.New("invalid aggregate descriptor")

// ComponentSpec describes one delegate of an aggregate.
type ComponentSpec struct {
	// Key is the component key used in the flow.
	Key string
	// Type selects the component factory.
	Type string
	// OutputsNewCASes is the declared multiplier flag, if present.
	OutputsNewCASes *bool
	// Params holds the component section, passed to the factory.
	Params Config
}

// PoolSpec configures the CAS pool of an aggregate.
type PoolSpec struct {
	Capacity       int
	AcquireTimeout time.Duration
}

// AggregateSpec is a validated aggregate descriptor.
type AggregateSpec struct {
	Name       string
	Flow       []string
	Policy     casflow.ActionAfterMultiplier
	Components map[string]ComponentSpec
	Pool       PoolSpec
}

// Descriptors returns the declared multiplier flags as casflow descriptors.
func (s AggregateSpec) Descriptors() casflow.Descriptors {
	d := make(casflow.Descriptors)
	for k, c := range s.Components {
		if c.OutputsNewCASes != nil {
			d[k] = casflow.Descriptor{Key: k, OutputsNewCASes: *c.OutputsNewCASes}
		}
	}
	return d
}

// ParseAggregate validates an aggregate descriptor:
//
//	name: sentences
//	actionAfterCasMultiplier: dropIfNewCasProduced
//	flow: [splitter, tokenizer, counter]
//	pool:
//	  capacity: 32
//	  acquireTimeout: 5s
//	components:
//	  splitter:
//	    type: sentence-splitter
//	  tokenizer:
//	    type: whitespace-tokenizer
//	  counter:
//	    type: token-counter
//
// Every problem is reported, joined, and wrapped in ErrInvalidAggregate.
// An unknown policy also matches casflow.ErrUnknownPolicy.
func ParseAggregate(cfg Config) (AggregateSpec, error) {
	var errs []error

	spec := AggregateSpec{
		Name:       cfg.String(KeyName, ""),
		Components: make(map[string]ComponentSpec),
	}
	if spec.Name == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyName))
	}

	if cfg.Has(KeyFlow) {
		spec.Flow = cfg.StringSlice(KeyFlow, nil)
		if spec.Flow == nil {
			errs = append(errs, fmt.Errorf("%s must be a list of component keys", KeyFlow))
		}
	}

	policy, err := casflow.ParsePolicy(cfg.String(KeyPolicy, ""))
	if err != nil {
		errs = append(errs, err)
	}
	spec.Policy = policy

	components := cfg.Sub(KeyComponents)
	for _, key := range components.Keys() {
		section := components.Sub(key)
		c := ComponentSpec{
			Key:    key,
			Type:   section.String(KeyType, ""),
			Params: section,
		}
		if c.Type == "" {
			errs = append(errs, fmt.Errorf("component %s: %s is required", key, KeyType))
		}
		if section.Has(KeyMultiplier) {
			v := section.Bool(KeyMultiplier, false)
			c.OutputsNewCASes = &v
		}
		spec.Components[key] = c
	}

	for _, key := range spec.Flow {
		if _, ok := spec.Components[key]; !ok {
			errs = append(errs, fmt.Errorf("flow references undefined component %q", key))
		}
	}

	pool := cfg.Sub(KeyPool)
	spec.Pool = PoolSpec{
		Capacity:       pool.Int(KeyCapacity, DefaultPoolCapacity),
		AcquireTimeout: pool.Duration(KeyTimeout, 0),
	}
	if spec.Pool.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pool %s must be positive", KeyCapacity))
	}

	if len(errs) > 0 {
		return AggregateSpec{}, fmt.Errorf("%w: %w", ErrInvalidAggregate, errors.Join(errs...))
	}
	return spec, nil
}

// LoadAggregate reads and validates an aggregate descriptor file.
func LoadAggregate(path string) (AggregateSpec, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return AggregateSpec{}, err
	}
	return ParseAggregate(cfg)
}
