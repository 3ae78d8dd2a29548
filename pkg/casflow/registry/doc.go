// Package registry maps component type names to factories and builds
// aggregates from descriptors.
//
// # Basic Usage
//
// Register a factory per component type, then build an aggregate from a
// parsed descriptor:
//
//	reg := registry.New()
//	annotators.Register(reg)
//	reg.MustRegister("upper", func(params config.Config) (casflow.Component, error) {
//	    return upper{}, nil
//	})
//
//	spec, err := config.LoadAggregate("aggregate.yaml")
//	if err != nil {
//	    return err
//	}
//	agg, err := reg.Build(spec)
//
// Each factory receives its component section, so parameters live next to
// the type name in the descriptor.
//
// Build sizes a cas.Pool from the descriptor's pool section and passes the
// declared outputsNewCASes flags as descriptors, so a factory returning a
// component that disagrees with its declaration fails with
// casflow.ErrMultiplierMismatch.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use.
package registry
