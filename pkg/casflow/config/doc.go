/*
Package config loads aggregate descriptors.

# Overview

A descriptor names an aggregate, its flow, the action taken after a CAS
multiplier, its component sections and its CAS pool. Descriptors are read
from YAML or JSON files into a Config and validated by ParseAggregate.

	spec, err := config.LoadAggregate("aggregate.yaml")
	if err != nil {
	    return err
	}
	agg, err := reg.Build(spec)

# Config

Config wraps a map[string]any and provides typed accessors that return the
default value when a key is missing or has the wrong type:

	cfg := config.New(map[string]any{"capacity": 8, "acquireTimeout": "5s"})
	cfg.Int("capacity", 16)                   // 8
	cfg.Duration("acquireTimeout", 0)         // 5s
	cfg.String("missing", "default")          // "default"

Sub returns a nested section; component factories receive their section
this way.

# Variables

FromFile expands ${NAME} and ${NAME:-default} in string values from the
environment. A reference without a default to an unset variable fails with
*UndefinedVariableError. Use Expand with a custom LookupFunc for other
sources.

# Validation

ParseAggregate reports every problem at once. The returned error wraps
ErrInvalidAggregate, and casflow.ErrUnknownPolicy when the policy literal
is not recognized. Policy literals are matched without regard to case.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
