package casflow

import (
	"strings"
)

// ActionAfterMultiplier decides what happens to a CAS's flow right after the
// CAS was handed to a CAS multiplier.
type ActionAfterMultiplier int

const (
	// DropIfNewCasProduced drops the CAS if the multiplier produced at least
	// one new CAS, and continues otherwise. This is the default.
	DropIfNewCasProduced ActionAfterMultiplier = iota

	// Continue sends the CAS on to the next component.
	Continue

	// Stop ends the flow; the CAS is still output by the aggregate.
	Stop

	// Drop ends the flow; an internally created CAS is not output.
	Drop
)

// Configuration literals accepted by ParsePolicy.
const (
	PolicyNameContinue             = "continue"
	PolicyNameStop                 = "stop"
	PolicyNameDrop                 = "drop"
	PolicyNameDropIfNewCasProduced = "dropIfNewCasProduced"
)

// String returns the configuration literal for the policy.
func (a ActionAfterMultiplier) String() string {
	switch a {
	case Continue:
		return PolicyNameContinue
	case Stop:
		return PolicyNameStop
	case Drop:
		return PolicyNameDrop
	case DropIfNewCasProduced:
		return PolicyNameDropIfNewCasProduced
	default:
		return "unknown"
	}
}

// Valid reports whether a is one of the four defined policies.
func (a ActionAfterMultiplier) Valid() bool {
	return a >= DropIfNewCasProduced && a <= Drop
}

// ParsePolicy parses a configuration literal, ignoring case.
// An empty string yields the default, DropIfNewCasProduced.
// Any other unrecognized value is a *ConfigError wrapping ErrUnknownPolicy.
func ParsePolicy(s string) (ActionAfterMultiplier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DropIfNewCasProduced, nil
	case strings.ToLower(PolicyNameContinue):
		return Continue, nil
	case strings.ToLower(PolicyNameStop):
		return Stop, nil
	case strings.ToLower(PolicyNameDrop):
		return Drop, nil
	case strings.ToLower(PolicyNameDropIfNewCasProduced):
		return DropIfNewCasProduced, nil
	}
	return DropIfNewCasProduced, &ConfigError{
		Field: "actionAfterCasMultiplier",
		Value: s,
		Err:   ErrUnknownPolicy,
	}
}
