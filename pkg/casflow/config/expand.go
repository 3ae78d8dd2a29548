package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// varPattern matches ${NAME} and ${NAME:-default}.
var varPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(?::-([^}]*))?\}`)

// LookupFunc resolves a variable name.
type LookupFunc func(name string) (string, bool)

// UndefinedVariableError is returned when a variable without a default
// is not defined.
type UndefinedVariableError struct {
	// Names lists the undefined variables in sorted order.
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

// Expand returns a copy of c with ${NAME} and ${NAME:-default} references
// in string values replaced using lookup. Nested sections and lists are
// expanded too; keys are left alone.
func (c Config) Expand(lookup LookupFunc) (Config, error) {
	missing := make(map[string]struct{})
	data, _ := expandValue(c.data, lookup, missing).(map[string]any)
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return Config{}, &UndefinedVariableError{Names: names}
	}
	return New(data), nil
}

// ExpandEnv is Expand with os.LookupEnv.
func (c Config) ExpandEnv() (Config, error) {
	return c.Expand(os.LookupEnv)
}

func expandValue(v any, lookup LookupFunc, missing map[string]struct{}) any {
	switch val := v.(type) {
	case string:
		return expandString(val, lookup, missing)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item, lookup, missing)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item, lookup, missing)
		}
		return out
	default:
		return v
	}
}

func expandString(s string, lookup LookupFunc, missing map[string]struct{}) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := varPattern.FindStringSubmatch(match)
		if val, ok := lookup(groups[1]); ok {
			return val
		}
		if strings.Contains(match, ":-") {
			return groups[2]
		}
		missing[groups[1]] = struct{}{}
		return match
	})
}
