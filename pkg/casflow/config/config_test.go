package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/casflow/pkg/casflow"
	"github.com/randalmurphal/casflow/pkg/casflow/config"
)

// TestNew verifies Config creation from maps.
func TestNew(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{"nil map", nil},
		{"empty map", map[string]any{}},
		{"with values", map[string]any{"key": "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.NotNil(t, cfg.Raw())
		})
	}
}

func TestAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":     "pipeline",
		"count":    3,
		"count64":  int64(4),
		"countF":   float64(5),
		"fraction": 1.5,
		"enabled":  true,
		"timeout":  "250ms",
		"seconds":  2,
		"secondsF": 0.5,
		"native":   3 * time.Second,
		"bad":      "soon",
		"flow":     []any{"a", "b"},
		"typed":    []string{"x"},
		"mixed":    []any{"a", 1},
	})

	assert.Equal(t, "pipeline", cfg.String("name", "x"))
	assert.Equal(t, "x", cfg.String("count", "x"))
	assert.Equal(t, "x", cfg.String("missing", "x"))

	assert.Equal(t, 3, cfg.Int("count", 0))
	assert.Equal(t, 4, cfg.Int("count64", 0))
	assert.Equal(t, 5, cfg.Int("countF", 0))
	assert.Equal(t, 9, cfg.Int("fraction", 9), "fractional floats are rejected")
	assert.Equal(t, 9, cfg.Int("name", 9))

	assert.True(t, cfg.Bool("enabled", false))
	assert.True(t, cfg.Bool("missing", true))

	assert.Equal(t, 250*time.Millisecond, cfg.Duration("timeout", 0))
	assert.Equal(t, 2*time.Second, cfg.Duration("seconds", 0))
	assert.Equal(t, 500*time.Millisecond, cfg.Duration("secondsF", 0))
	assert.Equal(t, 3*time.Second, cfg.Duration("native", 0))
	assert.Equal(t, time.Minute, cfg.Duration("bad", time.Minute))

	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("flow", nil))
	assert.Equal(t, []string{"x"}, cfg.StringSlice("typed", nil))
	assert.Nil(t, cfg.StringSlice("mixed", nil))
	assert.Equal(t, []string{"d"}, cfg.StringSlice("missing", []string{"d"}))

	assert.True(t, cfg.Has("bad"))
	assert.False(t, cfg.Has("missing"))
	assert.Equal(t, "bad", cfg.Keys()[0])
}

func TestSub(t *testing.T) {
	cfg := config.New(map[string]any{
		"pool":   map[string]any{"capacity": 4},
		"legacy": map[any]any{"capacity": 2, 7: "ignored"},
		"scalar": "x",
	})

	assert.Equal(t, 4, cfg.Sub("pool").Int("capacity", 0))
	assert.Equal(t, 2, cfg.Sub("legacy").Int("capacity", 0))
	assert.Equal(t, []string{"capacity"}, cfg.Sub("legacy").Keys())
	assert.Empty(t, cfg.Sub("scalar").Keys())
	assert.Empty(t, cfg.Sub("missing").Keys())
}

const pipelineYAML = `
name: sentences
actionAfterCasMultiplier: continue
flow: [splitter, tokenizer]
pool:
  capacity: 4
  acquireTimeout: 2s
components:
  splitter:
    type: sentence-splitter
    outputsNewCASes: true
  tokenizer:
    type: whitespace-tokenizer
    lowercase: true
`

func TestParseAggregate(t *testing.T) {
	cfg, err := config.FromYAML([]byte(pipelineYAML))
	require.NoError(t, err)

	spec, err := config.ParseAggregate(cfg)
	require.NoError(t, err)

	assert.Equal(t, "sentences", spec.Name)
	assert.Equal(t, []string{"splitter", "tokenizer"}, spec.Flow)
	assert.Equal(t, casflow.Continue, spec.Policy)
	assert.Equal(t, config.PoolSpec{Capacity: 4, AcquireTimeout: 2 * time.Second}, spec.Pool)

	require.Len(t, spec.Components, 2)
	tok := spec.Components["tokenizer"]
	assert.Equal(t, "whitespace-tokenizer", tok.Type)
	assert.Nil(t, tok.OutputsNewCASes)
	assert.True(t, tok.Params.Bool("lowercase", false))

	d := spec.Descriptors()
	assert.True(t, d.IsMultiplier("splitter"))
	assert.False(t, d.IsMultiplier("tokenizer"))
	assert.NotContains(t, d, "tokenizer")
}

func TestParseAggregate_Defaults(t *testing.T) {
	cfg := config.New(map[string]any{"name": "empty"})

	spec, err := config.ParseAggregate(cfg)
	require.NoError(t, err)

	assert.Empty(t, spec.Flow)
	assert.Equal(t, casflow.DropIfNewCasProduced, spec.Policy)
	assert.Equal(t, config.DefaultPoolCapacity, spec.Pool.Capacity)
	assert.Zero(t, spec.Pool.AcquireTimeout)
}

func TestParseAggregate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		wantMsg string
		policy  bool
	}{
		{
			name:    "missing name",
			data:    map[string]any{},
			wantMsg: "name is required",
		},
		{
			name:    "unknown policy",
			data:    map[string]any{"name": "a", "actionAfterCasMultiplier": "sometimes"},
			wantMsg: "sometimes",
			policy:  true,
		},
		{
			name:    "flow not a list",
			data:    map[string]any{"name": "a", "flow": "splitter"},
			wantMsg: "flow must be a list",
		},
		{
			name:    "undefined component",
			data:    map[string]any{"name": "a", "flow": []any{"ghost"}},
			wantMsg: `undefined component "ghost"`,
		},
		{
			name: "component without type",
			data: map[string]any{
				"name":       "a",
				"components": map[string]any{"c": map[string]any{}},
			},
			wantMsg: "component c: type is required",
		},
		{
			name:    "bad capacity",
			data:    map[string]any{"name": "a", "pool": map[string]any{"capacity": 0}},
			wantMsg: "pool capacity must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.ParseAggregate(config.New(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrInvalidAggregate)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, tt.policy, errors.Is(err, casflow.ErrUnknownPolicy))
		})
	}
}

func TestParseAggregate_ReportsAllProblems(t *testing.T) {
	_, err := config.ParseAggregate(config.New(map[string]any{
		"actionAfterCasMultiplier": "never",
		"flow":                     []any{"x"},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "never")
	assert.Contains(t, err.Error(), `undefined component "x"`)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "agg.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(pipelineYAML), 0o600))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "sentences", cfg.String("name", ""))

	jsonPath := filepath.Join(dir, "agg.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name":"j","pool":{"capacity":2}}`), 0o600))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Sub("pool").Int("capacity", 0))

	txtPath := filepath.Join(dir, "agg.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("name: x"), 0o600))
	_, err = config.FromFile(txtPath)
	assert.ErrorContains(t, err, "unsupported config file extension")

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte("{"), 0o600))
	_, err = config.FromFile(badPath)
	assert.ErrorContains(t, err, "parse json")
}

func TestFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("CASFLOW_TEST_POLICY", "stop")
	path := filepath.Join(t.TempDir(), "agg.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: env\nactionAfterCasMultiplier: ${CASFLOW_TEST_POLICY}\n"), 0o600))

	spec, err := config.LoadAggregate(path)
	require.NoError(t, err)
	assert.Equal(t, casflow.Stop, spec.Policy)
}

func TestLoadAggregate_Errors(t *testing.T) {
	_, err := config.LoadAggregate(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = config.FromYAML([]byte("name: [unclosed"))
	assert.ErrorContains(t, err, "parse yaml")
}

func TestExpand(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":  "${NAME}",
		"mixed": "pre-${NAME}-${SUFFIX:-x}",
		"empty": "${EMPTY:-}",
		"plain": "no vars $NAME",
		"count": 3,
		"flow":  []any{"${FIRST:-split}", "tok"},
		"pool":  map[string]any{"acquireTimeout": "${TIMEOUT:-5s}"},
	})
	env := map[string]string{"NAME": "agg", "FIRST": "splitter"}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	out, err := cfg.Expand(lookup)
	require.NoError(t, err)

	assert.Equal(t, "agg", out.String("name", ""))
	assert.Equal(t, "pre-agg-x", out.String("mixed", ""))
	assert.Equal(t, "", out.String("empty", "unset"))
	assert.Equal(t, "no vars $NAME", out.String("plain", ""))
	assert.Equal(t, 3, out.Int("count", 0))
	assert.Equal(t, []string{"splitter", "tok"}, out.StringSlice("flow", nil))
	assert.Equal(t, 5*time.Second, out.Sub("pool").Duration("acquireTimeout", 0))

	// The source config is not modified.
	assert.Equal(t, "${NAME}", cfg.String("name", ""))
}

func TestExpand_Undefined(t *testing.T) {
	cfg := config.New(map[string]any{
		"a": "${ZETA}",
		"b": map[string]any{"c": "${ALPHA} ${ZETA}"},
	})
	_, err := cfg.Expand(func(string) (string, bool) { return "", false })

	var uv *config.UndefinedVariableError
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, []string{"ALPHA", "ZETA"}, uv.Names)
	assert.EqualError(t, err, "undefined variables: ALPHA, ZETA")
}

func TestFromFile_UndefinedVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: ${CASFLOW_TEST_UNSET_VARIABLE}\n"), 0o600))

	_, err := config.FromFile(path)
	var uv *config.UndefinedVariableError
	assert.ErrorAs(t, err, &uv)
}
