package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptor = `
name: sentences
flow: [split, tok, count]
pool:
  capacity: 4
components:
  split: {type: sentence-splitter}
  tok: {type: whitespace-tokenizer}
  count: {type: token-counter}
`

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunAndJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "agg.yaml", descriptor)
	a := writeFile(t, dir, "a.txt", "One two. Three.")
	b := writeFile(t, dir, "b.txt", "Four five six!")
	db := filepath.Join(dir, "journal.db")

	stdout, stderr, err := execute(t, "run", "--config", cfg, "--journal", db, "--run-id", "run-1", "-p", "2", a, b)
	require.NoError(t, err)
	assert.Contains(t, stderr, "run run-1: 2 file(s)")

	counts := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		var rec outputRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		assert.Equal(t, "count", rec.LastComponent)
		assert.Equal(t, rec.Root, rec.Parent)
		counts[rec.Text] = rec.Metadata["token_count"]
	}
	assert.Equal(t, map[string]string{
		"One two.":       "2",
		"Three.":         "1",
		"Four five six!": "3",
	}, counts)

	stdout, _, err = execute(t, "journal", "--db", db, "run-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "SEQ")
	assert.Contains(t, stdout, "completed: 2")
	assert.Contains(t, stdout, "emitted: 3")
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "agg.yaml", descriptor)

	_, _, err := execute(t, "run", "--config", cfg, filepath.Join(dir, "missing.txt"))
	assert.ErrorContains(t, err, "missing.txt")

	_, _, err = execute(t, "run", filepath.Join(dir, "a.txt"))
	assert.ErrorContains(t, err, `required flag(s) "config" not set`)

	bad := writeFile(t, dir, "bad.yaml", "name: x\nflow: [ghost]\n")
	_, _, err = execute(t, "run", "--config", bad, filepath.Join(dir, "a.txt"))
	assert.ErrorContains(t, err, `undefined component "ghost"`)

	unknown := writeFile(t, dir, "unknown.yaml", "name: x\nflow: [c]\ncomponents:\n  c: {type: nope}\n")
	_, _, err = execute(t, "run", "--config", unknown, filepath.Join(dir, "a.txt"))
	assert.ErrorContains(t, err, "unknown component type")
}

func TestJournal_UnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	_, _, err := execute(t, "journal", "--db", db, "nope")
	assert.ErrorContains(t, err, "no journal entries for run nope")
}
