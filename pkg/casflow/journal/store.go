// Package journal records the terminal outcome of every CAS an aggregate
// finishes with. It is an audit trail for the exactly-once guarantee:
// one entry per (run, CAS), never more.
package journal

import (
	"errors"
	"time"
)

// Outcome is how a CAS left the aggregate.
type Outcome string

// Outcome values.
const (
	// OutcomeCompleted: the caller's input CAS reached the end of its flow.
	OutcomeCompleted Outcome = "completed"

	// OutcomeEmitted: an internally created CAS was output by the aggregate.
	OutcomeEmitted Outcome = "emitted"

	// OutcomeDropped: an internally created CAS was released without output.
	OutcomeDropped Outcome = "dropped"

	// OutcomeFailed: a component failed while processing the CAS.
	OutcomeFailed Outcome = "failed"

	// OutcomeAbandoned: the CAS was still queued when processing stopped.
	OutcomeAbandoned Outcome = "abandoned"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomeEmitted, OutcomeDropped, OutcomeFailed, OutcomeAbandoned:
		return true
	}
	return false
}

// Entry is one journal record.
type Entry struct {
	RunID       string    `json:"run_id"`
	CASID       string    `json:"cas_id"`
	ParentCASID string    `json:"parent_cas_id,omitempty"`
	Outcome     Outcome   `json:"outcome"`
	Internal    bool      `json:"internal"`
	// LastComponent is the last component the CAS was dispatched to.
	LastComponent string    `json:"last_component,omitempty"`
	Error         string    `json:"error,omitempty"`
	Sequence      int       `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`
}

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record stores e. Sequence is assigned per run starting at 1 and
	// Timestamp is set if zero. Returns ErrAlreadyRecorded if the run
	// already holds an entry for e.CASID.
	Record(e Entry) error

	// Get returns the entry for a CAS in a run.
	// Returns ErrNotFound if there is none.
	Get(runID, casID string) (Entry, error)

	// List returns all entries of a run, ordered by sequence.
	// Returns empty slice (not error) if the run has no entries.
	List(runID string) ([]Entry, error)

	// DeleteRun removes all entries of a run.
	// Returns nil if the run has no entries.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for journal operations.
var (
	// ErrNotFound indicates an entry doesn't exist.
	ErrNotFound = errors.New("journal entry not found")

	// ErrAlreadyRecorded indicates a second terminal outcome for the same CAS.
	ErrAlreadyRecorded = errors.New("cas outcome already recorded")

	// ErrInvalidEntry indicates an entry without run id, CAS id, or valid outcome.
	ErrInvalidEntry = errors.New("invalid journal entry")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")
)

// validate checks the fields every store requires.
func validate(e Entry) error {
	if e.RunID == "" || e.CASID == "" || !e.Outcome.Valid() {
		return ErrInvalidEntry
	}
	return nil
}

// stamp fills in Sequence and Timestamp.
func stamp(e Entry, seq int) Entry {
	e.Sequence = seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

// Summary counts entries by outcome.
func Summary(entries []Entry) map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, e := range entries {
		counts[e.Outcome]++
	}
	return counts
}
