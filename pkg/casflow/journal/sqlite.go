package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists the journal to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite journal.
// The path should be a file path (e.g., "./journal.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cas_outcomes (
			run_id TEXT NOT NULL,
			cas_id TEXT NOT NULL,
			parent_cas_id TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			internal INTEGER NOT NULL,
			last_component TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			sequence INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (run_id, cas_id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_cas_outcomes_run_seq
		ON cas_outcomes(run_id, sequence)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Record implements Store.
func (s *SQLiteStore) Record(e Entry) error {
	if err := validate(e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM cas_outcomes WHERE run_id = ? AND cas_id = ?
	`, e.RunID, e.CASID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check entry: %w", err)
	}
	if exists > 0 {
		return ErrAlreadyRecorded
	}

	var seq int
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM cas_outcomes WHERE run_id = ?
	`, e.RunID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	e = stamp(e, seq)
	_, err = tx.Exec(`
		INSERT INTO cas_outcomes
			(run_id, cas_id, parent_cas_id, outcome, internal, last_component, error, sequence, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, e.CASID, e.ParentCASID, string(e.Outcome), boolToInt(e.Internal),
		e.LastComponent, e.Error, e.Sequence, e.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT run_id, cas_id, parent_cas_id, outcome, internal, last_component, error, sequence, timestamp
	FROM cas_outcomes`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e         Entry
		outcome   string
		internal  int
		timestamp string
	)
	if err := r.Scan(&e.RunID, &e.CASID, &e.ParentCASID, &outcome, &internal,
		&e.LastComponent, &e.Error, &e.Sequence, &timestamp); err != nil {
		return Entry{}, err
	}
	e.Outcome = Outcome(outcome)
	e.Internal = internal != 0
	e.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
	return e, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(runID, casID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrStoreClosed
	}

	e, err := scanEntry(s.db.QueryRow(selectColumns+`
		WHERE run_id = ? AND cas_id = ?
	`, runID, casID))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load entry: %w", err)
	}
	return e, nil
}

// List implements Store.
func (s *SQLiteStore) List(runID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(selectColumns+`
		WHERE run_id = ?
		ORDER BY sequence
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// DeleteRun implements Store.
func (s *SQLiteStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM cas_outcomes WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// Close implements Store. Calling Close more than once is safe.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
