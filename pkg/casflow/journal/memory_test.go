package journal_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/randalmurphal/casflow/pkg/casflow/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Len(t *testing.T) {
	store := journal.NewMemoryStore()
	defer store.Close()

	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Record(entry("run-1", "cas-a", journal.OutcomeEmitted)))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Record(entry("run-1", "cas-b", journal.OutcomeDropped)))
	require.NoError(t, store.Record(entry("run-2", "cas-a", journal.OutcomeCompleted)))
	assert.Equal(t, 3, store.Len())

	require.NoError(t, store.DeleteRun("run-1"))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ConcurrentExactlyOnce(t *testing.T) {
	store := journal.NewMemoryStore()
	defer store.Close()

	const numGoroutines = 50
	const numCAS = 20

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		recorded int
	)
	wg.Add(numGoroutines)

	// Every goroutine races to record the same CAS ids; exactly one wins each.
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < numCAS; j++ {
				err := store.Record(entry("run-1", fmt.Sprintf("cas-%d", j), journal.OutcomeEmitted))
				if err == nil {
					mu.Lock()
					recorded++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, journal.ErrAlreadyRecorded)
				}
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, numCAS, recorded)
	entries, err := store.List("run-1")
	require.NoError(t, err)
	require.Len(t, entries, numCAS)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Sequence)
	}
}
