package casflow

// entry is one slot in a component sequence. The id distinguishes a key
// that was removed and later added again from its earlier incarnation.
type entry struct {
	key        ComponentKey
	id         uint64
	multiplier bool
}

// sequence is an immutable snapshot of a controller's component order.
// Mutations build a new snapshot and swap it in; flows hold on to the
// snapshot they last dispatched from.
type sequence struct {
	gen     uint64
	entries []entry
	index   map[ComponentKey]int
}

func newSequence(gen uint64, entries []entry) *sequence {
	index := make(map[ComponentKey]int, len(entries))
	for i, e := range entries {
		index[e.key] = i
	}
	return &sequence{gen: gen, entries: entries, index: index}
}

func (s *sequence) len() int {
	return len(s.entries)
}

func (s *sequence) at(i int) entry {
	return s.entries[i]
}

// lookup returns the position of key.
func (s *sequence) lookup(key ComponentKey) (int, bool) {
	i, ok := s.index[key]
	return i, ok
}

// holds returns the position of e if this exact entry is still present.
func (s *sequence) holds(e entry) (int, bool) {
	i, ok := s.index[e.key]
	if !ok || s.entries[i].id != e.id {
		return 0, false
	}
	return i, true
}

func (s *sequence) keys() []ComponentKey {
	keys := make([]ComponentKey, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.key
	}
	return keys
}

// cursor marks the last entry a flow dispatched. A zero cursor is
// positioned before the first entry.
type cursor struct {
	snap *sequence
	pos  int
}

// startCursor is positioned before the first entry of any snapshot.
var startCursor = cursor{pos: -1}

// after returns a cursor that has just dispatched position pos of snap.
func after(snap *sequence, pos int) cursor {
	return cursor{snap: snap, pos: pos}
}

// resolve returns the index in cur of the next entry to dispatch.
//
// When cur is the snapshot the cursor was taken from this is pos+1.
// Otherwise the cursor walks back from its last dispatched entry to the
// nearest one still present in cur and resumes right after it. Entries
// removed since dispatch are therefore skipped, entries appended since are
// reached, and nothing already dispatched is offered again.
func (c cursor) resolve(cur *sequence) int {
	if c.pos < 0 || c.snap == nil {
		return 0
	}
	if c.snap == cur {
		return c.pos + 1
	}
	for i := c.pos; i >= 0; i-- {
		if j, ok := cur.holds(c.snap.entries[i]); ok {
			return j + 1
		}
	}
	return 0
}
