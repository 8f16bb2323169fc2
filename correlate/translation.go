package correlate

import (
	"sync"

	"github.com/novafacing/cannonball/event"
)

// TranslationTable parks Pc and Instr events allocated at translation time
// until their corresponding execute callback fires.
type TranslationTable struct {
	mu      sync.Mutex
	arena   *Arena
	entries map[ID]event.Record
	max     int
}

// NewTranslationTable builds an empty table. max <= 0 means unbounded.
func NewTranslationTable(arena *Arena, max int) *TranslationTable {
	return &TranslationTable{
		arena:   arena,
		entries: make(map[ID]event.Record),
		max:     max,
	}
}

// Insert allocates an identity for rec and parks it, returning the identity
// the caller attaches to the host's execute-callback registration.
func (t *TranslationTable) Insert(rec event.Record) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.max > 0 && len(t.entries) >= t.max {
		return 0, ErrTableFull
	}
	id := t.arena.Next()
	t.entries[id] = rec
	return id, nil
}

// Take looks up and removes the entry for id. Absence is not an error: it
// means the event was already correlated and removed by a concurrent
// callback, or never belonged to this table.
func (t *TranslationTable) Take(id ID) (event.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return rec, ok
}

// Len reports the number of outstanding entries, for tests and diagnostics.
func (t *TranslationTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
