package correlate

import (
	"sync"

	"github.com/novafacing/cannonball/event"
)

// memEntry wraps a MemAccess event with the two completion bits: it is not
// ready to submit until both the memory-execute and memory-access callbacks
// have reported in, in either order.
type memEntry struct {
	rec      event.Record
	memSeen  bool
	execSeen bool
}

func (e *memEntry) complete() bool {
	return e.memSeen && e.execSeen
}

// MemoryTable parks MemAccess events until both their exec-seen and
// mem-seen bits are set.
type MemoryTable struct {
	mu      sync.Mutex
	arena   *Arena
	entries map[ID]*memEntry
	max     int
}

// NewMemoryTable builds an empty table. max <= 0 means unbounded.
func NewMemoryTable(arena *Arena, max int) *MemoryTable {
	return &MemoryTable{
		arena:   arena,
		entries: make(map[ID]*memEntry),
		max:     max,
	}
}

// Insert allocates an identity for rec with both completion bits clear.
func (t *MemoryTable) Insert(rec event.Record) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.max > 0 && len(t.entries) >= t.max {
		return 0, ErrTableFull
	}
	id := t.arena.Next()
	t.entries[id] = &memEntry{rec: rec}
	return id, nil
}

// MarkExec sets the exec-seen bit for id, fired from the memory-execute
// callback. If mem-seen is already set the entry is complete: it is
// removed and returned for submission. Absence is not an error.
func (t *MemoryTable) MarkExec(id ID) (rec event.Record, done bool, found bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return event.Record{}, false, false
	}
	e.execSeen = true
	if e.complete() {
		delete(t.entries, id)
		return e.rec, true, true
	}
	return event.Record{}, false, true
}

// MarkMem sets the mem-seen bit for id and stamps the record's address and
// read/write discriminator from the memory-access callback's arguments. If
// exec-seen is already set the entry is complete: it is removed and
// returned for submission. Absence is not an error.
func (t *MemoryTable) MarkMem(id ID, vaddr uint64, isWrite bool) (rec event.Record, done bool, found bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return event.Record{}, false, false
	}
	e.memSeen = true
	e.rec.MemAccess.VAddr = vaddr
	e.rec.MemAccess.IsWrite = isWrite
	if e.complete() {
		delete(t.entries, id)
		return e.rec, true, true
	}
	return event.Record{}, false, true
}

// Len reports the number of outstanding entries, for tests and diagnostics.
func (t *MemoryTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
