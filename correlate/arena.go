// Package correlate implements the three scratch tables that park
// partially-built guest events between callbacks: the Translation table,
// the Memory table, and the Syscall table. Each owns its own lock and no
// two are ever held at once by the same goroutine.
package correlate

import (
	"errors"
	"sync"
)

// ErrTableFull is returned by Insert when a table's max_inflight soft cap
// would be exceeded. The caller treats this as an allocation failure: log
// it, drop the event, keep tracing.
var ErrTableFull = errors.New("correlation table at capacity")

// ID is an opaque event identity, a monotonic index into an Arena rather
// than the scratch record's own address. This is the systems-language
// rewrite of the "record's own scratch address suffices" identity scheme:
// a process-wide counter plays the role a pointer would in C.
type ID uint64

// Arena hands out identities for Translation- and Memory-table entries. It
// holds no event data itself; tables keep their own id-to-record maps.
type Arena struct {
	mu   sync.Mutex
	next ID
}

// Next returns a fresh, never-reused identity.
func (a *Arena) Next() ID {
	a.mu.Lock()
	a.next++
	id := a.next
	a.mu.Unlock()
	return id
}
