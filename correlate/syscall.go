package correlate

import (
	"errors"
	"sync"

	"github.com/novafacing/cannonball/event"
	"github.com/novafacing/cannonball/log"
)

// ErrBadVCPU is returned when a VCPU index falls outside the table's
// fixed slot range.
var ErrBadVCPU = errors.New("vcpu index out of range")

// SyscallTable holds at most one in-flight syscall per VCPU. It is a
// fixed-size array indexed by VCPU id rather than a general map: the
// source's hash table trades away the "at most one per VCPU" invariant's
// structural guarantee for flexibility this plugin never needs, and an
// array gives predictable lookup latency under concurrent VCPU traffic.
type SyscallTable struct {
	mu       sync.Mutex
	slots    []event.Record
	occupied []bool
	lgr      *log.Logger
}

// NewSyscallTable builds a table with one slot per VCPU up to maxVCPUs.
// lgr may be nil, in which case eviction warnings are discarded.
func NewSyscallTable(maxVCPUs int, lgr *log.Logger) *SyscallTable {
	return &SyscallTable{
		slots:    make([]event.Record, maxVCPUs),
		occupied: make([]bool, maxVCPUs),
		lgr:      lgr,
	}
}

// Put replaces any prior entry for vcpu. A replaced entry is dropped and a
// warning logged: a VCPU can run only one syscall at a time, so two entries
// without an intervening return mean the host skipped a return callback or
// hit an execution path this plugin cannot follow.
func (t *SyscallTable) Put(vcpu int, rec event.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if vcpu < 0 || vcpu >= len(t.slots) {
		return ErrBadVCPU
	}
	if t.occupied[vcpu] && t.lgr != nil {
		evicted := t.slots[vcpu].Syscall.Num
		t.lgr.Warn("syscall evicted by new entry before return",
			log.KV("vcpu", vcpu),
			log.KV("syscall", evicted),
			log.KV("syscall_name", event.SyscallName(evicted)))
	}
	t.slots[vcpu] = rec
	t.occupied[vcpu] = true
	return nil
}

// Take removes and returns the entry for vcpu if one is present and its
// syscall number matches num. A mismatched number is logged and the slot
// is cleared without returning the stale entry; the host likely returned
// from a different syscall than the one recorded, and the recorded one is
// considered lost.
func (t *SyscallTable) Take(vcpu int, num int64) (event.Record, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if vcpu < 0 || vcpu >= len(t.slots) {
		return event.Record{}, false, ErrBadVCPU
	}
	if !t.occupied[vcpu] {
		return event.Record{}, false, nil
	}
	rec := t.slots[vcpu]
	t.occupied[vcpu] = false
	if rec.Syscall.Num != num {
		if t.lgr != nil {
			t.lgr.Error("syscall return does not match entry, dropping",
				log.KV("vcpu", vcpu),
				log.KV("return_syscall", num),
				log.KV("return_syscall_name", event.SyscallName(num)),
				log.KV("entry_syscall", rec.Syscall.Num),
				log.KV("entry_syscall_name", event.SyscallName(rec.Syscall.Num)))
		}
		return event.Record{}, false, nil
	}
	return rec, true, nil
}
