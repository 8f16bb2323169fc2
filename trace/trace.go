// Package trace is the Callback State Machine: it receives the host
// emulator's translation, execute, memory, and syscall callbacks, drives
// the Correlation Tables until events are complete, and hands finished
// records to the Sender. The host-emulator ABI itself is out of scope
// here (see cmd/tracehost for a synthetic stand-in); Context exposes
// plain Go methods taking the typed arguments a thin adapter would bind
// to the real plugin ABI.
package trace

import (
	"fmt"
	"sync"

	"github.com/novafacing/cannonball/correlate"
	"github.com/novafacing/cannonball/event"
	"github.com/novafacing/cannonball/flags"
	"github.com/novafacing/cannonball/log"
	"github.com/novafacing/cannonball/sender"
)

// Instruction is one instruction of a translation block, as the host
// reports it at translation time.
type Instruction struct {
	Addr   uint64
	Opcode []byte
}

// TranslationBlock is the host's description of a freshly translated,
// straight-line run of guest instructions.
type TranslationBlock struct {
	Instructions []Instruction
}

// Image describes the guest program, queried from the host on the first
// translation callback only.
type Image struct {
	MinAddr    uint64
	MaxAddr    uint64
	EntryAddr  uint64
	Protection uint32
}

// ExecHook tells the host to register an execute callback on instruction
// InsnIndex carrying ID as its opaque user-data.
type ExecHook struct {
	InsnIndex int
	ID        correlate.ID
}

// MemHook tells the host to register both a memory-execute and a
// memory-access callback on instruction InsnIndex, both carrying ID.
type MemHook struct {
	InsnIndex int
	ID        correlate.ID
}

// TranslateResult is the set of per-instruction callback registrations
// OnTranslate asks the host to make.
type TranslateResult struct {
	ExecHooks []ExecHook
	MemHooks  []MemHook
}

// Context is the single process-wide value the Flag Set, Correlation
// Tables, and Sender handle are threaded through. Per DESIGN NOTES §9 it
// is passed explicitly rather than kept as module-level state, so a host
// adapter can carry it as the callback user-data root.
type Context struct {
	request flags.Set

	translation *correlate.TranslationTable
	memory      *correlate.MemoryTable
	syscalls    *correlate.SyscallTable

	snd *sender.Sender
	lgr *log.Logger

	mu     sync.Mutex
	loaded bool
}

// New builds a Context ready to receive callbacks. maxInflight bounds
// each of the Translation and Memory tables (0 means unbounded);
// maxVCPUs sizes the Syscall table's fixed slot array.
func New(request flags.Set, maxInflight, maxVCPUs int, snd *sender.Sender, lgr *log.Logger) *Context {
	arena := &correlate.Arena{}
	return &Context{
		request:     request,
		translation: correlate.NewTranslationTable(arena, maxInflight),
		memory:      correlate.NewMemoryTable(arena, maxInflight),
		syscalls:    correlate.NewSyscallTable(maxVCPUs, lgr),
		snd:         snd,
		lgr:         lgr,
	}
}

// OnTranslate handles a newly translated block. On the first call ever,
// it submits the one-time Load event ahead of everything else. It then
// walks the block's instructions (skipping to the last one if the
// request is branch-only) and allocates whichever per-instruction
// records the Flag Set calls for, returning the callback registrations
// the host should make to eventually complete them.
func (c *Context) OnTranslate(tb TranslationBlock, img Image) (TranslateResult, error) {
	c.mu.Lock()
	first := !c.loaded
	c.loaded = true
	c.mu.Unlock()

	if first {
		load := event.Record{
			Flags: flags.LOAD,
			Kind:  event.KindLoad,
			Load: event.Load{
				MinAddr:    img.MinAddr,
				MaxAddr:    img.MaxAddr,
				EntryAddr:  img.EntryAddr,
				Protection: img.Protection,
			},
		}
		if err := c.snd.Submit(load); err != nil {
			return TranslateResult{}, err
		}
	}

	n := len(tb.Instructions)
	if n == 0 {
		return TranslateResult{}, nil
	}

	iStart := 0
	if flags.BranchOnly(c.request) {
		iStart = n - 1
	}

	var result TranslateResult
	for i := iStart; i < n; i++ {
		insn := tb.Instructions[i]
		branch := i == n-1

		if c.request.Test(flags.PC) || flags.BranchOnly(c.request) {
			rec := event.Record{
				Flags: flags.PC,
				Kind:  event.KindPc,
				Pc:    event.Pc{Addr: insn.Addr, Branch: branch},
			}
			if id, err := c.translation.Insert(rec); err != nil {
				c.logDrop("Pc", insn.Addr, err)
			} else {
				result.ExecHooks = append(result.ExecHooks, ExecHook{InsnIndex: i, ID: id})
			}
		}

		if c.request.Test(flags.INSTRS) {
			size := len(insn.Opcode)
			if size > event.MAX_OPCODE_SIZE {
				size = event.MAX_OPCODE_SIZE
			}
			var rec event.Record
			rec.Flags = flags.INSTRS
			rec.Kind = event.KindInstr
			rec.Instr.Addr = insn.Addr
			rec.Instr.OpcodeSize = uint8(size)
			copy(rec.Instr.Opcode[:], insn.Opcode[:size])
			if id, err := c.translation.Insert(rec); err != nil {
				c.logDrop("Instr", insn.Addr, err)
			} else {
				result.ExecHooks = append(result.ExecHooks, ExecHook{InsnIndex: i, ID: id})
			}
		}

		if c.request.Test(flags.READS_WRITES) {
			rec := event.Record{
				Flags:     flags.READS_WRITES,
				Kind:      event.KindMemAccess,
				MemAccess: event.MemAccess{Addr: insn.Addr},
			}
			if id, err := c.memory.Insert(rec); err != nil {
				c.logDrop("MemAccess", insn.Addr, err)
			} else {
				result.MemHooks = append(result.MemHooks, MemHook{InsnIndex: i, ID: id})
			}
		}
	}
	return result, nil
}

func (c *Context) logDrop(kind string, addr uint64, err error) {
	if c.lgr != nil {
		c.lgr.Error("OnTranslate: dropping event",
			log.KV("kind", kind),
			log.KV("addr", fmt.Sprintf("0x%x", addr)),
			log.KVErr(err))
	}
}

// OnExecute handles the execute callback for a Pc or Instr identity.
// Absence in the table is not an error.
func (c *Context) OnExecute(vcpu int, id correlate.ID) error {
	rec, ok := c.translation.Take(id)
	if !ok {
		return nil
	}
	return c.snd.Submit(rec)
}

// OnMemoryExecute handles the memory-execute callback for a MemAccess
// identity, setting its exec-seen bit.
func (c *Context) OnMemoryExecute(vcpu int, id correlate.ID) error {
	rec, done, found := c.memory.MarkExec(id)
	if !found || !done {
		return nil
	}
	return c.snd.Submit(rec)
}

// OnMemoryAccess handles the memory-access callback for a MemAccess
// identity, stamping the accessed address and read/write bit and setting
// the mem-seen bit.
func (c *Context) OnMemoryAccess(vcpu int, id correlate.ID, vaddr uint64, isWrite bool) error {
	rec, done, found := c.memory.MarkMem(id, vaddr, isWrite)
	if !found || !done {
		return nil
	}
	return c.snd.Submit(rec)
}

// OnSyscallEntry allocates a Syscall record with a placeholder return
// value and parks it for the matching VCPU.
func (c *Context) OnSyscallEntry(vcpu int, num int64, args [event.NUM_SYSCALL_ARGS]uint64) error {
	rec := event.Record{
		Flags:   flags.SYSCALLS,
		Kind:    event.KindSyscall,
		Syscall: event.Syscall{Num: num, Rv: -1, Args: args},
	}
	if c.lgr != nil {
		c.lgr.Debug("syscall entry",
			log.KV("vcpu", vcpu),
			log.KV("syscall", num),
			log.KV("syscall_name", event.SyscallName(num)))
	}
	return c.syscalls.Put(vcpu, rec)
}

// OnSyscallReturn completes and submits the syscall record for vcpu if its
// number matches the one recorded at entry.
func (c *Context) OnSyscallReturn(vcpu int, num int64, rv int64) error {
	rec, ok, err := c.syscalls.Take(vcpu, num)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if c.lgr != nil {
		c.lgr.Debug("syscall return",
			log.KV("vcpu", vcpu),
			log.KV("syscall", num),
			log.KV("syscall_name", event.SyscallName(num)),
			log.KV("rv", rv))
	}
	rec.Syscall.Rv = rv
	return c.snd.Submit(rec)
}

// OnExit tears down the Sender, flushing any partial batch and closing
// the socket. In this plugin's single-process user-mode scope there is
// exactly one VCPU, so the first exit is the only exit.
func (c *Context) OnExit(vcpu int) error {
	return c.snd.Teardown()
}
