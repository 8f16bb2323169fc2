package trace

import (
	"net"
	"testing"
	"time"

	"github.com/novafacing/cannonball/event"
	"github.com/novafacing/cannonball/flags"
	"github.com/novafacing/cannonball/sender"
)

// pipedSender returns a Sender wired to one end of an in-memory net.Pipe,
// plus a channel of every record decoded off the other end, in submission
// order. The reader goroutine exits once the pipe closes.
func pipedSender(t *testing.T) (*sender.Sender, <-chan event.Record) {
	t.Helper()
	client, srv := net.Pipe()
	snd, err := sender.New(client, "none", nil)
	if err != nil {
		t.Fatal(err)
	}
	out := make(chan event.Record, 1024)
	go func() {
		defer close(out)
		for {
			rec, err := event.DecodeReader(srv)
			if err != nil {
				return
			}
			out <- rec
		}
	}()
	return snd, out
}

func drain(t *testing.T, ch <-chan event.Record, n int) []event.Record {
	t.Helper()
	recs := make([]event.Record, 0, n)
	deadline := time.After(2 * time.Second)
	for len(recs) < n {
		select {
		case r, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d records", len(recs), n)
			}
			recs = append(recs, r)
		case <-deadline:
			t.Fatalf("timed out waiting for records: got %d of %d", len(recs), n)
		}
	}
	return recs
}

func threeInsnTB() TranslationBlock {
	return TranslationBlock{Instructions: []Instruction{
		{Addr: 0x1000, Opcode: []byte{0x90}},
		{Addr: 0x1001, Opcode: []byte{0x90}},
		{Addr: 0x1002, Opcode: []byte{0xc3}},
	}}
}

func testImage() Image {
	return Image{MinAddr: 0x1000, MaxAddr: 0x2000, EntryAddr: 0x1000, Protection: 5}
}

// S1 - PC-only trace, 3-instruction TB, executed once.
func TestScenarioPCOnly(t *testing.T) {
	snd, ch := pipedSender(t)
	ctx := New(flags.PC, 0, 1, snd, nil)

	res, err := ctx.OnTranslate(threeInsnTB(), testImage())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ExecHooks) != 3 {
		t.Fatalf("expected 3 exec hooks, got %d", len(res.ExecHooks))
	}
	for _, h := range res.ExecHooks {
		if err := ctx.OnExecute(0, h.ID); err != nil {
			t.Fatal(err)
		}
	}
	snd.Teardown()

	recs := drain(t, ch, 4)
	if recs[0].Kind != event.KindLoad {
		t.Fatalf("expected Load first, got %v", recs[0].Kind)
	}
	wantBranch := []bool{false, false, true}
	for i, want := range wantBranch {
		got := recs[i+1]
		if got.Kind != event.KindPc || got.Pc.Branch != want {
			t.Fatalf("record %d: got kind=%v branch=%v, want Pc branch=%v", i, got.Kind, got.Pc.Branch, want)
		}
	}
}

// S2 - Branch-only trace, same TB. BRANCHES alone still produces a Pc
// record for the last instruction, with Branch set; it is the only event
// kind that can carry branch information.
func TestScenarioBranchOnly(t *testing.T) {
	snd, ch := pipedSender(t)
	ctx := New(flags.BRANCHES, 0, 1, snd, nil)

	res, err := ctx.OnTranslate(threeInsnTB(), testImage())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ExecHooks) != 1 || len(res.MemHooks) != 0 {
		t.Fatalf("expected exactly 1 exec hook for the last instruction, got %+v", res)
	}
	if res.ExecHooks[0].InsnIndex != 2 {
		t.Fatalf("expected hook on instruction 2, got %d", res.ExecHooks[0].InsnIndex)
	}
	for _, h := range res.ExecHooks {
		if err := ctx.OnExecute(0, h.ID); err != nil {
			t.Fatal(err)
		}
	}
	snd.Teardown()
	recs := drain(t, ch, 2)
	if recs[0].Kind != event.KindLoad {
		t.Fatalf("expected Load first, got %v", recs[0].Kind)
	}
	if recs[1].Kind != event.KindPc || !recs[1].Pc.Branch {
		t.Fatalf("expected a Pc record with branch=true, got %+v", recs[1])
	}
}

// S2b - PC plus BRANCHES is not branch-only: every instruction gets a Pc
// record, and only the last one has branch=true.
func TestScenarioBranchesWithPC(t *testing.T) {
	snd, ch := pipedSender(t)
	ctx := New(flags.PC|flags.BRANCHES, 0, 1, snd, nil)

	res, err := ctx.OnTranslate(threeInsnTB(), testImage())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ExecHooks) != 3 {
		t.Fatalf("expected 3 exec hooks, one per instruction, got %d", len(res.ExecHooks))
	}
	if res.ExecHooks[2].InsnIndex != 2 {
		t.Fatalf("expected last hook on instruction 2, got %d", res.ExecHooks[2].InsnIndex)
	}
	for _, h := range res.ExecHooks {
		ctx.OnExecute(0, h.ID)
	}
	snd.Teardown()
	recs := drain(t, ch, 4)
	wantBranch := []bool{false, false, true}
	for i, want := range wantBranch {
		if got := recs[i+1]; got.Kind != event.KindPc || got.Pc.Branch != want {
			t.Fatalf("record %d: got kind=%v branch=%v, want Pc branch=%v", i, got.Kind, got.Pc.Branch, want)
		}
	}
}

// S3 - Instr+Mem, single instruction performing one read at 0xdead0000.
// Exercises both callback orderings.
func TestScenarioInstrMemBothOrders(t *testing.T) {
	for _, execFirst := range []bool{true, false} {
		snd, ch := pipedSender(t)
		ctx := New(flags.INSTRS|flags.READS_WRITES, 0, 1, snd, nil)

		tb := TranslationBlock{Instructions: []Instruction{{Addr: 0x2000, Opcode: []byte{0x8b, 0x00}}}}
		res, err := ctx.OnTranslate(tb, testImage())
		if err != nil {
			t.Fatal(err)
		}
		if len(res.ExecHooks) != 1 || len(res.MemHooks) != 1 {
			t.Fatalf("expected 1 exec hook and 1 mem hook, got %+v", res)
		}

		if execFirst {
			if err := ctx.OnMemoryExecute(0, res.MemHooks[0].ID); err != nil {
				t.Fatal(err)
			}
			if err := ctx.OnMemoryAccess(0, res.MemHooks[0].ID, 0xdead0000, false); err != nil {
				t.Fatal(err)
			}
		} else {
			if err := ctx.OnMemoryAccess(0, res.MemHooks[0].ID, 0xdead0000, false); err != nil {
				t.Fatal(err)
			}
			if err := ctx.OnMemoryExecute(0, res.MemHooks[0].ID); err != nil {
				t.Fatal(err)
			}
		}
		if err := ctx.OnExecute(0, res.ExecHooks[0].ID); err != nil {
			t.Fatal(err)
		}
		snd.Teardown()

		recs := drain(t, ch, 3)
		var sawInstr, sawMem bool
		for _, r := range recs[1:] {
			switch r.Kind {
			case event.KindInstr:
				sawInstr = true
				if r.Instr.Addr != 0x2000 {
					t.Fatalf("unexpected instr addr: %+v", r.Instr)
				}
			case event.KindMemAccess:
				sawMem = true
				if r.MemAccess.VAddr != 0xdead0000 || r.MemAccess.IsWrite {
					t.Fatalf("unexpected mem access: %+v", r.MemAccess)
				}
			}
		}
		if !sawInstr || !sawMem {
			t.Fatalf("missing expected records, execFirst=%v: %+v", execFirst, recs)
		}
	}
}

// S4 - Syscall trace, VCPU 0 enters syscall 1 and returns 10.
func TestScenarioSyscall(t *testing.T) {
	snd, ch := pipedSender(t)
	ctx := New(flags.SYSCALLS, 0, 1, snd, nil)

	// the syscall instruction must itself have been translated before it
	// can execute, so the Load event is submitted first, matching
	// invariant 4 ("Load precedes every other event").
	if _, err := ctx.OnTranslate(TranslationBlock{}, testImage()); err != nil {
		t.Fatal(err)
	}
	args := [event.NUM_SYSCALL_ARGS]uint64{0, 0x1000, 10, 0, 0, 0, 0, 0}
	if err := ctx.OnSyscallEntry(0, 1, args); err != nil {
		t.Fatal(err)
	}
	if err := ctx.OnSyscallReturn(0, 1, 10); err != nil {
		t.Fatal(err)
	}
	snd.Teardown()

	recs := drain(t, ch, 2)
	if recs[0].Kind != event.KindLoad {
		t.Fatalf("expected Load event first, got %v", recs[0].Kind)
	}
	if recs[1].Kind != event.KindSyscall {
		t.Fatalf("expected syscall record second, got %v", recs[1].Kind)
	}
	sc := recs[1].Syscall
	if sc.Num != 1 || sc.Rv != 10 || sc.Args != args {
		t.Fatalf("unexpected syscall record: %+v", sc)
	}
}

// S5 - Two syscall entries on VCPU 0 without an intervening return. The
// second entry evicts the first; a later return for the evicted syscall
// finds the slot empty and submits nothing. (A return for syscall 1 while
// syscall 2 is still pending would be a mismatch and drop syscall 2.)
func TestScenarioSyscallFaultInjection(t *testing.T) {
	snd, ch := pipedSender(t)
	ctx := New(flags.SYSCALLS, 0, 1, snd, nil)

	if err := ctx.OnSyscallEntry(0, 1, [event.NUM_SYSCALL_ARGS]uint64{}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.OnSyscallEntry(0, 2, [event.NUM_SYSCALL_ARGS]uint64{}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.OnSyscallReturn(0, 2, 7); err != nil {
		t.Fatal(err)
	}
	if err := ctx.OnSyscallReturn(0, 1, 99); err != nil {
		t.Fatal(err)
	}
	snd.Teardown()

	recs := drain(t, ch, 1)
	if recs[0].Syscall.Num != 2 || recs[0].Syscall.Rv != 7 {
		t.Fatalf("expected only the second syscall to be submitted, got %+v", recs[0].Syscall)
	}
}

// S6 - Batch flush: the Load event plus 65 PC events span two batches (the
// first is flushed when it fills, the rest on teardown), and every record
// reaches the far end. The exact 64-event boundary is checked in package
// sender's TestBatchFlushesAt64.
func TestScenarioBatchFlush(t *testing.T) {
	snd, ch := pipedSender(t)
	ctx := New(flags.PC, 0, 1, snd, nil)

	insns := make([]Instruction, sender.BatchSize+1)
	for i := range insns {
		insns[i].Addr = uint64(0x3000 + i)
	}
	res, err := ctx.OnTranslate(TranslationBlock{Instructions: insns}, testImage())
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range res.ExecHooks {
		if err := ctx.OnExecute(0, h.ID); err != nil {
			t.Fatal(err)
		}
	}
	snd.Teardown()

	drain(t, ch, 1+sender.BatchSize+1)
}

func TestOnExitTearsDownSender(t *testing.T) {
	snd, _ := pipedSender(t)
	ctx := New(flags.PC, 0, 1, snd, nil)
	if err := ctx.OnExit(0); err != nil {
		t.Fatal(err)
	}
	if !snd.Dead() {
		t.Fatal("expected sender to be dead after OnExit")
	}
	if err := ctx.OnExit(0); err != nil {
		t.Fatalf("OnExit should be idempotent via Teardown, got %v", err)
	}
}

// Invariant 1: each Flags value the Context stamps on a record (LOAD, PC,
// INSTRS, READS_WRITES, SYSCALLS) satisfies Ready(f, f).
func TestInvariantEveryRecordIsReady(t *testing.T) {
	for _, f := range []flags.Set{flags.LOAD, flags.PC, flags.INSTRS, flags.READS_WRITES, flags.SYSCALLS} {
		if !flags.Ready(f, f) {
			t.Fatalf("flag %v does not satisfy Ready(f, f)", f)
		}
	}
}
