// Command tracehost drives package trace's callback handlers against a
// synthetic translation block, standing in for the host emulator so the
// full pipeline (flags -> correlation -> sender -> wire bytes) is
// exercisable without a real emulator. Grounded on the teacher pack's
// synthetic-data generator binaries and on ingest/simple_example_test.go's
// pattern of a minimal, runnable usage example.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/novafacing/cannonball/debug"
	"github.com/novafacing/cannonball/event"
	"github.com/novafacing/cannonball/install"
	"github.com/novafacing/cannonball/trace"
)

func main() {
	optString := flag.String("options", "trace_pc=true,trace_instrs=true,trace_reads=true,trace_syscalls=true", "plugin option string")
	flag.Parse()

	go debug.HandleDebugSignals("tracehost")

	ctx, err := install.New(*optString)
	if err != nil {
		fmt.Fprintln(os.Stderr, "install:", err)
		os.Exit(1)
	}
	defer ctx.Close()

	tb := trace.TranslationBlock{Instructions: []trace.Instruction{
		{Addr: 0x400000, Opcode: []byte{0x48, 0x89, 0xe5}},
		{Addr: 0x400003, Opcode: []byte{0x8b, 0x45, 0xfc}},
		{Addr: 0x400006, Opcode: []byte{0xc3}},
	}}
	img := trace.Image{MinAddr: 0x400000, MaxAddr: 0x401000, EntryAddr: 0x400000, Protection: 5}

	res, err := ctx.Trace.OnTranslate(tb, img)
	if err != nil {
		ctx.Logger.Fatalf("OnTranslate: %v", err)
	}
	for _, h := range res.ExecHooks {
		if err := ctx.Trace.OnExecute(0, h.ID); err != nil {
			ctx.Logger.Errorf("OnExecute: %v", err)
		}
	}
	for _, h := range res.MemHooks {
		if err := ctx.Trace.OnMemoryExecute(0, h.ID); err != nil {
			ctx.Logger.Errorf("OnMemoryExecute: %v", err)
		}
		if err := ctx.Trace.OnMemoryAccess(0, h.ID, 0xdead0000, false); err != nil {
			ctx.Logger.Errorf("OnMemoryAccess: %v", err)
		}
	}

	args := [event.NUM_SYSCALL_ARGS]uint64{0, 0x1000, 10, 0, 0, 0, 0, 0}
	if err := ctx.Trace.OnSyscallEntry(0, 1, args); err != nil {
		ctx.Logger.Errorf("OnSyscallEntry: %v", err)
	}
	if err := ctx.Trace.OnSyscallReturn(0, 1, 10); err != nil {
		ctx.Logger.Errorf("OnSyscallReturn: %v", err)
	}

	ctx.Logger.Infof("synthetic translation block exercised, session %s", ctx.SessionID)
}
