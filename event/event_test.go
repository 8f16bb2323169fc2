package event

import (
	"bytes"
	"testing"

	"github.com/novafacing/cannonball/flags"
)

func TestEncodeDecodePc(t *testing.T) {
	r := Record{Flags: flags.PC | flags.EXECUTED, Kind: KindPc, Pc: Pc{Addr: 0x4000, Branch: true}}
	buff := make([]byte, r.Size())
	n, err := r.Encode(buff)
	if err != nil {
		t.Fatal(err)
	}
	got, m, err := Decode(buff[:n])
	if err != nil {
		t.Fatal(err)
	}
	if m != n {
		t.Fatalf("decode consumed %d, encode wrote %d", m, n)
	}
	if got.Kind != KindPc || got.Pc.Addr != 0x4000 || !got.Pc.Branch {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Flags != r.Flags {
		t.Fatalf("flags mismatch: got %v want %v", got.Flags, r.Flags)
	}
}

func TestEncodeDecodeInstrVariableLength(t *testing.T) {
	r := Record{Flags: flags.INSTRS, Kind: KindInstr, Instr: Instr{Addr: 0x1000, OpcodeSize: 4}}
	copy(r.Instr.Opcode[:], []byte{0x48, 0x89, 0xe5, 0xc3})
	buff := make([]byte, r.Size())
	n, err := r.Encode(buff)
	if err != nil {
		t.Fatal(err)
	}
	if n != RECORD_HEADER_SIZE+9+4 {
		t.Fatalf("unexpected encoded size %d", n)
	}
	got, _, err := Decode(buff[:n])
	if err != nil {
		t.Fatal(err)
	}
	if got.Instr.OpcodeSize != 4 || !bytes.Equal(got.Instr.Opcode[:4], []byte{0x48, 0x89, 0xe5, 0xc3}) {
		t.Fatalf("opcode round trip mismatch: %+v", got.Instr)
	}
}

func TestEncodeOpcodeTooLarge(t *testing.T) {
	r := Record{Kind: KindInstr, Instr: Instr{OpcodeSize: MAX_OPCODE_SIZE + 1}}
	buff := make([]byte, 64)
	if _, err := r.Encode(buff); err != ErrOpcodeTooLarge {
		t.Fatalf("expected ErrOpcodeTooLarge, got %v", err)
	}
}

func TestEncodeDecodeSyscall(t *testing.T) {
	r := Record{Flags: flags.SYSCALLS, Kind: KindSyscall, Syscall: Syscall{Num: 1, Rv: 10}}
	r.Syscall.Args[1] = 0x1000
	r.Syscall.Args[2] = 10
	buff := make([]byte, r.Size())
	n, err := r.Encode(buff)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := Decode(buff[:n])
	if err != nil {
		t.Fatal(err)
	}
	if got.Syscall.Num != 1 || got.Syscall.Rv != 10 || got.Syscall.Args[1] != 0x1000 {
		t.Fatalf("syscall round trip mismatch: %+v", got.Syscall)
	}
}

func TestDecodeReaderStream(t *testing.T) {
	var buf bytes.Buffer
	recs := []Record{
		{Kind: KindLoad, Load: Load{MinAddr: 1, MaxAddr: 2, EntryAddr: 3}},
		{Kind: KindPc, Pc: Pc{Addr: 0x400000, Branch: false}},
		{Kind: KindMemAccess, MemAccess: MemAccess{Addr: 0x400000, VAddr: 0xdead0000, IsWrite: false}},
	}
	for i := range recs {
		if _, err := recs[i].EncodeWriter(&buf); err != nil {
			t.Fatal(err)
		}
	}
	for i := range recs {
		got, err := DecodeReader(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if got.Kind != recs[i].Kind {
			t.Fatalf("record %d: kind mismatch got %v want %v", i, got.Kind, recs[i].Kind)
		}
	}
}

func TestDecodeInvalidHeader(t *testing.T) {
	if _, _, err := Decode([]byte{1, 2}); err != ErrInvalidHeader {
		t.Fatalf("expected ErrInvalidHeader, got %v", err)
	}
}
