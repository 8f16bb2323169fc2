package flags

import "testing"

func TestBuild(t *testing.T) {
	s := Build(true, false, true, false, false)
	if !s.Test(PC) || !s.Test(INSTRS) {
		t.Fatal("expected PC|INSTRS", s)
	}
	if s.Test(READS_WRITES) || s.Test(SYSCALLS) || s.Test(BRANCHES) {
		t.Fatal("unexpected bits set", s)
	}
}

func TestReady(t *testing.T) {
	req := PC | INSTRS
	if Ready(req, PC) {
		t.Fatal("should not be ready with only PC set")
	}
	if !Ready(req, PC|INSTRS) {
		t.Fatal("should be ready once both bits are set")
	}
}

func TestReadyIgnoresSyscalls(t *testing.T) {
	req := PC | SYSCALLS
	if !Ready(req, PC) {
		t.Fatal("SYSCALLS should be excluded from the ready comparison")
	}
}

func TestBranchOnly(t *testing.T) {
	if !BranchOnly(BRANCHES) {
		t.Fatal("BRANCHES alone should be branch-only")
	}
	if BranchOnly(BRANCHES | PC) {
		t.Fatal("BRANCHES with PC should not be branch-only")
	}
}

func TestNoInsn(t *testing.T) {
	if !NoInsn(SYSCALLS) {
		t.Fatal("SYSCALLS alone should count as no-insn")
	}
	if NoInsn(SYSCALLS | PC) {
		t.Fatal("PC should disqualify no-insn")
	}
}

func TestWithWithout(t *testing.T) {
	var s Set
	s = s.With(PC).With(EXECUTED)
	if !s.Test(PC) || !s.Test(EXECUTED) {
		t.Fatal("With did not set bits", s)
	}
	s = s.Without(PC)
	if s.Test(PC) {
		t.Fatal("Without did not clear bit", s)
	}
}
