//go:build linux && amd64

package event

import "golang.org/x/sys/unix"

// syscallNames is a best-effort amd64 Linux syscall-number-to-name table
// used only for log messages; it never affects wire content. Covers the
// syscalls most commonly seen while tracing a user-mode process.
var syscallNames = map[int64]string{
	unix.SYS_READ:      "read",
	unix.SYS_WRITE:     "write",
	unix.SYS_OPEN:      "open",
	unix.SYS_CLOSE:     "close",
	unix.SYS_MMAP:      "mmap",
	unix.SYS_MUNMAP:    "munmap",
	unix.SYS_BRK:       "brk",
	unix.SYS_RT_SIGACTION: "rt_sigaction",
	unix.SYS_ACCESS:    "access",
	unix.SYS_EXECVE:    "execve",
	unix.SYS_EXIT:      "exit",
	unix.SYS_EXIT_GROUP: "exit_group",
	unix.SYS_FSTAT:     "fstat",
	unix.SYS_STAT:      "stat",
	unix.SYS_MPROTECT:  "mprotect",
	unix.SYS_CLONE:     "clone",
	unix.SYS_FUTEX:     "futex",
}

// SyscallName returns the best-effort name for a syscall number, or
// "unknown" if this platform's table has no entry for it.
func SyscallName(num int64) string {
	if n, ok := syscallNames[num]; ok {
		return n
	}
	return "unknown"
}
