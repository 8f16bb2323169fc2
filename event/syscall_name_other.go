//go:build !(linux && amd64)

package event

// SyscallName is unimplemented outside linux/amd64; this plugin's scope
// never needs syscall names on the wire, only in log messages.
func SyscallName(num int64) string {
	return "unknown"
}
