// Package option parses the plugin's comma-separated key=value install
// string into a typed Options value. Grounded on ingest/config's
// ParseBool/ParseUint64/ParseInt64 string-coercion helpers, extended with
// the plugin's own boolean literal set and option names.
package option

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultLogFile    = "-"
	DefaultLogLevel   = 3
	DefaultSockPath   = "/dev/shm/cannonball.sock"
	DefaultCompress   = "none"
	DefaultMaxInflight = 65536
)

// Options is the fully parsed, defaulted configuration surface spec.md §6
// describes, plus the compress and max_inflight supplements.
type Options struct {
	Help bool

	LogFile  string
	LogLevel int

	SockPath string

	TracePC       bool
	TraceReads    bool
	TraceWrites   bool
	TraceSyscalls bool
	TraceInstrs   bool
	TraceBranches bool

	Compress    string
	MaxInflight int
}

// Default returns an Options populated with spec.md's documented defaults.
func Default() Options {
	return Options{
		LogFile:     DefaultLogFile,
		LogLevel:    DefaultLogLevel,
		SockPath:    DefaultSockPath,
		Compress:    DefaultCompress,
		MaxInflight: DefaultMaxInflight,
	}
}

// Parse reads a comma-separated key=value option string into an Options,
// starting from Default(). "help" may appear as a bare key with no
// "=value" and sets Help whatever value it carries; every other boolean
// option needs one of ParseBool's literals.
func Parse(s string) (Options, error) {
	opts := Default()
	s = strings.TrimSpace(s)
	if s == "" {
		return opts, nil
	}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, hasValue := strings.Cut(field, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "help":
			opts.Help = true
		case "log_file":
			if !hasValue {
				return opts, fmt.Errorf("option %q requires a value", key)
			}
			opts.LogFile = value
		case "log_level":
			var lvl int64
			if lvl, err = ParseInt64(value); err != nil {
				return opts, fmt.Errorf("option %q: %w", key, err)
			}
			if lvl < 0 || lvl > 4 {
				return opts, fmt.Errorf("option %q: %d out of range [0,4]", key, lvl)
			}
			opts.LogLevel = int(lvl)
		case "sock_path":
			if !hasValue {
				return opts, fmt.Errorf("option %q requires a value", key)
			}
			opts.SockPath = value
		case "trace_pc":
			if opts.TracePC, err = ParseBool(value); err != nil {
				return opts, fmt.Errorf("option %q: %w", key, err)
			}
		case "trace_reads":
			if opts.TraceReads, err = ParseBool(value); err != nil {
				return opts, fmt.Errorf("option %q: %w", key, err)
			}
		case "trace_writes":
			if opts.TraceWrites, err = ParseBool(value); err != nil {
				return opts, fmt.Errorf("option %q: %w", key, err)
			}
		case "trace_syscalls":
			if opts.TraceSyscalls, err = ParseBool(value); err != nil {
				return opts, fmt.Errorf("option %q: %w", key, err)
			}
		case "trace_instrs":
			if opts.TraceInstrs, err = ParseBool(value); err != nil {
				return opts, fmt.Errorf("option %q: %w", key, err)
			}
		case "trace_branches":
			if opts.TraceBranches, err = ParseBool(value); err != nil {
				return opts, fmt.Errorf("option %q: %w", key, err)
			}
		case "compress":
			value = strings.ToLower(value)
			if value != "none" && value != "snappy" {
				return opts, fmt.Errorf("option %q: unknown codec %q", key, value)
			}
			opts.Compress = value
		case "max_inflight":
			var v uint64
			if v, err = ParseUint64(value); err != nil {
				return opts, fmt.Errorf("option %q: %w", key, err)
			}
			opts.MaxInflight = int(v)
		default:
			return opts, fmt.Errorf("unknown option %q", key)
		}
	}
	return opts, nil
}

// ParseBool accepts the plugin's extended boolean literal set:
// true|yes|1|on and false|no|0|off, case-insensitively.
func ParseBool(v string) (r bool, err error) {
	switch strings.ToLower(v) {
	case "true", "yes", "1", "on":
		r = true
	case "false", "no", "0", "off":
		r = false
	default:
		err = fmt.Errorf("unknown boolean value %q", v)
	}
	return
}

// ParseUint64 accepts decimal or 0x-prefixed hex.
func ParseUint64(v string) (i uint64, err error) {
	if strings.HasPrefix(v, "0x") {
		i, err = strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 64)
	} else {
		i, err = strconv.ParseUint(v, 10, 64)
	}
	return
}

// ParseInt64 accepts decimal or 0x-prefixed hex.
func ParseInt64(v string) (i int64, err error) {
	if strings.HasPrefix(v, "0x") {
		i, err = strconv.ParseInt(strings.TrimPrefix(v, "0x"), 16, 64)
	} else {
		i, err = strconv.ParseInt(v, 10, 64)
	}
	return
}
