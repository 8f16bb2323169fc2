// Package install performs the plugin's install-time sequence: parse
// options, stand up the logger, dial the Sender, build the Flag Set and
// Correlation Tables, and hand back the single Context every callback is
// threaded through. This is the systems-language rewrite's answer to
// DESIGN NOTES §9's "process-wide singletons ... should be a single
// explicit context value," not module-level state.
package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/novafacing/cannonball/flags"
	"github.com/novafacing/cannonball/installerror"
	"github.com/novafacing/cannonball/log"
	"github.com/novafacing/cannonball/option"
	"github.com/novafacing/cannonball/sender"
	"github.com/novafacing/cannonball/trace"
)

// DialTimeout bounds how long Setup blocks waiting for the consumer to
// start listening on sock_path before giving up with SenderInitError.
// Declared as a var, not a const, so tests can shrink it.
var DialTimeout = 30 * time.Second

// MaxVCPUs sizes the Syscall table's fixed per-VCPU slot array. This
// plugin's scope is single-process user-mode emulation, where VCPU
// indices track guest threads; 4096 comfortably covers that.
const MaxVCPUs = 4096

// Context is the process-wide value threaded through every callback.
type Context struct {
	Options option.Options
	Logger  *log.Logger
	Sender  *sender.Sender
	Trace   *trace.Context

	// SessionID disambiguates separate plugin installs against the same
	// sock_path, e.g. across emulator restarts. Supplements spec.md,
	// which is silent on run identity.
	SessionID uuid.UUID
}

// New runs the full install sequence spec.md §7 describes: parse the
// option string, open the log destination, dial the Sender, and build the
// Correlation Tables behind a fresh trace.Context. Any failure returns an
// *installerror.Error identifying which stage failed.
func New(optionString string) (*Context, error) {
	opts, err := option.Parse(optionString)
	if err != nil {
		return nil, installerror.New(installerror.ArgumentError, err)
	}
	if opts.Help {
		return nil, installerror.New(installerror.ArgumentHandlerExit, nil)
	}

	lgr, err := openLog(opts.LogFile)
	if err != nil {
		return nil, err
	}
	if lvl, lerr := log.LevelFromInt(opts.LogLevel); lerr == nil {
		lgr.SetLevel(lvl)
	}

	sessionID := uuid.New()
	lgr.Info("installing", log.KV("session", sessionID.String()), log.KV("sock_path", opts.SockPath))

	if opts.TraceReads != opts.TraceWrites {
		lgr.Infof("trace_reads=%v trace_writes=%v both map to the single READS_WRITES bit; direction is still carried per-event via is_write", opts.TraceReads, opts.TraceWrites)
	}

	snd, err := sender.Setup(opts.SockPath, opts.Compress, DialTimeout, lgr)
	if err != nil {
		lgr.Errorf("sender setup failed: %v", err)
		return nil, installerror.New(installerror.SenderInitError, err)
	}

	request := flags.Build(opts.TracePC, opts.TraceReads || opts.TraceWrites, opts.TraceInstrs, opts.TraceSyscalls, opts.TraceBranches)
	tctx := trace.New(request, opts.MaxInflight, MaxVCPUs, snd, lgr)

	return &Context{
		Options:   opts,
		Logger:    lgr,
		Sender:    snd,
		Trace:     tctx,
		SessionID: sessionID,
	}, nil
}

// openLog opens log_file per spec.md §6 ("-" means stderr), mapping the
// failure modes spec.md §7 names onto installerror codes.
func openLog(path string) (*log.Logger, error) {
	if path == "" || path == "-" {
		return log.NewStderr(), nil
	}
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, installerror.New(installerror.MissingLogDirectory, err)
		}
		return nil, installerror.New(installerror.InvalidLogFilePath, err)
	} else if !info.IsDir() {
		return nil, installerror.New(installerror.InvalidLogFilePath, fmt.Errorf("%s is not a directory", dir))
	}
	lgr, err := log.NewFile(path)
	if err != nil {
		return nil, installerror.New(installerror.LogFileOpenFailed, err)
	}
	return lgr, nil
}

// Close is the at-exit callback's action (spec.md §4.3.7): tear down the
// Sender, flushing any partial batch and closing the socket. Idempotent,
// since sender.Teardown is.
func (c *Context) Close() error {
	return c.Trace.OnExit(0)
}
