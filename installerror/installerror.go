// Package installerror defines the error codes visible at the plugin's
// install boundary, the vocabulary the host's install-failure channel
// expects back when initialization does not reach a running trace.
package installerror

// Code enumerates the install-time and hot-path error kinds named in the
// component design: everything the core can report about itself without
// leaking Go-specific error values across the host ABI boundary.
type Code int

const (
	Success Code = iota
	Failure
	OutOfMemory
	ArgumentError
	ArgumentHandlerExit
	SenderInitError
	InvalidLogFilePath
	MissingLogDirectory
	LogFileOpenFailed
	SystemEmulationUnsupported
)

func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	case OutOfMemory:
		return "OutOfMemory"
	case ArgumentError:
		return "ArgumentError"
	case ArgumentHandlerExit:
		return "ArgumentHandlerExit"
	case SenderInitError:
		return "SenderInitError"
	case InvalidLogFilePath:
		return "InvalidLogFilePath"
	case MissingLogDirectory:
		return "MissingLogDirectory"
	case LogFileOpenFailed:
		return "LogFileOpenFailed"
	case SystemEmulationUnsupported:
		return "SystemEmulationUnsupported"
	}
	return "Unknown"
}

// Error wraps a Code with the underlying cause, if any, satisfying the
// standard error interface so callers can use errors.As to recover the
// *Error and its Code, and errors.Is against the wrapped cause, while still
// printing a human-readable cause.
type Error struct {
	Code  Code
	Cause error
}

func New(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}
