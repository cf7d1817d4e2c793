package target

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/omnitarget/pkg/backends"
)

// ErrorKind groups errors by what went wrong.
type ErrorKind uint8

const (
	KindConfiguration ErrorKind = iota + 1
	KindIO
	KindProcessor
	KindState
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindIO:
		return "io"
	case KindProcessor:
		return "processor"
	case KindState:
		return "state"
	}
	return "unknown"
}

// State errors. They are always returned to the caller, never only reported.
var (
	ErrAlreadyFinalized = &Error{Kind: KindState, Err: errors.New("target already finalized")}
	ErrShuttingDown     = &Error{Kind: KindState, Err: errors.New("target is shutting down")}
	ErrNotShutdown      = &Error{Kind: KindState, Err: errors.New("target has not been shut down")}
	ErrAlreadyDisposed  = &Error{Kind: KindState, Err: errors.New("target already disposed")}
	ErrShutdownTimeout  = &Error{Kind: KindState, Err: errors.New("shutdown did not finish in time")}
	ErrQueueFull        = &Error{Kind: KindState, Err: errors.New("queue full, event dropped")}
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = &Error{Kind: KindConfiguration, Err: errors.New("invalid configuration")}

// ErrTargetLocked is returned by New when another target owns the directory.
var ErrTargetLocked = &Error{Kind: KindIO, Err: backends.ErrLocked}

// Error is the error type returned by the target package.
type Error struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Path)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.String() + " error")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by identity and by their cause, so a wrapped
// &Error{Err: ErrInvalidConfig} still satisfies errors.Is(err, ErrInvalidConfig).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (t.Op == "" && t.Path == "" && e.Err == t.Err)
}

func configError(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: errors.Wrap(ErrInvalidConfig, err.Error())}
}

func ioError(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// ErrorLevel rates a diagnostic.
type ErrorLevel uint8

const (
	ErrorLevelLow ErrorLevel = iota
	ErrorLevelMedium
	ErrorLevelHigh
	ErrorLevelCritical
)

func (l ErrorLevel) String() string {
	switch l {
	case ErrorLevelLow:
		return "low"
	case ErrorLevelMedium:
		return "medium"
	case ErrorLevelHigh:
		return "high"
	}
	return "critical"
}

// LogError is a failure the target handled on its own and reports through
// its ErrorHandler: write failures, processor failures, priority changes the
// OS refused.
type LogError struct {
	Timestamp time.Time
	Level     ErrorLevel
	Operation string // "write", "rotate", "process", "priority", ...
	Target    string
	Path      string
	Message   string
	Err       error
}

func (le LogError) Error() string {
	where := le.Operation
	if le.Path != "" {
		where += " " + le.Path
	}
	if le.Err == nil {
		return fmt.Sprintf("omnitarget error: %s: %s", where, le.Message)
	}
	return fmt.Sprintf("omnitarget error: %s: %s: %v", where, le.Message, le.Err)
}

// ErrorHandler receives diagnostics. It is called from the consumer, the
// processor runner and the maintenance schedule, so it must be safe for
// concurrent use and must not call back into the target.
type ErrorHandler func(LogError)

// StderrErrorHandler writes one line per diagnostic to stderr.
func StderrErrorHandler(err LogError) {
	fmt.Fprintln(os.Stderr, err.Error())
}

// SilentErrorHandler discards diagnostics.
func SilentErrorHandler(LogError) {}

// ChannelErrorHandler forwards diagnostics to ch, dropping them when ch is full.
func ChannelErrorHandler(ch chan<- LogError) ErrorHandler {
	return func(err LogError) {
		select {
		case ch <- err:
		default:
		}
	}
}

func defaultErrorHandler() ErrorHandler {
	if isTestMode() {
		return SilentErrorHandler
	}
	return StderrErrorHandler
}

func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	if exe, err := os.Executable(); err == nil {
		if strings.HasSuffix(exe, ".test") {
			return true
		}
		if strings.Contains(filepath.Base(exe), ".test") {
			return true
		}
	}
	return false
}
