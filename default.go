package omnitarget

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/omnitarget/pkg/target"
	"github.com/wayneeseguin/omnitarget/pkg/types"
)

var (
	// ErrDefaultInstalled is returned by Init while a default target is live.
	ErrDefaultInstalled = errors.New("default target already installed")

	// ErrNoDefault is returned when no default target is installed.
	ErrNoDefault = errors.New("no default target installed")
)

// slot holds the default target. A target stays in the slot from Init until
// a successful Dispose.
var slot struct {
	mu sync.Mutex
	t  *target.Target
}

// Init creates the default target.
func Init(cfg target.Config, opts ...target.Option) error {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.t != nil {
		return ErrDefaultInstalled
	}
	t, err := target.New(cfg, opts...)
	if err != nil {
		return err
	}
	slot.t = t
	return nil
}

// Default returns the default target, or nil when none is installed.
func Default() *target.Target {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.t
}

func current() (*target.Target, error) {
	if t := Default(); t != nil {
		return t, nil
	}
	return nil, ErrNoDefault
}

// Text logs text on the default target.
func Text(sev types.Severity, text string) error {
	t, err := current()
	if err != nil {
		return err
	}
	return t.LogText(sev, text)
}

// Textf logs formatted text on the default target.
func Textf(sev types.Severity, format string, args ...interface{}) error {
	t, err := current()
	if err != nil {
		return err
	}
	return t.LogTextf(sev, format, args...)
}

// HexDump logs a hex dump of data on the default target.
func HexDump(sev types.Severity, data []byte, caption string) error {
	t, err := current()
	if err != nil {
		return err
	}
	return t.LogHexDump(sev, data, caption)
}

// Pause pauses the default target.
func Pause() error {
	t, err := current()
	if err != nil {
		return err
	}
	return t.Pause()
}

// Resume resumes the default target.
func Resume() error {
	t, err := current()
	if err != nil {
		return err
	}
	return t.Resume()
}

// Shutdown shuts the default target down. The target stays installed until
// Dispose.
func Shutdown(ctx context.Context, drain bool) error {
	t, err := current()
	if err != nil {
		return err
	}
	return t.Shutdown(ctx, drain)
}

// Dispose disposes the default target and empties the slot. It fails with
// target.ErrNotShutdown, leaving the target installed, when Shutdown has not
// finished.
func Dispose() error {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.t == nil {
		return ErrNoDefault
	}
	if err := slot.t.Dispose(); err != nil {
		if errors.Is(err, target.ErrAlreadyDisposed) {
			slot.t = nil
		}
		return err
	}
	slot.t = nil
	return nil
}
