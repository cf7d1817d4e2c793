package target

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// Pause stops the consumer after the events already queued. Events logged
// while paused are kept and written after Resume. Pausing a paused target
// does nothing.
func (t *Target) Pause() error {
	return t.control(types.Event{Kind: types.KindPause})
}

// Resume undoes Pause. Resuming a running target does nothing.
func (t *Target) Resume() error {
	return t.control(types.Event{Kind: types.KindResume})
}

// ChangePriority sets the OS scheduling priority of the consumer thread.
// Failures, such as raising priority without the right privileges, are
// reported to the error handler. Inline targets ignore it.
func (t *Target) ChangePriority(p types.Priority) error {
	if _, ok := priorityNames[p]; !ok {
		return configError("priority", errors.Errorf("invalid priority %d", p))
	}
	return t.control(types.Event{Kind: types.KindPriority, Priority: p})
}

// ChangeEcho turns console echo on or off.
func (t *Target) ChangeEcho(on bool) error {
	if on && t.cfg.Console == nil {
		return configError("echo", errors.New("no console configured"))
	}
	return t.control(types.Event{Kind: types.KindEcho, Enabled: on})
}

// ChangeEchoColor turns coloring of echoed lines on or off.
func (t *Target) ChangeEchoColor(on bool) error {
	return t.control(types.Event{Kind: types.KindColor, Enabled: on})
}

// ChangeSeverityFormat changes how severities are rendered from the next
// event on.
func (t *Target) ChangeSeverityFormat(f types.SeverityFormat) error {
	if !f.Valid() {
		return configError("severity format", errors.Errorf("invalid severity format %d", f))
	}
	return t.control(types.Event{Kind: types.KindSeverityFormat, Format: f})
}

// Maintain flushes the active file, retries it if the target is degraded and
// runs the startup processors over older files.
func (t *Target) Maintain() error {
	return t.control(types.Event{Kind: types.KindMaintenance})
}

// Flush waits until every event logged before it is written out. A paused
// target only flushes after Resume.
func (t *Target) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := t.control(types.Event{Kind: types.KindFlush, Done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Target) control(ev types.Event) error {
	ev.Time = t.clock.Now()
	return t.enqueue(ev)
}

// Shutdown stops the target. With drain every event already logged is
// written first; without it pending events are discarded. Either way the
// active file is closed and the lock released. Shutdown waits for the
// consumer until ctx is done; calling it again keeps waiting, and a cancel
// may follow a drain that takes too long.
func (t *Target) Shutdown(ctx context.Context, drain bool) error {
	t.lifecycleMu.Lock()
	for {
		cur := t.State()
		next := cur
		switch cur {
		case StateDone:
			t.lifecycleMu.Unlock()
			return ErrAlreadyFinalized
		case StateShuttingDownCancel:
		case StateShuttingDownDrain:
			if !drain {
				next = StateShuttingDownCancel
			}
		default:
			next = StateShuttingDownCancel
			if drain {
				next = StateShuttingDownDrain
			}
		}
		if next == cur {
			break
		}
		// the consumer moves between running and paused concurrently
		if t.state.CompareAndSwap(int32(cur), int32(next)) {
			t.metrics.TrackDiscarded(t.queue.SignalShutdown(drain))
			break
		}
	}
	t.lifecycleMu.Unlock()

	if t.cfg.Threading == Inline {
		t.pump()
	}

	select {
	case <-t.done:
		return t.finalErr
	case <-ctx.Done():
		return &Error{Kind: KindState, Op: "shutdown", Err: multierr.Append(ErrShutdownTimeout, ctx.Err())}
	}
}

// Done is closed once the target has shut down.
func (t *Target) Done() <-chan struct{} {
	return t.done
}

// Dispose releases what a shut down target still holds: the metrics
// registration, processor connections and the maintenance schedule.
func (t *Target) Dispose() error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.disposed {
		return ErrAlreadyDisposed
	}
	if t.State() != StateDone {
		return ErrNotShutdown
	}
	t.disposed = true

	var errs error
	if t.schedule != nil {
		t.schedule.wait()
	}
	if t.otel != nil {
		if err := t.otel.Unregister(); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "unregister metrics"))
		}
	}
	if t.closeProcs != nil {
		t.closeProcs()
	}
	return errs
}
