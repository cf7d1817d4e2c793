package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/multierr"

	"github.com/wayneeseguin/omnitarget/pkg/processors"
	"github.com/wayneeseguin/omnitarget/pkg/rotation"
	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// pausedMatch selects the events a paused consumer still reacts to.
func pausedMatch(ev *types.Event) bool {
	switch ev.Kind {
	case types.KindPause, types.KindResume, types.KindShutdown, types.KindCancel:
		return true
	}
	return false
}

// run is the dedicated consumer goroutine.
func (t *Target) run() {
	if t.cfg.Priority != types.PriorityNormal {
		t.applyPriority(t.cfg.Priority)
	}
	for {
		var (
			ev types.Event
			ok bool
		)
		if t.paused {
			ev, ok = t.queue.WaitTake(pausedMatch)
		} else {
			ev, ok = t.queue.Dequeue()
		}
		if !ok {
			// closed without a terminal event; cannot happen through Shutdown
			t.finish(false)
			return
		}
		if t.handle(ev) {
			return
		}
		if t.queue.Len() == 0 {
			t.flush()
		}
	}
}

// pump runs the consumer on the calling goroutine until the queue is empty,
// the target is paused with nothing to resume it, or the target is done.
func (t *Target) pump() {
	t.inlineMu.Lock()
	defer t.inlineMu.Unlock()

	if t.State() == StateDone {
		return
	}
	for {
		var (
			ev types.Event
			ok bool
		)
		if t.paused {
			ev, ok = t.queue.TakeFirst(pausedMatch)
		} else {
			ev, ok = t.queue.TryDequeue()
		}
		if !ok {
			t.flush()
			return
		}
		if t.handle(ev) {
			return
		}
	}
}

// handle applies one event. It reports true once the target is done.
func (t *Target) handle(ev types.Event) bool {
	switch ev.Kind {
	case types.KindPlainText, types.KindFormattedText, types.KindHexDump:
		t.write(ev)
	case types.KindPause:
		if !t.paused {
			t.paused = true
			t.state.CompareAndSwap(int32(StateRunning), int32(StatePaused))
		}
	case types.KindResume:
		if t.paused {
			t.paused = false
			t.state.CompareAndSwap(int32(StatePaused), int32(StateRunning))
		}
	case types.KindPriority:
		t.applyPriority(ev.Priority)
	case types.KindEcho:
		t.echo = ev.Enabled
	case types.KindColor:
		t.color = ev.Enabled
	case types.KindSeverityFormat:
		t.line.SeverityFormat = ev.Format
	case types.KindFlush:
		t.flush()
		if ev.Done != nil {
			close(ev.Done)
		}
	case types.KindMaintenance:
		t.maintain()
	case types.KindShutdown:
		// Taken out of order when it arrived while paused; what is still
		// queued was admitted before it.
		t.paused = false
		for {
			next, ok := t.queue.TryDequeue()
			if !ok {
				break
			}
			if next.IsTerminal() {
				return t.handle(next)
			}
			t.handle(next)
		}
		t.finish(true)
		return true
	case types.KindCancel:
		t.finish(false)
		return true
	default:
		t.report("consume", "", fmt.Sprintf("unknown event kind %s", ev.Kind), nil, ErrorLevelHigh)
	}
	return false
}

func (t *Target) write(ev types.Event) {
	t.rotateIfNeeded(ev)

	t.buf = t.line.Append(t.buf[:0], ev.Time, ev.Severity, ev.Payload)
	n := int64(len(t.buf))
	if t.degraded || t.w == nil {
		// keep counting so rotation boundaries, and with them reopen
		// attempts, still come around
		t.file.Size += n
		t.file.Events++
		t.metrics.TrackMessageDropped()
		return
	}

	start := t.clock.Now()
	if _, err := t.w.Write(t.buf); err != nil {
		t.report("write", t.w.Path(), "write failed, reopening", err, ErrorLevelHigh)
		if err = t.w.Reopen(); err == nil {
			_, err = t.w.Write(t.buf)
		}
		if err != nil {
			t.degrade(err)
			t.file.Size += n
			t.file.Events++
			t.metrics.TrackMessageDropped()
			return
		}
	}
	t.file.Size = t.w.Size()
	t.file.Events++
	t.metrics.TrackWrite(n, t.clock.Since(start))
	t.metrics.TrackWritten(ev.Severity)
	t.pending.Add(ev.Severity)

	if t.echo && t.cfg.Console != nil {
		if err := t.cfg.Console.WriteLine(ev.Severity, t.buf, t.color); err != nil {
			t.report("echo", "", "console write failed", err, ErrorLevelLow)
		}
	}
}

func (t *Target) degrade(err error) {
	path := ""
	if t.w != nil {
		path = t.w.Path()
		_ = t.closeWriter()
	}
	if !t.degraded {
		t.degraded = true
		t.metrics.TrackDegraded()
		t.report("write", path, "target degraded, dropping events until the next file opens", err, ErrorLevelCritical)
	}
}

func (t *Target) flush() {
	if t.w == nil {
		return
	}
	err := t.w.Flush()
	if err == nil {
		t.pending.Reset()
		return
	}
	t.report("flush", t.w.Path(), "flush failed, reopening", err, ErrorLevelHigh)
	if rerr := t.w.Reopen(); rerr != nil {
		err = multierr.Append(err, rerr)
	} else if err = t.w.Flush(); err == nil {
		t.pending.Reset()
		return
	}
	t.degrade(err)
}

// closeWriter closes the active file. Buffered events that a failed close
// could not write are counted as dropped.
func (t *Target) closeWriter() error {
	err := t.w.Close()
	if err != nil {
		t.metrics.TrackLost(&t.pending)
	}
	t.pending.Reset()
	t.w = nil
	return err
}

func (t *Target) rotateIfNeeded(ev types.Event) {
	reason, ok := t.policy.ShouldRotate(t.file, ev.Time)
	if !ok {
		return
	}
	next, err := t.policy.NameFor(t.file, ev.Time, reason)
	if err != nil {
		if !t.exhausted {
			t.exhausted = true
			t.report("rotate", t.ActivePath(), "cannot rotate, continuing in the current file", err, ErrorLevelHigh)
		}
		return
	}
	t.rotateTo(next)
}

// rotateTo closes the active file, opens the one described by next and hands
// the closed file to the processors.
func (t *Target) rotateTo(next rotation.FileState) {
	closed := t.ActivePath()
	if t.w != nil {
		if err := t.closeWriter(); err != nil {
			t.report("rotate", closed, "closing rotated file", err, ErrorLevelMedium)
		}
	}

	path := t.pathFor(next)
	t.file = next
	t.activePath.Store(path)
	t.metrics.TrackRotation()

	w, err := t.cfg.Opener(path)
	if err != nil {
		t.degrade(err)
	} else {
		t.w = w
		t.file.Size = w.Size()
		if t.degraded {
			t.degraded = false
			t.report("rotate", path, "target recovered", nil, ErrorLevelLow)
		}
	}

	if closed != "" && closed != path {
		t.closed(closed)
	}
}

// closed disposes of a file the target stopped writing to: empty files are
// removed, others go through the chain.
func (t *Target) closed(path string) {
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.report("rotate", path, "stat rotated file", err, ErrorLevelMedium)
		}
		return
	}
	if info.Size() == 0 {
		if err := os.Remove(path); err != nil {
			t.report("rotate", path, "removing empty file", err, ErrorLevelLow)
		}
		return
	}
	if t.chain.Len() == 0 {
		return
	}
	t.process(t.processorFile(path, info.Size(), false))
}

func (t *Target) processorFile(path string, size int64, startup bool) processors.File {
	f := processors.NewFile(path)
	f.Size = size
	f.Target = t.cfg.App
	f.TargetID = t.id
	f.Active = t.ActivePath()
	f.Match = t.matcher.Match
	f.RotatedAt = t.clock.Now()
	f.Startup = startup
	return f
}

func (t *Target) process(f processors.File) {
	if t.runner != nil {
		if err := t.runner.Submit(f); err != nil {
			t.report("process", f.Path, "processor runner unavailable", err, ErrorLevelMedium)
		}
		return
	}
	_ = t.chain.Run(context.Background(), f) // failures reach the chain's error handler
}

// sweep runs the startup entries over every file of this target except
// active. Empty leftovers are removed.
func (t *Target) sweep(ctx context.Context, names []string, active string, async bool) {
	for _, name := range names {
		if name == active || !t.matcher.Match(name) {
			continue
		}
		path := filepath.Join(t.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() == 0 && !rotation.IsCompressed(name) {
			_ = os.Remove(path)
			continue
		}
		f := t.processorFile(path, info.Size(), true)
		f.Active = filepath.Join(t.dir, active)
		if async {
			t.process(f)
			continue
		}
		_ = t.chain.Run(ctx, f)
	}
}

// maintain flushes, retries a degraded file and sweeps old files.
func (t *Target) maintain() {
	t.flush()
	if t.degraded {
		path := t.ActivePath()
		if w, err := t.cfg.Opener(path); err == nil {
			t.w = w
			t.file.Size = w.Size()
			t.degraded = false
			t.report("maintain", path, "target recovered", nil, ErrorLevelLow)
		}
	}
	if !t.chain.HasStartup() {
		return
	}
	names, err := t.existing()
	if err != nil {
		t.report("maintain", t.dir, "listing files", err, ErrorLevelMedium)
		return
	}
	t.sweep(context.Background(), names, filepath.Base(t.ActivePath()), true)
}

func (t *Target) applyPriority(p types.Priority) {
	if t.cfg.Threading == Inline {
		return
	}
	if !t.threadLocked {
		// never unlocked: the thread exits with the consumer goroutine
		runtime.LockOSThread()
		t.threadLocked = true
	}
	if err := t.cfg.PrioritySetter(p); err != nil {
		t.report("priority", "", fmt.Sprintf("setting priority %s", p), err, ErrorLevelLow)
	}
}

// finish ends the consumer. With drain the active file is flushed; either
// way it is closed and left for the next run's startup sweep.
func (t *Target) finish(drain bool) {
	var errs error
	path := t.ActivePath()
	if t.w != nil {
		if err := t.closeWriter(); err != nil {
			errs = multierr.Append(errs, ioError("close", path, err))
		}
	}
	if info, err := os.Stat(path); err == nil && info.Size() == 0 {
		_ = os.Remove(path)
	}
	if t.schedule != nil {
		t.schedule.stop()
	}
	if t.runner != nil {
		t.runner.Stop(!drain)
	}
	if err := t.lock.Release(); err != nil {
		errs = multierr.Append(errs, ioError("unlock", t.lock.Path(), err))
	}
	t.finalErr = errs
	t.state.Store(int32(StateDone))
	close(t.done)
}

// report sends a diagnostic to the error handler.
func (t *Target) report(op, path, msg string, err error, level ErrorLevel) {
	t.metrics.TrackError(op)
	h := t.cfg.ErrorHandler
	if h == nil {
		return
	}
	h(LogError{
		Timestamp: t.clock.Now(),
		Level:     level,
		Operation: op,
		Target:    t.cfg.App,
		Path:      path,
		Message:   msg,
		Err:       err,
	})
}
