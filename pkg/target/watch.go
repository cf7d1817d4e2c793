package target

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DefaultDebounce is how long a watcher waits for writes to settle.
const DefaultDebounce = 100 * time.Millisecond

// WatchCallback is told about every reload attempt. cfg is the newly loaded
// configuration; err is non-nil when loading or applying it failed.
type WatchCallback func(cfg Config, err error)

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long to wait after the last change before reloading.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchCallback sets the reload callback.
func WithWatchCallback(cb WatchCallback) WatchOption {
	return func(w *Watcher) {
		w.callback = cb
	}
}

// Watcher reloads a config file on change and applies the settings that can
// change at runtime: echo, color, severity format and priority.
type Watcher struct {
	target   *Target
	path     string
	fs       *fsnotify.Watcher
	debounce time.Duration
	callback WatchCallback

	mu      sync.Mutex
	timer   *time.Timer
	last    Config
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// WatchConfig starts watching path for t. The directory is watched rather
// than the file so editors that replace the file are followed.
func WatchConfig(t *Target, path string, opts ...WatchOption) (*Watcher, error) {
	if t == nil {
		return nil, errors.New("watch: target is nil")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "watch: creating watcher")
	}
	dir := filepath.Dir(path)
	if err := fs.Add(dir); err != nil {
		return nil, multierr.Append(errors.Wrapf(err, "watch: adding %s", dir), fs.Close())
	}

	w := &Watcher{
		target:   t,
		path:     path,
		fs:       fs,
		debounce: DefaultDebounce,
		last:     t.runtimeSettings(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	name := filepath.Base(w.path)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.target.report("watch", w.path, "watching config", err, ErrorLevelLow)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	cfg, err := LoadConfig(w.path)
	if err == nil {
		err = w.apply(cfg)
	}
	if err != nil {
		w.target.report("watch", w.path, "reloading config", err, ErrorLevelMedium)
	}
	if w.callback != nil {
		w.callback(cfg, err)
	}
}

// apply sends control events for the fields that differ from the last
// applied configuration. Holding w.mu.
func (w *Watcher) apply(cfg Config) error {
	t := w.target
	var errs error
	if cfg.Echo != w.last.Echo {
		if err := t.ChangeEcho(cfg.Echo); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			w.last.Echo = cfg.Echo
		}
	}
	if cfg.Color != w.last.Color {
		if err := t.ChangeEchoColor(cfg.Color); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			w.last.Color = cfg.Color
		}
	}
	if cfg.SeverityFormat != w.last.SeverityFormat {
		if err := t.ChangeSeverityFormat(cfg.SeverityFormat); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			w.last.SeverityFormat = cfg.SeverityFormat
		}
	}
	if cfg.Priority != w.last.Priority {
		if err := t.ChangePriority(cfg.Priority); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			w.last.Priority = cfg.Priority
		}
	}
	return errs
}

// Stop ends watching. A reload already running finishes first.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	close(w.stop)
	w.mu.Unlock()

	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (t *Target) runtimeSettings() Config {
	return Config{
		Echo:           t.cfg.Echo,
		Color:          t.cfg.Color,
		SeverityFormat: t.cfg.SeverityFormat,
		Priority:       t.cfg.Priority,
	}
}
