// Package target implements a log Target: a named file destination fed by
// any number of producers through an ordered queue and written by a single
// consumer, which also rotates the file and hands closed files to a
// processor chain.
//
// A target moves through these states:
//
//	Initializing -> Running <-> Paused -> ShuttingDownDrain | ShuttingDownCancel -> Done
//
// Control requests (Pause, Resume, ChangePriority, ...) travel through the
// same queue as log events, so they take effect exactly between the events
// enqueued before and after them.
package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wayneeseguin/omnitarget/internal/metrics"
	"github.com/wayneeseguin/omnitarget/pkg/backends"
	"github.com/wayneeseguin/omnitarget/pkg/formatters"
	"github.com/wayneeseguin/omnitarget/pkg/processors"
	"github.com/wayneeseguin/omnitarget/pkg/queue"
	"github.com/wayneeseguin/omnitarget/pkg/rotation"
	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// State is the lifecycle state of a target.
type State int32

const (
	StateInitializing State = iota
	StateRunning
	StatePaused
	StateShuttingDownDrain
	StateShuttingDownCancel
	StateDone
)

var stateNames = [...]string{
	"initializing", "running", "paused", "shutting_down_drain", "shutting_down_cancel", "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Target is one log destination. All methods are safe for concurrent use.
type Target struct {
	id      string
	cfg     Config
	dir     string
	policy  rotation.Policy
	matcher *rotation.Matcher
	queue   *queue.Queue
	clock   clock.Clock
	metrics *metrics.Collector
	lock    *backends.Lock

	chain      *processors.Chain
	runner     *processors.Runner
	closeProcs func()
	schedule   *schedule
	otel       metric.Registration

	state    atomic.Int32
	done     chan struct{}
	finalErr error

	lifecycleMu sync.Mutex
	disposed    bool

	inlineMu sync.Mutex

	activePath atomic.Value // string

	// owned by the consumer
	w            backends.Writer
	pending      metrics.Pending
	file         rotation.FileState
	line         formatters.Line
	buf          []byte
	echo         bool
	color        bool
	paused       bool
	degraded     bool
	threadLocked bool
	exhausted    bool
}

// New builds a target, opens its first file and starts its consumer.
func New(cfg Config, opts ...Option) (*Target, error) {
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, configError("option", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	dir, err := ResolveBasePath(cfg.BasePathMode, cfg.BasePath)
	if err != nil {
		return nil, configError("base path", err)
	}
	// #nosec G301 - log directories need to be accessible by other processes
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError("mkdir", dir, err)
	}

	t := &Target{
		id:      uuid.NewString(),
		cfg:     cfg,
		dir:     dir,
		policy:  cfg.Rotation,
		matcher: cfg.Rotation.Matcher(cfg.App, cfg.Extension),
		queue:   queue.New(cfg.QueueCapacity, cfg.Overflow),
		clock:   cfg.Clock,
		metrics: metrics.NewCollector(),
		done:    make(chan struct{}),
		line:    cfg.line(),
		echo:    cfg.Echo,
		color:   cfg.Color,
	}
	t.state.Store(int32(StateInitializing))
	t.activePath.Store("")

	lock, err := backends.AcquireLock(dir, cfg.App)
	if err != nil {
		if errors.Is(err, backends.ErrLocked) {
			return nil, &Error{Kind: KindIO, Op: "lock", Path: backends.LockPath(dir, cfg.App), Err: ErrTargetLocked}
		}
		return nil, ioError("lock", backends.LockPath(dir, cfg.App), err)
	}
	t.lock = lock

	if err := t.init(); err != nil {
		t.teardownInit()
		return nil, err
	}

	if cfg.Threading == Dedicated {
		go t.run()
	}
	return t, nil
}

func (t *Target) init() error {
	entries, closeProcs, err := processors.Build(t.cfg.Processors, processors.Deps{
		Clock:      t.clock,
		Publisher:  t.cfg.Publisher,
		ClientName: t.cfg.App,
	})
	if err != nil {
		return configError("processors", err)
	}
	t.closeProcs = closeProcs
	t.chain = processors.NewChain(append(entries, t.cfg.Extra...)...)
	t.chain.SetErrorHandler(func(source, path, msg string, err error) {
		t.report("process", path, source+": "+msg, err, ErrorLevelMedium)
	})
	t.chain.SetRunHandler(func(_ string, err error) {
		t.metrics.TrackProcessor(err != nil)
	})

	now := t.clock.Now()
	existing, err := t.existing()
	if err != nil {
		return ioError("list", t.dir, err)
	}
	st, err := t.policy.Initial(now, t.matcher.ParseAll(existing))
	if err != nil {
		return ioError("open", t.dir, err)
	}
	path := t.pathFor(st)

	if t.cfg.StartupSweep && t.chain.HasStartup() {
		t.sweep(context.Background(), existing, filepath.Base(path), false)
	}

	w, err := t.cfg.Opener(path)
	if err != nil {
		return ioError("open", path, err)
	}
	t.w = w
	t.file = st
	t.file.Size = w.Size()
	t.activePath.Store(path)

	if t.cfg.MeterProvider != nil {
		reg, err := metrics.RegisterOTel(t.cfg.MeterProvider, t.metrics, t.queue.Len,
			attribute.String("target", t.cfg.App), attribute.String("target.id", t.id))
		if err != nil {
			return configError("metrics", err)
		}
		t.otel = reg
	}
	if t.cfg.AsyncProcessors && t.chain.Len() > 0 {
		t.runner = processors.NewRunner(t.chain, t.cfg.ProcessorBacklog)
	}
	if t.cfg.MaintenanceSchedule != "" {
		s, err := newSchedule(t.cfg.MaintenanceSchedule, t)
		if err != nil {
			return configError("schedule", err)
		}
		t.schedule = s
	}
	if t.cfg.Threading == Inline && t.cfg.Priority != types.PriorityNormal {
		t.report("priority", "", "priority is ignored by inline targets", nil, ErrorLevelLow)
	}
	t.state.Store(int32(StateRunning))
	return nil
}

// teardownInit releases whatever init acquired before failing.
func (t *Target) teardownInit() {
	if t.schedule != nil {
		t.schedule.wait()
	}
	if t.runner != nil {
		t.runner.Stop(true)
	}
	if t.otel != nil {
		_ = t.otel.Unregister()
	}
	if t.w != nil {
		_ = t.w.Close()
	}
	if t.closeProcs != nil {
		t.closeProcs()
	}
	_ = t.lock.Release()
}

// existing lists the file names in the target directory, sorted.
func (t *Target) existing() ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (t *Target) pathFor(st rotation.FileState) string {
	return filepath.Join(t.dir, t.policy.FileName(t.cfg.App, t.cfg.Extension, st))
}

// ID returns the unique id of this target instance.
func (t *Target) ID() string {
	return t.id
}

// App returns the configured application name.
func (t *Target) App() string {
	return t.cfg.App
}

// Dir returns the resolved directory the target writes to.
func (t *Target) Dir() string {
	return t.dir
}

// State returns the current lifecycle state.
func (t *Target) State() State {
	return State(t.state.Load())
}

// ActivePath returns the path of the file currently written to.
func (t *Target) ActivePath() string {
	return t.activePath.Load().(string)
}

// Metrics returns a snapshot of the target's counters.
func (t *Target) Metrics() metrics.Metrics {
	m := t.metrics.GetMetrics(t.queue.Len(), t.queue.Cap())
	m.Target = t.cfg.App
	m.State = t.State().String()
	m.ActivePath = t.ActivePath()
	return m
}

// LogText logs text at sev.
func (t *Target) LogText(sev types.Severity, text string) error {
	return t.enqueue(types.Event{
		Kind:     types.KindPlainText,
		Severity: sev,
		Time:     t.clock.Now(),
		Payload:  []byte(text),
	})
}

// LogTextf formats on the calling goroutine and logs the result at sev.
// Bad verbs and panicking arguments are rendered the way fmt renders them.
func (t *Target) LogTextf(sev types.Severity, format string, args ...interface{}) error {
	return t.enqueue(types.Event{
		Kind:     types.KindFormattedText,
		Severity: sev,
		Time:     t.clock.Now(),
		Payload:  fmt.Appendf(nil, format, args...),
	})
}

// LogHexDump logs a hex dump of data preceded by caption. data is copied
// before LogHexDump returns.
func (t *Target) LogHexDump(sev types.Severity, data []byte, caption string) error {
	return t.enqueue(types.Event{
		Kind:     types.KindHexDump,
		Severity: sev,
		Time:     t.clock.Now(),
		Payload:  formatters.HexDump(data, caption),
	})
}

// Write logs p as plain text at the configured write severity, so a target
// can back a log.Logger or any other io.Writer user.
func (t *Target) Write(p []byte) (int, error) {
	payload := make([]byte, len(p))
	copy(payload, p)
	err := t.enqueue(types.Event{
		Kind:     types.KindPlainText,
		Severity: t.cfg.WriteSeverity,
		Time:     t.clock.Now(),
		Payload:  payload,
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *Target) enqueue(ev types.Event) error {
	if err := t.admissible(); err != nil {
		return err
	}
	if _, err := t.queue.Enqueue(ev); err != nil {
		switch {
		case errors.Is(err, queue.ErrClosed):
			if t.State() == StateDone {
				return ErrAlreadyFinalized
			}
			return ErrShuttingDown
		case errors.Is(err, queue.ErrFull):
			t.metrics.TrackMessageDropped()
			return ErrQueueFull
		}
		return err
	}
	if ev.IsData() {
		t.metrics.TrackEnqueued()
	}
	if t.cfg.Threading == Inline {
		t.pump()
	}
	return nil
}

func (t *Target) admissible() error {
	switch t.State() {
	case StateDone:
		return ErrAlreadyFinalized
	case StateShuttingDownDrain, StateShuttingDownCancel:
		return ErrShuttingDown
	}
	return nil
}
