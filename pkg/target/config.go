package target

import (
	"path/filepath"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/wayneeseguin/omnitarget/internal/priority"
	"github.com/wayneeseguin/omnitarget/pkg/backends"
	"github.com/wayneeseguin/omnitarget/pkg/formatters"
	"github.com/wayneeseguin/omnitarget/pkg/processors"
	"github.com/wayneeseguin/omnitarget/pkg/queue"
	"github.com/wayneeseguin/omnitarget/pkg/rotation"
	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// ThreadingMode selects who runs a target's consumer.
type ThreadingMode uint8

const (
	// Dedicated runs the consumer on its own goroutine.
	Dedicated ThreadingMode = iota
	// Inline runs the consumer on the producer's goroutine before the
	// logging call returns. No goroutine is started.
	Inline
)

func (m ThreadingMode) String() string {
	if m == Inline {
		return "inline"
	}
	return "dedicated"
}

// ParseThreadingMode accepts "dedicated", "inline" or "".
func ParseThreadingMode(name string) (ThreadingMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "dedicated":
		return Dedicated, nil
	case "inline":
		return Inline, nil
	}
	return Dedicated, errors.Errorf("unknown threading mode %q", name)
}

// Default values.
const (
	DefaultExtension        = ".log"
	DefaultProcessorBacklog = 16
)

// Config holds everything a target needs. The serialisable part can be
// loaded from a file with LoadConfig; collaborators are set with Options.
type Config struct {
	App          string // file name prefix; also names the lock file
	BasePath     string
	BasePathMode BasePathMode
	Extension    string

	Rotation rotation.Policy

	Threading     ThreadingMode
	QueueCapacity int // 0 means unbounded
	Overflow      queue.Overflow
	Priority      types.Priority

	// Rendering
	Newline         types.Newline
	TimestampFormat string // Go layout; "" or "none" omits timestamps
	UTC             bool   // render timestamps in UTC
	SeverityFormat  types.SeverityFormat
	WriteSeverity   types.Severity // severity used by Write

	// Console echo
	Echo  bool
	Color bool

	// Post-rotation processing
	Processors       []processors.Spec
	StartupSweep     bool // run RunsOnStartup entries over files left by earlier runs
	AsyncProcessors  bool // run the chain on a separate goroutine
	ProcessorBacklog int

	// Cron expression for periodic maintenance; empty disables it.
	MaintenanceSchedule string

	// Collaborators
	ErrorHandler   ErrorHandler
	Clock          clock.Clock
	Console        backends.Console
	MeterProvider  metric.MeterProvider
	Opener         backends.Opener
	PrioritySetter priority.Setter
	Publisher      processors.Publisher
	Extra          []processors.Entry // run after the entries built from Processors
}

// DefaultConfig returns a Config with sensible defaults. App is left empty
// and must be set.
func DefaultConfig() Config {
	return Config{
		BasePath:         ".",
		BasePathMode:     RelativeToCurrentDir,
		Extension:        DefaultExtension,
		Rotation:         rotation.Policy{Scheme: rotation.SchemeNone},
		Threading:        Dedicated,
		Overflow:         queue.OverflowGrow,
		Priority:         types.PriorityNormal,
		Newline:          types.NewlineLF,
		TimestampFormat:  formatters.DefaultTimestampFormat,
		SeverityFormat:   types.SeverityFormatBracketed,
		WriteSeverity:    types.SeverityNone,
		AsyncProcessors:  true,
		ProcessorBacklog: DefaultProcessorBacklog,
	}
}

// Validate reports the first problem with c.
func (c *Config) Validate() error {
	if c.App == "" {
		return configError("validate", errors.New("app name is required"))
	}
	if strings.ContainsAny(c.App, `/\`) || c.App == "." || c.App == ".." {
		return configError("validate", errors.Errorf("app name %q must not contain a path", c.App))
	}
	if c.Extension != "" && !strings.HasPrefix(c.Extension, ".") {
		return configError("validate", errors.Errorf("extension %q must start with a dot", c.Extension))
	}
	if err := c.Rotation.Validate(); err != nil {
		return configError("validate", err)
	}
	if c.QueueCapacity < 0 {
		return configError("validate", errors.New("queue capacity must not be negative"))
	}
	if c.Overflow > queue.OverflowDrop {
		return configError("validate", errors.Errorf("invalid overflow policy %d", c.Overflow))
	}
	if c.Overflow == queue.OverflowBlock && c.Threading == Inline {
		// an inline producer blocked on a full queue is the only consumer
		return configError("validate", errors.New("blocking overflow needs a dedicated consumer"))
	}
	if !c.WriteSeverity.Valid() {
		return configError("validate", errors.Errorf("invalid severity %d", c.WriteSeverity))
	}
	if _, ok := priorityNames[c.Priority]; !ok {
		return configError("validate", errors.Errorf("invalid priority %d", c.Priority))
	}
	if !c.SeverityFormat.Valid() {
		return configError("validate", errors.Errorf("invalid severity format %d", c.SeverityFormat))
	}
	if !c.Newline.Valid() {
		return configError("validate", errors.Errorf("invalid newline %d", c.Newline))
	}
	if c.BasePathMode > RelativeToCurrentDir {
		return configError("validate", errors.Errorf("invalid base path mode %d", c.BasePathMode))
	}
	if c.BasePathMode == Absolute && !filepath.IsAbs(c.BasePath) {
		return configError("validate", errors.Errorf("base path %q is not absolute", c.BasePath))
	}
	for i, s := range c.Processors {
		if err := s.Validate(); err != nil {
			return configError("validate", errors.Wrapf(err, "processor %d", i))
		}
	}
	if c.MaintenanceSchedule != "" {
		if _, err := cronParser.Parse(c.MaintenanceSchedule); err != nil {
			return configError("validate", errors.Wrap(err, "maintenance schedule"))
		}
	}
	return nil
}

var priorityNames = map[types.Priority]bool{
	types.PriorityNormal:      true,
	types.PriorityLowest:      true,
	types.PriorityBelowNormal: true,
	types.PriorityAboveNormal: true,
	types.PriorityHighest:     true,
}

func (c *Config) line() formatters.Line {
	return formatters.Line{
		TimestampFormat: c.TimestampFormat,
		SeverityFormat:  c.SeverityFormat,
		Newline:         c.Newline,
		UTC:             c.UTC,
	}
}

func (c *Config) setDefaults() {
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if c.ProcessorBacklog <= 0 {
		c.ProcessorBacklog = DefaultProcessorBacklog
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = defaultErrorHandler()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Opener == nil {
		c.Opener = backends.OpenFile
	}
	if c.PrioritySetter == nil {
		c.PrioritySetter = priority.Apply
	}
	if c.Echo && c.Console == nil {
		c.Console = backends.Stdout()
	}
}
