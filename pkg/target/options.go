package target

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/wayneeseguin/omnitarget/internal/priority"
	"github.com/wayneeseguin/omnitarget/pkg/backends"
	"github.com/wayneeseguin/omnitarget/pkg/processors"
	"github.com/wayneeseguin/omnitarget/pkg/queue"
	"github.com/wayneeseguin/omnitarget/pkg/rotation"
	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// Option adjusts a Config before the target is built.
type Option func(*Config) error

// WithClock sets the time source used for timestamps and rotation.
func WithClock(c clock.Clock) Option {
	return func(cfg *Config) error {
		if c == nil {
			return errors.New("clock is nil")
		}
		cfg.Clock = c
		return nil
	}
}

// WithErrorHandler sets the diagnostic handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(cfg *Config) error {
		cfg.ErrorHandler = h
		return nil
	}
}

// WithConsole sets where echoed lines go.
func WithConsole(c backends.Console) Option {
	return func(cfg *Config) error {
		cfg.Console = c
		return nil
	}
}

// WithEcho turns console echo on, optionally colored.
func WithEcho(colored bool) Option {
	return func(cfg *Config) error {
		cfg.Echo = true
		cfg.Color = colored
		return nil
	}
}

// WithMeterProvider exports the target's counters through OpenTelemetry.
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(cfg *Config) error {
		cfg.MeterProvider = p
		return nil
	}
}

// WithProcessor appends p to the processor chain.
func WithProcessor(p processors.Processor, runsOnStartup bool) Option {
	return func(cfg *Config) error {
		if p == nil {
			return errors.New("processor is nil")
		}
		cfg.Extra = append(cfg.Extra, processors.Entry{Processor: p, RunsOnStartup: runsOnStartup})
		return nil
	}
}

// WithPublisher sets the connection used by notify processors without a URL.
func WithPublisher(p processors.Publisher) Option {
	return func(cfg *Config) error {
		cfg.Publisher = p
		return nil
	}
}

// WithPrioritySetter replaces the function that applies thread priority.
func WithPrioritySetter(s priority.Setter) Option {
	return func(cfg *Config) error {
		cfg.PrioritySetter = s
		return nil
	}
}

// WithOpener replaces how active files are opened.
func WithOpener(o backends.Opener) Option {
	return func(cfg *Config) error {
		cfg.Opener = o
		return nil
	}
}

// WithRotation sets the rotation policy.
func WithRotation(p rotation.Policy) Option {
	return func(cfg *Config) error {
		if err := p.Validate(); err != nil {
			return err
		}
		cfg.Rotation = p
		return nil
	}
}

// WithQueue bounds the queue.
func WithQueue(capacity int, overflow queue.Overflow) Option {
	return func(cfg *Config) error {
		if capacity < 0 {
			return errors.New("queue capacity must not be negative")
		}
		cfg.QueueCapacity = capacity
		cfg.Overflow = overflow
		return nil
	}
}

// WithInline makes producers run the consumer themselves.
func WithInline() Option {
	return func(cfg *Config) error {
		cfg.Threading = Inline
		return nil
	}
}

// WithSeverityFormat sets the initial severity rendering.
func WithSeverityFormat(f types.SeverityFormat) Option {
	return func(cfg *Config) error {
		cfg.SeverityFormat = f
		return nil
	}
}

// WithSyncProcessors runs the chain on the consumer instead of a runner.
func WithSyncProcessors() Option {
	return func(cfg *Config) error {
		cfg.AsyncProcessors = false
		return nil
	}
}
