package target

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Standard five-field expressions plus descriptors such as "@every 1h".
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// schedule enqueues a maintenance event whenever spec fires.
type schedule struct {
	cron    *cron.Cron
	stopped context.Context
}

func newSchedule(spec string, t *Target) (*schedule, error) {
	loc := t.clock.Now().Location()
	if t.cfg.UTC {
		loc = time.UTC
	}
	c := cron.New(cron.WithParser(cronParser), cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		if err := t.Maintain(); err != nil && !errors.Is(err, ErrShuttingDown) && !errors.Is(err, ErrAlreadyFinalized) {
			t.report("maintain", "", "scheduled maintenance", err, ErrorLevelLow)
		}
	}); err != nil {
		return nil, errors.Wrap(err, "maintenance schedule")
	}
	c.Start()
	return &schedule{cron: c}, nil
}

// stop prevents further runs without waiting for a running job, which may be
// the caller when the target is inline.
func (s *schedule) stop() {
	if s.stopped == nil {
		s.stopped = s.cron.Stop()
	}
}

// wait blocks until a job that was running at stop has returned.
func (s *schedule) wait() {
	s.stop()
	<-s.stopped.Done()
}
