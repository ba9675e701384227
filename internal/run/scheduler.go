package run

import (
	"context"
	"time"

	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/errors"
	"github.com/meterwatch/meterwatch/pkg/logging"
)

// runTimeout bounds a single scheduled run.
const runTimeout = constants.RunTimeout

// Scheduler triggers an incremental run once a day at a fixed local
// time. A run that overruns its slot simply delays the next trigger;
// runs never overlap.
type Scheduler struct {
	orchestrator *Orchestrator
	hour         int
	minute       int
	now          func() time.Time
}

// NewScheduler creates a scheduler firing daily at the given "HH:MM"
// local time.
func NewScheduler(orchestrator *Orchestrator, at string, opts ...SchedulerOption) (*Scheduler, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, errors.WrapParse("schedule", at, err)
	}
	s := &Scheduler{
		orchestrator: orchestrator,
		hour:         t.Hour(),
		minute:       t.Minute(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the scheduler's clock. Used by tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Next returns the first trigger time strictly after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start blocks, firing an incremental run each day until the context is
// canceled. Run failures are logged and do not stop the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	log := logging.FromContext(ctx)
	for {
		next := s.Next(s.now())
		log.Info().Time("next_run", next).Msg("Waiting for scheduled run")

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		rctx, cancel := context.WithTimeout(ctx, runTimeout)
		if _, err := s.orchestrator.Run(rctx, ModeIncremental); err != nil {
			log.Error().Err(err).Msg("Scheduled run failed")
		}
		cancel()
	}
}
