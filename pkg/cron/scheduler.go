// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper evicts expired entries from an in-memory store.
type Sweeper interface {
	Sweep() int
	Len() int
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	sweeper  Sweeper
	onSweep  func(live int)
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that sweeps expired sessions on schedule,
// a standard 5-field cron expression. onSweep, when not nil, receives the
// number of live sessions after each run.
func NewScheduler(schedule string, sweeper Sweeper, onSweep func(live int), logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:     c,
		schedule: schedule,
		sweeper:  sweeper,
		onSweep:  onSweep,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunNow); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("sweep_schedule", s.schedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow sweeps expired sessions synchronously.
func (s *Scheduler) RunNow() {
	removed := s.sweeper.Sweep()
	live := s.sweeper.Len()
	if s.onSweep != nil {
		s.onSweep(live)
	}
	if removed > 0 {
		s.logger.Info("expired sessions swept",
			slog.Int("removed", removed),
			slog.Int("live", live),
		)
	}
}
