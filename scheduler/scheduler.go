// Package scheduler runs the periodic refresh of exchange rates and market
// prices.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single job run.
const DefaultTimeout = 2 * time.Minute

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs. Runs of the same job never overlap: a
// run still in progress when the next one is due skips it.
type Scheduler struct {
	cron    *cron.Cron
	log     zerolog.Logger
	timeout time.Duration
}

// New creates a new scheduler. Schedules use the standard five field cron
// format, in the local time zone.
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	clog := cronLogger{log}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog))),
		log:     log,
		timeout: DefaultTimeout,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job for each schedule.
// Schedule examples:
//   - "0 10 * * *"    - 10 AM every day
//   - "30 13 * * 1-5" - 1:30 PM weekdays
//   - "@every 1h"     - every hour
func (s *Scheduler) AddJob(job Job, schedules ...string) error {
	// one wrapper per job, shared by its schedules, so they do not overlap.
	wrapped := cron.SkipIfStillRunning(cronLogger{s.log})(cron.FuncJob(func() { s.run(job) }))
	for _, schedule := range schedules {
		if _, err := s.cron.AddJob(schedule, wrapped); err != nil {
			return err
		}
		s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	}
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", job.Name()).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", job.Name()).Dur("took", time.Since(start)).Msg("job completed")
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job immediately")
	return job.Run(ctx)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
