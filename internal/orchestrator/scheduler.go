package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
)

// cronParser accepts the standard five-field format.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron expression %q: %w", expr, err)
	}
	return s, nil
}

// Scheduler triggers registered jobs on their cron schedules.
type Scheduler struct {
	runner  *Runner
	cron    *cron.Cron
	logger  logger.Logger
	entries map[string]cron.EntryID

	mu      sync.Mutex
	started bool
}

// NewScheduler creates a scheduler evaluating schedules in loc.
func NewScheduler(runner *Runner, loc *time.Location, log logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		),
	)
	return &Scheduler{
		runner:  runner,
		cron:    c,
		logger:  log,
		entries: make(map[string]cron.EntryID),
	}
}

// Start schedules every registered job that has a schedule and starts the
// cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already started")
	}

	for _, entry := range s.runner.Registry().List() {
		if entry.Schedule == "" {
			s.logger.Debug("Job has no schedule", logger.Job(entry.Job.Name()))
			continue
		}
		name := entry.Job.Name()
		sched, err := ParseSchedule(entry.Schedule)
		if err != nil {
			return err
		}
		id := s.cron.Schedule(sched, cron.FuncJob(func() {
			s.trigger(ctx, name)
		}))
		s.entries[name] = id
		s.logger.Info("Job scheduled",
			logger.Job(name),
			logger.String("schedule", entry.Schedule),
			logger.Time("next_run", sched.Next(time.Now().In(s.cron.Location()))),
		)
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("Scheduler started", logger.Int("jobs", len(s.entries)))
	return nil
}

func (s *Scheduler) trigger(ctx context.Context, name string) {
	_, _, err := s.runner.Run(ctx, name, RunOptions{Trigger: domain.TriggerSchedule})
	if errors.Is(err, ErrJobRunning) {
		s.logger.Info("Skipping scheduled run, job still running", logger.Job(name))
	}
}

// NextRun returns the next scheduled time for a job.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug(msg, logger.Any("cron", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, logger.Error(err), logger.Any("cron", keysAndValues))
}
