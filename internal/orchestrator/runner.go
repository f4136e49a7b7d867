package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/metrics"
)

// DefaultJobTimeout bounds a single run.
const DefaultJobTimeout = 10 * time.Minute

// ErrJobRunning is returned when the same job is already running.
var ErrJobRunning = errors.New("job is already running")

// Runner executes registered jobs and appends an execution record for
// every run.
type Runner struct {
	registry   *Registry
	executions database.ExecutionRepositoryInterface
	locker     claim.Locker
	metrics    *metrics.Metrics
	logger     logger.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewRunner creates a runner. metrics may be nil.
func NewRunner(
	registry *Registry,
	executions database.ExecutionRepositoryInterface,
	locker claim.Locker,
	m *metrics.Metrics,
	timeout time.Duration,
	log logger.Logger,
) *Runner {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Runner{
		registry:   registry,
		executions: executions,
		locker:     locker,
		metrics:    m,
		logger:     log,
		timeout:    timeout,
		now:        time.Now,
	}
}

// WithClock overrides the clock used for execution timestamps.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Registry returns the job registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run executes the named job once. The execution record is appended whether
// the job succeeds or not; the returned error is the job-level failure.
func (r *Runner) Run(ctx context.Context, name string, opts RunOptions) (*Result, *domain.JobExecutionRecord, error) {
	entry, err := r.registry.Get(name)
	if err != nil {
		return nil, nil, err
	}
	if opts.Trigger == "" {
		opts.Trigger = domain.TriggerManual
	}

	jobClaim, err := r.locker.TryClaim(ctx, claim.JobKey(name), r.timeout+time.Minute)
	if err != nil {
		if errors.Is(err, claim.ErrAlreadyClaimed) {
			return nil, nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
		}
		return nil, nil, fmt.Errorf("claim job %s: %w", name, err)
	}
	defer func() {
		if relErr := r.locker.Release(context.WithoutCancel(ctx), jobClaim); relErr != nil {
			r.logger.Warn("Failed to release job claim", logger.Job(name), logger.Error(relErr))
		}
	}()

	log := r.logger.With(logger.Job(name), logger.Bool("dry_run", opts.DryRun), logger.String("trigger", opts.Trigger))
	log.Info("Job started")
	if r.metrics != nil {
		r.metrics.JobsRunning.Inc()
		defer r.metrics.JobsRunning.Dec()
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := r.now()
	result, runErr := entry.Job.Run(runCtx, opts)
	finished := r.now()
	if result == nil {
		result = NewResult(name, opts)
	}

	rec := &domain.JobExecutionRecord{
		ID:              uuid.NewString(),
		JobName:         name,
		Trigger:         opts.Trigger,
		DryRun:          opts.DryRun,
		Status:          executionStatus(runCtx, runErr),
		StartedAt:       started.UTC(),
		FinishedAt:      finished.UTC(),
		DurationMs:      finished.Sub(started).Milliseconds(),
		ListingsTouched: result.Scanned,
		Succeeded:       result.Succeeded,
		Skipped:         result.Skipped,
		Errored:         result.Errored,
	}
	if runErr != nil {
		detail := runErr.Error()
		rec.ErrorDetail = &detail
	}

	if appendErr := r.executions.Append(context.WithoutCancel(ctx), rec); appendErr != nil {
		log.Error("Failed to append job execution", logger.Error(appendErr))
	}
	if r.metrics != nil {
		r.metrics.ObserveJob(name, rec.Status, finished.Sub(started), result.Succeeded, result.Skipped, result.Errored)
	}

	fields := []logger.Field{
		logger.String("status", rec.Status),
		logger.Int("scanned", result.Scanned),
		logger.Int("succeeded", result.Succeeded),
		logger.Int("skipped", result.Skipped),
		logger.Int("errored", result.Errored),
		logger.Int64("duration_ms", rec.DurationMs),
	}
	if runErr != nil {
		log.Error("Job failed", append(fields, logger.Error(runErr))...)
		return result, rec, runErr
	}
	log.Info("Job finished", fields...)
	return result, rec, nil
}

func executionStatus(runCtx context.Context, runErr error) string {
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return domain.ExecutionTimedOut
	case runErr != nil:
		return domain.ExecutionFailed
	default:
		return domain.ExecutionCompleted
	}
}
