package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/database/memory"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/metrics"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/worker"
)

type funcJob struct {
	name string
	run  func(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error)
}

func (j funcJob) Name() string { return j.name }

func (j funcJob) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	return j.run(ctx, opts)
}

func newExecutor(t *testing.T, locker claim.Locker) *orchestrator.Executor {
	t.Helper()

	pool, err := worker.NewPool(worker.Config{
		Size:    2,
		IsFatal: func(err error) bool { return errors.Is(err, marketplace.ErrAuth) },
	}, logger.NewNop())
	require.NoError(t, err)

	return orchestrator.NewExecutor(pool, locker, time.Minute, logger.NewNop())
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	reg := orchestrator.NewRegistry()
	noop := funcJob{name: "scan_zombies"}
	require.NoError(t, reg.Register(noop, "0 3 * * *"))

	err := reg.Register(noop, "")
	require.ErrorIs(t, err, orchestrator.ErrDuplicateJob)

	err = reg.Register(funcJob{name: "bad"}, "not a cron")
	require.Error(t, err)

	_, err = reg.Get("missing")
	require.ErrorIs(t, err, orchestrator.ErrJobNotFound)

	entry, err := reg.Get("scan_zombies")
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", entry.Schedule)
	assert.Len(t, reg.List(), 1)
}

func TestEach_SkipsClaimedListings(t *testing.T) {
	t.Parallel()

	locker := claim.NewMemoryLocker()
	held, err := locker.TryClaim(context.Background(), claim.ListingKey("l-2"), time.Minute)
	require.NoError(t, err)
	defer func() { _ = locker.Release(context.Background(), held) }()

	ex := newExecutor(t, locker)
	outcomes := orchestrator.Each(context.Background(), ex, []string{"l-1", "l-2", "l-3"},
		func(_ context.Context, id string) (orchestrator.Detail, error) {
			return orchestrator.Detail{Action: "touched:" + id}, nil
		})

	require.Len(t, outcomes, 3)
	assert.Equal(t, "touched:l-1", outcomes[0].Value.Action)
	assert.True(t, outcomes[1].Skipped)
	assert.Equal(t, orchestrator.ReasonClaimed, outcomes[1].Reason)
	assert.False(t, outcomes[2].Skipped)

	// Claims are released after each unit.
	c, err := locker.TryClaim(context.Background(), claim.ListingKey("l-1"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, locker.Release(context.Background(), c))
}

func TestCollect_TalliesAndReportsFatal(t *testing.T) {
	t.Parallel()

	ex := newExecutor(t, claim.NewMemoryLocker())
	authErr := marketplace.Auth("update_price", errors.New("token revoked"))

	result := orchestrator.NewResult("reprice", orchestrator.RunOptions{})
	err := ex.Collect(result, []orchestrator.UnitOutcome[orchestrator.Detail]{
		{ListingID: "a", Value: orchestrator.Detail{Action: "repriced"}},
		{ListingID: "b", Skipped: true, Reason: worker.ReasonAborted},
		{ListingID: "c", Err: errors.New("boom")},
		{ListingID: "d", Err: authErr},
		{ListingID: "e", Value: orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: "floor"}},
	})

	require.ErrorIs(t, err, marketplace.ErrAuth)
	assert.Equal(t, 5, result.Scanned)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 2, result.Errored)
	assert.Equal(t, "a", result.Details[0].ListingID)
	assert.Equal(t, "boom", result.Details[2].Error)
}

func newRunner(t *testing.T, reg *orchestrator.Registry, timeout time.Duration) (*orchestrator.Runner, *memory.Store, *metrics.Metrics) {
	t.Helper()

	store := memory.NewStore(time.Now)
	m := metrics.New(prometheus.NewRegistry())
	r := orchestrator.NewRunner(reg, store.Executions, claim.NewMemoryLocker(), m, timeout, logger.NewNop())
	return r, store, m
}

func TestRunner_RecordsCompletedRun(t *testing.T) {
	t.Parallel()

	reg := orchestrator.NewRegistry()
	require.NoError(t, reg.Register(funcJob{
		name: "reprice",
		run: func(_ context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
			res := orchestrator.NewResult("reprice", opts)
			res.Scanned = 2
			res.Add(orchestrator.Detail{ListingID: "a", Outcome: orchestrator.OutcomeSucceeded})
			res.Add(orchestrator.Detail{ListingID: "b", Outcome: orchestrator.OutcomeSkipped})
			return res, nil
		},
	}, ""))

	runner, store, m := newRunner(t, reg, time.Second)
	result, rec, err := runner.Run(context.Background(), "reprice", orchestrator.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, domain.ExecutionCompleted, rec.Status)
	assert.Equal(t, domain.TriggerManual, rec.Trigger)
	assert.Equal(t, 2, rec.ListingsTouched)
	assert.Nil(t, rec.ErrorDetail)

	history, err := store.Executions.List(context.Background(), "reprice", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, rec.ID, history[0].ID)
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("reprice", domain.ExecutionCompleted)), 0)
}

func TestRunner_FailedAndTimedOut(t *testing.T) {
	t.Parallel()

	reg := orchestrator.NewRegistry()
	require.NoError(t, reg.Register(funcJob{
		name: "offers",
		run: func(context.Context, orchestrator.RunOptions) (*orchestrator.Result, error) {
			return nil, errors.New("gateway down")
		},
	}, ""))
	require.NoError(t, reg.Register(funcJob{
		name: "resurrect",
		run: func(ctx context.Context, _ orchestrator.RunOptions) (*orchestrator.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, ""))

	runner, store, _ := newRunner(t, reg, 20*time.Millisecond)

	_, rec, err := runner.Run(context.Background(), "offers", orchestrator.RunOptions{})
	require.Error(t, err)
	assert.Equal(t, domain.ExecutionFailed, rec.Status)
	require.NotNil(t, rec.ErrorDetail)
	assert.Equal(t, "gateway down", *rec.ErrorDetail)

	_, rec, err = runner.Run(context.Background(), "resurrect", orchestrator.RunOptions{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.ExecutionTimedOut, rec.Status)

	history, err := store.Executions.List(context.Background(), "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRunner_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	reg := orchestrator.NewRegistry()
	require.NoError(t, reg.Register(funcJob{
		name: "release_queue",
		run: func(_ context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
			close(started)
			<-release
			return orchestrator.NewResult("release_queue", opts), nil
		},
	}, ""))

	runner, _, _ := newRunner(t, reg, time.Second)

	done := make(chan error, 1)
	go func() {
		_, _, err := runner.Run(context.Background(), "release_queue", orchestrator.RunOptions{})
		done <- err
	}()
	<-started

	_, _, err := runner.Run(context.Background(), "release_queue", orchestrator.RunOptions{})
	require.ErrorIs(t, err, orchestrator.ErrJobRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestRunner_UnknownJob(t *testing.T) {
	t.Parallel()

	runner, _, _ := newRunner(t, orchestrator.NewRegistry(), time.Second)
	_, _, err := runner.Run(context.Background(), "nope", orchestrator.RunOptions{})
	require.ErrorIs(t, err, orchestrator.ErrJobNotFound)
}

func TestScheduler_SchedulesRegisteredJobs(t *testing.T) {
	t.Parallel()

	reg := orchestrator.NewRegistry()
	require.NoError(t, reg.Register(funcJob{name: "scan_zombies"}, "0 3 * * *"))
	require.NoError(t, reg.Register(funcJob{name: "manual_only"}, ""))

	runner, _, _ := newRunner(t, reg, time.Second)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := orchestrator.NewScheduler(runner, loc, logger.NewNop())
	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))

	next, ok := s.NextRun("scan_zombies")
	require.True(t, ok)
	assert.Equal(t, 3, next.In(loc).Hour())

	_, ok = s.NextRun("manual_only")
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

type mockExecutionRepository struct {
	mock.Mock
}

func (m *mockExecutionRepository) Append(ctx context.Context, rec *domain.JobExecutionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockExecutionRepository) List(
	ctx context.Context,
	jobName string,
	limit, offset int,
) ([]*domain.JobExecutionRecord, error) {
	args := m.Called(ctx, jobName, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.JobExecutionRecord), args.Error(1)
}

func TestRunner_AppendFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	reg := orchestrator.NewRegistry()
	require.NoError(t, reg.Register(funcJob{
		name: "offers",
		run: func(_ context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
			return orchestrator.NewResult("offers", opts), nil
		},
	}, ""))

	executions := &mockExecutionRepository{}
	executions.On("Append", mock.Anything, mock.MatchedBy(func(rec *domain.JobExecutionRecord) bool {
		return rec.JobName == "offers" && rec.Trigger == domain.TriggerSchedule && !rec.DryRun
	})).Return(errors.New("connection reset")).Once()

	runner := orchestrator.NewRunner(reg, executions, claim.NewMemoryLocker(), nil, time.Second, logger.NewNop())
	_, rec, err := runner.Run(context.Background(), "offers", orchestrator.RunOptions{Trigger: domain.TriggerSchedule})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, rec.Status)
	executions.AssertExpectations(t)
}
