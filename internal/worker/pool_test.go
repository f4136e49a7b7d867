package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/worker"
)

var errFatal = errors.New("fatal")

func TestNewPool_InvalidSize(t *testing.T) {
	t.Parallel()

	_, err := worker.NewPool(worker.Config{Size: 0}, logger.NewNop())
	require.Error(t, err)
}

func TestPool_RunsAllUnitsWithinLimit(t *testing.T) {
	t.Parallel()

	pool, err := worker.NewPool(worker.Config{Size: 2}, logger.NewNop())
	require.NoError(t, err)

	var inFlight, peak atomic.Int32
	units := make([]worker.Unit, 10)
	for i := range units {
		units[i] = worker.Unit{
			Key: fmt.Sprintf("l-%d", i),
			Fn: func(context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				if i == 3 {
					return errors.New("boom")
				}
				return nil
			},
		}
	}

	outcomes := pool.Run(context.Background(), units)
	require.Len(t, outcomes, 10)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for i, o := range outcomes {
		assert.Equal(t, fmt.Sprintf("l-%d", i), o.Key)
		assert.False(t, o.Skipped)
		if i == 3 {
			assert.Error(t, o.Err)
		} else {
			assert.NoError(t, o.Err)
		}
	}
}

func TestPool_DeadlineSkipsUnstartedUnits(t *testing.T) {
	t.Parallel()

	pool, err := worker.NewPool(worker.Config{Size: 1}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var sawCancelled atomic.Bool
	units := []worker.Unit{
		{Key: "first", Fn: func(unitCtx context.Context) error {
			cancel()
			sawCancelled.Store(unitCtx.Err() != nil)
			return nil
		}},
		{Key: "second", Fn: func(context.Context) error { return nil }},
		{Key: "third", Fn: func(context.Context) error { return nil }},
	}

	outcomes := pool.Run(ctx, units)
	assert.False(t, outcomes[0].Skipped)
	assert.False(t, sawCancelled.Load(), "in-flight unit must not observe cancellation")
	for _, o := range outcomes[1:] {
		assert.True(t, o.Skipped)
		assert.Equal(t, worker.ReasonDeadline, o.Reason)
	}
}

func TestPool_FatalErrorAborts(t *testing.T) {
	t.Parallel()

	pool, err := worker.NewPool(worker.Config{
		Size:    1,
		IsFatal: func(err error) bool { return errors.Is(err, errFatal) },
	}, logger.NewNop())
	require.NoError(t, err)

	var ran atomic.Int32
	units := []worker.Unit{
		{Key: "a", Fn: func(context.Context) error { ran.Add(1); return errFatal }},
		{Key: "b", Fn: func(context.Context) error { ran.Add(1); return nil }},
		{Key: "c", Fn: func(context.Context) error { ran.Add(1); return nil }},
	}

	outcomes := pool.Run(context.Background(), units)
	assert.Equal(t, int32(1), ran.Load())
	require.ErrorIs(t, outcomes[0].Err, errFatal)
	assert.Equal(t, worker.ReasonAborted, outcomes[1].Reason)
	assert.Equal(t, worker.ReasonAborted, outcomes[2].Reason)
}

func TestPool_StartedUnitSeesRunExpiry(t *testing.T) {
	t.Parallel()

	pool, err := worker.NewPool(worker.Config{Size: 1}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var before, after bool
	var unitErr error
	outcomes := pool.Run(ctx, []worker.Unit{{
		Key: "l-1",
		Fn: func(unitCtx context.Context) error {
			before = worker.Expired(unitCtx)
			cancel()
			after = worker.Expired(unitCtx)
			unitErr = unitCtx.Err()
			return nil
		},
	}})

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Skipped)
	assert.False(t, before)
	assert.True(t, after)
	assert.NoError(t, unitErr, "work in flight keeps a live context")
}

func TestExpired_OutsideUnitFollowsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	assert.False(t, worker.Expired(ctx))
	cancel()
	assert.True(t, worker.Expired(ctx))
}
