package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/ratelimit"
)

func TestBudget_DailyLimitResetsAtMidnight(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 3, 23, 59, 0, 0, time.UTC)
	b := ratelimit.NewBudget(ratelimit.Config{CallsPerSecond: 1000, Burst: 100, DailyLimit: 2}).
		WithClock(func() time.Time { return now })

	ctx := context.Background()
	for range 2 {
		release, err := b.Acquire(ctx)
		require.NoError(t, err)
		release()
	}

	_, err := b.Acquire(ctx)
	require.ErrorIs(t, err, ratelimit.ErrDailyLimitExceeded)
	assert.Equal(t, 0, b.Stats().Remaining)

	now = now.Add(2 * time.Minute)
	release, err := b.Acquire(ctx)
	require.NoError(t, err)
	release()
	assert.Equal(t, 1, b.Stats().UsedToday)
}

func TestBudget_InFlightCapBlocksUntilRelease(t *testing.T) {
	t.Parallel()

	b := ratelimit.NewBudget(ratelimit.Config{CallsPerSecond: 1000, Burst: 100, MaxInFlight: 1})

	release, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Stats().InFlight)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Acquire(ctx)
	require.Error(t, err)

	release()
	release()
	assert.Equal(t, 0, b.Stats().InFlight)

	again, err := b.Acquire(context.Background())
	require.NoError(t, err)
	again()
}

func TestBudget_FailedAcquireRefundsDailyCount(t *testing.T) {
	t.Parallel()

	b := ratelimit.NewBudget(ratelimit.Config{CallsPerSecond: 1000, Burst: 100, MaxInFlight: 1, DailyLimit: 10})

	release, err := b.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Acquire(ctx)
	require.Error(t, err)

	assert.Equal(t, 1, b.Stats().UsedToday)
}

func TestBudget_OnWaitObserved(t *testing.T) {
	t.Parallel()

	b := ratelimit.NewBudget(ratelimit.Config{})
	var observed int
	b.OnWait = func(time.Duration) { observed++ }

	release, err := b.Acquire(context.Background())
	require.NoError(t, err)
	release()
	assert.Equal(t, 1, observed)
}
