package pulse_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/mock"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/pulse"
	"github.com/jonesrussell/north-cloud/relister/internal/testhelpers"
)

func TestConfig_PhaseOn(t *testing.T) {
	t.Parallel()

	cfg := pulse.Config{}
	cfg.SetDefaults()

	tests := []struct {
		name string
		day  time.Time
		want pulse.Phase
	}{
		{"first of month", time.Date(2026, time.April, 1, 5, 0, 0, 0, time.UTC), pulse.PhasePulse},
		{"second of month", time.Date(2026, time.April, 2, 5, 0, 0, 0, time.UTC), pulse.PhaseRevert},
		{"mid month", time.Date(2026, time.April, 15, 5, 0, 0, 0, time.UTC), pulse.PhaseIdle},
		{"last of month", time.Date(2026, time.March, 31, 5, 0, 0, 0, time.UTC), pulse.PhaseIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.PhaseOn(tt.day))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := pulse.Config{DayOfMonth: 31}
	cfg.SetDefaults()
	require.Error(t, cfg.Validate())

	cfg = pulse.Config{DayOfMonth: 3, BaseDays: 2, PulseDays: 2}
	require.Error(t, cfg.Validate())

	cfg = pulse.Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
}

func seedStore(t *testing.T, h *testhelpers.Harness) {
	t.Helper()
	h.Seed(t, &domain.Listing{ID: "a", ExternalID: "ext-a", Status: domain.StatusActive}, &mock.Item{HandlingDays: 1})
	h.Seed(t, &domain.Listing{ID: "b", ExternalID: "ext-b", Status: domain.StatusActive}, &mock.Item{HandlingDays: 1})
	h.Seed(t, &domain.Listing{ID: "c", Status: domain.StatusActive}, nil)
	h.Seed(t, &domain.Listing{ID: "d", ExternalID: "ext-d", Status: domain.StatusZombie}, &mock.Item{HandlingDays: 1})
}

func handlingDays(t *testing.T, h *testhelpers.Harness, externalID string) int {
	t.Helper()
	item, ok := h.Gateway.Item(externalID)
	require.True(t, ok)
	return item.HandlingDays
}

func TestPulse_RaisesThenRestoresHandlingTime(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)
	seedStore(t, h)
	ctx := context.Background()

	p := pulse.New(pulse.Config{}, h.Listings, h.Gateway, h.Executor, h.Log).WithClock(h.Clock.Now)

	h.Clock.Set(time.Date(2026, time.April, 1, 5, 0, 0, 0, time.UTC))
	result, err := p.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Actions[pulse.ActionPulsed])
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, handlingDays(t, h, "ext-a"))
	assert.Equal(t, 2, handlingDays(t, h, "ext-b"))
	assert.Equal(t, 1, handlingDays(t, h, "ext-d"))

	h.Clock.Advance(24 * time.Hour)
	result, err = p.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Actions[pulse.ActionReverted])
	assert.Equal(t, 1, handlingDays(t, h, "ext-a"))
	assert.Equal(t, 1, handlingDays(t, h, "ext-b"))

	calls := h.Gateway.Calls(mock.OpUpdateHandlingTime)
	h.Clock.Advance(24 * time.Hour)
	result, err = p.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Equal(t, calls, h.Gateway.Calls(mock.OpUpdateHandlingTime))
}

func TestPulse_CalendarFollowsLocation(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)
	seedStore(t, h)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC on the 1st is still the last day of the month in New York.
	h.Clock.Set(time.Date(2026, time.May, 1, 2, 0, 0, 0, time.UTC))
	p := pulse.New(pulse.Config{}, h.Listings, h.Gateway, h.Executor, h.Log).
		WithClock(h.Clock.Now).
		WithLocation(loc)

	result, err := p.Run(context.Background(), orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
}

func TestPulse_DryRunMakesNoCalls(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)
	seedStore(t, h)

	h.Clock.Set(time.Date(2026, time.April, 2, 5, 0, 0, 0, time.UTC))
	p := pulse.New(pulse.Config{}, h.Listings, h.Gateway, h.Executor, h.Log).WithClock(h.Clock.Now)

	result, err := p.Run(context.Background(), orchestrator.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Actions["would_revert"])
	assert.Zero(t, h.Gateway.Calls(mock.OpUpdateHandlingTime))
}

func TestPulse_FailureIsPerListing(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)
	seedStore(t, h)

	h.Clock.Set(time.Date(2026, time.April, 1, 5, 0, 0, 0, time.UTC))
	h.Gateway.FailNext(mock.OpUpdateHandlingTime,
		marketplace.Permanent(mock.OpUpdateHandlingTime, errors.New("invalid item state")))

	p := pulse.New(pulse.Config{}, h.Listings, h.Gateway, h.Executor, h.Log).WithClock(h.Clock.Now)
	result, err := p.Run(context.Background(), orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errored)
	assert.Equal(t, 1, result.Actions[pulse.ActionPulsed])
}
