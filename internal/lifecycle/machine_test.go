package lifecycle_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMachine(t *testing.T) *lifecycle.Machine {
	t.Helper()

	model, err := profit.NewModel(profit.FeeRates{
		Marketplace: decimal.RequireFromString("0.13"),
		Payment:     decimal.RequireFromString("0.029"),
		Advertising: decimal.RequireFromString("0.005"),
	})
	require.NoError(t, err)

	m, err := lifecycle.NewMachine(model, lifecycle.DefaultEscalationThreshold,
		lifecycle.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return m
}

func newListing(status domain.ListingStatus) *domain.Listing {
	return &domain.Listing{
		ID:            "lst-1",
		ExternalID:    "ext-1",
		SKU:           "JKT-001",
		PurchasePrice: decimal.RequireFromString("20.00"),
		ShippingCost:  decimal.RequireFromString("5.00"),
		OriginalPrice: decimal.RequireFromString("49.99"),
		ListPrice:     decimal.RequireFromString("49.99"),
		Status:        status,
	}
}

func TestTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    domain.ListingStatus
		event   lifecycle.Event
		want    domain.ListingStatus
		wantErr bool
	}{
		{name: "draft publish", from: domain.StatusDraft, event: lifecycle.EventPublish, want: domain.StatusActive},
		{name: "draft enqueue", from: domain.StatusDraft, event: lifecycle.EventEnqueue, want: domain.StatusQueued},
		{name: "queued release", from: domain.StatusQueued, event: lifecycle.EventRelease, want: domain.StatusActive},
		{name: "queued cancel", from: domain.StatusQueued, event: lifecycle.EventCancel, want: domain.StatusDraft},
		{name: "active zombie", from: domain.StatusActive, event: lifecycle.EventFlagZombie, want: domain.StatusZombie},
		{name: "active sold", from: domain.StatusActive, event: lifecycle.EventMarkSold, want: domain.StatusSold},
		{name: "active ended", from: domain.StatusActive, event: lifecycle.EventEnd, want: domain.StatusEnded},
		{name: "active relist", from: domain.StatusActive, event: lifecycle.EventRelist, want: domain.StatusZombie},
		{name: "queued cannot relist", from: domain.StatusQueued, event: lifecycle.EventRelist, wantErr: true},
		{name: "zombie resurrect", from: domain.StatusZombie, event: lifecycle.EventResurrect, want: domain.StatusActive},
		{name: "zombie escalate", from: domain.StatusZombie, event: lifecycle.EventEscalate, want: domain.StatusPurgatory},
		{name: "purgatory ended", from: domain.StatusPurgatory, event: lifecycle.EventEnd, want: domain.StatusEnded},
		{name: "purgatory sold", from: domain.StatusPurgatory, event: lifecycle.EventMarkSold, want: domain.StatusSold},
		{name: "none keeps status", from: domain.StatusZombie, event: lifecycle.EventNone, want: domain.StatusZombie},
		{name: "purgatory cannot re-enter zombie", from: domain.StatusPurgatory, event: lifecycle.EventFlagZombie, wantErr: true},
		{name: "purgatory cannot resurrect", from: domain.StatusPurgatory, event: lifecycle.EventResurrect, wantErr: true},
		{name: "zombie cannot be sold", from: domain.StatusZombie, event: lifecycle.EventMarkSold, wantErr: true},
		{name: "sold is terminal", from: domain.StatusSold, event: lifecycle.EventPublish, wantErr: true},
		{name: "ended is terminal", from: domain.StatusEnded, event: lifecycle.EventRelease, wantErr: true},
		{name: "draft cannot go zombie", from: domain.StatusDraft, event: lifecycle.EventFlagZombie, wantErr: true},
		{name: "unknown status", from: domain.ListingStatus("archived"), event: lifecycle.EventNone, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := lifecycle.Transition(tt.from, tt.event)
			if tt.wantErr {
				require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
				assert.Equal(t, tt.from, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_InvalidTransitionLeavesListingUntouched(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	l := newListing(domain.StatusPurgatory)
	before := *l

	err := m.Apply(l, lifecycle.EventFlagZombie, lifecycle.WithPrice(decimal.RequireFromString("35")))

	var ite *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.StatusPurgatory, ite.From)
	assert.Equal(t, before, *l)
}

func TestApply_ThreeStrikesEscalatesToPurgatory(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	l := newListing(domain.StatusActive)

	for strike := 1; strike <= 2; strike++ {
		require.NoError(t, m.Apply(l, lifecycle.EventFlagZombie))
		assert.Equal(t, domain.StatusZombie, l.Status)
		assert.Equal(t, strike, l.ZombieCycleCount)

		require.NoError(t, m.Apply(l, lifecycle.EventResurrect))
		assert.Equal(t, domain.StatusActive, l.Status)
		assert.Equal(t, strike, l.ZombieCycleCount, "resurrection never resets the count")
	}

	require.NoError(t, m.Apply(l, lifecycle.EventFlagZombie))
	assert.Equal(t, domain.StatusPurgatory, l.Status)
	assert.Equal(t, 3, l.ZombieCycleCount)
	require.NotNil(t, l.PurgatoryEnteredAt)
	assert.True(t, l.PurgatoryEnteredAt.Equal(fixedNow))
	assert.False(t, l.PurgatoryPriced)
}

func TestApply_ResurrectRefusedAtThreshold(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	l := newListing(domain.StatusZombie)
	l.ZombieCycleCount = 3

	err := m.Apply(l, lifecycle.EventResurrect)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Equal(t, domain.StatusZombie, l.Status)

	require.NoError(t, m.Apply(l, lifecycle.EventEscalate))
	assert.Equal(t, domain.StatusPurgatory, l.Status)
}

func TestApply_EscalateBelowThresholdRejected(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	l := newListing(domain.StatusZombie)
	l.ZombieCycleCount = 1

	require.ErrorIs(t, m.Apply(l, lifecycle.EventEscalate), lifecycle.ErrInvalidTransition)
}

func TestApply_ResurrectResetsCounters(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	l := newListing(domain.StatusZombie)
	l.ZombieCycleCount = 1
	l.DaysActive = 65
	l.TotalViews = 4
	l.RepriceStepDays = 45
	l.ResurrectionStage = domain.StagePhotosRotated
	l.LastError = "boom"

	require.NoError(t, m.Apply(l, lifecycle.EventResurrect, lifecycle.WithExternalID("ext-2")))

	assert.Equal(t, domain.StatusActive, l.Status)
	assert.Equal(t, "ext-2", l.ExternalID)
	assert.Zero(t, l.DaysActive)
	assert.Zero(t, l.TotalViews)
	assert.Zero(t, l.RepriceStepDays)
	assert.Equal(t, 1, l.ResurrectionCount)
	assert.Equal(t, domain.StageNone, l.ResurrectionStage)
	assert.Empty(t, l.LastError)
	assert.True(t, l.LastTransitionAt.Equal(fixedNow))
}

func TestApply_RelistKeepsZombieCycles(t *testing.T) {
	t.Parallel()
	m := newMachine(t)

	l := newListing(domain.StatusActive)
	l.ZombieCycleCount = 1

	require.NoError(t, m.Apply(l, lifecycle.EventRelist))
	assert.Equal(t, domain.StatusZombie, l.Status)
	assert.Equal(t, 1, l.ZombieCycleCount)

	require.NoError(t, m.Apply(l, lifecycle.EventResurrect, lifecycle.WithExternalID("ext-2")))
	assert.Equal(t, domain.StatusActive, l.Status)
	assert.Equal(t, 1, l.ResurrectionCount)
}

func TestApply_FloorViolationRejected(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	l := newListing(domain.StatusActive)

	err := m.Apply(l, lifecycle.EventNone, lifecycle.WithPrice(decimal.RequireFromString("29.90")))

	var fve *lifecycle.FloorViolationError
	require.ErrorAs(t, err, &fve)
	assert.Equal(t, "29.91", fve.Floor.StringFixed(2))
	assert.Equal(t, "49.99", l.ListPrice.StringFixed(2))
	assert.Nil(t, l.LastPriceChangeAt)
}

func TestApply_PriceAtFloorAccepted(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	l := newListing(domain.StatusActive)

	require.NoError(t, m.Apply(l, lifecycle.EventNone,
		lifecycle.WithPrice(decimal.RequireFromString("29.91")),
		lifecycle.WithRepriceStep(45),
	))
	assert.Equal(t, "29.91", l.ListPrice.StringFixed(2))
	assert.Equal(t, 45, l.RepriceStepDays)
	require.NotNil(t, l.LastPriceChangeAt)
}

func TestApply_FieldOnlyUpdateOnLegacyPriceBelowFloor(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	l := newListing(domain.StatusActive)
	l.ListPrice = decimal.RequireFromString("24.99")

	// Unchanged prices are not re-validated; only mutations are.
	require.NoError(t, m.Apply(l, lifecycle.EventNone, lifecycle.WithStats(4, 0, 65)))
	assert.Equal(t, 65, l.DaysActive)
}

func TestApply_TerminalTimestamps(t *testing.T) {
	t.Parallel()

	m := newMachine(t)

	sold := newListing(domain.StatusPurgatory)
	require.NoError(t, m.Apply(sold, lifecycle.EventMarkSold))
	require.NotNil(t, sold.SoldAt)
	assert.True(t, lifecycle.IsTerminal(sold.Status))

	ended := newListing(domain.StatusActive)
	require.NoError(t, m.Apply(ended, lifecycle.EventEnd))
	require.NotNil(t, ended.EndedAt)
}

func TestNewMachine_Validation(t *testing.T) {
	t.Parallel()

	_, err := lifecycle.NewMachine(nil, 3)
	require.Error(t, err)

	model, err := profit.NewModel(profit.FeeRates{})
	require.NoError(t, err)
	_, err = lifecycle.NewMachine(model, 0)
	require.Error(t, err)
}
