package purgatory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/mock"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/purgatory"
	"github.com/jonesrussell/north-cloud/relister/internal/testhelpers"
)

func seedPurgatory(t *testing.T, h *testhelpers.Harness, id, price string) {
	t.Helper()
	entered := h.Clock.Now()
	h.Seed(t, &domain.Listing{
		ID:                 id,
		ExternalID:         "ext-" + id,
		Status:             domain.StatusPurgatory,
		ZombieCycleCount:   3,
		ListPrice:          testhelpers.Money(price),
		PurgatoryEnteredAt: &entered,
	}, &mock.Item{})
}

func TestManager_MarkdownClampedToFloor(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)
	seedPurgatory(t, h, "a", "24.99")
	seedPurgatory(t, h, "b", "100.00")

	m := purgatory.New(purgatory.Config{}, h.Listings, h.Gateway, h.Executor, h.Log).WithClock(h.Clock.Now)
	result, err := m.Run(context.Background(), orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Actions[purgatory.ActionMarkedDown])

	a := h.Get(t, "a")
	assert.Equal(t, "29.91", a.ListPrice.StringFixed(2))
	assert.True(t, a.PurgatoryPriced)
	assert.True(t, a.FloorClamped)

	item, _ := h.Gateway.Item("ext-a")
	assert.Equal(t, "29.91", item.Price.StringFixed(2))

	b := h.Get(t, "b")
	assert.Equal(t, "70.00", b.ListPrice.StringFixed(2))
	assert.False(t, b.FloorClamped)
}

func TestManager_RecommendsAfterDwell(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)
	seedPurgatory(t, h, "a", "24.99")

	m := purgatory.New(purgatory.Config{}, h.Listings, h.Gateway, h.Executor, h.Log).WithClock(h.Clock.Now)
	ctx := context.Background()

	_, err := m.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)

	result, err := m.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "dwell", result.Details[0].Reason)

	h.Clock.Advance(7 * 24 * time.Hour)
	result, err = m.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Actions[purgatory.ActionRecommend])
	assert.Equal(t, string(purgatory.Donate), result.Details[0].Fields["disposition"])

	// Advisory only.
	assert.Equal(t, domain.StatusPurgatory, h.Get(t, "a").Status)
	assert.Equal(t, 1, h.Gateway.Calls(mock.OpUpdatePrice))
}

func TestManager_DryRunLeavesPrice(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)
	seedPurgatory(t, h, "a", "100.00")

	m := purgatory.New(purgatory.Config{}, h.Listings, h.Gateway, h.Executor, h.Log).WithClock(h.Clock.Now)
	result, err := m.Run(context.Background(), orchestrator.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "70.00", result.Details[0].Fields["new_price"])
	assert.Equal(t, "100.00", h.Get(t, "a").ListPrice.StringFixed(2))
	assert.Zero(t, h.Gateway.TotalCalls())
}

func TestPolicy_Decide(t *testing.T) {
	t.Parallel()

	p := purgatory.Policy{
		DonateCategories: []string{"Books"},
		TrashCategories:  []string{"cosmetics"},
	}
	p.SetDefaults()

	tests := []struct {
		name     string
		category string
		value    string
		want     purgatory.Disposition
		rule     string
	}{
		{"trash category wins", "Cosmetics", "80.00", purgatory.Trash, "category"},
		{"donate category", "books", "2.00", purgatory.Donate, "category"},
		{"valuable", "tools", "15.00", purgatory.Donate, "value"},
		{"cheap", "tools", "14.99", purgatory.Trash, "value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule := p.Decide(tt.category, testhelpers.Money(tt.value))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rule, rule)
		})
	}
}
