package autorelist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/autorelist"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/mock"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/resurrect"
	"github.com/jonesrussell/north-cloud/relister/internal/testhelpers"
)

func newRelister(h *testhelpers.Harness) (*autorelist.Relister, *resurrect.Resurrector) {
	r := resurrect.New(resurrect.Config{Cooldown: 2 * time.Minute}, h.Listings, h.Gateway, h.Executor, h.Log).
		WithClock(h.Clock.Now)
	return autorelist.New(autorelist.Config{}, h.Listings, r, h.Executor, h.Log), r
}

func TestRelister_Due(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)
	rl, _ := newRelister(h)

	tests := []struct {
		name   string
		l      domain.Listing
		want   bool
		reason string
	}{
		{"due", domain.Listing{Status: domain.StatusActive, ExternalID: "x", DaysActive: 30, TotalViews: 24}, true, ""},
		{"too new", domain.Listing{Status: domain.StatusActive, ExternalID: "x", DaysActive: 29}, false, "too_new"},
		{"has traffic", domain.Listing{Status: domain.StatusActive, ExternalID: "x", DaysActive: 45, TotalViews: 25}, false, "has_traffic"},
		{"unpublished", domain.Listing{Status: domain.StatusActive, DaysActive: 45}, false, "not_published"},
		{"zombie", domain.Listing{Status: domain.StatusZombie, ExternalID: "x", DaysActive: 45}, false, "status_changed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := rl.Due(&tt.l)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestRelister_RelistsWithoutZombieStrike(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)
	ctx := context.Background()

	h.Seed(t, &domain.Listing{ID: "a", ExternalID: "ext-a", SKU: "LAMP-01", Status: domain.StatusActive,
		ZombieCycleCount: 1, DaysActive: 35, TotalViews: 3}, &mock.Item{DaysActive: 35, Views: 3})
	h.Seed(t, &domain.Listing{ID: "b", ExternalID: "ext-b", Status: domain.StatusActive,
		DaysActive: 35, TotalViews: 80}, &mock.Item{DaysActive: 35, Views: 80})

	rl, r := newRelister(h)
	result, err := rl.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Actions[autorelist.ActionRelisted])
	assert.Equal(t, 1, result.Skipped)

	a := h.Get(t, "a")
	assert.Equal(t, domain.StatusZombie, a.Status)
	assert.Equal(t, 1, a.ZombieCycleCount)
	assert.Equal(t, domain.StageEnded, a.ResurrectionStage)

	item, ok := h.Gateway.Item("ext-a")
	require.True(t, ok)
	assert.True(t, item.Ended)

	h.Clock.Advance(2 * time.Minute)
	_, err = r.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)

	a = h.Get(t, "a")
	assert.Equal(t, domain.StatusActive, a.Status)
	assert.Equal(t, 1, a.ZombieCycleCount)
	assert.Equal(t, "LAMP-01_R1", a.SKU)
	assert.NotEqual(t, "ext-a", a.ExternalID)

	history, err := h.Listings.History(ctx, "a")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.ZombieResurrected, history[0].Action)
	assert.Equal(t, "ext-a", history[0].OldExternalID)
	assert.Equal(t, a.ExternalID, history[0].NewExternalID)
	assert.Equal(t, domain.ZombiePreventiveRelist, history[1].Action)
	assert.Zero(t, history[1].CycleNumber)
	assert.Equal(t, "ext-a", history[1].OldExternalID)
}

func TestRelister_DryRunLeavesListing(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)

	h.Seed(t, &domain.Listing{ID: "a", ExternalID: "ext-a", Status: domain.StatusActive, DaysActive: 40},
		&mock.Item{DaysActive: 40})

	rl, _ := newRelister(h)
	result, err := rl.Run(context.Background(), orchestrator.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Actions[autorelist.ActionWouldRelist])
	assert.Equal(t, domain.StatusActive, h.Get(t, "a").Status)
	assert.Zero(t, h.Gateway.TotalCalls())
}

func TestRelister_EndFailureLeavesListingForResurrection(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)

	h.Seed(t, &domain.Listing{ID: "a", ExternalID: "ext-a", Status: domain.StatusActive, DaysActive: 40},
		&mock.Item{DaysActive: 40})
	h.Gateway.FailNext(mock.OpEndItem, marketplace.Transient(mock.OpEndItem, errors.New("503")))

	rl, _ := newRelister(h)
	result, err := rl.Run(context.Background(), orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errored)

	a := h.Get(t, "a")
	assert.Equal(t, domain.StatusZombie, a.Status)
	assert.Equal(t, domain.StageNone, a.ResurrectionStage)
	assert.Contains(t, a.LastError, "end item")
}
