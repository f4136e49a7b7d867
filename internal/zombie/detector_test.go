package zombie_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/mock"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/testhelpers"
	"github.com/jonesrussell/north-cloud/relister/internal/zombie"
)

func newDetector(h *testhelpers.Harness) *zombie.Detector {
	return zombie.NewDetector(zombie.Config{}, h.Listings, h.Gateway, h.Executor, h.Log)
}

func TestConfig_IsZombie(t *testing.T) {
	t.Parallel()

	cfg := zombie.Config{}
	cfg.SetDefaults()

	tests := []struct {
		name  string
		days  int
		views int
		want  bool
	}{
		{"stale", 65, 4, true},
		{"exactly sixty days", 60, 0, false},
		{"ten views", 90, 10, false},
		{"young", 10, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.IsZombie(tt.days, tt.views))
		})
	}
}

func TestDetector_FlagsStaleListings(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)

	h.Seed(t, &domain.Listing{ID: "a", ExternalID: "ext-a", Status: domain.StatusActive,
		ListPrice: testhelpers.Money("24.99")},
		&mock.Item{DaysActive: 65, Views: 4})
	h.Seed(t, &domain.Listing{ID: "b", ExternalID: "ext-b", Status: domain.StatusActive},
		&mock.Item{DaysActive: 65, Views: 50})
	h.Seed(t, &domain.Listing{ID: "c", ExternalID: "ext-c", Status: domain.StatusActive},
		&mock.Item{DaysActive: 30, Views: 0, WatcherIDs: []string{"w1"}})
	h.Seed(t, &domain.Listing{ID: "d", Status: domain.StatusDraft}, nil)

	result, err := newDetector(h).Run(context.Background(), orchestrator.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 1, result.Actions[zombie.ActionFlagged])
	assert.Equal(t, 2, result.Actions[zombie.ActionHealthy])

	a := h.Get(t, "a")
	assert.Equal(t, domain.StatusZombie, a.Status)
	assert.Equal(t, 1, a.ZombieCycleCount)
	assert.Equal(t, 4, a.TotalViews)

	history, err := h.Listings.History(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ZombieFlagged, history[0].Action)
	assert.Equal(t, 1, history[0].CycleNumber)
	assert.Equal(t, "ext-a", history[0].OldExternalID)
	assert.Equal(t, 65, history[0].DaysActive)

	healthy, err := h.Listings.History(context.Background(), "b")
	require.NoError(t, err)
	assert.Empty(t, healthy)

	c := h.Get(t, "c")
	assert.Equal(t, domain.StatusActive, c.Status)
	assert.Equal(t, 30, c.DaysActive)
	assert.Equal(t, 1, c.Watchers)
}

func TestDetector_ThirdStrikeEscalatesToPurgatory(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)

	h.Seed(t, &domain.Listing{ID: "a", ExternalID: "ext-a", Status: domain.StatusActive, ZombieCycleCount: 2},
		&mock.Item{DaysActive: 61, Views: 0})

	result, err := newDetector(h).Run(context.Background(), orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Actions[zombie.ActionEscalated])

	a := h.Get(t, "a")
	assert.Equal(t, domain.StatusPurgatory, a.Status)
	assert.Equal(t, 3, a.ZombieCycleCount)
	require.NotNil(t, a.PurgatoryEnteredAt)
	assert.False(t, a.PurgatoryPriced)

	history, err := h.Listings.History(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ZombiePurgatoried, history[0].Action)
	assert.Equal(t, 3, history[0].CycleNumber)
}

func TestDetector_DryRunDoesNotPersist(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)

	h.Seed(t, &domain.Listing{ID: "a", ExternalID: "ext-a", Status: domain.StatusActive},
		&mock.Item{DaysActive: 65, Views: 4})

	result, err := newDetector(h).Run(context.Background(), orchestrator.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Actions[zombie.ActionFlagged])

	a := h.Get(t, "a")
	assert.Equal(t, domain.StatusActive, a.Status)
	assert.Zero(t, a.ZombieCycleCount)

	history, err := h.Listings.History(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDetector_PermanentFailureRecordedOnListing(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)

	// No marketplace item behind the external id.
	h.Seed(t, &domain.Listing{ID: "a", ExternalID: "ext-gone", Status: domain.StatusActive}, nil)
	h.Seed(t, &domain.Listing{ID: "b", Status: domain.StatusActive}, nil)

	result, err := newDetector(h).Run(context.Background(), orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errored)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "not_published", result.Details[1].Reason)

	a := h.Get(t, "a")
	assert.Equal(t, domain.StatusActive, a.Status)
	assert.Contains(t, a.LastError, "item not found")
}
