package shuffler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/mock"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/shuffler"
	"github.com/jonesrussell/north-cloud/relister/internal/testhelpers"
)

func TestShuffler_RotatesUnseenListingsOnce(t *testing.T) {
	t.Parallel()
	h := testhelpers.NewHarness(t)

	listed := h.Clock.Now().Add(-20 * 24 * time.Hour)
	h.Seed(t, &domain.Listing{ID: "a", ExternalID: "ext-a", Status: domain.StatusActive,
		DaysActive: 20, ListedAt: &listed}, &mock.Item{})
	h.Seed(t, &domain.Listing{ID: "b", ExternalID: "ext-b", Status: domain.StatusActive,
		DaysActive: 20, TotalViews: 3, ListedAt: &listed}, &mock.Item{})
	h.Seed(t, &domain.Listing{ID: "c", ExternalID: "ext-c", Status: domain.StatusActive,
		DaysActive: 5, ListedAt: &listed}, &mock.Item{})

	s := shuffler.New(shuffler.Config{}, h.Listings, h.Gateway, h.Executor, h.Log).WithClock(h.Clock.Now)
	ctx := context.Background()

	result, err := s.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Actions[shuffler.ActionShuffled])
	assert.Equal(t, "has_views", result.Details[1].Reason)
	assert.Equal(t, "too_new", result.Details[2].Reason)

	a := h.Get(t, "a")
	assert.Equal(t, []string{"b.jpg", "c.jpg", "a.jpg"}, []string(a.PhotoURLs))
	require.NotNil(t, a.PhotosShuffledAt)
	item, _ := h.Gateway.Item("ext-a")
	assert.Equal(t, []string{"b.jpg", "c.jpg", "a.jpg"}, item.Photos)

	result, err = s.Run(ctx, orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "already_shuffled", result.Details[0].Reason)
	assert.Equal(t, 1, h.Gateway.Calls(mock.OpRotatePhotos))
}
