package mock_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/mock"
)

func TestGateway_EndItemIsIdempotent(t *testing.T) {
	t.Parallel()

	g := mock.New()
	g.AddItem(mock.Item{ExternalID: "ext-1"})
	ctx := context.Background()

	require.NoError(t, g.EndItem(ctx, "ext-1"))
	require.NoError(t, g.EndItem(ctx, "ext-1"))

	item, ok := g.Item("ext-1")
	require.True(t, ok)
	assert.True(t, item.Ended)
	assert.Equal(t, 2, g.Calls(mock.OpEndItem))

	err := g.UpdatePrice(ctx, "ext-1", decimal.NewFromInt(10))
	require.ErrorIs(t, err, marketplace.ErrPermanent)
}

func TestGateway_UnknownItemIsPermanent(t *testing.T) {
	t.Parallel()

	g := mock.New()
	_, err := g.GetListingStats(context.Background(), "missing")
	require.ErrorIs(t, err, marketplace.ErrPermanent)
	assert.False(t, marketplace.IsRetryable(err))
}

func TestGateway_FailNextIsConsumedInOrder(t *testing.T) {
	t.Parallel()

	g := mock.New()
	g.AddItem(mock.Item{ExternalID: "ext-1", Photos: []string{"a", "b", "c"}})
	transient := marketplace.Transient(mock.OpRotatePhotos, errors.New("503"))
	g.FailNext(mock.OpRotatePhotos, transient)
	ctx := context.Background()

	require.ErrorIs(t, g.RotatePhotos(ctx, "ext-1"), marketplace.ErrTransient)
	require.NoError(t, g.RotatePhotos(ctx, "ext-1"))

	item, _ := g.Item("ext-1")
	assert.Equal(t, []string{"b", "c", "a"}, item.Photos)
}

func TestGateway_CreateItemAndOffers(t *testing.T) {
	t.Parallel()

	g := mock.New()
	ctx := context.Background()

	id, err := g.CreateItem(ctx, marketplace.Draft{SKU: "JKT_R1", Price: decimal.NewFromInt(30), PhotoURLs: []string{"p1"}})
	require.NoError(t, err)

	stats, err := g.GetListingStats(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, stats.DaysActive)

	offerID, err := g.SendOffer(ctx, id, "buyer-1", decimal.NewFromInt(27))
	require.NoError(t, err)
	require.Len(t, g.SentOffers(), 1)
	assert.Equal(t, offerID, g.SentOffers()[0].OfferID)
}

func TestLoadFixtures(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
items:
  - external_id: ext-9
    sku: BAG-9
    price: "24.99"
    views: 4
    days_active: 65
    watchers: [buyer-a, buyer-b]
    photos: [front.jpg, back.jpg]
incoming_offers:
  - offer_id: off-1
    buyer_id: buyer-a
    amount: "27.50"
`), 0o600))

	f, err := mock.LoadFixtures(path)
	require.NoError(t, err)

	g := mock.New()
	g.Seed(f)
	ctx := context.Background()

	stats, err := g.GetListingStats(ctx, "ext-9")
	require.NoError(t, err)
	assert.Equal(t, marketplace.Stats{Views: 4, Watchers: 2, DaysActive: 65}, stats)

	offer, err := g.EvaluateIncomingOffer(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, "27.50", offer.Amount.StringFixed(2))
}
