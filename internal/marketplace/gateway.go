// Package marketplace defines the capability the lifecycle engine needs from
// the external marketplace, independent of which implementation serves it.
package marketplace

import (
	"context"

	"github.com/shopspring/decimal"
)

// Stats are engagement counters of a live item.
type Stats struct {
	Views      int `json:"views"`
	Watchers   int `json:"watchers"`
	DaysActive int `json:"days_active"`
}

// Draft is what CreateItem publishes.
type Draft struct {
	SKU       string          `json:"sku"`
	Title     string          `json:"title"`
	Category  string          `json:"category,omitempty"`
	Price     decimal.Decimal `json:"price"`
	PhotoURLs []string        `json:"photo_urls"`
}

// IncomingOffer is a buyer's offer as reported by the marketplace.
type IncomingOffer struct {
	BuyerID string          `json:"buyer_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// OfferAction is a seller's answer to an incoming offer.
type OfferAction string

const (
	ActionAccept  OfferAction = "accept"
	ActionCounter OfferAction = "counter"
	ActionReject  OfferAction = "reject"
)

// Response answers an incoming offer. CounterAmount is set for counters.
type Response struct {
	Action        OfferAction      `json:"action"`
	CounterAmount *decimal.Decimal `json:"counter_amount,omitempty"`
}

// Gateway is the marketplace capability. Every method may fail with an
// *Error classified as transient, permanent or auth.
type Gateway interface {
	GetListingStats(ctx context.Context, externalID string) (Stats, error)
	GetWatchers(ctx context.Context, externalID string) ([]string, error)
	UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) error
	// EndItem is a no-op for an item that is already ended.
	EndItem(ctx context.Context, externalID string) error
	CreateItem(ctx context.Context, draft Draft) (string, error)
	RotatePhotos(ctx context.Context, externalID string) error
	SendOffer(ctx context.Context, externalID, buyerID string, price decimal.Decimal) (string, error)
	EvaluateIncomingOffer(ctx context.Context, offerID string) (IncomingOffer, error)
	RespondToOffer(ctx context.Context, offerID string, resp Response) error
	// UpdateHandlingTime sets the item's dispatch time in business days.
	UpdateHandlingTime(ctx context.Context, externalID string, days int) error
}
