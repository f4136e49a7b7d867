package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferDirection distinguishes offers we send from offers buyers send.
type OfferDirection string

const (
	OfferOutbound OfferDirection = "outbound"
	OfferInbound  OfferDirection = "inbound"
)

// OfferOutcome is the recorded result of an offer decision.
type OfferOutcome string

const (
	OutcomeSent      OfferOutcome = "sent"
	OutcomeAccepted  OfferOutcome = "accepted"
	OutcomeCountered OfferOutcome = "countered"
	OutcomeRejected  OfferOutcome = "rejected"
	OutcomeExpired   OfferOutcome = "expired"
)

// OfferRecord is one offer decision. Inbound records are unique per
// (ListingID, OfferID).
type OfferRecord struct {
	ID              string           `db:"id"               json:"id"`
	ListingID       string           `db:"listing_id"       json:"listing_id"`
	OfferID         string           `db:"offer_id"         json:"offer_id"`
	BuyerID         string           `db:"buyer_id"         json:"buyer_id"`
	Price           decimal.Decimal  `db:"price"            json:"price"`
	CounterPrice    *decimal.Decimal `db:"counter_price"    json:"counter_price,omitempty"`
	DiscountPercent decimal.Decimal  `db:"discount_percent" json:"discount_percent"`
	Direction       OfferDirection   `db:"direction"        json:"direction"`
	Outcome         OfferOutcome     `db:"outcome"          json:"outcome"`
	CooldownUntil   *time.Time       `db:"cooldown_until"   json:"cooldown_until,omitempty"`
	CreatedAt       time.Time        `db:"created_at"       json:"created_at"`
}
