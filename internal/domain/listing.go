// Package domain defines the entities persisted and mutated by the lifecycle
// engine.
package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	StatusDraft     ListingStatus = "draft"
	StatusActive    ListingStatus = "active"
	StatusZombie    ListingStatus = "zombie"
	StatusPurgatory ListingStatus = "purgatory"
	StatusQueued    ListingStatus = "queued"
	StatusSold      ListingStatus = "sold"
	StatusEnded     ListingStatus = "ended"
)

// Valid reports whether s is a known status.
func (s ListingStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusZombie, StatusPurgatory, StatusQueued, StatusSold, StatusEnded:
		return true
	default:
		return false
	}
}

// ResurrectionStage records how far a resurrection has progressed so a
// failed attempt resumes instead of restarting.
type ResurrectionStage string

const (
	StageNone          ResurrectionStage = ""
	StageEnded         ResurrectionStage = "ended"
	StagePhotosRotated ResurrectionStage = "photos_rotated"
)

// Listing is one item offered on the marketplace.
type Listing struct {
	ID         string         `db:"id"          json:"id"`
	ExternalID string         `db:"external_id" json:"external_id,omitempty"`
	SKU        string         `db:"sku"         json:"sku"`
	Title      string         `db:"title"       json:"title"`
	Category   string         `db:"category"    json:"category,omitempty"`
	PhotoURLs  pq.StringArray `db:"photo_urls"  json:"photo_urls"`

	PurchasePrice decimal.Decimal `db:"purchase_price" json:"purchase_price"`
	ShippingCost  decimal.Decimal `db:"shipping_cost"  json:"shipping_cost"`
	OriginalPrice decimal.Decimal `db:"original_price" json:"original_price"`
	ListPrice     decimal.Decimal `db:"list_price"     json:"list_price"`

	Status            ListingStatus `db:"status"             json:"status"`
	DaysActive        int           `db:"days_active"        json:"days_active"`
	TotalViews        int           `db:"total_views"        json:"total_views"`
	Watchers          int           `db:"watchers"           json:"watchers"`
	ZombieCycleCount  int           `db:"zombie_cycle_count" json:"zombie_cycle_count"`
	ResurrectionCount int           `db:"resurrection_count" json:"resurrection_count"`

	ResurrectionStage ResurrectionStage `db:"resurrection_stage" json:"resurrection_stage,omitempty"`
	ResumeAt          *time.Time        `db:"resume_at"          json:"resume_at,omitempty"`
	RepriceStepDays   int               `db:"reprice_step_days"  json:"reprice_step_days"`
	PurgatoryPriced   bool              `db:"purgatory_priced"   json:"purgatory_priced"`
	FloorClamped      bool              `db:"floor_clamped"      json:"floor_clamped"`
	PhotosShuffledAt  *time.Time        `db:"photos_shuffled_at" json:"photos_shuffled_at,omitempty"`
	LastError         string            `db:"last_error"         json:"last_error,omitempty"`

	ListedAt           *time.Time `db:"listed_at"            json:"listed_at,omitempty"`
	PurgatoryEnteredAt *time.Time `db:"purgatory_entered_at" json:"purgatory_entered_at,omitempty"`
	SoldAt             *time.Time `db:"sold_at"              json:"sold_at,omitempty"`
	EndedAt            *time.Time `db:"ended_at"             json:"ended_at,omitempty"`
	LastTransitionAt   time.Time  `db:"last_transition_at"   json:"last_transition_at"`
	LastPriceChangeAt  *time.Time `db:"last_price_change_at" json:"last_price_change_at,omitempty"`

	Version   int       `db:"version"    json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var resurrectionSuffix = regexp.MustCompile(`_R\d+$`)

// BaseSKU strips any resurrection suffix from the SKU.
func (l *Listing) BaseSKU() string {
	return resurrectionSuffix.ReplaceAllString(l.SKU, "")
}

// ResurrectedSKU returns the SKU the next recreated item carries.
func (l *Listing) ResurrectedSKU() string {
	return fmt.Sprintf("%s_R%d", l.BaseSKU(), l.ResurrectionCount+1)
}

// Clone returns a deep copy, safe to mutate independently.
func (l *Listing) Clone() *Listing {
	c := *l
	if l.PhotoURLs != nil {
		c.PhotoURLs = append(pq.StringArray(nil), l.PhotoURLs...)
	}
	c.ResumeAt = cloneTime(l.ResumeAt)
	c.PhotosShuffledAt = cloneTime(l.PhotosShuffledAt)
	c.ListedAt = cloneTime(l.ListedAt)
	c.PurgatoryEnteredAt = cloneTime(l.PurgatoryEnteredAt)
	c.SoldAt = cloneTime(l.SoldAt)
	c.EndedAt = cloneTime(l.EndedAt)
	c.LastPriceChangeAt = cloneTime(l.LastPriceChangeAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RotatedPhotos returns the photo order with the lead photo moved to the back.
func (l *Listing) RotatedPhotos() []string {
	if len(l.PhotoURLs) < 2 {
		return append([]string(nil), l.PhotoURLs...)
	}
	out := make([]string, 0, len(l.PhotoURLs))
	out = append(out, l.PhotoURLs[1:]...)
	return append(out, l.PhotoURLs[0])
}
