package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

const offerColumns = `id, listing_id, offer_id, buyer_id, price, counter_price,
	discount_percent, direction, outcome, cooldown_until, created_at`

// OfferRepository handles database operations for offer records.
type OfferRepository struct {
	db *sqlx.DB
}

var _ OfferRepositoryInterface = (*OfferRepository)(nil)

// NewOfferRepository creates a new offer repository.
func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// Create inserts an offer record.
func (r *OfferRepository) Create(ctx context.Context, o *domain.OfferRecord) error {
	query := `
		INSERT INTO offer_records (
			id, listing_id, offer_id, buyer_id, price, counter_price,
			discount_percent, direction, outcome, cooldown_until
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		o.ID,
		o.ListingID,
		o.OfferID,
		o.BuyerID,
		o.Price,
		o.CounterPrice,
		o.DiscountPercent,
		o.Direction,
		o.Outcome,
		o.CooldownUntil,
	).Scan(&o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("offer %s on listing %s: %w", o.OfferID, o.ListingID, ErrConflict)
		}
		return fmt.Errorf("failed to create offer record: %w", err)
	}

	return nil
}

// GetByOfferID retrieves the record for a marketplace offer id.
func (r *OfferRepository) GetByOfferID(ctx context.Context, listingID, offerID string) (*domain.OfferRecord, error) {
	var o domain.OfferRecord
	query := `SELECT ` + offerColumns + ` FROM offer_records WHERE listing_id = $1 AND offer_id = $2`

	if err := r.db.GetContext(ctx, &o, query, listingID, offerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("offer %s: %w", offerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get offer record: %w", err)
	}

	return &o, nil
}

// ActiveCooldown returns the newest outbound offer to the buyer still in cooldown.
func (r *OfferRepository) ActiveCooldown(
	ctx context.Context,
	listingID, buyerID string,
	now time.Time,
) (*domain.OfferRecord, error) {
	var o domain.OfferRecord
	query := `SELECT ` + offerColumns + `
		FROM offer_records
		WHERE listing_id = $1 AND buyer_id = $2 AND direction = $3 AND cooldown_until > $4
		ORDER BY cooldown_until DESC
		LIMIT 1`

	if err := r.db.GetContext(ctx, &o, query, listingID, buyerID, domain.OfferOutbound, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to check offer cooldown: %w", err)
	}

	return &o, nil
}

// ListByListing returns a listing's offers, newest first.
func (r *OfferRepository) ListByListing(ctx context.Context, listingID string) ([]*domain.OfferRecord, error) {
	query := `SELECT ` + offerColumns + `
		FROM offer_records
		WHERE listing_id = $1
		ORDER BY created_at DESC`

	var offers []*domain.OfferRecord
	if err := r.db.SelectContext(ctx, &offers, query, listingID); err != nil {
		return nil, fmt.Errorf("failed to list offer records: %w", err)
	}

	if offers == nil {
		offers = []*domain.OfferRecord{}
	}

	return offers, nil
}
