package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

const listingColumns = `id, external_id, sku, title, category, photo_urls,
	purchase_price, shipping_cost, original_price, list_price,
	status, days_active, total_views, watchers, zombie_cycle_count, resurrection_count,
	resurrection_stage, resume_at, reprice_step_days, purgatory_priced, floor_clamped,
	photos_shuffled_at, last_error, listed_at, purgatory_entered_at, sold_at, ended_at,
	last_transition_at, last_price_change_at, version, created_at, updated_at`

// ListingRepository handles database operations for listings.
type ListingRepository struct {
	db *sqlx.DB
}

var _ ListingRepositoryInterface = (*ListingRepository)(nil)

// NewListingRepository creates a new listing repository.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Create inserts a new listing.
func (r *ListingRepository) Create(ctx context.Context, l *domain.Listing) error {
	query := `
		INSERT INTO listings (
			id, external_id, sku, title, category, photo_urls,
			purchase_price, shipping_cost, original_price, list_price,
			status, last_transition_at, listed_at, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
		RETURNING version, created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		l.ID,
		l.ExternalID,
		l.SKU,
		l.Title,
		l.Category,
		l.PhotoURLs,
		l.PurchasePrice,
		l.ShippingCost,
		l.OriginalPrice,
		l.ListPrice,
		l.Status,
		l.LastTransitionAt,
		l.ListedAt,
	).Scan(&l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("listing %s: %w", l.ID, ErrConflict)
		}
		return fmt.Errorf("failed to create listing: %w", err)
	}

	return nil
}

// GetByID retrieves a listing by its ID.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	var l domain.Listing
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	if err := r.db.GetContext(ctx, &l, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return &l, nil
}

// List retrieves listings, oldest first, optionally filtered by status.
func (r *ListingRepository) List(ctx context.Context, filter ListingFilter) ([]*domain.Listing, error) {
	// LIMIT NULL means no limit.
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}

	var (
		query string
		args  []any
	)
	if len(statuses) > 0 {
		query = `SELECT ` + listingColumns + `
			FROM listings
			WHERE status = ANY($1)
			ORDER BY created_at ASC, id ASC
			LIMIT $2 OFFSET $3`
		args = []any{pq.Array(statuses), limit, filter.Offset}
	} else {
		query = `SELECT ` + listingColumns + `
			FROM listings
			ORDER BY created_at ASC, id ASC
			LIMIT $1 OFFSET $2`
		args = []any{limit, filter.Offset}
	}

	var listings []*domain.Listing
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	if listings == nil {
		listings = []*domain.Listing{}
	}

	return listings, nil
}

// Update writes every mutable column when the stored version matches.
func (r *ListingRepository) Update(ctx context.Context, l *domain.Listing) error {
	query := `
		UPDATE listings
		SET external_id = $1, sku = $2, title = $3, category = $4, photo_urls = $5,
		    list_price = $6, status = $7, days_active = $8, total_views = $9, watchers = $10,
		    zombie_cycle_count = $11, resurrection_count = $12, resurrection_stage = $13,
		    resume_at = $14, reprice_step_days = $15, purgatory_priced = $16, floor_clamped = $17,
		    photos_shuffled_at = $18, last_error = $19, listed_at = $20, purgatory_entered_at = $21,
		    sold_at = $22, ended_at = $23, last_transition_at = $24, last_price_change_at = $25,
		    version = version + 1, updated_at = NOW()
		WHERE id = $26 AND version = $27
		RETURNING version, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		l.ExternalID,
		l.SKU,
		l.Title,
		l.Category,
		l.PhotoURLs,
		l.ListPrice,
		l.Status,
		l.DaysActive,
		l.TotalViews,
		l.Watchers,
		l.ZombieCycleCount,
		l.ResurrectionCount,
		l.ResurrectionStage,
		l.ResumeAt,
		l.RepriceStepDays,
		l.PurgatoryPriced,
		l.FloorClamped,
		l.PhotosShuffledAt,
		l.LastError,
		l.ListedAt,
		l.PurgatoryEnteredAt,
		l.SoldAt,
		l.EndedAt,
		l.LastTransitionAt,
		l.LastPriceChangeAt,
		l.ID,
		l.Version,
	).Scan(&l.Version, &l.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to update listing: %w", err)
	}

	var exists bool
	if existsErr := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, l.ID); existsErr != nil {
		return fmt.Errorf("failed to check listing: %w", existsErr)
	}
	if !exists {
		return fmt.Errorf("listing %s: %w", l.ID, ErrNotFound)
	}
	return fmt.Errorf("listing %s version %d: %w", l.ID, l.Version, ErrConflict)
}
