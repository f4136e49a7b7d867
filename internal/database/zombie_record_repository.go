package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

// ZombieRecordRepository handles the zombie history table.
type ZombieRecordRepository struct {
	db *sqlx.DB
}

var _ ZombieRecordRepositoryInterface = (*ZombieRecordRepository)(nil)

// NewZombieRecordRepository creates a new zombie record repository.
func NewZombieRecordRepository(db *sqlx.DB) *ZombieRecordRepository {
	return &ZombieRecordRepository{db: db}
}

// Create inserts a history entry.
func (r *ZombieRecordRepository) Create(ctx context.Context, rec *domain.ZombieRecord) error {
	query := `
		INSERT INTO zombie_records (
			id, listing_id, action, cycle_number, days_active, views, watchers,
			old_external_id, new_external_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.ListingID,
		rec.Action,
		rec.CycleNumber,
		rec.DaysActive,
		rec.Views,
		rec.Watchers,
		rec.OldExternalID,
		rec.NewExternalID,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create zombie record: %w", err)
	}

	return nil
}

// ListByListing returns a listing's zombie history newest first.
func (r *ZombieRecordRepository) ListByListing(ctx context.Context, listingID string) ([]*domain.ZombieRecord, error) {
	query := `
		SELECT id, listing_id, action, cycle_number, days_active, views, watchers,
		       old_external_id, new_external_id, created_at
		FROM zombie_records
		WHERE listing_id = $1
		ORDER BY created_at DESC
	`

	var records []*domain.ZombieRecord
	if err := r.db.SelectContext(ctx, &records, query, listingID); err != nil {
		return nil, fmt.Errorf("failed to list zombie records: %w", err)
	}

	if records == nil {
		records = []*domain.ZombieRecord{}
	}

	return records, nil
}
