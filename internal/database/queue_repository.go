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

const queueColumns = `id, listing_id, priority, release_window, status, scheduled_at,
	released_at, batch_id, error_message, created_at`

// QueueRepository handles database operations for the release queue.
type QueueRepository struct {
	db *sqlx.DB
}

var _ QueueRepositoryInterface = (*QueueRepository)(nil)

// NewQueueRepository creates a new queue repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a pending entry.
func (r *QueueRepository) Enqueue(ctx context.Context, e *domain.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (id, listing_id, priority, release_window, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		e.ID,
		e.ListingID,
		e.Priority,
		e.Window,
		e.Status,
		e.ScheduledAt,
	).Scan(&e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("listing %s already queued: %w", e.ListingID, ErrConflict)
		}
		return fmt.Errorf("failed to enqueue: %w", err)
	}

	return nil
}

// GetByID retrieves an entry by its ID.
func (r *QueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	var e domain.QueueEntry
	query := `SELECT ` + queueColumns + ` FROM queue_entries WHERE id = $1`

	if err := r.db.GetContext(ctx, &e, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("queue entry %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	return &e, nil
}

// ListPending returns pending entries in release order.
func (r *QueueRepository) ListPending(ctx context.Context) ([]*domain.QueueEntry, error) {
	query := `SELECT ` + queueColumns + `
		FROM queue_entries
		WHERE status = $1
		ORDER BY priority DESC, scheduled_at ASC, created_at ASC`

	var entries []*domain.QueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, domain.QueuePending); err != nil {
		return nil, fmt.Errorf("failed to list pending queue entries: %w", err)
	}

	if entries == nil {
		entries = []*domain.QueueEntry{}
	}

	return entries, nil
}

// Update writes the mutable fields of an entry.
func (r *QueueRepository) Update(ctx context.Context, e *domain.QueueEntry) error {
	query := `
		UPDATE queue_entries
		SET status = $1, released_at = $2, batch_id = $3, error_message = $4
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query, e.Status, e.ReleasedAt, e.BatchID, e.ErrorMessage, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update queue entry: %w", err)
	}
	return execRequireRows(result, nil, fmt.Errorf("queue entry %s: %w", e.ID, ErrNotFound))
}

// Stats counts entries by status.
func (r *QueueRepository) Stats(ctx context.Context, since time.Time) (domain.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'released' AND released_at >= $1) AS released_today,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) AS total
		FROM queue_entries
	`

	var row struct {
		Pending       int `db:"pending"`
		ReleasedToday int `db:"released_today"`
		Failed        int `db:"failed"`
		Total         int `db:"total"`
	}
	if err := r.db.GetContext(ctx, &row, query, since); err != nil {
		return domain.QueueStats{}, fmt.Errorf("failed to get queue stats: %w", err)
	}

	return domain.QueueStats{
		Pending:       row.Pending,
		ReleasedToday: row.ReleasedToday,
		Failed:        row.Failed,
		Total:         row.Total,
	}, nil
}
