package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

const defaultExecutionLimit = 50

// ExecutionRepository handles the job execution audit trail.
type ExecutionRepository struct {
	db *sqlx.DB
}

var _ ExecutionRepositoryInterface = (*ExecutionRepository)(nil)

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sqlx.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Append inserts an execution record. Records are never updated.
func (r *ExecutionRepository) Append(ctx context.Context, rec *domain.JobExecutionRecord) error {
	query := `
		INSERT INTO job_executions (
			id, job_name, trigger, dry_run, status, started_at, finished_at, duration_ms,
			listings_touched, succeeded, skipped, errored, error_detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.JobName,
		rec.Trigger,
		rec.DryRun,
		rec.Status,
		rec.StartedAt,
		rec.FinishedAt,
		rec.DurationMs,
		rec.ListingsTouched,
		rec.Succeeded,
		rec.Skipped,
		rec.Errored,
		rec.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("failed to append job execution: %w", err)
	}

	return nil
}

// List returns executions newest first.
func (r *ExecutionRepository) List(
	ctx context.Context,
	jobName string,
	limit, offset int,
) ([]*domain.JobExecutionRecord, error) {
	if limit <= 0 {
		limit = defaultExecutionLimit
	}

	query := `
		SELECT id, job_name, trigger, dry_run, status, started_at, finished_at, duration_ms,
		       listings_touched, succeeded, skipped, errored, error_detail
		FROM job_executions
		WHERE ($1 = '' OR job_name = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	var records []*domain.JobExecutionRecord
	if err := r.db.SelectContext(ctx, &records, query, jobName, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list job executions: %w", err)
	}

	if records == nil {
		records = []*domain.JobExecutionRecord{}
	}

	return records, nil
}
