package database

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on a stale version or a duplicate unique key.
	ErrConflict = errors.New("conflict")
)

// ListingFilter narrows ListingRepository.List. Empty Statuses matches all.
type ListingFilter struct {
	Statuses []domain.ListingStatus
	Limit    int
	Offset   int
}

// ListingRepositoryInterface persists listings with optimistic concurrency.
type ListingRepositoryInterface interface {
	Create(ctx context.Context, l *domain.Listing) error
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
	List(ctx context.Context, filter ListingFilter) ([]*domain.Listing, error)
	// Update writes l if its Version still matches the stored row and bumps
	// l.Version. A stale version returns ErrConflict.
	Update(ctx context.Context, l *domain.Listing) error
}

// QueueRepositoryInterface persists queue entries. A listing has at most one pending
// entry; a second Enqueue returns ErrConflict.
type QueueRepositoryInterface interface {
	Enqueue(ctx context.Context, e *domain.QueueEntry) error
	GetByID(ctx context.Context, id string) (*domain.QueueEntry, error)
	// ListPending returns pending entries by priority desc, then scheduled time.
	ListPending(ctx context.Context) ([]*domain.QueueEntry, error)
	Update(ctx context.Context, e *domain.QueueEntry) error
	// Stats counts entries; ReleasedToday counts releases at or after since.
	Stats(ctx context.Context, since time.Time) (domain.QueueStats, error)
}

// OfferRepositoryInterface persists offer decisions. Records are unique per
// (ListingID, OfferID); a duplicate Create returns ErrConflict.
type OfferRepositoryInterface interface {
	Create(ctx context.Context, o *domain.OfferRecord) error
	GetByOfferID(ctx context.Context, listingID, offerID string) (*domain.OfferRecord, error)
	// ActiveCooldown returns the latest outbound offer to buyerID on the listing
	// whose cooldown is still running at now, or ErrNotFound.
	ActiveCooldown(ctx context.Context, listingID, buyerID string, now time.Time) (*domain.OfferRecord, error)
	ListByListing(ctx context.Context, listingID string) ([]*domain.OfferRecord, error)
}

// ExecutionRepositoryInterface is the append-only job audit trail.
type ExecutionRepositoryInterface interface {
	Append(ctx context.Context, rec *domain.JobExecutionRecord) error
	// List returns newest first; an empty jobName lists every job.
	List(ctx context.Context, jobName string, limit, offset int) ([]*domain.JobExecutionRecord, error)
}

// ZombieRecordRepositoryInterface is the append-only zombie history.
type ZombieRecordRepositoryInterface interface {
	Create(ctx context.Context, rec *domain.ZombieRecord) error
	// ListByListing returns the listing's history newest first.
	ListByListing(ctx context.Context, listingID string) ([]*domain.ZombieRecord, error)
}
