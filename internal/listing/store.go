// Package listing loads and persists listings through the state machine,
// and handles intake and external confirmation of listings.
package listing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
)

// Store is the only write path for listings used by the lifecycle services.
// Every write is a state machine application followed by an optimistic
// version-checked update.
type Store struct {
	repo    database.ListingRepositoryInterface
	history database.ZombieRecordRepositoryInterface
	machine *lifecycle.Machine
	logger  logger.Logger
}

// NewStore creates a store.
func NewStore(repo database.ListingRepositoryInterface, machine *lifecycle.Machine, log logger.Logger) *Store {
	return &Store{repo: repo, machine: machine, logger: log}
}

// WithHistory makes the store keep a zombie history in repo.
func (s *Store) WithHistory(repo database.ZombieRecordRepositoryInterface) *Store {
	s.history = repo
	return s
}

// Machine returns the state machine the store applies.
func (s *Store) Machine() *lifecycle.Machine {
	return s.machine
}

// Get loads a listing.
func (s *Store) Get(ctx context.Context, id string) (*domain.Listing, error) {
	return s.repo.GetByID(ctx, id)
}

// List loads listings matching filter.
func (s *Store) List(ctx context.Context, filter database.ListingFilter) ([]*domain.Listing, error) {
	return s.repo.List(ctx, filter)
}

// IDs returns the ids of every listing in one of statuses.
func (s *Store) IDs(ctx context.Context, statuses ...domain.ListingStatus) ([]string, error) {
	listings, err := s.repo.List(ctx, database.ListingFilter{Statuses: statuses})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

// Preview applies ev to a copy of l and returns the copy. Nothing is stored.
func (s *Store) Preview(l *domain.Listing, ev lifecycle.Event, muts ...lifecycle.Mutation) (*domain.Listing, error) {
	next := l.Clone()
	if err := s.machine.Apply(next, ev, muts...); err != nil {
		return nil, err
	}
	return next, nil
}

// Commit applies ev and persists the result. l is updated only when both
// succeed.
func (s *Store) Commit(ctx context.Context, l *domain.Listing, ev lifecycle.Event, muts ...lifecycle.Mutation) error {
	next, err := s.Preview(l, ev, muts...)
	if err != nil {
		return err
	}
	if err = s.repo.Update(ctx, next); err != nil {
		return fmt.Errorf("failed to save listing %s: %w", l.ID, err)
	}
	*l = *next
	return nil
}

// RecordFailure stores cause as the listing's last error. Failures to do so
// are logged and otherwise ignored.
func (s *Store) RecordFailure(ctx context.Context, l *domain.Listing, cause error) {
	if err := s.Commit(ctx, l, lifecycle.EventNone, lifecycle.WithError(cause)); err != nil {
		s.logger.Warn("Failed to record listing error",
			logger.ListingID(l.ID),
			logger.String("cause", cause.Error()),
			logger.Error(err),
		)
	}
}

// RecordZombie appends a zombie history entry for l's current state.
// oldExternalID is the item l was listed under before the action; empty means
// l's current item. History is best effort: a failed write is logged and
// never fails the caller's unit.
func (s *Store) RecordZombie(ctx context.Context, l *domain.Listing, action domain.ZombieAction, oldExternalID string) {
	if s.history == nil {
		return
	}

	rec := &domain.ZombieRecord{
		ID:            uuid.NewString(),
		ListingID:     l.ID,
		Action:        action,
		CycleNumber:   l.ZombieCycleCount,
		DaysActive:    l.DaysActive,
		Views:         l.TotalViews,
		Watchers:      l.Watchers,
		OldExternalID: oldExternalID,
	}
	if action == domain.ZombiePreventiveRelist {
		rec.CycleNumber = 0
	}
	switch {
	case oldExternalID == "":
		rec.OldExternalID = l.ExternalID
	case oldExternalID != l.ExternalID:
		rec.NewExternalID = l.ExternalID
	}

	if err := s.history.Create(ctx, rec); err != nil {
		s.logger.Warn("Failed to record zombie history",
			logger.ListingID(l.ID),
			logger.String("action", string(action)),
			logger.Error(err),
		)
	}
}

// History returns the listing's zombie history newest first. A store
// without history returns an empty slice.
func (s *Store) History(ctx context.Context, id string) ([]*domain.ZombieRecord, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []*domain.ZombieRecord{}, nil
	}
	return s.history.ListByListing(ctx, id)
}
