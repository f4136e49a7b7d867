// Package memory implements the repositories in process memory. It backs
// local runs with the mock marketplace and service tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

// Store holds every repository behind one clock.
type Store struct {
	Listings   *ListingRepository
	Queue      *QueueRepository
	Offers     *OfferRepository
	Executions *ExecutionRepository
	Zombies    *ZombieRecordRepository
}

// NewStore creates empty repositories.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		Listings:   &ListingRepository{rows: make(map[string]*domain.Listing), now: now},
		Queue:      &QueueRepository{rows: make(map[string]*domain.QueueEntry), now: now},
		Offers:     &OfferRepository{now: now},
		Executions: &ExecutionRepository{},
		Zombies:    &ZombieRecordRepository{now: now},
	}
}

// ListingRepository stores listings.
type ListingRepository struct {
	mu   sync.Mutex
	rows map[string]*domain.Listing
	now  func() time.Time
}

var _ database.ListingRepositoryInterface = (*ListingRepository)(nil)

func (r *ListingRepository) Create(_ context.Context, l *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[l.ID]; ok {
		return fmt.Errorf("listing %s: %w", l.ID, database.ErrConflict)
	}
	now := r.now()
	l.Version = 1
	l.CreatedAt, l.UpdatedAt = now, now
	r.rows[l.ID] = l.Clone()
	return nil
}

func (r *ListingRepository) GetByID(_ context.Context, id string) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, database.ErrNotFound)
	}
	return l.Clone(), nil
}

func (r *ListingRepository) List(_ context.Context, filter database.ListingFilter) ([]*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Listing, 0, len(r.rows))
	for _, l := range r.rows {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, l.Status) {
			continue
		}
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r *ListingRepository) Update(_ context.Context, l *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rows[l.ID]
	if !ok {
		return fmt.Errorf("listing %s: %w", l.ID, database.ErrNotFound)
	}
	if stored.Version != l.Version {
		return fmt.Errorf("listing %s version %d: %w", l.ID, l.Version, database.ErrConflict)
	}
	l.Version++
	l.UpdatedAt = r.now()
	l.CreatedAt = stored.CreatedAt
	r.rows[l.ID] = l.Clone()
	return nil
}

// QueueRepository stores queue entries.
type QueueRepository struct {
	mu   sync.Mutex
	rows map[string]*domain.QueueEntry
	now  func() time.Time
}

var _ database.QueueRepositoryInterface = (*QueueRepository)(nil)

func cloneEntry(e *domain.QueueEntry) *domain.QueueEntry {
	c := *e
	if e.ReleasedAt != nil {
		t := *e.ReleasedAt
		c.ReleasedAt = &t
	}
	if e.BatchID != nil {
		s := *e.BatchID
		c.BatchID = &s
	}
	if e.ErrorMessage != nil {
		s := *e.ErrorMessage
		c.ErrorMessage = &s
	}
	return &c
}

func (r *QueueRepository) Enqueue(_ context.Context, e *domain.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rows {
		if existing.ListingID == e.ListingID && existing.Status == domain.QueuePending {
			return fmt.Errorf("listing %s already queued: %w", e.ListingID, database.ErrConflict)
		}
	}
	e.CreatedAt = r.now()
	r.rows[e.ID] = cloneEntry(e)
	return nil
}

func (r *QueueRepository) GetByID(_ context.Context, id string) (*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("queue entry %s: %w", id, database.ErrNotFound)
	}
	return cloneEntry(e), nil
}

func (r *QueueRepository) ListPending(_ context.Context) ([]*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.QueueEntry, 0)
	for _, e := range r.rows {
		if e.Status == domain.QueuePending {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *QueueRepository) Update(_ context.Context, e *domain.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rows[e.ID]
	if !ok {
		return fmt.Errorf("queue entry %s: %w", e.ID, database.ErrNotFound)
	}
	c := cloneEntry(e)
	c.CreatedAt = stored.CreatedAt
	r.rows[e.ID] = c
	return nil
}

func (r *QueueRepository) Stats(_ context.Context, since time.Time) (domain.QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.QueueStats
	for _, e := range r.rows {
		stats.Total++
		switch e.Status {
		case domain.QueuePending:
			stats.Pending++
		case domain.QueueFailed:
			stats.Failed++
		case domain.QueueReleased:
			if e.ReleasedAt != nil && !e.ReleasedAt.Before(since) {
				stats.ReleasedToday++
			}
		case domain.QueueCancelled:
		}
	}
	return stats, nil
}

// OfferRepository stores offer records.
type OfferRepository struct {
	mu   sync.Mutex
	rows []*domain.OfferRecord
	now  func() time.Time
}

var _ database.OfferRepositoryInterface = (*OfferRepository)(nil)

func cloneOffer(o *domain.OfferRecord) *domain.OfferRecord {
	c := *o
	if o.CounterPrice != nil {
		p := *o.CounterPrice
		c.CounterPrice = &p
	}
	if o.CooldownUntil != nil {
		t := *o.CooldownUntil
		c.CooldownUntil = &t
	}
	return &c
}

func (r *OfferRepository) Create(_ context.Context, o *domain.OfferRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rows {
		if existing.ListingID == o.ListingID && existing.OfferID == o.OfferID {
			return fmt.Errorf("offer %s on listing %s: %w", o.OfferID, o.ListingID, database.ErrConflict)
		}
	}
	o.CreatedAt = r.now()
	r.rows = append(r.rows, cloneOffer(o))
	return nil
}

func (r *OfferRepository) GetByOfferID(_ context.Context, listingID, offerID string) (*domain.OfferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.rows {
		if o.ListingID == listingID && o.OfferID == offerID {
			return cloneOffer(o), nil
		}
	}
	return nil, fmt.Errorf("offer %s: %w", offerID, database.ErrNotFound)
}

func (r *OfferRepository) ActiveCooldown(
	_ context.Context,
	listingID, buyerID string,
	now time.Time,
) (*domain.OfferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *domain.OfferRecord
	for _, o := range r.rows {
		if o.ListingID != listingID || o.BuyerID != buyerID || o.Direction != domain.OfferOutbound {
			continue
		}
		if o.CooldownUntil == nil || !o.CooldownUntil.After(now) {
			continue
		}
		if latest == nil || o.CooldownUntil.After(*latest.CooldownUntil) {
			latest = o
		}
	}
	if latest == nil {
		return nil, database.ErrNotFound
	}
	return cloneOffer(latest), nil
}

func (r *OfferRepository) ListByListing(_ context.Context, listingID string) ([]*domain.OfferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.OfferRecord, 0)
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].ListingID == listingID {
			out = append(out, cloneOffer(r.rows[i]))
		}
	}
	return out, nil
}

// ExecutionRepository stores job execution records.
type ExecutionRepository struct {
	mu   sync.Mutex
	rows []*domain.JobExecutionRecord
}

var _ database.ExecutionRepositoryInterface = (*ExecutionRepository)(nil)

func (r *ExecutionRepository) Append(_ context.Context, rec *domain.JobExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *rec
	r.rows = append(r.rows, &c)
	return nil
}

func (r *ExecutionRepository) List(
	_ context.Context,
	jobName string,
	limit, offset int,
) ([]*domain.JobExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.JobExecutionRecord, 0, len(r.rows))
	for i := len(r.rows) - 1; i >= 0; i-- {
		if jobName == "" || r.rows[i].JobName == jobName {
			c := *r.rows[i]
			out = append(out, &c)
		}
	}
	return paginate(out, limit, offset), nil
}

// ZombieRecordRepository stores zombie history.
type ZombieRecordRepository struct {
	mu   sync.Mutex
	rows []*domain.ZombieRecord
	now  func() time.Time
}

var _ database.ZombieRecordRepositoryInterface = (*ZombieRecordRepository)(nil)

func (r *ZombieRecordRepository) Create(_ context.Context, rec *domain.ZombieRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.CreatedAt = r.now()
	c := *rec
	r.rows = append(r.rows, &c)
	return nil
}

func (r *ZombieRecordRepository) ListByListing(_ context.Context, listingID string) ([]*domain.ZombieRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.ZombieRecord, 0)
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].ListingID == listingID {
			c := *r.rows[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
