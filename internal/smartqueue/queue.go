// Package smartqueue gates publication of queued listings. Releases are
// batched in priority order: a large batch inside the weekly surge window,
// a small trickle outside it.
package smartqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/metrics"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
)

// JobName is the orchestrator name of the release.
const JobName = "release_queue"

// Detail actions.
const (
	ActionReleased     = "released"
	ActionWouldRelease = "would_release"
)

var (
	// ErrNotPending is returned when cancelling an entry that already left
	// the queue.
	ErrNotPending = errors.New("queue entry is not pending")
	// ErrInvalidWindow is returned for an unknown release window.
	ErrInvalidWindow = errors.New("release window must be surge or any")
)

// EnqueueRequest asks for a listing to be published through the queue.
type EnqueueRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
	Priority  int    `json:"priority"`
	// Window is domain.WindowSurge or domain.WindowAny (default).
	Window string `json:"window"`
	// NotBefore delays eligibility.
	NotBefore *time.Time `json:"not_before,omitempty"`
}

// Queue manages queue entries and their listings.
type Queue struct {
	config   Config
	window   Window
	entries  database.QueueRepositoryInterface
	listings *listing.Store
	gateway  marketplace.Gateway
	executor *orchestrator.Executor
	metrics  *metrics.Metrics
	logger   logger.Logger
	now      func() time.Time
}

var _ orchestrator.Job = (*Queue)(nil)

// New creates a queue. m may be nil.
func New(
	cfg Config,
	entries database.QueueRepositoryInterface,
	listings *listing.Store,
	gateway marketplace.Gateway,
	executor *orchestrator.Executor,
	m *metrics.Metrics,
	log logger.Logger,
) (*Queue, error) {
	cfg.SetDefaults()
	w, err := cfg.Window()
	if err != nil {
		return nil, err
	}
	return &Queue{
		config:   cfg,
		window:   w,
		entries:  entries,
		listings: listings,
		gateway:  gateway,
		executor: executor,
		metrics:  m,
		logger:   log.With(logger.Job(JobName)),
		now:      time.Now,
	}, nil
}

// WithClock overrides time.Now.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Name implements orchestrator.Job.
func (q *Queue) Name() string {
	return JobName
}

// Window returns the surge window.
func (q *Queue) Window() Window {
	return q.window
}

// Enqueue moves a draft or active listing into the queue. The listing is
// claimed for the change so it cannot race a job acting on it.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*domain.QueueEntry, error) {
	window := req.Window
	if window == "" {
		window = domain.WindowAny
	}
	if window != domain.WindowAny && window != domain.WindowSurge {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWindow, window)
	}

	var entry *domain.QueueEntry
	err := q.executor.WithClaim(ctx, req.ListingID, func(ctx context.Context) error {
		var enqErr error
		entry, enqErr = q.enqueue(ctx, req, window)
		return enqErr
	})
	if err != nil {
		return nil, err
	}

	q.logger.Info("Listing queued",
		logger.ListingID(entry.ListingID),
		logger.String("entry_id", entry.ID),
		logger.Int("priority", entry.Priority),
		logger.String("window", entry.Window),
	)
	return entry, nil
}

func (q *Queue) enqueue(ctx context.Context, req EnqueueRequest, window string) (*domain.QueueEntry, error) {
	l, err := q.listings.Get(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if _, err = q.listings.Preview(l, lifecycle.EventEnqueue); err != nil {
		return nil, err
	}

	scheduled := q.now().UTC()
	if req.NotBefore != nil {
		scheduled = req.NotBefore.UTC()
	}
	entry := &domain.QueueEntry{
		ID:          uuid.NewString(),
		ListingID:   l.ID,
		Priority:    req.Priority,
		Window:      window,
		Status:      domain.QueuePending,
		ScheduledAt: scheduled,
	}
	if err = q.entries.Enqueue(ctx, entry); err != nil {
		return nil, err
	}

	if err = q.listings.Commit(ctx, l, lifecycle.EventEnqueue); err != nil {
		q.finish(ctx, entry, domain.QueueCancelled, nil, err)
		return nil, err
	}
	return entry, nil
}

// Cancel removes a pending entry and returns its listing to draft.
func (q *Queue) Cancel(ctx context.Context, entryID string) (*domain.QueueEntry, error) {
	entry, err := q.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	err = q.executor.WithClaim(ctx, entry.ListingID, func(ctx context.Context) error {
		// Reload under the claim; a release may have taken the entry meanwhile.
		current, getErr := q.entries.GetByID(ctx, entryID)
		if getErr != nil {
			return getErr
		}
		if current.Status != domain.QueuePending {
			return fmt.Errorf("%w: %s is %s", ErrNotPending, current.ID, current.Status)
		}
		entry = current

		l, getErr := q.listings.Get(ctx, entry.ListingID)
		if getErr != nil {
			return getErr
		}
		if l.Status == domain.StatusQueued {
			if commitErr := q.listings.Commit(ctx, l, lifecycle.EventCancel); commitErr != nil {
				return commitErr
			}
		}

		entry.Status = domain.QueueCancelled
		return q.entries.Update(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	q.logger.Info("Queue entry cancelled", logger.ListingID(entry.ListingID), logger.String("entry_id", entry.ID))
	return entry, nil
}

// Status summarizes the queue for the current market day.
func (q *Queue) Status(ctx context.Context) (domain.QueueStats, error) {
	now := q.now()
	stats, err := q.entries.Stats(ctx, q.window.StartOfDay(now))
	if err != nil {
		return domain.QueueStats{}, err
	}
	stats.SurgeActive = q.window.Contains(now)
	return stats, nil
}

// Batch returns the entries the next release would take, in release order.
func (q *Queue) Batch(ctx context.Context) ([]*domain.QueueEntry, bool, error) {
	now := q.now()
	surge := q.window.Contains(now)
	size := q.config.BatchSize(surge)
	if size <= 0 {
		return nil, surge, nil
	}

	pending, err := q.entries.ListPending(ctx)
	if err != nil {
		return nil, surge, err
	}

	batch := make([]*domain.QueueEntry, 0, size)
	for _, e := range pending {
		if len(batch) == size {
			break
		}
		if e.ScheduledAt.After(now) {
			continue
		}
		if e.Window == domain.WindowSurge && !surge {
			continue
		}
		batch = append(batch, e)
	}
	return batch, surge, nil
}

// Run releases the next batch. In dry run it only reports the batch.
func (q *Queue) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	result := orchestrator.NewResult(JobName, opts)

	batch, surge, err := q.Batch(ctx)
	if err != nil {
		return result, err
	}

	if opts.DryRun {
		for _, e := range batch {
			result.Scanned++
			result.Add(orchestrator.Detail{
				ListingID: e.ListingID,
				Outcome:   orchestrator.OutcomeSucceeded,
				Action:    ActionWouldRelease,
				Fields:    entryFields(e, surge),
			})
		}
		return result, nil
	}

	batchID := uuid.NewString()
	byListing := make(map[string]*domain.QueueEntry, len(batch))
	ids := make([]string, 0, len(batch))
	for _, e := range batch {
		byListing[e.ListingID] = e
		ids = append(ids, e.ListingID)
	}

	outcomes := orchestrator.Each(ctx, q.executor, ids, func(ctx context.Context, id string) (orchestrator.Detail, error) {
		return q.release(ctx, byListing[id], batchID, surge)
	})
	if err = q.executor.Collect(result, outcomes); err != nil {
		return result, err
	}

	q.logger.Info("Queue release complete",
		logger.String("batch_id", batchID),
		logger.Bool("surge", surge),
		logger.Int("released", result.Actions[ActionReleased]),
		logger.Int("failed", result.Errored),
	)
	return result, nil
}

func (q *Queue) release(ctx context.Context, e *domain.QueueEntry, batchID string, surge bool) (orchestrator.Detail, error) {
	fields := entryFields(e, surge)

	err := q.publish(ctx, e.ListingID)
	if err != nil {
		q.finish(ctx, e, domain.QueueFailed, &batchID, err)
		return orchestrator.Detail{Fields: fields}, err
	}

	q.finish(ctx, e, domain.QueueReleased, &batchID, nil)
	return orchestrator.Detail{Outcome: orchestrator.OutcomeSucceeded, Action: ActionReleased, Fields: fields}, nil
}

func (q *Queue) publish(ctx context.Context, listingID string) error {
	l, err := q.listings.Get(ctx, listingID)
	if err != nil {
		return err
	}
	if _, err = q.listings.Preview(l, lifecycle.EventRelease); err != nil {
		return err
	}

	var muts []lifecycle.Mutation
	if l.ExternalID == "" {
		externalID, createErr := q.gateway.CreateItem(ctx, listing.Draft(l, l.SKU))
		if createErr != nil {
			q.listings.RecordFailure(ctx, l, createErr)
			return fmt.Errorf("create item: %w", createErr)
		}
		muts = append(muts, lifecycle.WithExternalID(externalID))
	}
	muts = append(muts, lifecycle.ClearError())
	return q.listings.Commit(ctx, l, lifecycle.EventRelease, muts...)
}

// finish records the final state of an entry. Failures to store it are
// logged; the entry stays pending and is retried next release.
func (q *Queue) finish(ctx context.Context, e *domain.QueueEntry, status domain.QueueStatus, batchID *string, cause error) {
	e.Status = status
	e.BatchID = batchID
	if status == domain.QueueReleased {
		at := q.now().UTC()
		e.ReleasedAt = &at
	}
	if cause != nil {
		msg := cause.Error()
		e.ErrorMessage = &msg
	}
	if err := q.entries.Update(ctx, e); err != nil {
		q.logger.Error("Failed to update queue entry",
			logger.String("entry_id", e.ID),
			logger.ListingID(e.ListingID),
			logger.Error(err),
		)
	}
	if q.metrics != nil && status != domain.QueueCancelled {
		q.metrics.QueueReleased.WithLabelValues(string(status)).Inc()
	}
}

func entryFields(e *domain.QueueEntry, surge bool) map[string]string {
	return map[string]string{
		"entry_id": e.ID,
		"priority": strconv.Itoa(e.Priority),
		"window":   e.Window,
		"surge":    strconv.FormatBool(surge),
	}
}
