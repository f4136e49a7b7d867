package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/ratelimit"
	"github.com/jonesrussell/north-cloud/relister/internal/retry"
	"github.com/jonesrussell/north-cloud/relister/internal/worker"
)

// CallObserver receives the outcome of every gateway attempt.
type CallObserver func(op string, err error, elapsed time.Duration)

// Resilient decorates a Gateway with the shared rate budget and retries.
// Each attempt acquires the budget before calling and releases it after.
type Resilient struct {
	next    Gateway
	budget  *ratelimit.Budget
	retry   retry.Config
	logger  logger.Logger
	observe CallObserver
	waited  func(time.Duration)
}

var _ Gateway = (*Resilient)(nil)

// NewResilient wraps next. Every job must share the same budget.
func NewResilient(next Gateway, budget *ratelimit.Budget, retryCfg retry.Config, log logger.Logger) *Resilient {
	retryCfg.SetDefaults()
	retryCfg.IsRetryable = isRetryableAttempt
	return &Resilient{
		next:   next,
		budget: budget,
		retry:  retryCfg,
		logger: log,
	}
}

// WithObserver installs a per-attempt hook, typically metrics.
func (r *Resilient) WithObserver(obs CallObserver) *Resilient {
	r.observe = obs
	return r
}

// WithWaitObserver installs a hook receiving each rate budget wait.
func (r *Resilient) WithWaitObserver(fn func(time.Duration)) *Resilient {
	r.waited = fn
	return r
}

func isRetryableAttempt(err error) bool {
	if errors.Is(err, ratelimit.ErrDailyLimitExceeded) {
		return false
	}
	return IsRetryable(err)
}

// call runs fn under the budget with retries. Waiting for budget and
// backoff, and the decision to start another attempt, follow the worker
// run's deadline; an attempt already started runs on ctx.
func (r *Resilient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	runCtx := worker.RunContext(ctx)
	attempt := 0
	return retry.Do(runCtx, r.retry, func() error {
		attempt++

		waitStart := time.Now()
		release, err := r.budget.Acquire(runCtx)
		if r.waited != nil {
			r.waited(time.Since(waitStart))
		}
		if err != nil {
			if errors.Is(err, ratelimit.ErrDailyLimitExceeded) {
				return Transient(op, err)
			}
			return err
		}
		defer release()

		start := time.Now()
		err = fn(ctx)
		if r.observe != nil {
			r.observe(op, err, time.Since(start))
		}

		if err != nil && attempt < r.retry.MaxAttempts && isRetryableAttempt(err) {
			r.logger.Warn("Marketplace call failed, retrying",
				logger.String("op", op),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", r.retry.Backoff(attempt)),
				logger.Error(err),
			)
		}
		return err
	})
}

// GetListingStats calls the wrapped gateway under the budget with retries.
func (r *Resilient) GetListingStats(ctx context.Context, externalID string) (Stats, error) {
	var stats Stats
	err := r.call(ctx, "get_listing_stats", func(ctx context.Context) error {
		var err error
		stats, err = r.next.GetListingStats(ctx, externalID)
		return err
	})
	return stats, err
}

// GetWatchers calls the wrapped gateway under the budget with retries.
func (r *Resilient) GetWatchers(ctx context.Context, externalID string) ([]string, error) {
	var watchers []string
	err := r.call(ctx, "get_watchers", func(ctx context.Context) error {
		var err error
		watchers, err = r.next.GetWatchers(ctx, externalID)
		return err
	})
	return watchers, err
}

// UpdatePrice calls the wrapped gateway under the budget with retries.
func (r *Resilient) UpdatePrice(ctx context.Context, externalID string, price decimal.Decimal) error {
	return r.call(ctx, "update_price", func(ctx context.Context) error {
		return r.next.UpdatePrice(ctx, externalID, price)
	})
}

// EndItem calls the wrapped gateway under the budget with retries. A retry
// after an end that reached the marketplace is safe because ending is
// idempotent.
func (r *Resilient) EndItem(ctx context.Context, externalID string) error {
	return r.call(ctx, "end_item", func(ctx context.Context) error {
		return r.next.EndItem(ctx, externalID)
	})
}

// CreateItem calls the wrapped gateway under the budget with retries.
func (r *Resilient) CreateItem(ctx context.Context, draft Draft) (string, error) {
	var id string
	err := r.call(ctx, "create_item", func(ctx context.Context) error {
		var err error
		id, err = r.next.CreateItem(ctx, draft)
		return err
	})
	return id, err
}

// RotatePhotos calls the wrapped gateway under the budget with retries.
func (r *Resilient) RotatePhotos(ctx context.Context, externalID string) error {
	return r.call(ctx, "rotate_photos", func(ctx context.Context) error {
		return r.next.RotatePhotos(ctx, externalID)
	})
}

// SendOffer calls the wrapped gateway under the budget with retries.
func (r *Resilient) SendOffer(ctx context.Context, externalID, buyerID string, price decimal.Decimal) (string, error) {
	var offerID string
	err := r.call(ctx, "send_offer", func(ctx context.Context) error {
		var err error
		offerID, err = r.next.SendOffer(ctx, externalID, buyerID, price)
		return err
	})
	return offerID, err
}

// EvaluateIncomingOffer calls the wrapped gateway under the budget with
// retries.
func (r *Resilient) EvaluateIncomingOffer(ctx context.Context, offerID string) (IncomingOffer, error) {
	var offer IncomingOffer
	err := r.call(ctx, "evaluate_incoming_offer", func(ctx context.Context) error {
		var err error
		offer, err = r.next.EvaluateIncomingOffer(ctx, offerID)
		return err
	})
	return offer, err
}

// RespondToOffer calls the wrapped gateway under the budget with retries.
func (r *Resilient) RespondToOffer(ctx context.Context, offerID string, resp Response) error {
	return r.call(ctx, "respond_to_offer", func(ctx context.Context) error {
		return r.next.RespondToOffer(ctx, offerID, resp)
	})
}

// UpdateHandlingTime calls the wrapped gateway under the budget with retries.
func (r *Resilient) UpdateHandlingTime(ctx context.Context, externalID string, days int) error {
	return r.call(ctx, "update_handling_time", func(ctx context.Context) error {
		return r.next.UpdateHandlingTime(ctx, externalID, days)
	})
}
