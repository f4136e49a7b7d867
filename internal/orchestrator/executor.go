package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/worker"
)

// ReasonClaimed marks a listing skipped because another job holds it.
const ReasonClaimed = "claimed"

// Executor fans per-listing work out over the worker pool. Each unit holds
// the listing's claim for its duration.
type Executor struct {
	pool     *worker.Pool
	locker   claim.Locker
	claimTTL time.Duration
	logger   logger.Logger
}

// NewExecutor creates an executor.
func NewExecutor(pool *worker.Pool, locker claim.Locker, claimTTL time.Duration, log logger.Logger) *Executor {
	return &Executor{pool: pool, locker: locker, claimTTL: claimTTL, logger: log}
}

// WithClaim runs fn while holding the listing's claim. It returns
// claim.ErrAlreadyClaimed without calling fn when a job holds the listing.
func (ex *Executor) WithClaim(ctx context.Context, listingID string, fn func(ctx context.Context) error) error {
	c, err := ex.locker.TryClaim(ctx, claim.ListingKey(listingID), ex.claimTTL)
	if err != nil {
		return fmt.Errorf("listing %s: %w", listingID, err)
	}
	defer func() {
		if relErr := ex.locker.Release(context.WithoutCancel(ctx), c); relErr != nil {
			ex.logger.Warn("Failed to release listing claim",
				logger.ListingID(listingID),
				logger.Error(relErr),
			)
		}
	}()
	return fn(ctx)
}

// UnitOutcome is the result of one listing's unit.
type UnitOutcome[T any] struct {
	ListingID string
	Value     T
	Err       error
	Skipped   bool
	Reason    string
}

// Each runs fn once per listing id with bounded concurrency. Units that
// cannot start before ctx ends, or whose listing is claimed elsewhere, are
// reported as skipped.
func Each[T any](
	ctx context.Context,
	ex *Executor,
	listingIDs []string,
	fn func(ctx context.Context, listingID string) (T, error),
) []UnitOutcome[T] {
	results := make([]UnitOutcome[T], len(listingIDs))
	units := make([]worker.Unit, len(listingIDs))

	for i, id := range listingIDs {
		results[i].ListingID = id
		units[i] = worker.Unit{
			Key: id,
			Fn: func(unitCtx context.Context) error {
				c, err := ex.locker.TryClaim(unitCtx, claim.ListingKey(id), ex.claimTTL)
				if err != nil {
					if errors.Is(err, claim.ErrAlreadyClaimed) {
						results[i].Skipped, results[i].Reason = true, ReasonClaimed
						return nil
					}
					results[i].Err = err
					return err
				}
				defer func() {
					if relErr := ex.locker.Release(unitCtx, c); relErr != nil {
						ex.logger.Warn("Failed to release listing claim",
							logger.ListingID(id),
							logger.Error(relErr),
						)
					}
				}()

				if worker.Expired(unitCtx) {
					results[i].Skipped, results[i].Reason = true, worker.ReasonDeadline
					return nil
				}
				results[i].Value, results[i].Err = fn(unitCtx, id)
				return results[i].Err
			},
		}
	}

	for i, o := range ex.pool.Run(ctx, units) {
		if o.Skipped {
			results[i].Skipped, results[i].Reason = true, o.Reason
		}
	}
	return results
}

// Collect folds per-listing outcomes into result. It returns an error when
// a fatal unit error stopped the run early.
func (ex *Executor) Collect(result *Result, outcomes []UnitOutcome[Detail]) error {
	var fatal error
	for _, o := range outcomes {
		result.Scanned++
		d := o.Value
		d.ListingID = o.ListingID
		switch {
		case o.Skipped:
			d.Outcome, d.Reason = OutcomeSkipped, o.Reason
		case o.Err != nil:
			d.Outcome, d.Error = OutcomeErrored, o.Err.Error()
			if fatal == nil && ex.pool.IsFatal(o.Err) {
				fatal = o.Err
			}
		case d.Outcome == "":
			d.Outcome = OutcomeSucceeded
		}
		result.Add(d)
	}
	if fatal != nil {
		return fmt.Errorf("run aborted: %w", fatal)
	}
	return nil
}
