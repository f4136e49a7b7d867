// Package repricer marks listings down along an age-based ladder without
// ever pricing below the profit floor.
package repricer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
)

// JobName is the orchestrator name of the repricer.
const JobName = "reprice"

// ActionRepriced is the detail action for an applied step.
const ActionRepriced = "repriced"

// Skip reasons.
const (
	ReasonNoStep         = "no_step"
	ReasonAlreadyApplied = "already_applied"
	ReasonFloor          = "floor"
	ReasonNotLower       = "not_lower"
)

// Config configures the repricer.
type Config struct {
	Ladder string `yaml:"ladder" env:"REPRICER_LADDER"`
}

// Repricer applies the markdown ladder.
type Repricer struct {
	ladder   Ladder
	listings *listing.Store
	gateway  marketplace.Gateway
	executor *orchestrator.Executor
	logger   logger.Logger
}

var _ orchestrator.Job = (*Repricer)(nil)

// New creates a repricer.
func New(
	cfg Config,
	listings *listing.Store,
	gateway marketplace.Gateway,
	executor *orchestrator.Executor,
	log logger.Logger,
) (*Repricer, error) {
	spec := cfg.Ladder
	if spec == "" {
		spec = DefaultLadder
	}
	ladder, err := ParseLadder(spec)
	if err != nil {
		return nil, err
	}
	return &Repricer{
		ladder:   ladder,
		listings: listings,
		gateway:  gateway,
		executor: executor,
		logger:   log.With(logger.Job(JobName)),
	}, nil
}

// Name implements orchestrator.Job.
func (r *Repricer) Name() string {
	return JobName
}

// Ladder returns the configured steps.
func (r *Repricer) Ladder() Ladder {
	return r.ladder
}

// Run evaluates every active or queued listing against the ladder.
func (r *Repricer) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	result := orchestrator.NewResult(JobName, opts)

	ids, err := r.listings.IDs(ctx, domain.StatusActive, domain.StatusQueued)
	if err != nil {
		return result, err
	}

	outcomes := orchestrator.Each(ctx, r.executor, ids, func(ctx context.Context, id string) (orchestrator.Detail, error) {
		return r.reprice(ctx, id, opts.DryRun)
	})
	if err = r.executor.Collect(result, outcomes); err != nil {
		return result, err
	}

	r.logger.Info("Reprice run complete",
		logger.Int("scanned", result.Scanned),
		logger.Int("repriced", result.Actions[ActionRepriced]),
		logger.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (r *Repricer) reprice(ctx context.Context, id string, dryRun bool) (orchestrator.Detail, error) {
	l, err := r.listings.Get(ctx, id)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	if !lifecycle.CanReprice(l.Status) {
		return skip("status_changed", nil), nil
	}

	step, ok := r.ladder.StepFor(l.DaysActive)
	if !ok {
		return skip(ReasonNoStep, nil), nil
	}
	fields := map[string]string{
		"step_days":   strconv.Itoa(step.Days),
		"percent_off": strconv.Itoa(step.Percent),
		"old_price":   l.ListPrice.StringFixed(2),
	}
	if step.Days <= l.RepriceStepDays {
		return skip(ReasonAlreadyApplied, fields), nil
	}

	base := l.OriginalPrice
	if base.IsZero() {
		base = l.ListPrice
	}
	candidate := profit.Discount(base, decimal.NewFromInt(int64(step.Percent)))
	price, clamped, err := r.listings.Machine().Clamp(l, candidate)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	fields["new_price"] = price.StringFixed(2)
	if clamped {
		fields["candidate"] = candidate.StringFixed(2)
		return skip(ReasonFloor, fields), nil
	}
	if !price.LessThan(l.ListPrice) {
		return skip(ReasonNotLower, fields), nil
	}

	detail := orchestrator.Detail{Outcome: orchestrator.OutcomeSucceeded, Action: ActionRepriced, Fields: fields}
	if dryRun {
		return detail, nil
	}

	oldPrice := l.ListPrice
	if l.ExternalID != "" {
		if err = r.gateway.UpdatePrice(ctx, l.ExternalID, price); err != nil {
			r.listings.RecordFailure(ctx, l, err)
			return orchestrator.Detail{Fields: fields}, fmt.Errorf("update price: %w", err)
		}
	}
	if err = r.listings.Commit(ctx, l, lifecycle.EventNone,
		lifecycle.WithPrice(price),
		lifecycle.WithRepriceStep(step.Days),
		lifecycle.ClearError(),
	); err != nil {
		return orchestrator.Detail{Fields: fields}, err
	}

	r.logger.Info("Listing repriced",
		logger.ListingID(l.ID),
		logger.Int("step_days", step.Days),
		logger.Money("old_price", oldPrice),
		logger.Money("new_price", price),
	)
	return detail, nil
}

func skip(reason string, fields map[string]string) orchestrator.Detail {
	return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: reason, Fields: fields}
}
