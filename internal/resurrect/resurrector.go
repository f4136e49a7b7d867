// Package resurrect retires a zombie listing's marketplace item and
// recreates it under a fresh external id.
//
// The sequence is end item, wait out the re-indexing cooldown, rotate
// photos, create item, reactivate. Progress is persisted on the listing
// after every step, so a failed attempt resumes at the step that failed.
// The cooldown is a persisted resume time, not a sleep.
package resurrect

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/worker"
)

// JobName is the orchestrator name of the resurrection run.
const JobName = "resurrect"

// Detail actions.
const (
	ActionEnded         = "ended"
	ActionPhotosRotated = "photos_rotated"
	ActionResurrected   = "resurrected"
)

// DefaultCooldown models marketplace re-indexing latency after an end.
const DefaultCooldown = 120 * time.Second

// Config configures the resurrector.
type Config struct {
	Cooldown time.Duration `yaml:"cooldown" env:"RESURRECTION_COOLDOWN"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Cooldown == 0 {
		c.Cooldown = DefaultCooldown
	}
}

// Resurrector drives zombie listings through the resurrection steps.
type Resurrector struct {
	config   Config
	listings *listing.Store
	gateway  marketplace.Gateway
	executor *orchestrator.Executor
	logger   logger.Logger
	now      func() time.Time
}

var _ orchestrator.Job = (*Resurrector)(nil)

// New creates a resurrector.
func New(
	cfg Config,
	listings *listing.Store,
	gateway marketplace.Gateway,
	executor *orchestrator.Executor,
	log logger.Logger,
) *Resurrector {
	cfg.SetDefaults()
	return &Resurrector{
		config:   cfg,
		listings: listings,
		gateway:  gateway,
		executor: executor,
		logger:   log.With(logger.Job(JobName)),
		now:      time.Now,
	}
}

// WithClock overrides time.Now.
func (r *Resurrector) WithClock(now func() time.Time) *Resurrector {
	r.now = now
	return r
}

// Name implements orchestrator.Job.
func (r *Resurrector) Name() string {
	return JobName
}

// Run advances every zombie listing as far as it can go this cycle.
func (r *Resurrector) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	result := orchestrator.NewResult(JobName, opts)

	ids, err := r.listings.IDs(ctx, domain.StatusZombie)
	if err != nil {
		return result, err
	}

	outcomes := orchestrator.Each(ctx, r.executor, ids, func(ctx context.Context, id string) (orchestrator.Detail, error) {
		return r.advance(ctx, id, opts.DryRun)
	})
	if err = r.executor.Collect(result, outcomes); err != nil {
		return result, err
	}

	r.logger.Info("Resurrection run complete",
		logger.Int("scanned", result.Scanned),
		logger.Int("resurrected", result.Actions[ActionResurrected]),
		logger.Int("errored", result.Errored),
	)
	return result, nil
}

// Advance runs the resurrection steps for one listing outside a scheduled
// run. The caller must hold the listing's claim.
func (r *Resurrector) Advance(ctx context.Context, id string) (orchestrator.Detail, error) {
	return r.advance(ctx, id, false)
}

func (r *Resurrector) advance(ctx context.Context, id string, dryRun bool) (orchestrator.Detail, error) {
	l, err := r.listings.Get(ctx, id)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	if l.Status != domain.StatusZombie {
		return skipped("status_changed"), nil
	}

	if dryRun {
		return r.preview(l), nil
	}

	var last string
	for {
		// Each step is a marketplace call; stop between steps once the run
		// is over. The persisted stage resumes next run.
		if worker.Expired(ctx) {
			if last == "" {
				return orchestrator.Detail{
					Outcome: orchestrator.OutcomeSkipped,
					Reason:  worker.ReasonDeadline,
					Fields:  stageFields(l),
				}, nil
			}
			break
		}
		action, waiting, stepErr := r.step(ctx, l)
		if stepErr != nil {
			r.listings.RecordFailure(ctx, l, stepErr)
			return orchestrator.Detail{Action: last, Fields: stageFields(l)}, stepErr
		}
		if waiting {
			if last == "" {
				return orchestrator.Detail{
					Outcome: orchestrator.OutcomeSkipped,
					Reason:  "cooldown",
					Fields:  stageFields(l),
				}, nil
			}
			break
		}
		last = action
		if action == ActionResurrected {
			break
		}
	}

	r.logger.Info("Resurrection advanced",
		logger.ListingID(l.ID),
		logger.String("external_id", l.ExternalID),
		logger.String("action", last),
	)
	return orchestrator.Detail{Outcome: orchestrator.OutcomeSucceeded, Action: last, Fields: stageFields(l)}, nil
}

// step performs the next resurrection step. waiting is true while the
// re-indexing cooldown is running.
func (r *Resurrector) step(ctx context.Context, l *domain.Listing) (action string, waiting bool, err error) {
	switch l.ResurrectionStage {
	case domain.StageNone:
		if l.ExternalID != "" {
			if err = r.gateway.EndItem(ctx, l.ExternalID); err != nil {
				return "", false, fmt.Errorf("end item: %w", err)
			}
		}
		resumeAt := r.now().UTC().Add(r.config.Cooldown)
		err = r.listings.Commit(ctx, l, lifecycle.EventNone,
			lifecycle.WithResurrectionStage(domain.StageEnded, &resumeAt),
			lifecycle.ClearError(),
		)
		return ActionEnded, false, err

	case domain.StageEnded:
		if l.ResumeAt != nil && r.now().Before(*l.ResumeAt) {
			return "", true, nil
		}
		if l.ExternalID != "" {
			if err = r.gateway.RotatePhotos(ctx, l.ExternalID); err != nil {
				return "", false, fmt.Errorf("rotate photos: %w", err)
			}
		}
		err = r.listings.Commit(ctx, l, lifecycle.EventNone,
			lifecycle.WithPhotos(l.RotatedPhotos()),
			lifecycle.WithResurrectionStage(domain.StagePhotosRotated, nil),
			lifecycle.ClearError(),
		)
		return ActionPhotosRotated, false, err

	case domain.StagePhotosRotated:
		sku := l.ResurrectedSKU()
		externalID, createErr := r.gateway.CreateItem(ctx, listing.Draft(l, sku))
		if createErr != nil {
			return "", false, fmt.Errorf("create item: %w", createErr)
		}
		oldExternalID := l.ExternalID
		if err = r.listings.Commit(ctx, l, lifecycle.EventResurrect,
			lifecycle.WithExternalID(externalID),
			lifecycle.WithSKU(sku),
		); err != nil {
			return "", false, err
		}
		r.listings.RecordZombie(ctx, l, domain.ZombieResurrected, oldExternalID)
		return ActionResurrected, false, nil

	default:
		return "", false, fmt.Errorf("unknown resurrection stage %q", l.ResurrectionStage)
	}
}

func (r *Resurrector) preview(l *domain.Listing) orchestrator.Detail {
	d := orchestrator.Detail{Outcome: orchestrator.OutcomeSucceeded, Fields: stageFields(l)}
	switch l.ResurrectionStage {
	case domain.StageNone:
		d.Action = "would_end"
	case domain.StageEnded:
		if l.ResumeAt != nil && r.now().Before(*l.ResumeAt) {
			return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: "cooldown", Fields: d.Fields}
		}
		d.Action = "would_rotate_photos"
	case domain.StagePhotosRotated:
		d.Action = "would_recreate"
		d.Fields["sku"] = l.ResurrectedSKU()
	}
	return d
}

func stageFields(l *domain.Listing) map[string]string {
	f := map[string]string{
		"stage":       string(l.ResurrectionStage),
		"external_id": l.ExternalID,
		"sku":         l.SKU,
	}
	if l.ResumeAt != nil {
		f["resume_at"] = l.ResumeAt.Format(time.RFC3339)
	}
	return f
}

func skipped(reason string) orchestrator.Detail {
	return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: reason}
}
