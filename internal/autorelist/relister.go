// Package autorelist retires low-traffic listings on a fixed cadence before
// they go stale. A relisted listing takes the resurrection path without
// counting a zombie cycle.
package autorelist

import (
	"context"
	"strconv"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
)

// JobName is the orchestrator name of the relist run.
const JobName = "auto_relist"

// Detail actions.
const (
	ActionRelisted    = "relisted"
	ActionWouldRelist = "would_relist"
)

const (
	defaultCadenceDays    = 30
	defaultViewsThreshold = 25
)

// Config holds the relist cadence.
type Config struct {
	// CadenceDays is the listing age at which a low-traffic listing is relisted.
	CadenceDays int `yaml:"cadence_days"    env:"AUTO_RELIST_CADENCE_DAYS"`
	// ViewsThreshold is the view count a listing must stay under to qualify.
	ViewsThreshold int `yaml:"views_threshold" env:"AUTO_RELIST_VIEWS_THRESHOLD"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.CadenceDays == 0 {
		c.CadenceDays = defaultCadenceDays
	}
	if c.ViewsThreshold == 0 {
		c.ViewsThreshold = defaultViewsThreshold
	}
}

// Advancer runs the resurrection steps for a listing whose claim the caller
// holds.
type Advancer interface {
	Advance(ctx context.Context, id string) (orchestrator.Detail, error)
}

// Relister is the preventive relist job.
type Relister struct {
	config   Config
	listings *listing.Store
	advancer Advancer
	executor *orchestrator.Executor
	logger   logger.Logger
}

var _ orchestrator.Job = (*Relister)(nil)

// New creates a relister. advancer is normally the resurrector.
func New(
	cfg Config,
	listings *listing.Store,
	advancer Advancer,
	executor *orchestrator.Executor,
	log logger.Logger,
) *Relister {
	cfg.SetDefaults()
	return &Relister{
		config:   cfg,
		listings: listings,
		advancer: advancer,
		executor: executor,
		logger:   log.With(logger.Job(JobName)),
	}
}

// Name implements orchestrator.Job.
func (r *Relister) Name() string {
	return JobName
}

// Due reports whether l should be relisted now.
func (r *Relister) Due(l *domain.Listing) (bool, string) {
	switch {
	case l.Status != domain.StatusActive:
		return false, "status_changed"
	case l.ExternalID == "":
		return false, "not_published"
	case l.DaysActive < r.config.CadenceDays:
		return false, "too_new"
	case l.TotalViews >= r.config.ViewsThreshold:
		return false, "has_traffic"
	}
	return true, ""
}

// Run relists every due active listing.
func (r *Relister) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	result := orchestrator.NewResult(JobName, opts)

	ids, err := r.listings.IDs(ctx, domain.StatusActive)
	if err != nil {
		return result, err
	}

	outcomes := orchestrator.Each(ctx, r.executor, ids, func(ctx context.Context, id string) (orchestrator.Detail, error) {
		return r.relist(ctx, id, opts.DryRun)
	})
	if err = r.executor.Collect(result, outcomes); err != nil {
		return result, err
	}

	r.logger.Info("Auto relist complete",
		logger.Int("scanned", result.Scanned),
		logger.Int("relisted", result.Actions[ActionRelisted]),
		logger.Int("errored", result.Errored),
	)
	return result, nil
}

func (r *Relister) relist(ctx context.Context, id string, dryRun bool) (orchestrator.Detail, error) {
	l, err := r.listings.Get(ctx, id)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	if ok, reason := r.Due(l); !ok {
		return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: reason}, nil
	}

	fields := map[string]string{
		"days_active": strconv.Itoa(l.DaysActive),
		"views":       strconv.Itoa(l.TotalViews),
		"external_id": l.ExternalID,
	}
	if dryRun {
		if _, err = r.listings.Preview(l, lifecycle.EventRelist); err != nil {
			return orchestrator.Detail{}, err
		}
		return orchestrator.Detail{Outcome: orchestrator.OutcomeSucceeded, Action: ActionWouldRelist, Fields: fields}, nil
	}

	if err = r.listings.Commit(ctx, l, lifecycle.EventRelist, lifecycle.ClearError()); err != nil {
		return orchestrator.Detail{}, err
	}
	r.listings.RecordZombie(ctx, l, domain.ZombiePreventiveRelist, l.ExternalID)

	// Retire the old item now; the resurrect job finishes after the cooldown.
	step, err := r.advancer.Advance(ctx, l.ID)
	if step.Action != "" {
		fields["step"] = step.Action
	}
	if err != nil {
		return orchestrator.Detail{Fields: fields}, err
	}

	r.logger.Info("Listing relisted",
		logger.ListingID(l.ID),
		logger.String("external_id", l.ExternalID),
		logger.String("step", step.Action),
	)
	return orchestrator.Detail{Outcome: orchestrator.OutcomeSucceeded, Action: ActionRelisted, Fields: fields}, nil
}
