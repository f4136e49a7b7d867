// Package zombie finds active listings that have gone stale and escalates
// repeat offenders to the disposal track.
package zombie

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
)

// JobName is the orchestrator name of the scan.
const JobName = "scan_zombies"

// Detail actions.
const (
	ActionHealthy   = "healthy"
	ActionFlagged   = "flagged_zombie"
	ActionEscalated = "escalated"
)

const (
	defaultMinDaysActive = 60
	defaultMaxViews      = 10
)

// Config holds the staleness thresholds.
type Config struct {
	// MinDaysActive must be exceeded before a listing can be a zombie.
	MinDaysActive int `yaml:"min_days_active"      env:"ZOMBIE_MIN_DAYS_ACTIVE"`
	// MaxViews is the view count a zombie stays under.
	MaxViews int `yaml:"max_views"            env:"ZOMBIE_MAX_VIEWS"`
	// EscalationThreshold is the flag count that sends a listing to purgatory.
	EscalationThreshold int `yaml:"escalation_threshold" env:"ZOMBIE_ESCALATION_THRESHOLD"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MinDaysActive == 0 {
		c.MinDaysActive = defaultMinDaysActive
	}
	if c.MaxViews == 0 {
		c.MaxViews = defaultMaxViews
	}
	if c.EscalationThreshold == 0 {
		c.EscalationThreshold = lifecycle.DefaultEscalationThreshold
	}
}

// IsZombie reports whether the engagement counters mark a listing stale.
func (c Config) IsZombie(daysActive, views int) bool {
	return daysActive > c.MinDaysActive && views < c.MaxViews
}

// Detector scans active listings.
type Detector struct {
	config   Config
	listings *listing.Store
	gateway  marketplace.Gateway
	executor *orchestrator.Executor
	logger   logger.Logger
}

var _ orchestrator.Job = (*Detector)(nil)

// NewDetector creates a detector.
func NewDetector(
	cfg Config,
	listings *listing.Store,
	gateway marketplace.Gateway,
	executor *orchestrator.Executor,
	log logger.Logger,
) *Detector {
	cfg.SetDefaults()
	return &Detector{
		config:   cfg,
		listings: listings,
		gateway:  gateway,
		executor: executor,
		logger:   log.With(logger.Job(JobName)),
	}
}

// Name implements orchestrator.Job.
func (d *Detector) Name() string {
	return JobName
}

// Run syncs stats for every active listing and flags the stale ones.
func (d *Detector) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	result := orchestrator.NewResult(JobName, opts)

	ids, err := d.listings.IDs(ctx, domain.StatusActive)
	if err != nil {
		return result, err
	}

	outcomes := orchestrator.Each(ctx, d.executor, ids, func(ctx context.Context, id string) (orchestrator.Detail, error) {
		return d.scan(ctx, id, opts.DryRun)
	})
	if err = d.executor.Collect(result, outcomes); err != nil {
		return result, err
	}

	d.logger.Info("Zombie scan complete",
		logger.Int("scanned", result.Scanned),
		logger.Int("zombies", result.Actions[ActionFlagged]+result.Actions[ActionEscalated]),
		logger.Int("escalated", result.Actions[ActionEscalated]),
	)
	return result, nil
}

func (d *Detector) scan(ctx context.Context, id string, dryRun bool) (orchestrator.Detail, error) {
	l, err := d.listings.Get(ctx, id)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	if l.Status != domain.StatusActive {
		return skipped("status_changed"), nil
	}
	if l.ExternalID == "" {
		return skipped("not_published"), nil
	}

	stats, err := d.gateway.GetListingStats(ctx, l.ExternalID)
	if err != nil {
		if errors.Is(err, marketplace.ErrPermanent) && !dryRun {
			d.listings.RecordFailure(ctx, l, err)
		}
		return orchestrator.Detail{}, fmt.Errorf("get listing stats: %w", err)
	}

	ev, action := lifecycle.EventNone, ActionHealthy
	if d.config.IsZombie(stats.DaysActive, stats.Views) {
		ev = lifecycle.EventFlagZombie
	}
	muts := []lifecycle.Mutation{
		lifecycle.WithStats(stats.Views, stats.Watchers, stats.DaysActive),
		lifecycle.ClearError(),
	}

	var next *domain.Listing
	if dryRun {
		next, err = d.listings.Preview(l, ev, muts...)
	} else {
		err = d.listings.Commit(ctx, l, ev, muts...)
		next = l
	}
	if err != nil {
		return orchestrator.Detail{}, err
	}

	switch next.Status {
	case domain.StatusZombie:
		action = ActionFlagged
	case domain.StatusPurgatory:
		action = ActionEscalated
	}
	if !dryRun {
		switch action {
		case ActionFlagged:
			d.listings.RecordZombie(ctx, next, domain.ZombieFlagged, "")
		case ActionEscalated:
			d.listings.RecordZombie(ctx, next, domain.ZombiePurgatoried, "")
		}
	}
	if action != ActionHealthy {
		d.logger.Info("Listing flagged",
			logger.ListingID(id),
			logger.String("external_id", next.ExternalID),
			logger.String("action", action),
			logger.Int("zombie_cycles", next.ZombieCycleCount),
			logger.Bool("dry_run", dryRun),
		)
	}

	return orchestrator.Detail{
		Outcome: orchestrator.OutcomeSucceeded,
		Action:  action,
		Fields: map[string]string{
			"days_active":   strconv.Itoa(stats.DaysActive),
			"views":         strconv.Itoa(stats.Views),
			"zombie_cycles": strconv.Itoa(next.ZombieCycleCount),
			"status":        string(next.Status),
		},
	}, nil
}

func skipped(reason string) orchestrator.Detail {
	return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: reason}
}
