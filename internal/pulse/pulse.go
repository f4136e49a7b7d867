// Package pulse nudges the marketplace into re-indexing the whole store once
// a month by raising every active item's handling time for a day and then
// restoring it.
package pulse

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
)

// JobName is the orchestrator name of the pulse.
const JobName = "store_pulse"

// Phase is what a run does on a given day.
type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhasePulse  Phase = "pulse"
	PhaseRevert Phase = "revert"
)

// Detail actions.
const (
	ActionPulsed   = "pulsed"
	ActionReverted = "reverted"
)

const (
	defaultDayOfMonth = 1
	defaultBaseDays   = 1
	defaultPulseDays  = 2
	maxDayOfMonth     = 28
)

// Config holds the pulse calendar.
type Config struct {
	// DayOfMonth is the pulse day; the revert runs the day after. Capped at 28
	// so every month has one.
	DayOfMonth int `yaml:"day_of_month" env:"STORE_PULSE_DAY_OF_MONTH"`
	BaseDays   int `yaml:"base_days"    env:"STORE_PULSE_BASE_DAYS"`
	PulseDays  int `yaml:"pulse_days"   env:"STORE_PULSE_PULSE_DAYS"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.DayOfMonth == 0 {
		c.DayOfMonth = defaultDayOfMonth
	}
	if c.BaseDays == 0 {
		c.BaseDays = defaultBaseDays
	}
	if c.PulseDays == 0 {
		c.PulseDays = defaultPulseDays
	}
}

// Validate checks the calendar.
func (c Config) Validate() error {
	if c.DayOfMonth < 1 || c.DayOfMonth > maxDayOfMonth {
		return fmt.Errorf("day_of_month must be between 1 and %d", maxDayOfMonth)
	}
	if c.BaseDays < 1 || c.PulseDays <= c.BaseDays {
		return fmt.Errorf("pulse_days (%d) must exceed base_days (%d)", c.PulseDays, c.BaseDays)
	}
	return nil
}

// PhaseOn returns the phase for the calendar day of t.
func (c Config) PhaseOn(t time.Time) Phase {
	switch {
	case t.Day() == c.DayOfMonth:
		return PhasePulse
	case t.AddDate(0, 0, -1).Day() == c.DayOfMonth:
		return PhaseRevert
	default:
		return PhaseIdle
	}
}

// Pulse is the store pulse job. It keeps no state: the calendar decides
// whether a run raises or restores handling time.
type Pulse struct {
	config   Config
	listings *listing.Store
	gateway  marketplace.Gateway
	executor *orchestrator.Executor
	logger   logger.Logger
	now      func() time.Time
	loc      *time.Location
}

var _ orchestrator.Job = (*Pulse)(nil)

// New creates a pulse job.
func New(
	cfg Config,
	listings *listing.Store,
	gateway marketplace.Gateway,
	executor *orchestrator.Executor,
	log logger.Logger,
) *Pulse {
	cfg.SetDefaults()
	return &Pulse{
		config:   cfg,
		listings: listings,
		gateway:  gateway,
		executor: executor,
		logger:   log.With(logger.Job(JobName)),
		now:      time.Now,
		loc:      time.UTC,
	}
}

// WithClock overrides time.Now.
func (p *Pulse) WithClock(now func() time.Time) *Pulse {
	p.now = now
	return p
}

// WithLocation sets the timezone the calendar day is read in.
func (p *Pulse) WithLocation(loc *time.Location) *Pulse {
	p.loc = loc
	return p
}

// Name implements orchestrator.Job.
func (p *Pulse) Name() string {
	return JobName
}

// Run sets the handling time of every published active listing when today
// is a pulse or revert day, and does nothing otherwise.
func (p *Pulse) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	result := orchestrator.NewResult(JobName, opts)

	phase := p.config.PhaseOn(p.now().In(p.loc))
	if phase == PhaseIdle {
		p.logger.Debug("Store pulse idle today")
		return result, nil
	}

	days, action := p.config.PulseDays, ActionPulsed
	if phase == PhaseRevert {
		days, action = p.config.BaseDays, ActionReverted
	}

	ids, err := p.listings.IDs(ctx, domain.StatusActive)
	if err != nil {
		return result, err
	}

	outcomes := orchestrator.Each(ctx, p.executor, ids, func(ctx context.Context, id string) (orchestrator.Detail, error) {
		return p.apply(ctx, id, phase, days, action, opts.DryRun)
	})
	if err = p.executor.Collect(result, outcomes); err != nil {
		return result, err
	}

	p.logger.Info("Store pulse complete",
		logger.String("phase", string(phase)),
		logger.Int("handling_days", days),
		logger.Int("updated", result.Actions[action]),
		logger.Int("errored", result.Errored),
	)
	return result, nil
}

func (p *Pulse) apply(
	ctx context.Context,
	id string,
	phase Phase,
	days int,
	action string,
	dryRun bool,
) (orchestrator.Detail, error) {
	l, err := p.listings.Get(ctx, id)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	if l.Status != domain.StatusActive {
		return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: "status_changed"}, nil
	}
	if l.ExternalID == "" {
		return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: "not_published"}, nil
	}

	detail := orchestrator.Detail{
		Outcome: orchestrator.OutcomeSucceeded,
		Action:  action,
		Fields:  map[string]string{"handling_days": strconv.Itoa(days)},
	}
	if dryRun {
		detail.Action = "would_" + string(phase)
		return detail, nil
	}

	if err = p.gateway.UpdateHandlingTime(ctx, l.ExternalID, days); err != nil {
		return orchestrator.Detail{}, fmt.Errorf("update handling time: %w", err)
	}
	return detail, nil
}
