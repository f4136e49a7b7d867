// Package purgatory runs the disposal track: a one-time floor-bounded
// markdown on entry and an advisory donate or trash recommendation once the
// dwell period passes without a sale.
package purgatory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
)

// JobName is the orchestrator name of the sweep.
const JobName = "purgatory_sweep"

// Detail actions.
const (
	ActionMarkedDown = "marked_down"
	ActionRecommend  = "recommend"
)

const (
	defaultMarkdownPercent = 30
	defaultDwell           = 7 * 24 * time.Hour
)

// Config configures the manager.
type Config struct {
	MarkdownPercent int           `yaml:"markdown_percent" env:"PURGATORY_MARKDOWN_PERCENT"`
	Dwell           time.Duration `yaml:"dwell"            env:"PURGATORY_DWELL"`
	Policy          Policy        `yaml:",inline"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MarkdownPercent == 0 {
		c.MarkdownPercent = defaultMarkdownPercent
	}
	if c.Dwell == 0 {
		c.Dwell = defaultDwell
	}
	c.Policy.SetDefaults()
}

// Recommendation is the advisory output for a listing past its dwell.
type Recommendation struct {
	ListingID   string      `json:"listing_id"`
	Disposition Disposition `json:"disposition"`
	Rule        string      `json:"rule"`
	DwellEnded  time.Time   `json:"dwell_ended"`
}

// Manager sweeps listings in purgatory.
type Manager struct {
	config   Config
	listings *listing.Store
	gateway  marketplace.Gateway
	executor *orchestrator.Executor
	logger   logger.Logger
	now      func() time.Time
}

var _ orchestrator.Job = (*Manager)(nil)

// New creates a purgatory manager.
func New(
	cfg Config,
	listings *listing.Store,
	gateway marketplace.Gateway,
	executor *orchestrator.Executor,
	log logger.Logger,
) *Manager {
	cfg.SetDefaults()
	return &Manager{
		config:   cfg,
		listings: listings,
		gateway:  gateway,
		executor: executor,
		logger:   log.With(logger.Job(JobName)),
		now:      time.Now,
	}
}

// WithClock overrides time.Now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Name implements orchestrator.Job.
func (m *Manager) Name() string {
	return JobName
}

// Run marks down newly escalated listings and recommends a disposition for
// those past their dwell.
func (m *Manager) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	result := orchestrator.NewResult(JobName, opts)

	ids, err := m.listings.IDs(ctx, domain.StatusPurgatory)
	if err != nil {
		return result, err
	}

	outcomes := orchestrator.Each(ctx, m.executor, ids, func(ctx context.Context, id string) (orchestrator.Detail, error) {
		return m.sweep(ctx, id, opts.DryRun)
	})
	if err = m.executor.Collect(result, outcomes); err != nil {
		return result, err
	}

	m.logger.Info("Purgatory sweep complete",
		logger.Int("scanned", result.Scanned),
		logger.Int("marked_down", result.Actions[ActionMarkedDown]),
		logger.Int("recommendations", result.Actions[ActionRecommend]),
	)
	return result, nil
}

func (m *Manager) sweep(ctx context.Context, id string, dryRun bool) (orchestrator.Detail, error) {
	l, err := m.listings.Get(ctx, id)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	if l.Status != domain.StatusPurgatory {
		return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: "status_changed"}, nil
	}

	if !l.PurgatoryPriced {
		return m.markdown(ctx, l, dryRun)
	}

	rec, ok := m.Recommend(l)
	if !ok {
		return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: "dwell"}, nil
	}
	m.logger.Info("Disposal recommended",
		logger.ListingID(l.ID),
		logger.String("disposition", string(rec.Disposition)),
		logger.String("rule", rec.Rule),
	)
	return orchestrator.Detail{
		Outcome: orchestrator.OutcomeSucceeded,
		Action:  ActionRecommend,
		Fields: map[string]string{
			"disposition": string(rec.Disposition),
			"rule":        rec.Rule,
			"list_price":  l.ListPrice.StringFixed(2),
		},
	}, nil
}

// markdown prices the listing at its current price less the markdown,
// never below the floor. A listing already under the floor is raised to it.
func (m *Manager) markdown(ctx context.Context, l *domain.Listing, dryRun bool) (orchestrator.Detail, error) {
	candidate := profit.Discount(l.ListPrice, decimal.NewFromInt(int64(m.config.MarkdownPercent)))
	price, clamped, err := m.listings.Machine().Clamp(l, candidate)
	if err != nil {
		return orchestrator.Detail{}, err
	}

	detail := orchestrator.Detail{
		Outcome: orchestrator.OutcomeSucceeded,
		Action:  ActionMarkedDown,
		Fields: map[string]string{
			"old_price":     l.ListPrice.StringFixed(2),
			"new_price":     price.StringFixed(2),
			"percent_off":   strconv.Itoa(m.config.MarkdownPercent),
			"floor_clamped": strconv.FormatBool(clamped),
		},
	}
	if dryRun {
		return detail, nil
	}

	if !price.Equal(l.ListPrice) && l.ExternalID != "" {
		if err = m.gateway.UpdatePrice(ctx, l.ExternalID, price); err != nil {
			m.listings.RecordFailure(ctx, l, err)
			return orchestrator.Detail{}, fmt.Errorf("update price: %w", err)
		}
	}
	if err = m.listings.Commit(ctx, l, lifecycle.EventNone,
		lifecycle.WithPrice(price),
		lifecycle.WithPurgatoryPriced(clamped),
		lifecycle.ClearError(),
	); err != nil {
		return orchestrator.Detail{}, err
	}

	m.logger.Info("Purgatory markdown applied",
		logger.ListingID(l.ID),
		logger.Money("price", price),
		logger.Bool("floor_clamped", clamped),
	)
	return detail, nil
}

// Recommend returns the disposition for a listing whose dwell has ended.
func (m *Manager) Recommend(l *domain.Listing) (Recommendation, bool) {
	if l.Status != domain.StatusPurgatory || l.PurgatoryEnteredAt == nil {
		return Recommendation{}, false
	}
	ended := l.PurgatoryEnteredAt.Add(m.config.Dwell)
	if m.now().Before(ended) {
		return Recommendation{}, false
	}
	disposition, rule := m.config.Policy.Decide(l.Category, l.ListPrice)
	return Recommendation{ListingID: l.ID, Disposition: disposition, Rule: rule, DwellEnded: ended}, true
}
