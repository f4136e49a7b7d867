package offers

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const defaultCooldown = 24 * time.Hour

var (
	defaultAcceptRatio  = decimal.RequireFromString("0.90")
	defaultCounterRatio = decimal.RequireFromString("0.70")
)

// Tier is the outbound discount for listings aged MinDays..MaxDays
// inclusive. MaxDays 0 leaves the tier open-ended.
type Tier struct {
	MinDays int `yaml:"min_days"`
	MaxDays int `yaml:"max_days"`
	Percent int `yaml:"percent"`
}

// Contains reports whether a listing of daysActive falls in the tier.
func (t Tier) Contains(daysActive int) bool {
	return daysActive >= t.MinDays && (t.MaxDays == 0 || daysActive <= t.MaxDays)
}

// DefaultTiers are 10% at 7-14 days, 15% at 15-30 and 20% after.
func DefaultTiers() []Tier {
	return []Tier{
		{MinDays: 7, MaxDays: 14, Percent: 10},
		{MinDays: 15, MaxDays: 30, Percent: 15},
		{MinDays: 31, Percent: 20},
	}
}

// Config configures both offer directions.
type Config struct {
	Tiers        []Tier          `yaml:"tiers"`
	Cooldown     time.Duration   `yaml:"cooldown"      env:"OFFERS_COOLDOWN"`
	AcceptRatio  decimal.Decimal `yaml:"accept_ratio"`
	CounterRatio decimal.Decimal `yaml:"counter_ratio"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if len(c.Tiers) == 0 {
		c.Tiers = DefaultTiers()
	}
	if c.Cooldown == 0 {
		c.Cooldown = defaultCooldown
	}
	if c.AcceptRatio.IsZero() {
		c.AcceptRatio = defaultAcceptRatio
	}
	if c.CounterRatio.IsZero() {
		c.CounterRatio = defaultCounterRatio
	}
}

// Validate checks tier bounds and ratio ordering.
func (c Config) Validate() error {
	for i, t := range c.Tiers {
		if t.Percent <= 0 || t.Percent >= 100 {
			return fmt.Errorf("offer tier %d: percent must be between 1 and 99", i)
		}
		if t.MaxDays != 0 && t.MaxDays < t.MinDays {
			return fmt.Errorf("offer tier %d: max_days below min_days", i)
		}
	}
	if !c.CounterRatio.LessThan(c.AcceptRatio) {
		return errors.New("counter_ratio must be below accept_ratio")
	}
	if !c.AcceptRatio.LessThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("accept_ratio cannot exceed 1")
	}
	return nil
}

// TierFor returns the first tier containing daysActive.
func (c Config) TierFor(daysActive int) (Tier, bool) {
	for _, t := range c.Tiers {
		if t.Contains(daysActive) {
			return t, true
		}
	}
	return Tier{}, false
}
