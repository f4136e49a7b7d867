package purgatory

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Disposition is the advisory end-of-dwell recommendation.
type Disposition string

const (
	Donate Disposition = "donate"
	Trash  Disposition = "trash"
)

var defaultDonateMinValue = decimal.NewFromInt(15)

// Policy decides between donating and trashing an unsold item. Category
// lists take precedence over the value threshold; trash wins when a
// category appears in both.
type Policy struct {
	DonateMinValue   decimal.Decimal `yaml:"donate_min_value"`
	DonateCategories []string        `yaml:"donate_categories"`
	TrashCategories  []string        `yaml:"trash_categories"`
}

// SetDefaults fills zero values.
func (p *Policy) SetDefaults() {
	if p.DonateMinValue.IsZero() {
		p.DonateMinValue = defaultDonateMinValue
	}
}

// Decide returns the disposition and the rule that produced it.
func (p Policy) Decide(category string, value decimal.Decimal) (Disposition, string) {
	switch {
	case matches(p.TrashCategories, category):
		return Trash, "category"
	case matches(p.DonateCategories, category):
		return Donate, "category"
	case value.GreaterThanOrEqual(p.DonateMinValue):
		return Donate, "value"
	default:
		return Trash, "value"
	}
}

func matches(categories []string, category string) bool {
	if category == "" {
		return false
	}
	return slices.ContainsFunc(categories, func(c string) bool {
		return strings.EqualFold(c, category)
	})
}
