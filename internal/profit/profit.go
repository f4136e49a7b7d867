// Package profit computes the minimum viable price and net profit of a
// listing from its costs and the marketplace fee schedule.
//
// All arithmetic is decimal. Prices are cent-precise and the minimum viable
// price is rounded up to the next cent, so any cent price at or above it has
// non-negative net profit.
package profit

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrFeesExceedPrice is returned when the percentage fees leave nothing of
// the sale price to cover costs.
var ErrFeesExceedPrice = errors.New("fee rates consume the entire sale price")

const centPlaces = 2

var (
	one  = decimal.NewFromInt(1)
	cent = decimal.New(1, -centPlaces)
)

// FeeRates is the fee schedule applied to every sale.
type FeeRates struct {
	Marketplace decimal.Decimal // final value fee, fraction of price
	Payment     decimal.Decimal // payment processing, fraction of price
	Advertising decimal.Decimal // promoted listing rate, fraction of price
	PerOrderFee decimal.Decimal // flat fee per order
	MinProfit   decimal.Decimal // required profit above break-even
}

// Total returns the sum of the percentage rates.
func (f FeeRates) Total() decimal.Decimal {
	return f.Marketplace.Add(f.Payment).Add(f.Advertising)
}

// Validate rejects negative or exhausting rates.
func (f FeeRates) Validate() error {
	for name, v := range map[string]decimal.Decimal{
		"marketplace":   f.Marketplace,
		"payment":       f.Payment,
		"advertising":   f.Advertising,
		"per_order_fee": f.PerOrderFee,
		"min_profit":    f.MinProfit,
	} {
		if v.IsNegative() {
			return fmt.Errorf("fee %s must not be negative", name)
		}
	}
	if f.Total().GreaterThanOrEqual(one) {
		return ErrFeesExceedPrice
	}
	return nil
}

// Model evaluates prices against a fixed fee schedule. The zero value is a
// fee-free model.
type Model struct {
	rates FeeRates
}

// NewModel validates the rates and returns a model.
func NewModel(rates FeeRates) (*Model, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &Model{rates: rates}, nil
}

// Rates returns the fee schedule.
func (m *Model) Rates() FeeRates {
	return m.rates
}

// MinimumViablePrice solves price*(1-Σfees) = cost for price, where cost is
// purchase + shipping + per-order fee + required profit.
func (m *Model) MinimumViablePrice(purchase, shipping decimal.Decimal) (decimal.Decimal, error) {
	keep := one.Sub(m.rates.Total())
	if !keep.IsPositive() {
		return decimal.Zero, ErrFeesExceedPrice
	}

	cost := purchase.Add(shipping).Add(m.rates.PerOrderFee).Add(m.rates.MinProfit)
	if !cost.IsPositive() {
		return decimal.Zero, nil
	}

	price := cost.DivRound(keep, 8).RoundCeil(centPlaces)

	// DivRound may land a hair under the true quotient.
	for m.NetProfit(price, purchase, shipping).LessThan(m.rates.MinProfit) {
		price = price.Add(cent)
	}
	return price, nil
}

// NetProfit is what the seller keeps from a sale at listPrice.
func (m *Model) NetProfit(listPrice, purchase, shipping decimal.Decimal) decimal.Decimal {
	proceeds := listPrice.Mul(one.Sub(m.rates.Total()))
	return proceeds.Sub(purchase).Sub(shipping).Sub(m.rates.PerOrderFee)
}

// MeetsFloor reports whether listPrice is at or above the minimum viable price.
func (m *Model) MeetsFloor(listPrice, purchase, shipping decimal.Decimal) bool {
	floor, err := m.MinimumViablePrice(purchase, shipping)
	if err != nil {
		return false
	}
	return listPrice.GreaterThanOrEqual(floor)
}

// Clamp raises candidate to the floor when it falls below it. The candidate
// is first rounded to the cent.
func (m *Model) Clamp(candidate, purchase, shipping decimal.Decimal) (price decimal.Decimal, clamped bool, err error) {
	floor, err := m.MinimumViablePrice(purchase, shipping)
	if err != nil {
		return decimal.Zero, false, err
	}

	candidate = RoundCents(candidate)
	if candidate.LessThan(floor) {
		return floor, true, nil
	}
	return candidate, false, nil
}

// Discount returns price reduced by percent (e.g. 15 for 15% off), rounded
// to the cent.
func Discount(price decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	factor := one.Sub(percent.Div(decimal.NewFromInt(100)))
	return RoundCents(price.Mul(factor))
}

// RoundCents rounds half away from zero to two places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(centPlaces)
}
