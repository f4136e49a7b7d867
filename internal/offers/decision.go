package offers

import (
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
)

var two = decimal.NewFromInt(2)

// Decision is the triage result for an incoming offer.
type Decision struct {
	Action  marketplace.OfferAction
	Counter *decimal.Decimal
	Ratio   decimal.Decimal
	Reason  string
}

// Outcome maps the action to the recorded offer outcome.
func (d Decision) Outcome() domain.OfferOutcome {
	switch d.Action {
	case marketplace.ActionAccept:
		return domain.OutcomeAccepted
	case marketplace.ActionCounter:
		return domain.OutcomeCountered
	default:
		return domain.OutcomeRejected
	}
}

// Response is the marketplace answer for the decision.
func (d Decision) Response() marketplace.Response {
	return marketplace.Response{Action: d.Action, CounterAmount: d.Counter}
}

// Decide triages amount against the current list price and floor. Offers
// under the floor are always rejected; a counter never goes below it.
func (c Config) Decide(amount, listPrice, floor decimal.Decimal) Decision {
	if !listPrice.IsPositive() {
		return Decision{Action: marketplace.ActionReject, Reason: "no_price"}
	}

	ratio := amount.Div(listPrice)
	switch {
	case amount.LessThan(floor):
		return Decision{Action: marketplace.ActionReject, Ratio: ratio, Reason: "below_floor"}
	case ratio.GreaterThanOrEqual(c.AcceptRatio):
		return Decision{Action: marketplace.ActionAccept, Ratio: ratio, Reason: "accept_ratio"}
	case ratio.GreaterThanOrEqual(c.CounterRatio):
		counter := profit.RoundCents(amount.Add(listPrice).Div(two))
		reason := "midpoint"
		if counter.LessThan(floor) {
			counter, reason = floor, "floor"
		}
		return Decision{Action: marketplace.ActionCounter, Counter: &counter, Ratio: ratio, Reason: reason}
	default:
		return Decision{Action: marketplace.ActionReject, Ratio: ratio, Reason: "below_counter_ratio"}
	}
}
