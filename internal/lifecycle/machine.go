package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
)

// DefaultEscalationThreshold is the zombie flag count that sends a listing
// to purgatory instead of another resurrection.
const DefaultEscalationThreshold = 3

// Mutation changes non-status fields of a listing under Apply.
type Mutation func(l *domain.Listing)

// Machine applies events to listings.
type Machine struct {
	model     *profit.Model
	threshold int
	now       func() time.Time
	observe   func(Event)
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithObserver is called with the event of every committed transition.
func WithObserver(fn func(Event)) Option {
	return func(m *Machine) {
		m.observe = fn
	}
}

// NewMachine creates a state machine enforcing the given floor model and
// escalation threshold.
func NewMachine(model *profit.Model, escalationThreshold int, opts ...Option) (*Machine, error) {
	if model == nil {
		return nil, errors.New("profit model is required")
	}
	if escalationThreshold < 1 {
		return nil, fmt.Errorf("escalation threshold must be at least 1, got %d", escalationThreshold)
	}

	m := &Machine{
		model:     model,
		threshold: escalationThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// EscalationThreshold returns the configured strike count.
func (m *Machine) EscalationThreshold() int {
	return m.threshold
}

// Floor returns the minimum viable price of a listing.
func (m *Machine) Floor(l *domain.Listing) (decimal.Decimal, error) {
	return m.model.MinimumViablePrice(l.PurchasePrice, l.ShippingCost)
}

// Clamp raises a candidate price for l to its floor when it falls below it.
func (m *Machine) Clamp(l *domain.Listing, candidate decimal.Decimal) (decimal.Decimal, bool, error) {
	return m.model.Clamp(candidate, l.PurchasePrice, l.ShippingCost)
}

// Apply validates ev against the listing's status, applies the entry side
// effects of the target status and the mutations, checks invariants and
// commits. On error l is left untouched.
func (m *Machine) Apply(l *domain.Listing, ev Event, muts ...Mutation) error {
	next := l.Clone()
	now := m.now().UTC()

	if ev != EventNone {
		if err := m.transition(next, ev, now); err != nil {
			return err
		}
	} else if _, err := Transition(l.Status, ev); err != nil {
		return err
	}

	for _, mut := range muts {
		mut(next)
	}

	if next.ZombieCycleCount < l.ZombieCycleCount {
		return &InvalidTransitionError{From: l.Status, Event: ev, Reason: "zombie cycle count cannot decrease"}
	}
	if next.Status != l.Status && ev == EventNone {
		return &InvalidTransitionError{From: l.Status, Event: ev, Reason: "status changed outside a transition"}
	}

	if !next.ListPrice.Equal(l.ListPrice) {
		floor, err := m.Floor(next)
		if err != nil {
			return fmt.Errorf("compute floor: %w", err)
		}
		if next.ListPrice.LessThan(floor) {
			return &FloorViolationError{Price: next.ListPrice, Floor: floor}
		}
		next.LastPriceChangeAt = &now
	}

	next.UpdatedAt = now
	*l = *next
	if m.observe != nil && ev != EventNone {
		m.observe(ev)
	}
	return nil
}

func (m *Machine) transition(l *domain.Listing, ev Event, now time.Time) error {
	from := l.Status
	to, err := Transition(from, ev)
	if err != nil {
		return err
	}

	switch ev {
	case EventFlagZombie:
		l.ZombieCycleCount++
		if l.ZombieCycleCount >= m.threshold {
			// Third strike: continue straight to the disposal track.
			to, err = Transition(to, EventEscalate)
			if err != nil {
				return err
			}
			enterPurgatory(l, now)
		}
	case EventEscalate:
		if l.ZombieCycleCount < m.threshold {
			return &InvalidTransitionError{From: from, Event: ev, Reason: "escalation threshold not reached"}
		}
		enterPurgatory(l, now)
	case EventResurrect:
		if l.ZombieCycleCount >= m.threshold {
			return &InvalidTransitionError{From: from, Event: ev, Reason: "escalation threshold reached"}
		}
		l.DaysActive = 0
		l.TotalViews = 0
		l.Watchers = 0
		l.ResurrectionCount++
		l.ResurrectionStage = domain.StageNone
		l.ResumeAt = nil
		l.RepriceStepDays = 0
		l.LastError = ""
		l.ListedAt = &now
	case EventPublish, EventRelease:
		l.DaysActive = 0
		l.ListedAt = &now
	case EventMarkSold:
		l.SoldAt = &now
	case EventEnd:
		l.EndedAt = &now
	}

	l.Status = to
	l.LastTransitionAt = now
	return nil
}

func enterPurgatory(l *domain.Listing, now time.Time) {
	l.PurgatoryEnteredAt = &now
	l.PurgatoryPriced = false
	l.FloorClamped = false
	l.ResurrectionStage = domain.StageNone
	l.ResumeAt = nil
}

// WithPrice sets the list price. Apply rejects it below the floor.
func WithPrice(price decimal.Decimal) Mutation {
	return func(l *domain.Listing) {
		l.ListPrice = profit.RoundCents(price)
	}
}

// WithExternalID records the marketplace item id.
func WithExternalID(id string) Mutation {
	return func(l *domain.Listing) {
		l.ExternalID = id
	}
}

// WithSKU records the SKU the external item was created under.
func WithSKU(sku string) Mutation {
	return func(l *domain.Listing) {
		l.SKU = sku
	}
}

// WithStats syncs engagement counters from the marketplace.
func WithStats(views, watchers, daysActive int) Mutation {
	return func(l *domain.Listing) {
		l.TotalViews = views
		l.Watchers = watchers
		l.DaysActive = daysActive
	}
}

// WithResurrectionStage records resurrection progress.
func WithResurrectionStage(stage domain.ResurrectionStage, resumeAt *time.Time) Mutation {
	return func(l *domain.Listing) {
		l.ResurrectionStage = stage
		l.ResumeAt = resumeAt
	}
}

// WithPhotos replaces the photo order.
func WithPhotos(photos []string) Mutation {
	return func(l *domain.Listing) {
		l.PhotoURLs = append(l.PhotoURLs[:0:0], photos...)
	}
}

// WithPhotosShuffled records a photo rotation outside resurrection.
func WithPhotosShuffled(at time.Time) Mutation {
	return func(l *domain.Listing) {
		l.PhotosShuffledAt = &at
	}
}

// WithRepriceStep records the ladder step the current price came from.
func WithRepriceStep(days int) Mutation {
	return func(l *domain.Listing) {
		l.RepriceStepDays = days
	}
}

// WithPurgatoryPriced marks the purgatory markdown as applied.
func WithPurgatoryPriced(floorClamped bool) Mutation {
	return func(l *domain.Listing) {
		l.PurgatoryPriced = true
		l.FloorClamped = floorClamped
	}
}

// WithError records the last entity-level failure.
func WithError(err error) Mutation {
	return func(l *domain.Listing) {
		if err == nil {
			l.LastError = ""
			return
		}
		l.LastError = err.Error()
	}
}

// ClearError removes a recorded failure.
func ClearError() Mutation {
	return WithError(nil)
}
