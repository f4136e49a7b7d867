// Package testhelpers wires in-memory collaborators for service tests.
package testhelpers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/database/memory"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/mock"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
	"github.com/jonesrussell/north-cloud/relister/internal/worker"
)

// Clock is a settable test clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current test time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Harness bundles the collaborators every lifecycle service needs.
type Harness struct {
	Clock    *Clock
	Data     *memory.Store
	Gateway  *mock.Gateway
	Machine  *lifecycle.Machine
	Listings *listing.Store
	Locker   *claim.MemoryLocker
	Executor *orchestrator.Executor
	Log      logger.Logger
}

// ScenarioFees sum to 16.4%.
func ScenarioFees() profit.FeeRates {
	return profit.FeeRates{
		Marketplace: decimal.RequireFromString("0.13"),
		Payment:     decimal.RequireFromString("0.029"),
		Advertising: decimal.RequireFromString("0.005"),
	}
}

// NewHarness builds a harness at a fixed time.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	clock := NewClock(time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC))
	model, err := profit.NewModel(ScenarioFees())
	require.NoError(t, err)

	machine, err := lifecycle.NewMachine(model, lifecycle.DefaultEscalationThreshold, lifecycle.WithClock(clock.Now))
	require.NoError(t, err)

	log := logger.NewNop()
	data := memory.NewStore(clock.Now)
	locker := claim.NewMemoryLocker().WithClock(clock.Now)

	pool, err := worker.NewPool(worker.Config{
		Size:    2,
		IsFatal: func(err error) bool { return errors.Is(err, marketplace.ErrAuth) },
	}, log)
	require.NoError(t, err)

	return &Harness{
		Clock:    clock,
		Data:     data,
		Gateway:  mock.New(),
		Machine:  machine,
		Listings: listing.NewStore(data.Listings, machine, log).WithHistory(data.Zombies),
		Locker:   locker,
		Executor: orchestrator.NewExecutor(pool, locker, time.Minute, log),
		Log:      log,
	}
}

// Seed stores l and, when it has an external id, a matching marketplace item.
// Zero fields get usable defaults: purchase 20.00, shipping 5.00, price 39.99.
func (h *Harness) Seed(t *testing.T, l *domain.Listing, item *mock.Item) *domain.Listing {
	t.Helper()

	if l.SKU == "" {
		l.SKU = "SKU-" + l.ID
	}
	if l.Title == "" {
		l.Title = "Item " + l.ID
	}
	if l.PurchasePrice.IsZero() {
		l.PurchasePrice = decimal.RequireFromString("20.00")
	}
	if l.ShippingCost.IsZero() {
		l.ShippingCost = decimal.RequireFromString("5.00")
	}
	if l.ListPrice.IsZero() {
		l.ListPrice = decimal.RequireFromString("39.99")
	}
	if l.OriginalPrice.IsZero() {
		l.OriginalPrice = l.ListPrice
	}
	if l.PhotoURLs == nil {
		l.PhotoURLs = pq.StringArray{"a.jpg", "b.jpg", "c.jpg"}
	}
	if l.LastTransitionAt.IsZero() {
		l.LastTransitionAt = h.Clock.Now()
	}
	require.NoError(t, h.Data.Listings.Create(context.Background(), l))

	if item != nil {
		if item.ExternalID == "" {
			item.ExternalID = l.ExternalID
		}
		if item.Price.IsZero() {
			item.Price = l.ListPrice
		}
		if item.Photos == nil {
			item.Photos = append([]string(nil), l.PhotoURLs...)
		}
		h.Gateway.AddItem(*item)
	}
	return l
}

// Get reloads a listing.
func (h *Harness) Get(t *testing.T, id string) *domain.Listing {
	t.Helper()

	l, err := h.Data.Listings.GetByID(context.Background(), id)
	require.NoError(t, err)
	return l
}

// Money parses a decimal literal.
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
