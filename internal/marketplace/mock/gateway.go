// Package mock is an in-memory marketplace. It keeps item state between
// calls so lifecycle flows can run end to end, and injects failures per
// operation for tests.
package mock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
)

// Operation names used for failure injection and call counting.
const (
	OpGetListingStats       = "get_listing_stats"
	OpGetWatchers           = "get_watchers"
	OpUpdatePrice           = "update_price"
	OpEndItem               = "end_item"
	OpCreateItem            = "create_item"
	OpRotatePhotos          = "rotate_photos"
	OpSendOffer             = "send_offer"
	OpEvaluateIncomingOffer = "evaluate_incoming_offer"
	OpRespondToOffer        = "respond_to_offer"
	OpUpdateHandlingTime    = "update_handling_time"
)

var (
	errItemNotFound  = errors.New("item not found")
	errItemEnded     = errors.New("item has ended")
	errOfferNotFound = errors.New("offer not found")
)

// Item is a marketplace item held by the mock.
type Item struct {
	ExternalID string          `yaml:"external_id"`
	SKU        string          `yaml:"sku"`
	Title      string          `yaml:"title"`
	Category   string          `yaml:"category"`
	Price      decimal.Decimal `yaml:"price"`
	Photos     []string        `yaml:"photos"`
	Views      int             `yaml:"views"`
	DaysActive int             `yaml:"days_active"`
	WatcherIDs []string        `yaml:"watchers"`
	Ended      bool            `yaml:"ended"`
	// HandlingDays is the dispatch time last set through UpdateHandlingTime.
	HandlingDays int `yaml:"handling_days"`
}

// SentOffer is an outbound offer the mock received.
type SentOffer struct {
	OfferID    string
	ExternalID string
	BuyerID    string
	Price      decimal.Decimal
}

// Fixtures seed the mock from YAML.
type Fixtures struct {
	Items          []Item `yaml:"items"`
	IncomingOffers []struct {
		OfferID string          `yaml:"offer_id"`
		BuyerID string          `yaml:"buyer_id"`
		Amount  decimal.Decimal `yaml:"amount"`
	} `yaml:"incoming_offers"`
}

// Gateway is the stateful mock.
type Gateway struct {
	mu        sync.Mutex
	items     map[string]*Item
	incoming  map[string]marketplace.IncomingOffer
	sent      []SentOffer
	responses map[string]marketplace.Response
	failures  map[string][]error
	calls     map[string]int
}

var _ marketplace.Gateway = (*Gateway)(nil)

// New creates an empty mock marketplace.
func New() *Gateway {
	return &Gateway{
		items:     make(map[string]*Item),
		incoming:  make(map[string]marketplace.IncomingOffer),
		responses: make(map[string]marketplace.Response),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
	}
}

// LoadFixtures reads a fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s: %w", path, err)
	}

	var f Fixtures
	if err = yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &f, nil
}

// Seed loads fixtures into the mock.
func (g *Gateway) Seed(f *Fixtures) {
	for _, item := range f.Items {
		g.AddItem(item)
	}
	for _, o := range f.IncomingOffers {
		g.AddIncomingOffer(o.OfferID, marketplace.IncomingOffer{BuyerID: o.BuyerID, Amount: o.Amount})
	}
}

// AddItem stores or replaces an item.
func (g *Gateway) AddItem(item Item) {
	g.mu.Lock()
	defer g.mu.Unlock()

	item.Photos = append([]string(nil), item.Photos...)
	item.WatcherIDs = append([]string(nil), item.WatcherIDs...)
	g.items[item.ExternalID] = &item
}

// Item returns a copy of the stored item.
func (g *Gateway) Item(externalID string) (Item, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	item, ok := g.items[externalID]
	if !ok {
		return Item{}, false
	}
	c := *item
	c.Photos = append([]string(nil), item.Photos...)
	return c, true
}

// AddIncomingOffer registers a buyer offer for EvaluateIncomingOffer.
func (g *Gateway) AddIncomingOffer(offerID string, offer marketplace.IncomingOffer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.incoming[offerID] = offer
}

// FailNext queues errors returned by the next calls of op, in order.
func (g *Gateway) FailNext(op string, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], errs...)
}

// Calls returns how many times op was invoked, failures included.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// TotalCalls returns the number of invocations across all operations.
func (g *Gateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := 0
	for _, n := range g.calls {
		total += n
	}
	return total
}

// SentOffers returns outbound offers in send order.
func (g *Gateway) SentOffers() []SentOffer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SentOffer(nil), g.sent...)
}

// ResponseFor returns the response given to an incoming offer.
func (g *Gateway) ResponseFor(offerID string) (marketplace.Response, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.responses[offerID]
	return r, ok
}

// begin counts the call and pops an injected failure. Caller holds mu.
func (g *Gateway) begin(op string) error {
	g.calls[op]++
	queue := g.failures[op]
	if len(queue) == 0 {
		return nil
	}
	g.failures[op] = queue[1:]
	return queue[0]
}

func (g *Gateway) liveItem(op, externalID string) (*Item, error) {
	item, ok := g.items[externalID]
	if !ok {
		return nil, marketplace.Permanent(op, fmt.Errorf("%w: %s", errItemNotFound, externalID))
	}
	if item.Ended {
		return nil, marketplace.Permanent(op, fmt.Errorf("%w: %s", errItemEnded, externalID))
	}
	return item, nil
}

// GetListingStats reports the stored counters. Ended items still report.
func (g *Gateway) GetListingStats(_ context.Context, externalID string) (marketplace.Stats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpGetListingStats); err != nil {
		return marketplace.Stats{}, err
	}
	item, ok := g.items[externalID]
	if !ok {
		return marketplace.Stats{}, marketplace.Permanent(OpGetListingStats, fmt.Errorf("%w: %s", errItemNotFound, externalID))
	}
	return marketplace.Stats{Views: item.Views, Watchers: len(item.WatcherIDs), DaysActive: item.DaysActive}, nil
}

// GetWatchers returns the watcher ids of a live item.
func (g *Gateway) GetWatchers(_ context.Context, externalID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpGetWatchers); err != nil {
		return nil, err
	}
	item, err := g.liveItem(OpGetWatchers, externalID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), item.WatcherIDs...), nil
}

// UpdatePrice sets the price of a live item.
func (g *Gateway) UpdatePrice(_ context.Context, externalID string, price decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpUpdatePrice); err != nil {
		return err
	}
	item, err := g.liveItem(OpUpdatePrice, externalID)
	if err != nil {
		return err
	}
	item.Price = price
	return nil
}

// EndItem marks the item ended. Ending an ended item succeeds.
func (g *Gateway) EndItem(_ context.Context, externalID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpEndItem); err != nil {
		return err
	}
	item, ok := g.items[externalID]
	if !ok {
		return marketplace.Permanent(OpEndItem, fmt.Errorf("%w: %s", errItemNotFound, externalID))
	}
	item.Ended = true
	return nil
}

// CreateItem stores a new item under a generated "mock-" id.
func (g *Gateway) CreateItem(_ context.Context, draft marketplace.Draft) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpCreateItem); err != nil {
		return "", err
	}
	id := "mock-" + uuid.NewString()
	g.items[id] = &Item{
		ExternalID: id,
		SKU:        draft.SKU,
		Title:      draft.Title,
		Category:   draft.Category,
		Price:      draft.Price,
		Photos:     append([]string(nil), draft.PhotoURLs...),
	}
	return id, nil
}

// RotatePhotos moves the lead photo to the back.
func (g *Gateway) RotatePhotos(_ context.Context, externalID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpRotatePhotos); err != nil {
		return err
	}
	item, ok := g.items[externalID]
	if !ok {
		return marketplace.Permanent(OpRotatePhotos, fmt.Errorf("%w: %s", errItemNotFound, externalID))
	}
	if len(item.Photos) > 1 {
		item.Photos = append(item.Photos[1:], item.Photos[0])
	}
	return nil
}

// SendOffer records an outbound offer on a live item.
func (g *Gateway) SendOffer(_ context.Context, externalID, buyerID string, price decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpSendOffer); err != nil {
		return "", err
	}
	if _, err := g.liveItem(OpSendOffer, externalID); err != nil {
		return "", err
	}
	offerID := "offer-" + uuid.NewString()
	g.sent = append(g.sent, SentOffer{OfferID: offerID, ExternalID: externalID, BuyerID: buyerID, Price: price})
	return offerID, nil
}

// EvaluateIncomingOffer returns an offer registered with AddIncomingOffer.
func (g *Gateway) EvaluateIncomingOffer(_ context.Context, offerID string) (marketplace.IncomingOffer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpEvaluateIncomingOffer); err != nil {
		return marketplace.IncomingOffer{}, err
	}
	offer, ok := g.incoming[offerID]
	if !ok {
		return marketplace.IncomingOffer{}, marketplace.Permanent(OpEvaluateIncomingOffer, fmt.Errorf("%w: %s", errOfferNotFound, offerID))
	}
	return offer, nil
}

// RespondToOffer records resp for ResponseFor.
func (g *Gateway) RespondToOffer(_ context.Context, offerID string, resp marketplace.Response) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpRespondToOffer); err != nil {
		return err
	}
	g.responses[offerID] = resp
	return nil
}

// UpdateHandlingTime sets the dispatch days of a live item.
func (g *Gateway) UpdateHandlingTime(_ context.Context, externalID string, days int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.begin(OpUpdateHandlingTime); err != nil {
		return err
	}
	item, err := g.liveItem(OpUpdateHandlingTime, externalID)
	if err != nil {
		return err
	}
	item.HandlingDays = days
	return nil
}
