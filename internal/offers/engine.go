// Package offers sends proactive discount offers to watchers and triages
// offers buyers send in.
package offers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
	"github.com/jonesrussell/north-cloud/relister/internal/worker"
)

// JobName is the orchestrator name of the outbound run.
const JobName = "offers"

// ActionSent is the detail action when at least one offer went out.
const ActionSent = "sent"

// ErrNotAcceptingOffers is returned for an inbound offer on a listing that
// is not live.
var ErrNotAcceptingOffers = errors.New("listing is not accepting offers")

var hundred = decimal.NewFromInt(100)

// Engine runs both offer directions.
type Engine struct {
	config   Config
	listings *listing.Store
	records  database.OfferRepositoryInterface
	gateway  marketplace.Gateway
	executor *orchestrator.Executor
	locker   claim.Locker
	claimTTL time.Duration
	logger   logger.Logger
	now      func() time.Time
}

var _ orchestrator.Job = (*Engine)(nil)

// Deps are the engine's collaborators.
type Deps struct {
	Listings *listing.Store
	Records  database.OfferRepositoryInterface
	Gateway  marketplace.Gateway
	Executor *orchestrator.Executor
	Locker   claim.Locker
	ClaimTTL time.Duration
	Logger   logger.Logger
}

// New creates an offer engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.ClaimTTL <= 0 {
		deps.ClaimTTL = claim.DefaultTTL
	}
	return &Engine{
		config:   cfg,
		listings: deps.Listings,
		records:  deps.Records,
		gateway:  deps.Gateway,
		executor: deps.Executor,
		locker:   deps.Locker,
		claimTTL: deps.ClaimTTL,
		logger:   deps.Logger.With(logger.Job(JobName)),
		now:      time.Now,
	}, nil
}

// WithClock overrides time.Now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Name implements orchestrator.Job.
func (e *Engine) Name() string {
	return JobName
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Run sends outbound offers to the watchers of every active listing.
func (e *Engine) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Result, error) {
	result := orchestrator.NewResult(JobName, opts)

	ids, err := e.listings.IDs(ctx, domain.StatusActive)
	if err != nil {
		return result, err
	}

	outcomes := orchestrator.Each(ctx, e.executor, ids, func(ctx context.Context, id string) (orchestrator.Detail, error) {
		return e.outbound(ctx, id, opts.DryRun)
	})
	if err = e.executor.Collect(result, outcomes); err != nil {
		return result, err
	}

	e.logger.Info("Outbound offers complete",
		logger.Int("scanned", result.Scanned),
		logger.Int("listings_offered", result.Actions[ActionSent]),
		logger.Int("errored", result.Errored),
	)
	return result, nil
}

func (e *Engine) outbound(ctx context.Context, id string, dryRun bool) (orchestrator.Detail, error) {
	l, err := e.listings.Get(ctx, id)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	if l.Status != domain.StatusActive {
		return skip("status_changed", nil), nil
	}
	if l.ExternalID == "" {
		return skip("not_published", nil), nil
	}
	tier, ok := e.config.TierFor(l.DaysActive)
	if !ok {
		return skip("no_tier", nil), nil
	}

	candidate := profit.Discount(l.ListPrice, decimal.NewFromInt(int64(tier.Percent)))
	price, clamped, err := e.listings.Machine().Clamp(l, candidate)
	if err != nil {
		return orchestrator.Detail{}, err
	}
	fields := map[string]string{
		"tier_percent": strconv.Itoa(tier.Percent),
		"list_price":   l.ListPrice.StringFixed(2),
		"offer_price":  price.StringFixed(2),
	}
	if !price.LessThan(l.ListPrice) {
		return skip("floor", fields), nil
	}

	// Watcher counts come from the zombie scan; an unwatched listing costs
	// no budget.
	if l.Watchers == 0 {
		return skip("no_watchers", fields), nil
	}

	watchers, err := e.gateway.GetWatchers(ctx, l.ExternalID)
	if err != nil {
		return orchestrator.Detail{Fields: fields}, fmt.Errorf("get watchers: %w", err)
	}
	if len(watchers) == 0 {
		return skip("no_watchers", fields), nil
	}

	discount := tier.Percent
	if clamped {
		discount = int(hundred.Sub(price.Div(l.ListPrice).Mul(hundred)).IntPart())
	}

	var sent, cooling int
	var stopped bool
	var errs []error
	for _, buyer := range watchers {
		if !dryRun && worker.Expired(ctx) {
			stopped = true
			break
		}
		now := e.now().UTC()
		_, err = e.records.ActiveCooldown(ctx, l.ID, buyer, now)
		switch {
		case err == nil:
			cooling++
			continue
		case !errors.Is(err, database.ErrNotFound):
			errs = append(errs, err)
			continue
		}

		if dryRun {
			sent++
			continue
		}
		if err = e.send(ctx, l, buyer, price, discount, now); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}

	fields["watchers"] = strconv.Itoa(len(watchers))
	fields["sent"] = strconv.Itoa(sent)
	fields["cooldown"] = strconv.Itoa(cooling)

	if stopped {
		fields["stopped"] = worker.ReasonDeadline
	}

	if len(errs) > 0 {
		return orchestrator.Detail{Action: ActionSent, Fields: fields}, errors.Join(errs...)
	}
	if sent == 0 && stopped {
		return skip(worker.ReasonDeadline, fields), nil
	}
	if sent == 0 {
		return skip("cooldown", fields), nil
	}
	return orchestrator.Detail{Outcome: orchestrator.OutcomeSucceeded, Action: ActionSent, Fields: fields}, nil
}

func (e *Engine) send(
	ctx context.Context,
	l *domain.Listing,
	buyer string,
	price decimal.Decimal,
	discount int,
	now time.Time,
) error {
	offerID, err := e.gateway.SendOffer(ctx, l.ExternalID, buyer, price)
	if err != nil {
		return fmt.Errorf("send offer to %s: %w", buyer, err)
	}

	until := now.Add(e.config.Cooldown)
	rec := &domain.OfferRecord{
		ID:              uuid.NewString(),
		ListingID:       l.ID,
		OfferID:         offerID,
		BuyerID:         buyer,
		Price:           price,
		DiscountPercent: decimal.NewFromInt(int64(discount)),
		Direction:       domain.OfferOutbound,
		Outcome:         domain.OutcomeSent,
		CooldownUntil:   &until,
	}
	if err = e.records.Create(ctx, rec); err != nil {
		return fmt.Errorf("record offer %s: %w", offerID, err)
	}

	e.logger.Info("Offer sent",
		logger.ListingID(l.ID),
		logger.String("external_id", l.ExternalID),
		logger.String("buyer_id", buyer),
		logger.Money("price", price),
	)
	return nil
}

// HandleIncoming triages a buyer's offer. When in is nil the offer is
// fetched from the marketplace. Replays of an offer id already decided
// return the stored record without any gateway call; replayed reports that.
func (e *Engine) HandleIncoming(
	ctx context.Context,
	listingID, offerID string,
	in *marketplace.IncomingOffer,
) (rec *domain.OfferRecord, replayed bool, err error) {
	if existing, lookupErr := e.existing(ctx, listingID, offerID); lookupErr != nil || existing != nil {
		return existing, existing != nil, lookupErr
	}

	c, err := e.locker.TryClaim(ctx, claim.ListingKey(listingID), e.claimTTL)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if relErr := e.locker.Release(context.WithoutCancel(ctx), c); relErr != nil {
			e.logger.Warn("Failed to release listing claim", logger.ListingID(listingID), logger.Error(relErr))
		}
	}()

	// Another caller may have decided it while we waited for the claim.
	if existing, lookupErr := e.existing(ctx, listingID, offerID); lookupErr != nil || existing != nil {
		return existing, existing != nil, lookupErr
	}

	l, err := e.listings.Get(ctx, listingID)
	if err != nil {
		return nil, false, err
	}
	if l.Status != domain.StatusActive && l.Status != domain.StatusPurgatory {
		return nil, false, fmt.Errorf("%w: listing %s is %s", ErrNotAcceptingOffers, l.ID, l.Status)
	}

	offer := marketplace.IncomingOffer{}
	if in != nil {
		offer = *in
	}
	if in == nil || offer.Amount.IsZero() {
		fetched, fetchErr := e.gateway.EvaluateIncomingOffer(ctx, offerID)
		if fetchErr != nil {
			return nil, false, fmt.Errorf("evaluate incoming offer: %w", fetchErr)
		}
		if offer.BuyerID == "" {
			offer.BuyerID = fetched.BuyerID
		}
		offer.Amount = fetched.Amount
	}

	floor, err := e.listings.Machine().Floor(l)
	if err != nil {
		return nil, false, err
	}
	decision := e.config.Decide(offer.Amount, l.ListPrice, floor)

	if err = e.gateway.RespondToOffer(ctx, offerID, decision.Response()); err != nil {
		return nil, false, fmt.Errorf("respond to offer: %w", err)
	}

	rec = &domain.OfferRecord{
		ID:              uuid.NewString(),
		ListingID:       l.ID,
		OfferID:         offerID,
		BuyerID:         offer.BuyerID,
		Price:           offer.Amount,
		CounterPrice:    decision.Counter,
		DiscountPercent: percentOff(offer.Amount, l.ListPrice),
		Direction:       domain.OfferInbound,
		Outcome:         decision.Outcome(),
	}
	if err = e.records.Create(ctx, rec); err != nil {
		if errors.Is(err, database.ErrConflict) {
			existing, lookupErr := e.records.GetByOfferID(ctx, listingID, offerID)
			return existing, true, lookupErr
		}
		return nil, false, err
	}

	e.logger.Info("Incoming offer decided",
		logger.ListingID(l.ID),
		logger.String("offer_id", offerID),
		logger.String("action", string(decision.Action)),
		logger.String("reason", decision.Reason),
		logger.Money("amount", offer.Amount),
		logger.Money("list_price", l.ListPrice),
		logger.Money("floor", floor),
	)
	return rec, false, nil
}

// History returns the offers recorded for a listing, newest first.
func (e *Engine) History(ctx context.Context, listingID string) ([]*domain.OfferRecord, error) {
	return e.records.ListByListing(ctx, listingID)
}

func (e *Engine) existing(ctx context.Context, listingID, offerID string) (*domain.OfferRecord, error) {
	rec, err := e.records.GetByOfferID(ctx, listingID, offerID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func percentOff(amount, listPrice decimal.Decimal) decimal.Decimal {
	if !listPrice.IsPositive() {
		return decimal.Zero
	}
	return profit.RoundCents(hundred.Sub(amount.Div(listPrice).Mul(hundred)))
}

func skip(reason string, fields map[string]string) orchestrator.Detail {
	return orchestrator.Detail{Outcome: orchestrator.OutcomeSkipped, Reason: reason, Fields: fields}
}
