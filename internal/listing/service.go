package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
)

// ErrInvalidInput is returned for a malformed intake request.
var ErrInvalidInput = errors.New("invalid listing input")

// Input describes a new draft listing.
type Input struct {
	SKU           string          `json:"sku"            binding:"required"`
	Title         string          `json:"title"          binding:"required"`
	Category      string          `json:"category"`
	PhotoURLs     []string        `json:"photo_urls"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	ListPrice     decimal.Decimal `json:"list_price"`
}

func (in Input) validate() error {
	var problems []string
	if strings.TrimSpace(in.SKU) == "" {
		problems = append(problems, "sku is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "title is required")
	}
	if in.PurchasePrice.IsNegative() || in.ShippingCost.IsNegative() {
		problems = append(problems, "costs cannot be negative")
	}
	if !in.ListPrice.IsPositive() {
		problems = append(problems, "list_price must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// Service creates listings and applies externally confirmed outcomes.
type Service struct {
	store    *Store
	gateway  marketplace.Gateway
	locker   claim.Locker
	claimTTL time.Duration
	logger   logger.Logger
	now      func() time.Time
}

// NewService creates a listing service.
func NewService(
	store *Store,
	gateway marketplace.Gateway,
	locker claim.Locker,
	claimTTL time.Duration,
	log logger.Logger,
) *Service {
	return &Service{
		store:    store,
		gateway:  gateway,
		locker:   locker,
		claimTTL: claimTTL,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides time.Now.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create stores a draft listing. The asking price must meet the profit floor.
func (s *Service) Create(ctx context.Context, in Input) (*domain.Listing, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	l := &domain.Listing{
		ID:               uuid.NewString(),
		SKU:              strings.TrimSpace(in.SKU),
		Title:            strings.TrimSpace(in.Title),
		Category:         strings.TrimSpace(in.Category),
		PhotoURLs:        pq.StringArray(append([]string{}, in.PhotoURLs...)),
		PurchasePrice:    in.PurchasePrice,
		ShippingCost:     in.ShippingCost,
		OriginalPrice:    in.ListPrice,
		ListPrice:        in.ListPrice,
		Status:           domain.StatusDraft,
		LastTransitionAt: s.now().UTC(),
	}

	floor, err := s.store.Machine().Floor(l)
	if err != nil {
		return nil, err
	}
	if l.ListPrice.LessThan(floor) {
		return nil, &lifecycle.FloorViolationError{Price: l.ListPrice, Floor: floor}
	}

	if err = s.store.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	s.logger.Info("Listing created",
		logger.ListingID(l.ID),
		logger.String("sku", l.SKU),
		logger.Money("list_price", l.ListPrice),
		logger.Money("floor", floor),
	)
	return l, nil
}

// Get returns one listing.
func (s *Service) Get(ctx context.Context, id string) (*domain.Listing, error) {
	return s.store.Get(ctx, id)
}

// History returns the listing's zombie history, newest first.
func (s *Service) History(ctx context.Context, id string) ([]*domain.ZombieRecord, error) {
	return s.store.History(ctx, id)
}

// List returns listings, optionally filtered by status.
func (s *Service) List(ctx context.Context, filter database.ListingFilter) ([]*domain.Listing, error) {
	return s.store.List(ctx, filter)
}

// Publish creates the marketplace item for a draft and activates it.
func (s *Service) Publish(ctx context.Context, id string) (*domain.Listing, error) {
	return s.withClaim(ctx, id, func(l *domain.Listing) error {
		if _, err := s.store.Preview(l, lifecycle.EventPublish); err != nil {
			return err
		}
		externalID, err := s.gateway.CreateItem(ctx, Draft(l, l.SKU))
		if err != nil {
			s.store.RecordFailure(ctx, l, err)
			return fmt.Errorf("create item: %w", err)
		}
		return s.store.Commit(ctx, l, lifecycle.EventPublish,
			lifecycle.WithExternalID(externalID),
			lifecycle.ClearError(),
		)
	})
}

// MarkSold records a sale confirmed by the marketplace.
func (s *Service) MarkSold(ctx context.Context, id string) (*domain.Listing, error) {
	return s.withClaim(ctx, id, func(l *domain.Listing) error {
		return s.store.Commit(ctx, l, lifecycle.EventMarkSold)
	})
}

// End withdraws a listing, ending its marketplace item first when it has one.
func (s *Service) End(ctx context.Context, id string) (*domain.Listing, error) {
	return s.withClaim(ctx, id, func(l *domain.Listing) error {
		if _, err := s.store.Preview(l, lifecycle.EventEnd); err != nil {
			return err
		}
		if l.ExternalID != "" {
			if err := s.gateway.EndItem(ctx, l.ExternalID); err != nil {
				s.store.RecordFailure(ctx, l, err)
				return fmt.Errorf("end item: %w", err)
			}
		}
		return s.store.Commit(ctx, l, lifecycle.EventEnd)
	})
}

func (s *Service) withClaim(ctx context.Context, id string, fn func(l *domain.Listing) error) (*domain.Listing, error) {
	c, err := s.locker.TryClaim(ctx, claim.ListingKey(id), s.claimTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := s.locker.Release(context.WithoutCancel(ctx), c); relErr != nil {
			s.logger.Warn("Failed to release listing claim", logger.ListingID(id), logger.Error(relErr))
		}
	}()

	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = fn(l); err != nil {
		return nil, err
	}
	s.logger.Info("Listing updated",
		logger.ListingID(l.ID),
		logger.String("status", string(l.Status)),
		logger.String("external_id", l.ExternalID),
	)
	return l, nil
}

// Draft builds the marketplace draft for l under sku.
func Draft(l *domain.Listing, sku string) marketplace.Draft {
	return marketplace.Draft{
		SKU:       sku,
		Title:     l.Title,
		Category:  l.Category,
		Price:     l.ListPrice,
		PhotoURLs: append([]string(nil), l.PhotoURLs...),
	}
}
