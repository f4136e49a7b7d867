package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

func TestOfferRepository_Create_DuplicateOfferID(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewOfferRepository(db)

	mock.ExpectQuery("INSERT INTO offer_records").
		WithArgs(anyArgs(10)...).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &domain.OfferRecord{
		ID:        "o-1",
		ListingID: "l-1",
		OfferID:   "off-1",
		Price:     decimal.NewFromInt(27),
		Direction: domain.OfferInbound,
		Outcome:   domain.OutcomeAccepted,
	})
	if !errors.Is(err, database.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestOfferRepository_ActiveCooldown(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(20 * time.Hour)

	t.Run("cooling down", func(t *testing.T) {
		t.Parallel()

		db, mock := newMock(t)
		repo := database.NewOfferRepository(db)

		mock.ExpectQuery("cooldown_until > \\$4").
			WithArgs("l-1", "buyer-1", domain.OfferOutbound, now).
			WillReturnRows(sqlmock.NewRows([]string{"id", "buyer_id", "cooldown_until"}).
				AddRow("o-1", "buyer-1", until))

		rec, err := repo.ActiveCooldown(context.Background(), "l-1", "buyer-1", now)
		if err != nil {
			t.Fatalf("ActiveCooldown() error = %v", err)
		}
		if rec.CooldownUntil == nil || !rec.CooldownUntil.Equal(until) {
			t.Errorf("unexpected cooldown: %v", rec.CooldownUntil)
		}
	})

	t.Run("no cooldown", func(t *testing.T) {
		t.Parallel()

		db, mock := newMock(t)
		repo := database.NewOfferRepository(db)

		mock.ExpectQuery("FROM offer_records").
			WithArgs(anyArgs(4)...).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.ActiveCooldown(context.Background(), "l-1", "buyer-2", now)
		if !errors.Is(err, database.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestOfferRepository_GetByOfferID(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewOfferRepository(db)

	mock.ExpectQuery("WHERE listing_id = \\$1 AND offer_id = \\$2").
		WithArgs("l-1", "off-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "offer_id", "price", "counter_price", "outcome"}).
			AddRow("o-1", "off-1", "24.00", "27.50", "countered"))

	rec, err := repo.GetByOfferID(context.Background(), "l-1", "off-1")
	if err != nil {
		t.Fatalf("GetByOfferID() error = %v", err)
	}
	if rec.Outcome != domain.OutcomeCountered {
		t.Errorf("expected countered, got %s", rec.Outcome)
	}
	if rec.CounterPrice == nil || rec.CounterPrice.StringFixed(2) != "27.50" {
		t.Errorf("unexpected counter price: %v", rec.CounterPrice)
	}
}
