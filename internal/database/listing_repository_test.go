package database_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })

	return sqlx.NewDb(mockDB, "postgres"), mock
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func TestListingRepository_Create(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewListingRepository(db)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO listings").
		WithArgs(anyArgs(13)...).
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "updated_at"}).AddRow(1, now, now))

	l := &domain.Listing{
		ID:            "3f0b0f2e-8a51-4d9c-9a57-2d1f1c0d6b11",
		SKU:           "JKT-001",
		Status:        domain.StatusDraft,
		PurchasePrice: decimal.NewFromInt(20),
		ShippingCost:  decimal.NewFromInt(5),
		ListPrice:     decimal.RequireFromString("39.99"),
	}
	if err := repo.Create(context.Background(), l); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if l.Version != 1 {
		t.Errorf("expected version 1, got %d", l.Version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_GetByID(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewListingRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "sku", "status", "photo_urls", "purchase_price", "shipping_cost", "list_price", "zombie_cycle_count", "version",
	}).AddRow("l-1", "JKT-001", "active", "{front.jpg,back.jpg}", "20.00", "5.00", "24.99", 2, 7)

	mock.ExpectQuery(regexp.QuoteMeta("FROM listings WHERE id = $1")).
		WithArgs("l-1").
		WillReturnRows(rows)

	l, err := repo.GetByID(context.Background(), "l-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if l.Status != domain.StatusActive || l.Version != 7 || l.ZombieCycleCount != 2 {
		t.Errorf("unexpected listing: %+v", l)
	}
	if !l.ListPrice.Equal(decimal.RequireFromString("24.99")) {
		t.Errorf("expected list price 24.99, got %s", l.ListPrice)
	}
	if len(l.PhotoURLs) != 2 || l.PhotoURLs[0] != "front.jpg" {
		t.Errorf("unexpected photos: %v", l.PhotoURLs)
	}
}

func TestListingRepository_GetByID_NotFound(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewListingRepository(db)

	mock.ExpectQuery("FROM listings").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListingRepository_List_FiltersByStatus(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewListingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = ANY($1)")).
		WithArgs(sqlmock.AnyArg(), nil, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow("l-1", "active").
			AddRow("l-2", "queued"))

	listings, err := repo.List(context.Background(), database.ListingFilter{
		Statuses: []domain.ListingStatus{domain.StatusActive, domain.StatusQueued},
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	if err = mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_Update_BumpsVersion(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewListingRepository(db)
	now := time.Now()

	args := anyArgs(25)
	args = append(args, "l-1", 3)
	mock.ExpectQuery("UPDATE listings").
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(4, now))

	l := &domain.Listing{ID: "l-1", Version: 3, Status: domain.StatusZombie}
	if err := repo.Update(context.Background(), l); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if l.Version != 4 {
		t.Errorf("expected version 4, got %d", l.Version)
	}
}

func TestListingRepository_Update_StaleVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		exists bool
		want   error
	}{
		{name: "conflict", exists: true, want: database.ErrConflict},
		{name: "not found", exists: false, want: database.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, mock := newMock(t)
			repo := database.NewListingRepository(db)

			mock.ExpectQuery("UPDATE listings").
				WithArgs(anyArgs(27)...).
				WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
				WithArgs("l-1").
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			err := repo.Update(context.Background(), &domain.Listing{ID: "l-1", Version: 2})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
