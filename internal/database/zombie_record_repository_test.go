package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

func TestZombieRecordRepository_Create(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewZombieRecordRepository(db)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO zombie_records").
		WithArgs(anyArgs(9)...).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	rec := &domain.ZombieRecord{
		ID:            "7c1e4a52-0d2b-4f55-9d7e-4b8f6b0a9c01",
		ListingID:     "3f0b0f2e-8a51-4d9c-9a57-2d1f1c0d6b11",
		Action:        domain.ZombieResurrected,
		CycleNumber:   1,
		OldExternalID: "ext-1",
		NewExternalID: "ext-2",
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !rec.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, now)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestZombieRecordRepository_ListByListing(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewZombieRecordRepository(db)

	mock.ExpectQuery("FROM zombie_records").
		WithArgs("l-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "listing_id", "action", "cycle_number"}).
			AddRow("z-2", "l-1", "resurrected", 1).
			AddRow("z-1", "l-1", "flagged", 1))

	records, err := repo.ListByListing(context.Background(), "l-1")
	if err != nil {
		t.Fatalf("ListByListing() error = %v", err)
	}
	if len(records) != 2 || records[0].Action != domain.ZombieResurrected {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestZombieRecordRepository_ListByListing_Error(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewZombieRecordRepository(db)

	mock.ExpectQuery("FROM zombie_records").WillReturnError(errors.New("connection reset"))

	if _, err := repo.ListByListing(context.Background(), "l-1"); err == nil {
		t.Fatal("expected error")
	}
}
