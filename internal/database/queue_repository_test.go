package database_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

func TestQueueRepository_Enqueue_DuplicatePending(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewQueueRepository(db)

	mock.ExpectQuery("INSERT INTO queue_entries").
		WithArgs(anyArgs(6)...).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := repo.Enqueue(context.Background(), &domain.QueueEntry{
		ID:        "q-1",
		ListingID: "l-1",
		Status:    domain.QueuePending,
	})
	if !errors.Is(err, database.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestQueueRepository_ListPending_Order(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewQueueRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY priority DESC, scheduled_at ASC")).
		WithArgs(domain.QueuePending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "listing_id", "priority", "status", "scheduled_at"}).
			AddRow("q-2", "l-2", 9, "pending", now).
			AddRow("q-1", "l-1", 1, "pending", now))

	entries, err := repo.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "q-2" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestQueueRepository_Update_NotFound(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewQueueRepository(db)

	mock.ExpectExec("UPDATE queue_entries").
		WithArgs(anyArgs(5)...).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &domain.QueueEntry{ID: "q-missing", Status: domain.QueueReleased})
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueueRepository_Stats(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	repo := database.NewQueueRepository(db)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("COUNT").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "released_today", "failed", "total"}).
			AddRow(4, 2, 1, 9))

	stats, err := repo.Stats(context.Background(), since)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := domain.QueueStats{Pending: 4, ReleasedToday: 2, Failed: 1, Total: 9}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}
}
