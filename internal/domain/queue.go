package domain

import "time"

// QueueStatus is the state of a queue entry.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueReleased  QueueStatus = "released"
	QueueFailed    QueueStatus = "failed"
	QueueCancelled QueueStatus = "cancelled"
)

// Release windows an entry may request.
const (
	WindowSurge = "surge"
	WindowAny   = "any"
)

// QueueEntry is a pending publication awaiting release.
type QueueEntry struct {
	ID           string      `db:"id"             json:"id"`
	ListingID    string      `db:"listing_id"     json:"listing_id"`
	Priority     int         `db:"priority"       json:"priority"`
	Window       string      `db:"release_window" json:"window"`
	Status       QueueStatus `db:"status"         json:"status"`
	ScheduledAt  time.Time   `db:"scheduled_at"   json:"scheduled_at"`
	ReleasedAt   *time.Time  `db:"released_at"    json:"released_at,omitempty"`
	BatchID      *string     `db:"batch_id"       json:"batch_id,omitempty"`
	ErrorMessage *string     `db:"error_message"  json:"error_message,omitempty"`
	CreatedAt    time.Time   `db:"created_at"     json:"created_at"`
}

// QueueStats summarizes the queue.
type QueueStats struct {
	Pending       int  `json:"pending"`
	ReleasedToday int  `json:"released_today"`
	Failed        int  `json:"failed"`
	Total         int  `json:"total"`
	SurgeActive   bool `json:"surge_active"`
}
