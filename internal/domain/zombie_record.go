package domain

import "time"

// ZombieAction classifies a zombie history entry.
type ZombieAction string

const (
	ZombieFlagged          ZombieAction = "flagged"
	ZombiePurgatoried      ZombieAction = "purgatoried"
	ZombieResurrected      ZombieAction = "resurrected"
	ZombiePreventiveRelist ZombieAction = "preventive_relist"
)

// ZombieRecord is one entry in a listing's zombie history: a detection, an
// escalation, a resurrection or a preventive relist. Records are never
// updated.
type ZombieRecord struct {
	ID            string       `db:"id"              json:"id"`
	ListingID     string       `db:"listing_id"      json:"listing_id"`
	Action        ZombieAction `db:"action"          json:"action"`
	CycleNumber   int          `db:"cycle_number"    json:"cycle_number"`
	DaysActive    int          `db:"days_active"     json:"days_active"`
	Views         int          `db:"views"           json:"views"`
	Watchers      int          `db:"watchers"        json:"watchers"`
	OldExternalID string       `db:"old_external_id" json:"old_external_id,omitempty"`
	NewExternalID string       `db:"new_external_id" json:"new_external_id,omitempty"`
	CreatedAt     time.Time    `db:"created_at"      json:"created_at"`
}
