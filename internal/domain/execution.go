package domain

import "time"

// Execution statuses.
const (
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
	ExecutionTimedOut  = "timed_out"
)

// Execution triggers.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// JobExecutionRecord is the append-only audit entry for one job run.
type JobExecutionRecord struct {
	ID              string    `db:"id"               json:"id"`
	JobName         string    `db:"job_name"         json:"job_name"`
	Trigger         string    `db:"trigger"          json:"trigger"`
	DryRun          bool      `db:"dry_run"          json:"dry_run"`
	Status          string    `db:"status"           json:"status"`
	StartedAt       time.Time `db:"started_at"       json:"started_at"`
	FinishedAt      time.Time `db:"finished_at"      json:"finished_at"`
	DurationMs      int64     `db:"duration_ms"      json:"duration_ms"`
	ListingsTouched int       `db:"listings_touched" json:"listings_touched"`
	Succeeded       int       `db:"succeeded"        json:"succeeded"`
	Skipped         int       `db:"skipped"          json:"skipped"`
	Errored         int       `db:"errored"          json:"errored"`
	ErrorDetail     *string   `db:"error_detail"     json:"error_detail,omitempty"`
}
