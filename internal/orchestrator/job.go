// Package orchestrator registers the lifecycle jobs, runs them with a
// deadline and an audit record, and fires them on their cron cadence.
package orchestrator

import (
	"context"
)

// RunOptions control a single job run.
type RunOptions struct {
	// DryRun computes decisions without gateway writes or persistence.
	DryRun bool
	// Trigger is domain.TriggerSchedule or domain.TriggerManual.
	Trigger string
}

// Outcome of one unit of work.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeErrored   Outcome = "errored"
)

// Detail describes what happened to one listing.
type Detail struct {
	ListingID string            `json:"listing_id"`
	Outcome   Outcome           `json:"outcome"`
	Action    string            `json:"action,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Error     string            `json:"error,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Result is the structured outcome of a job run.
type Result struct {
	Job       string `json:"job"`
	DryRun    bool   `json:"dry_run"`
	Scanned   int    `json:"scanned"`
	Succeeded int    `json:"succeeded"`
	Skipped   int    `json:"skipped"`
	Errored   int    `json:"errored"`
	// Actions counts details by action, e.g. "repriced" or "escalated".
	Actions map[string]int `json:"actions"`
	Details []Detail       `json:"details"`
}

// NewResult starts an empty result.
func NewResult(job string, opts RunOptions) *Result {
	return &Result{Job: job, DryRun: opts.DryRun, Actions: map[string]int{}, Details: []Detail{}}
}

// Add appends d and updates the tallies.
func (r *Result) Add(d Detail) {
	switch d.Outcome {
	case OutcomeSucceeded:
		r.Succeeded++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeErrored:
		r.Errored++
	}
	if d.Action != "" && d.Outcome != OutcomeErrored {
		r.Actions[d.Action]++
	}
	r.Details = append(r.Details, d)
}

// Job is one named capability the orchestrator can run.
type Job interface {
	Name() string
	// Run processes every candidate. Entity-level failures are reported in
	// the Result; a returned error means the whole run was aborted.
	Run(ctx context.Context, opts RunOptions) (*Result, error)
}
