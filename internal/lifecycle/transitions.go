// Package lifecycle is the listing state machine. Every change to a
// listing's status, zombie cycle count, lifecycle timestamps or price goes
// through Machine.Apply, which checks the transition table and the pricing
// invariants in one place.
package lifecycle

import (
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

// Event drives a listing from one status to another.
type Event string

const (
	// EventNone applies field mutations without a status change.
	EventNone       Event = "none"
	EventPublish    Event = "publish"
	EventEnqueue    Event = "enqueue"
	EventRelease    Event = "release"
	EventCancel     Event = "cancel"
	EventFlagZombie Event = "flag_zombie"
	EventResurrect  Event = "resurrect"
	EventEscalate   Event = "escalate"
	EventMarkSold   Event = "mark_sold"
	EventEnd        Event = "end"

	// EventRelist retires a healthy listing preventively. It reuses the
	// resurrection steps without counting a zombie cycle.
	EventRelist Event = "relist"
)

var transitions = map[domain.ListingStatus]map[Event]domain.ListingStatus{
	domain.StatusDraft: {
		EventPublish: domain.StatusActive, // direct publication
		EventEnqueue: domain.StatusQueued, // publication gated by the smart queue
		EventEnd:     domain.StatusEnded,  // withdrawn before listing
	},
	domain.StatusQueued: {
		EventRelease: domain.StatusActive, // queue released it
		EventCancel:  domain.StatusDraft,  // queue entry cancelled
		EventEnd:     domain.StatusEnded,
	},
	domain.StatusActive: {
		EventFlagZombie: domain.StatusZombie, // stale; may continue to purgatory
		EventRelist:     domain.StatusZombie, // preventive relist, no strike
		EventEnqueue:    domain.StatusQueued, // republication
		EventMarkSold:   domain.StatusSold,
		EventEnd:        domain.StatusEnded,
	},
	domain.StatusZombie: {
		EventResurrect: domain.StatusActive,    // recreated under a new external id
		EventEscalate:  domain.StatusPurgatory, // escalation threshold reached
	},
	domain.StatusPurgatory: {
		EventMarkSold: domain.StatusSold, // markdown found a buyer
		EventEnd:      domain.StatusEnded,
	},
	// Terminal.
	domain.StatusSold:  {},
	domain.StatusEnded: {},
}

// Transition is the pure transition function.
func Transition(from domain.ListingStatus, ev Event) (domain.ListingStatus, error) {
	if ev == EventNone {
		if !from.Valid() {
			return from, &InvalidTransitionError{From: from, Event: ev, Reason: "unknown status"}
		}
		return from, nil
	}

	edges, ok := transitions[from]
	if !ok {
		return from, &InvalidTransitionError{From: from, Event: ev, Reason: "unknown status"}
	}

	to, ok := edges[ev]
	if !ok {
		return from, &InvalidTransitionError{From: from, Event: ev}
	}
	return to, nil
}

// IsTerminal reports whether no event leaves the status.
func IsTerminal(s domain.ListingStatus) bool {
	return s == domain.StatusSold || s == domain.StatusEnded
}

// CanReprice reports whether the graduated ladder applies to the status.
func CanReprice(s domain.ListingStatus) bool {
	return s == domain.StatusActive || s == domain.StatusQueued
}
