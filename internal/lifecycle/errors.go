package lifecycle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/domain"
)

var (
	// ErrInvalidTransition matches every rejected transition.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrFloorViolation matches every price rejected by the profit floor.
	ErrFloorViolation = errors.New("price below profit floor")
)

// InvalidTransitionError describes a rejected event.
type InvalidTransitionError struct {
	From   domain.ListingStatus
	Event  Event
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition: %s from %s: %s", e.Event, e.From, e.Reason)
	}
	return fmt.Sprintf("invalid transition: %s from %s", e.Event, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// FloorViolationError describes a price that would sell below the floor.
type FloorViolationError struct {
	Price decimal.Decimal
	Floor decimal.Decimal
}

func (e *FloorViolationError) Error() string {
	return fmt.Sprintf("price %s below profit floor %s", e.Price.StringFixed(2), e.Floor.StringFixed(2))
}

func (e *FloorViolationError) Is(target error) bool {
	return target == ErrFloorViolation
}
