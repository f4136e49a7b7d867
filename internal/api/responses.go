package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/offers"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/smartqueue"
)

// Error codes returned in the "code" field.
const (
	codeInvalidInput   = "INVALID_INPUT"
	codeNotFound       = "NOT_FOUND"
	codeConflict       = "CONFLICT"
	codeBusy           = "BUSY"
	codeFloorViolation = "FLOOR_VIOLATION"
	codeMarketplace    = "MARKETPLACE_ERROR"
	codeInternal       = "INTERNAL_ERROR"
)

var errBadRequest = errors.New("bad request")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Floor string `json:"floor,omitempty"`
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, orchestrator.ErrJobNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, listing.ErrInvalidInput),
		errors.Is(err, smartqueue.ErrInvalidWindow):
		return http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, lifecycle.ErrFloorViolation):
		return http.StatusUnprocessableEntity, codeFloorViolation
	case errors.Is(err, claim.ErrAlreadyClaimed), errors.Is(err, orchestrator.ErrJobRunning):
		return http.StatusConflict, codeBusy
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, database.ErrConflict),
		errors.Is(err, smartqueue.ErrNotPending), errors.Is(err, offers.ErrNotAcceptingOffers):
		return http.StatusConflict, codeConflict
	case errors.Is(err, marketplace.ErrTransient), errors.Is(err, marketplace.ErrPermanent),
		errors.Is(err, marketplace.ErrAuth):
		return http.StatusBadGateway, codeMarketplace
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// respondError writes the mapped status for err. Server-side failures are
// attached to the context so the request log carries them.
func respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	body := ErrorResponse{Error: err.Error(), Code: code}
	var fv *lifecycle.FloorViolationError
	if errors.As(err, &fv) {
		body.Floor = fv.Floor.StringFixed(2)
	}
	c.JSON(status, body)
}
