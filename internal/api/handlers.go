package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/domain"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/offers"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
	"github.com/jonesrussell/north-cloud/relister/internal/purgatory"
	"github.com/jonesrussell/north-cloud/relister/internal/ratelimit"
	"github.com/jonesrussell/north-cloud/relister/internal/smartqueue"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Deps are the collaborators behind the API. Scheduler and Budget are optional.
type Deps struct {
	Runner     *orchestrator.Runner
	Scheduler  *orchestrator.Scheduler
	Executions database.ExecutionRepositoryInterface
	Listings   *listing.Service
	Offers     *offers.Engine
	Queue      *smartqueue.Queue
	Purgatory  *purgatory.Manager
	Profit     *profit.Model
	Budget     *ratelimit.Budget
	Logger     logger.Logger
}

// Handler handles HTTP requests for the relister API.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) log() logger.Logger {
	if h.deps.Logger == nil {
		return logger.NewNop()
	}
	return h.deps.Logger
}

// JobResponse describes a registered job.
type JobResponse struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

// RunResponse is the outcome of a manual job run.
type RunResponse struct {
	Result    *orchestrator.Result       `json:"result"`
	Execution *domain.JobExecutionRecord `json:"execution"`
	Error     string                     `json:"error,omitempty"`
}

// IncomingOfferRequest reports a buyer offer. Without buyer and amount
// the offer is fetched from the marketplace.
type IncomingOfferRequest struct {
	OfferID string          `json:"offer_id" binding:"required"`
	BuyerID string          `json:"buyer_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// ProfitResponse is the floor and margin for a price.
type ProfitResponse struct {
	Floor      decimal.Decimal  `json:"floor"`
	FeeRate    decimal.Decimal  `json:"fee_rate"`
	NetProfit  *decimal.Decimal `json:"net_profit,omitempty"`
	MeetsFloor *bool            `json:"meets_floor,omitempty"`
}

// ListJobs handles GET /api/v1/jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	entries := h.deps.Runner.Registry().List()
	jobs := make([]JobResponse, 0, len(entries))
	for _, e := range entries {
		job := JobResponse{Name: e.Job.Name(), Schedule: e.Schedule}
		if h.deps.Scheduler != nil {
			if next, ok := h.deps.Scheduler.NextRun(job.Name); ok {
				job.NextRun = &next
			}
		}
		jobs = append(jobs, job)
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// RunJob handles POST /api/v1/jobs/:name/run. The run is synchronous;
// ?dry_run=true previews decisions without writes.
func (h *Handler) RunJob(c *gin.Context) {
	dryRun, err := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
	if err != nil {
		respondError(c, fmt.Errorf("%w: dry_run must be a boolean", errBadRequest))
		return
	}

	result, rec, err := h.deps.Runner.Run(c.Request.Context(), c.Param("name"), orchestrator.RunOptions{
		DryRun:  dryRun,
		Trigger: domain.TriggerManual,
	})
	if err != nil && rec == nil {
		respondError(c, err)
		return
	}

	resp := RunResponse{Result: result, Execution: rec}
	if err != nil {
		_ = c.Error(err)
		resp.Error = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListExecutions handles GET /api/v1/executions?job=&limit=&offset=.
func (h *Handler) ListExecutions(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		respondError(c, err)
		return
	}

	records, err := h.deps.Executions.List(c.Request.Context(), c.Query("job"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": records, "total": len(records)})
}

// CreateListing handles POST /api/v1/listings.
func (h *Handler) CreateListing(c *gin.Context) {
	var in listing.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, fmt.Errorf("%w: %s", errBadRequest, err.Error()))
		return
	}

	l, err := h.deps.Listings.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

// ListListings handles GET /api/v1/listings?status=active,zombie.
func (h *Handler) ListListings(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		respondError(c, err)
		return
	}

	filter := database.ListingFilter{Limit: limit, Offset: offset}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.ListingStatus(strings.TrimSpace(s))
			if !status.Valid() {
				respondError(c, fmt.Errorf("%w: unknown status %q", errBadRequest, s))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	listings, err := h.deps.Listings.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings, "total": len(listings)})
}

// GetListing handles GET /api/v1/listings/:id.
func (h *Handler) GetListing(c *gin.Context) {
	l, err := h.deps.Listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	floor, err := h.deps.Profit.MinimumViablePrice(l.PurchasePrice, l.ShippingCost)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"listing":    l,
		"floor":      floor,
		"net_profit": h.deps.Profit.NetProfit(l.ListPrice, l.PurchasePrice, l.ShippingCost),
	})
}

// PublishListing handles POST /api/v1/listings/:id/publish.
func (h *Handler) PublishListing(c *gin.Context) {
	l, err := h.deps.Listings.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// MarkSold handles POST /api/v1/listings/:id/sold.
func (h *Handler) MarkSold(c *gin.Context) {
	l, err := h.deps.Listings.MarkSold(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// EndListing handles POST /api/v1/listings/:id/end.
func (h *Handler) EndListing(c *gin.Context) {
	l, err := h.deps.Listings.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// HandleIncomingOffer handles POST /api/v1/listings/:id/offers. A replayed
// offer id returns the stored decision with 200; a new decision returns 201.
func (h *Handler) HandleIncomingOffer(c *gin.Context) {
	var req IncomingOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %s", errBadRequest, err.Error()))
		return
	}

	var in *marketplace.IncomingOffer
	if req.BuyerID != "" || !req.Amount.IsZero() {
		in = &marketplace.IncomingOffer{BuyerID: req.BuyerID, Amount: req.Amount}
	}

	rec, replayed, err := h.deps.Offers.HandleIncoming(c.Request.Context(), c.Param("id"), req.OfferID, in)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"offer": rec, "replayed": replayed})
}

// ListOffers handles GET /api/v1/listings/:id/offers.
func (h *Handler) ListOffers(c *gin.Context) {
	records, err := h.deps.Offers.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": records, "total": len(records)})
}

// ListingHistory handles GET /api/v1/listings/:id/history.
func (h *Handler) ListingHistory(c *gin.Context) {
	records, err := h.deps.Listings.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records, "total": len(records)})
}

// Enqueue handles POST /api/v1/queue.
func (h *Handler) Enqueue(c *gin.Context) {
	var req smartqueue.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %s", errBadRequest, err.Error()))
		return
	}

	entry, err := h.deps.Queue.Enqueue(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// CancelQueueEntry handles DELETE /api/v1/queue/:id.
func (h *Handler) CancelQueueEntry(c *gin.Context) {
	entry, err := h.deps.Queue.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// QueueStatus handles GET /api/v1/queue/status.
func (h *Handler) QueueStatus(c *gin.Context) {
	stats, err := h.deps.Queue.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "surge_window": h.deps.Queue.Window().String()})
}

// PurgatoryRecommendations handles GET /api/v1/purgatory/recommendations.
func (h *Handler) PurgatoryRecommendations(c *gin.Context) {
	listings, err := h.deps.Listings.List(c.Request.Context(), database.ListingFilter{
		Statuses: []domain.ListingStatus{domain.StatusPurgatory},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	recs := make([]purgatory.Recommendation, 0, len(listings))
	for _, l := range listings {
		if rec, ok := h.deps.Purgatory.Recommend(l); ok {
			recs = append(recs, rec)
		}
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs, "total": len(recs)})
}

// Profit handles GET /api/v1/profit?purchase=&shipping=&price=.
func (h *Handler) Profit(c *gin.Context) {
	purchase, err := moneyQuery(c, "purchase", true)
	if err != nil {
		respondError(c, err)
		return
	}
	shipping, err := moneyQuery(c, "shipping", false)
	if err != nil {
		respondError(c, err)
		return
	}

	floor, err := h.deps.Profit.MinimumViablePrice(purchase, shipping)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := ProfitResponse{Floor: floor, FeeRate: h.deps.Profit.Rates().Total()}

	if c.Query("price") != "" {
		price, priceErr := moneyQuery(c, "price", true)
		if priceErr != nil {
			respondError(c, priceErr)
			return
		}
		net := h.deps.Profit.NetProfit(price, purchase, shipping)
		meets := h.deps.Profit.MeetsFloor(price, purchase, shipping)
		resp.NetProfit, resp.MeetsFloor = &net, &meets
	}
	c.JSON(http.StatusOK, resp)
}

// MarketplaceBudget handles GET /api/v1/marketplace/budget.
func (h *Handler) MarketplaceBudget(c *gin.Context) {
	if h.deps.Budget == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "budget": h.deps.Budget.Stats()})
}

func pagination(c *gin.Context) (limit, offset int, err error) {
	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 || limit > maxPageSize {
		return 0, 0, fmt.Errorf("%w: limit must be between 1 and %d", errBadRequest, maxPageSize)
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset must be non-negative", errBadRequest)
	}
	return limit, offset, nil
}

func moneyQuery(c *gin.Context, name string, required bool) (decimal.Decimal, error) {
	raw := c.Query(name)
	if raw == "" {
		if required {
			return decimal.Zero, fmt.Errorf("%w: %s is required", errBadRequest, name)
		}
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s must be a non-negative amount", errBadRequest, name)
	}
	return v, nil
}
