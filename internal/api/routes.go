package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteOptions configures the non-API endpoints.
type RouteOptions struct {
	ServiceName string
	Version     string
	StartedAt   time.Time
	Checks      map[string]HealthChecker
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Auth guards /api/v1. /health and /metrics stay public.
	Auth AuthConfig
}

// SetupRoutes configures every route.
func SetupRoutes(router *gin.Engine, handler *Handler, opts RouteOptions) {
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", healthHandler(opts.ServiceName, opts.Version, opts.StartedAt, opts.Checks))
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	v1 := ProtectedGroup(router, "/api/v1", opts.Auth, handler.log())

	jobs := v1.Group("/jobs")
	jobs.GET("", handler.ListJobs)                // GET /api/v1/jobs
	jobs.POST("/:name/run", handler.RunJob)       // POST /api/v1/jobs/:name/run
	v1.GET("/executions", handler.ListExecutions) // GET /api/v1/executions

	listings := v1.Group("/listings")
	listings.POST("", handler.CreateListing)                  // POST /api/v1/listings
	listings.GET("", handler.ListListings)                    // GET /api/v1/listings
	listings.GET("/:id", handler.GetListing)                  // GET /api/v1/listings/:id
	listings.POST("/:id/publish", handler.PublishListing)     // POST /api/v1/listings/:id/publish
	listings.POST("/:id/sold", handler.MarkSold)              // POST /api/v1/listings/:id/sold
	listings.POST("/:id/end", handler.EndListing)             // POST /api/v1/listings/:id/end
	listings.POST("/:id/offers", handler.HandleIncomingOffer) // POST /api/v1/listings/:id/offers
	listings.GET("/:id/offers", handler.ListOffers)           // GET /api/v1/listings/:id/offers
	listings.GET("/:id/history", handler.ListingHistory)      // GET /api/v1/listings/:id/history

	queue := v1.Group("/queue")
	queue.POST("", handler.Enqueue)                // POST /api/v1/queue
	queue.GET("/status", handler.QueueStatus)      // GET /api/v1/queue/status
	queue.DELETE("/:id", handler.CancelQueueEntry) // DELETE /api/v1/queue/:id

	v1.GET("/purgatory/recommendations", handler.PurgatoryRecommendations)
	v1.GET("/profit", handler.Profit)
	v1.GET("/marketplace/budget", handler.MarketplaceBudget)
}
