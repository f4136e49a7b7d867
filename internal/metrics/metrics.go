// Package metrics holds the Prometheus collectors of the lifecycle engine.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
)

const (
	// Namespace is the namespace for all relister metrics.
	Namespace = "relister"

	subsystemJobs        = "jobs"
	subsystemGateway     = "marketplace"
	subsystemQueue       = "queue"
	resultOK             = "ok"
	resultTransient      = "transient"
	resultPermanent      = "permanent"
	resultAuth           = "auth"
	resultOther          = "other"
	durationBucketStart  = 0.05
	durationBucketFactor = 2
	durationBucketCount  = 14
)

// Metrics holds all collectors.
type Metrics struct {
	// Job metrics
	JobRunsTotal       *prometheus.CounterVec
	JobDurationSeconds *prometheus.HistogramVec
	JobUnitsTotal      *prometheus.CounterVec
	JobsRunning        prometheus.Gauge

	// Gateway metrics
	GatewayCallsTotal    *prometheus.CounterVec
	GatewayCallSeconds   *prometheus.HistogramVec
	RateLimitWaitSeconds prometheus.Histogram

	// Lifecycle metrics
	TransitionsTotal *prometheus.CounterVec
	QueueReleased    *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initJobMetrics(factory)
	m.initGatewayMetrics(factory)
	m.initLifecycleMetrics(factory)

	return m
}

func durationBuckets() []float64 {
	return prometheus.ExponentialBuckets(durationBucketStart, durationBucketFactor, durationBucketCount)
}

func (m *Metrics) initJobMetrics(factory promauto.Factory) {
	m.JobRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "runs_total",
			Help:      "Total number of job runs by final status",
		},
		[]string{"job", "status"},
	)

	m.JobDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "duration_seconds",
			Help:      "Duration of job runs in seconds",
			Buckets:   durationBuckets(),
		},
		[]string{"job"},
	)

	m.JobUnitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "units_total",
			Help:      "Per-listing work units by outcome",
		},
		[]string{"job", "outcome"},
	)

	m.JobsRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "running",
			Help:      "Number of jobs currently running",
		},
	)
}

func (m *Metrics) initGatewayMetrics(factory promauto.Factory) {
	m.GatewayCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemGateway,
			Name:      "calls_total",
			Help:      "Marketplace call attempts by operation and result",
		},
		[]string{"op", "result"},
	)

	m.GatewayCallSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemGateway,
			Name:      "call_duration_seconds",
			Help:      "Latency of marketplace call attempts",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	m.RateLimitWaitSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemGateway,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for the shared call budget",
			Buckets:   prometheus.DefBuckets,
		},
	)
}

func (m *Metrics) initLifecycleMetrics(factory promauto.Factory) {
	m.TransitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Listing status transitions by event",
		},
		[]string{"event"},
	)

	m.QueueReleased = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemQueue,
			Name:      "entries_total",
			Help:      "Queue entries processed by release outcome",
		},
		[]string{"status"},
	)
}

// ObserveGatewayCall records one marketplace attempt. It has the
// marketplace.CallObserver signature.
func (m *Metrics) ObserveGatewayCall(op string, err error, elapsed time.Duration) {
	m.GatewayCallsTotal.WithLabelValues(op, classify(err)).Inc()
	m.GatewayCallSeconds.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRateLimitWait records a budget acquisition wait.
func (m *Metrics) ObserveRateLimitWait(d time.Duration) {
	m.RateLimitWaitSeconds.Observe(d.Seconds())
}

// ObserveJob records a finished job run.
func (m *Metrics) ObserveJob(job, status string, elapsed time.Duration, succeeded, skipped, errored int) {
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	m.JobDurationSeconds.WithLabelValues(job).Observe(elapsed.Seconds())
	m.JobUnitsTotal.WithLabelValues(job, "succeeded").Add(float64(succeeded))
	m.JobUnitsTotal.WithLabelValues(job, "skipped").Add(float64(skipped))
	m.JobUnitsTotal.WithLabelValues(job, "errored").Add(float64(errored))
}

// ObserveTransition counts a committed status transition.
func (m *Metrics) ObserveTransition(event string) {
	m.TransitionsTotal.WithLabelValues(event).Inc()
}

func classify(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, marketplace.ErrAuth):
		return resultAuth
	case errors.Is(err, marketplace.ErrTransient):
		return resultTransient
	case errors.Is(err, marketplace.ErrPermanent):
		return resultPermanent
	default:
		return resultOther
	}
}
