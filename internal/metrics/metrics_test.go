package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/metrics"
)

func TestObserveGatewayCall_ClassifiesResults(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())

	m.ObserveGatewayCall("update_price", nil, time.Millisecond)
	m.ObserveGatewayCall("update_price", marketplace.Transient("update_price", errors.New("503")), time.Millisecond)
	m.ObserveGatewayCall("update_price", marketplace.Transient("update_price", errors.New("429")), time.Millisecond)
	m.ObserveGatewayCall("end_item", marketplace.Auth("end_item", errors.New("401")), time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.GatewayCallsTotal.WithLabelValues("update_price", "ok")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.GatewayCallsTotal.WithLabelValues("update_price", "transient")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GatewayCallsTotal.WithLabelValues("end_item", "auth")), 0)
}

func TestObserveJob(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	m.ObserveJob("reprice", "completed", time.Second, 3, 2, 1)
	m.ObserveJob("reprice", "timed_out", time.Second, 1, 0, 0)

	assert.InDelta(t, 1, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("reprice", "completed")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.JobUnitsTotal.WithLabelValues("reprice", "succeeded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobUnitsTotal.WithLabelValues("reprice", "errored")), 0)
}
