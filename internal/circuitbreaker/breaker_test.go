package circuitbreaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/circuitbreaker"
)

var (
	errUpstream = errors.New("upstream 503")
	errNotFound = errors.New("item not found")
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func TestBreaker_OpensAfterThresholdAndRecovers(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		Now:              clk.Now,
		OnStateChange: func(from, to circuitbreaker.State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	fail := func() error { return errUpstream }
	ok := func() error { return nil }

	require.ErrorIs(t, b.Execute(fail), errUpstream)
	require.ErrorIs(t, b.Execute(fail), errUpstream)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	calls := 0
	err := b.Execute(func() error { calls++; return nil })
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Zero(t, calls)

	clk.now = clk.now.Add(time.Minute)
	require.NoError(t, b.Execute(ok))
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_IgnoresNonFailures(t *testing.T) {
	t.Parallel()

	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errNotFound) },
	})

	for range 5 {
		require.ErrorIs(t, b.Execute(func() error { return errNotFound }), errNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Second, Now: clk.Now})

	_ = b.Execute(func() error { return errUpstream })
	clk.now = clk.now.Add(2 * time.Second)
	_ = b.Execute(func() error { return errUpstream })

	assert.Equal(t, circuitbreaker.StateOpen, b.State())
}
