// Package ratelimit holds the one marketplace call budget shared by every job.
// Callers acquire before each gateway call and release when it returns.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrDailyLimitExceeded is returned once the per-day call cap is spent.
var ErrDailyLimitExceeded = errors.New("daily marketplace call limit exceeded")

const (
	DefaultCallsPerSecond = 5.0
	DefaultBurst          = 5
	DefaultMaxInFlight    = 4
	DefaultDailyLimit     = 5000
)

// Config sizes the budget.
type Config struct {
	CallsPerSecond float64 `yaml:"calls_per_second" env:"MARKETPLACE_CALLS_PER_SECOND"`
	Burst          int     `yaml:"burst"            env:"MARKETPLACE_BURST"`
	MaxInFlight    int     `yaml:"max_in_flight"    env:"MARKETPLACE_MAX_IN_FLIGHT"`
	// DailyLimit caps calls per UTC day. Zero disables the cap.
	DailyLimit int `yaml:"daily_limit" env:"MARKETPLACE_DAILY_LIMIT"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.CallsPerSecond <= 0 {
		c.CallsPerSecond = DefaultCallsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
}

// Stats is a snapshot of budget usage.
type Stats struct {
	Day       string `json:"day"`
	UsedToday int    `json:"used_today"`
	Remaining int    `json:"remaining"`
	InFlight  int    `json:"in_flight"`
}

// Budget combines a token bucket, an in-flight semaphore and a daily cap.
type Budget struct {
	limiter    *rate.Limiter
	inflight   *semaphore.Weighted
	dailyLimit int
	now        func() time.Time

	mu       sync.Mutex
	day      string
	used     int
	inFlight int

	// OnWait observes how long each acquisition waited.
	OnWait func(time.Duration)
}

// NewBudget creates a budget from cfg.
func NewBudget(cfg Config) *Budget {
	cfg.SetDefaults()
	return &Budget{
		limiter:    rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), cfg.Burst),
		inflight:   semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		dailyLimit: cfg.DailyLimit,
		now:        time.Now,
	}
}

// WithClock overrides the clock used for the daily window.
func (b *Budget) WithClock(now func() time.Time) *Budget {
	b.now = now
	return b
}

// Acquire blocks until one call may be issued. The returned release must be
// called when the call returns; calling it more than once is harmless.
func (b *Budget) Acquire(ctx context.Context) (release func(), err error) {
	start := time.Now()

	if err = b.reserveDaily(); err != nil {
		return nil, err
	}

	if err = b.limiter.Wait(ctx); err != nil {
		b.refundDaily()
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}

	if err = b.inflight.Acquire(ctx, 1); err != nil {
		b.refundDaily()
		return nil, fmt.Errorf("wait for in-flight slot: %w", err)
	}

	b.mu.Lock()
	b.inFlight++
	b.mu.Unlock()

	if b.OnWait != nil {
		b.OnWait(time.Since(start))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.inFlight--
			b.mu.Unlock()
			b.inflight.Release(1)
		})
	}, nil
}

func (b *Budget) reserveDaily() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDay()
	if b.dailyLimit > 0 && b.used >= b.dailyLimit {
		return ErrDailyLimitExceeded
	}
	b.used++
	return nil
}

func (b *Budget) refundDaily() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.used > 0 {
		b.used--
	}
}

func (b *Budget) rollDay() {
	day := b.now().UTC().Format(time.DateOnly)
	if day != b.day {
		b.day = day
		b.used = 0
	}
}

// Stats returns current usage.
func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDay()
	remaining := -1
	if b.dailyLimit > 0 {
		remaining = b.dailyLimit - b.used
	}
	return Stats{Day: b.day, UsedToday: b.used, Remaining: remaining, InFlight: b.inFlight}
}
