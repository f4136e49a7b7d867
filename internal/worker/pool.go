// Package worker runs per-listing units of work with bounded concurrency.
//
// A unit that has started is not cancelled when the job's deadline passes,
// so a marketplace call in flight completes and its result is stored. The
// unit must stop issuing new calls once Expired reports true. Units that
// have not started by the deadline are skipped.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/relister/internal/logger"
)

const (
	// DefaultSize is the number of units in flight at once.
	DefaultSize = 4

	ReasonDeadline = "deadline"
	ReasonAborted  = "aborted"
)

var errSizeInvalid = errors.New("pool size must be positive")

// Config configures a Pool.
type Config struct {
	Size int `yaml:"workers" env:"ORCHESTRATOR_WORKERS"`
	// IsFatal reports errors that stop the pool from starting further units.
	IsFatal func(error) bool `yaml:"-"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: %d", errSizeInvalid, c.Size)
	}
	return nil
}

// Unit is one piece of work, normally one listing.
type Unit struct {
	Key string
	Fn  func(ctx context.Context) error
}

// Outcome is the result of a unit, in submission order.
type Outcome struct {
	Key     string
	Err     error
	Skipped bool
	Reason  string
}

// Pool executes batches of units.
type Pool struct {
	config Config
	logger logger.Logger
}

// NewPool creates a pool.
func NewPool(cfg Config, log logger.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Pool{config: cfg, logger: log}, nil
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return p.config.Size
}

// IsFatal reports whether err stops the pool from starting further units.
func (p *Pool) IsFatal(err error) bool {
	return err != nil && p.config.IsFatal != nil && p.config.IsFatal(err)
}

// Run executes units and waits for every started one to finish.
func (p *Pool) Run(ctx context.Context, units []Unit) []Outcome {
	outcomes := make([]Outcome, len(units))
	var aborted atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(p.config.Size)

	for i, u := range units {
		outcomes[i].Key = u.Key
		if reason, skip := p.skipReason(ctx, &aborted); skip {
			outcomes[i].Skipped, outcomes[i].Reason = true, reason
			continue
		}

		// Go blocks until a slot frees up, so re-check once scheduled.
		g.Go(func() error {
			if reason, skip := p.skipReason(ctx, &aborted); skip {
				outcomes[i].Skipped, outcomes[i].Reason = true, reason
				return nil
			}

			err := u.Fn(detach(ctx))
			outcomes[i].Err = err
			if p.IsFatal(err) {
				if aborted.CompareAndSwap(false, true) {
					p.logger.Error("Fatal unit error, not starting remaining units",
						logger.String("unit", u.Key),
						logger.Error(err),
					)
				}
			}
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

func (p *Pool) skipReason(ctx context.Context, aborted *atomic.Bool) (string, bool) {
	if aborted.Load() {
		return ReasonAborted, true
	}
	if ctx.Err() != nil {
		return ReasonDeadline, true
	}
	return "", false
}

type runKey struct{}

// detach returns a context that survives the run's deadline but remembers
// the run context for RunContext.
func detach(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), runKey{}, ctx)
}

// RunContext returns the deadline-bound context of the run that started the
// unit owning ctx. Outside a unit it returns ctx.
func RunContext(ctx context.Context) context.Context {
	if run, ok := ctx.Value(runKey{}).(context.Context); ok {
		return run
	}
	return ctx
}

// Expired reports whether the run that started the unit owning ctx has
// passed its deadline or been cancelled.
func Expired(ctx context.Context) bool {
	return RunContext(ctx).Err() != nil
}
