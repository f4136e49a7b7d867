package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/relister/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/relister/internal/config"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/mock"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/rest"
	"github.com/jonesrussell/north-cloud/relister/internal/metrics"
	"github.com/jonesrussell/north-cloud/relister/internal/ratelimit"
)

var errBreakerOpen = errors.New("marketplace circuit breaker is open")

// MarketplaceComponents holds the gateway stack. Gateway is the rate
// limited, retrying decorator every service calls through. Exactly one
// of Mock and REST is set.
type MarketplaceComponents struct {
	Gateway marketplace.Gateway
	Budget  *ratelimit.Budget
	Mock    *mock.Gateway
	REST    *rest.Gateway
}

// SetupMarketplace builds the configured gateway variant and wraps it in
// the shared call budget. m may be nil.
func SetupMarketplace(cfg *config.Config, m *metrics.Metrics, log logger.Logger) (*MarketplaceComponents, error) {
	gwLog := log.With(logger.String("component", "marketplace"))
	mc := &MarketplaceComponents{}

	var inner marketplace.Gateway
	switch cfg.Marketplace.Mode {
	case config.ModeREST:
		gw, err := rest.New(cfg.Marketplace.Config, gwLog)
		if err != nil {
			return nil, fmt.Errorf("create rest gateway: %w", err)
		}
		mc.REST = gw
		inner = gw
		log.Info("Using REST marketplace", logger.String("base_url", cfg.Marketplace.BaseURL))
	default:
		gw := mock.New()
		if path := cfg.Marketplace.FixturesPath; path != "" {
			fixtures, err := mock.LoadFixtures(path)
			if err != nil {
				return nil, fmt.Errorf("load marketplace fixtures: %w", err)
			}
			gw.Seed(fixtures)
			log.Info("Seeded mock marketplace",
				logger.String("fixtures", path),
				logger.Int("items", len(fixtures.Items)),
			)
		}
		mc.Mock = gw
		inner = gw
		log.Warn("Using mock marketplace")
	}

	mc.Budget = ratelimit.NewBudget(cfg.Marketplace.RateLimit)
	resilient := marketplace.NewResilient(inner, mc.Budget, cfg.Marketplace.Retry, gwLog)
	if m != nil {
		resilient = resilient.WithObserver(m.ObserveGatewayCall).WithWaitObserver(m.ObserveRateLimitWait)
	}
	mc.Gateway = resilient

	return mc, nil
}

// Check reports an open circuit breaker. The mock is always available.
func (mc *MarketplaceComponents) Check(_ context.Context) error {
	if mc.REST == nil {
		return nil
	}
	if state := mc.REST.BreakerState(); state == circuitbreaker.StateOpen {
		return errBreakerOpen
	}
	return nil
}
