package config

import (
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
	"github.com/jonesrussell/north-cloud/relister/internal/repricer"
)

const maxPort = 65535

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the complete configuration and reports every problem.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(validateLogger(c))
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		add(&ValidationError{Field: "server.port", Message: "must be between 1 and 65535"})
	}
	if c.App.Environment == "production" && c.Auth.APIKey == "" && c.Auth.JWTSecret == "" {
		add(&ValidationError{Field: "auth", Message: "api_key or jwt_secret is required in production"})
	}
	add(validateDatabase(c))
	if c.Redis.Enabled && c.Redis.Address == "" {
		add(&ValidationError{Field: "redis.address", Message: "is required when redis is enabled"})
	}
	add(validateMarketplace(&c.Marketplace))

	if _, err := profit.NewModel(c.Fees.Rates()); err != nil {
		add(&ValidationError{Field: "fees", Message: err.Error()})
	}
	if c.Zombie.MinDaysActive < 0 || c.Zombie.MaxViews < 0 || c.Zombie.EscalationThreshold < 1 {
		add(&ValidationError{Field: "zombie", Message: "thresholds must be positive"})
	}
	if c.Purgatory.MarkdownPercent < 1 || c.Purgatory.MarkdownPercent > 99 {
		add(&ValidationError{Field: "purgatory.markdown_percent", Message: "must be between 1 and 99"})
	}
	if _, err := repricer.ParseLadder(c.Repricer.Ladder); err != nil {
		add(&ValidationError{Field: "repricer.ladder", Message: err.Error()})
	}
	if err := c.Offers.Validate(); err != nil {
		add(&ValidationError{Field: "offers", Message: err.Error()})
	}
	if _, err := c.Queue.Window(); err != nil {
		add(&ValidationError{Field: "queue", Message: err.Error()})
	}
	if c.AutoRelist.CadenceDays < 1 || c.AutoRelist.ViewsThreshold < 1 {
		add(&ValidationError{Field: "auto_relist", Message: "cadence and views threshold must be positive"})
	}
	if err := c.StorePulse.Validate(); err != nil {
		add(&ValidationError{Field: "store_pulse", Message: err.Error()})
	}
	add(validateOrchestrator(&c.Orchestrator))

	return errors.Join(errs...)
}

func validateLogger(c *Config) error {
	switch c.Logger.Level {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return &ValidationError{Field: "logger.level", Message: "must be one of: debug, info, warn, error, fatal"}
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return &ValidationError{Field: "logger.format", Message: "must be one of: json, console"}
	}
	return nil
}

func validateDatabase(c *Config) error {
	switch c.Database.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			return &ValidationError{Field: "database", Message: "host and name are required for postgres"}
		}
		return nil
	default:
		return &ValidationError{Field: "database.driver", Message: "must be postgres or memory"}
	}
}

func validateMarketplace(m *MarketplaceConfig) error {
	switch m.Mode {
	case ModeMock:
	case ModeREST:
		if m.BaseURL == "" {
			return &ValidationError{Field: "marketplace.base_url", Message: "is required in rest mode"}
		}
		if m.TokenURL != "" && (m.ClientID == "" || m.ClientSecret == "") {
			return &ValidationError{Field: "marketplace.client_id", Message: "client credentials are required with token_url"}
		}
	default:
		return &ValidationError{Field: "marketplace.mode", Message: "must be mock or rest"}
	}
	if m.RateLimit.DailyLimit < 0 {
		return &ValidationError{Field: "marketplace.rate_limit.daily_limit", Message: "cannot be negative"}
	}
	return nil
}

func validateOrchestrator(o *OrchestratorConfig) error {
	if o.Workers < 1 {
		return &ValidationError{Field: "orchestrator.workers", Message: "must be at least 1"}
	}
	if _, err := o.Location(); err != nil {
		return &ValidationError{Field: "orchestrator.timezone", Message: err.Error()}
	}

	known := DefaultSchedules()
	for job, spec := range o.Schedules {
		if _, ok := known[job]; !ok {
			return &ValidationError{Field: "orchestrator.schedules." + job, Message: "unknown job"}
		}
		if spec == "" {
			continue
		}
		if _, err := orchestrator.ParseSchedule(spec); err != nil {
			return &ValidationError{Field: "orchestrator.schedules." + job, Message: err.Error()}
		}
	}
	return nil
}
