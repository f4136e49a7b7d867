package bootstrap

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/relister/internal/config"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
)

const serviceName = "relister"

// LoadConfig loads configuration from path. debug forces debug logging.
func LoadConfig(path string, debug bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.App.Debug = true
	}
	return cfg, nil
}

// CreateLogger creates a logger instance from configuration.
func CreateLogger(cfg *config.Config, version string) (logger.Logger, error) {
	logCfg := cfg.Logger
	if cfg.App.Debug {
		logCfg.Level = "debug"
		logCfg.Development = true
	}

	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		logger.String("service", serviceName),
		logger.String("version", version),
		logger.String("environment", cfg.App.Environment),
	), nil
}
