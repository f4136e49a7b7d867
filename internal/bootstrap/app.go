// Package bootstrap handles application initialization and lifecycle management
// for the relister service.
//
// The bootstrap process follows these phases:
//   - Phase 1: Config & Logger - Load configuration and create logger
//   - Phase 2: Storage - PostgreSQL (migrated) or in-memory repositories
//   - Phase 3: Claims - Redis claim locker (if enabled) or process-local locker
//   - Phase 4: Marketplace - Mock or REST gateway behind the shared call budget
//   - Phase 5: Services - State machine, lifecycle jobs, runner and scheduler
//   - Phase 6: Server - Create and start HTTP server and scheduler
//   - Phase 7: Run - Wait for interrupt signal or error
//
// CLI commands stop after Phase 5 and call the services directly.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/config"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/metrics"
)

// App is the fully wired relister.
type App struct {
	Config          *config.Config
	Logger          logger.Logger
	MetricsRegistry *prometheus.Registry
	Metrics         *metrics.Metrics
	Storage         *StorageComponents
	Locker          claim.Locker
	Redis           *redis.Client
	Marketplace     *MarketplaceComponents
	Services        *ServiceComponents
}

// Options select the configuration file and the build version.
type Options struct {
	ConfigPath string
	Debug      bool
	Version    string
}

// New runs Phases 1 through 5. Callers must Close the app.
func New(ctx context.Context, opts Options) (*App, error) {
	// Phase 1: Initialize config and logger
	cfg, err := LoadConfig(opts.ConfigPath, opts.Debug)
	if err != nil {
		return nil, err
	}
	log, err := CreateLogger(cfg, opts.Version)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:          cfg,
		Logger:          log,
		MetricsRegistry: prometheus.NewRegistry(),
	}
	app.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = metrics.New(app.MetricsRegistry)

	if err = app.setup(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) setup(ctx context.Context) error {
	var err error

	// Phase 2: Setup storage
	if a.Storage, err = SetupStorage(a.Config, a.Logger); err != nil {
		return fmt.Errorf("failed to setup storage: %w", err)
	}

	// Phase 3: Setup claim locker
	if a.Locker, a.Redis, err = SetupLocker(ctx, a.Config, a.Logger); err != nil {
		return fmt.Errorf("failed to setup claim locker: %w", err)
	}

	// Phase 4: Setup marketplace gateway
	if a.Marketplace, err = SetupMarketplace(a.Config, a.Metrics, a.Logger); err != nil {
		return fmt.Errorf("failed to setup marketplace: %w", err)
	}

	// Phase 5: Setup services and orchestrator
	a.Services, err = SetupServices(a.Config, a.Storage, a.Locker, a.Marketplace.Gateway, a.Metrics, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to setup services: %w", err)
	}
	return nil
}

// Close releases external connections and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	// Sync fails on stdout/stderr on some platforms; not worth reporting.
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}

// Start initializes and starts the relister service.
// It handles all phases of bootstrap and returns an error if any phase fails.
// The function blocks until the server is interrupted or encounters an error.
func Start(opts Options) error {
	app, err := New(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			app.Logger.Error("Failed to close resources", logger.Error(closeErr))
		}
	}()

	// Phase 6: Start scheduler and HTTP server
	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	if err = app.Services.Scheduler.Start(jobCtx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	server := SetupHTTPServer(app, opts.Version)
	app.Logger.Info("Starting HTTP server",
		logger.Int("port", app.Config.Server.Port),
		logger.String("marketplace", app.Config.Marketplace.Mode),
		logger.String("database", app.Config.Database.Driver),
	)
	errChan := server.StartAsync()

	// Phase 7: Run until interrupted
	return RunUntilInterrupt(
		app.Logger,
		server,
		app.Services.Scheduler,
		stopJobs,
		app.Config.Server.ShutdownTimeout,
		errChan,
	)
}
