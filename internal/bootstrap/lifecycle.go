package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonesrussell/north-cloud/relister/internal/api"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
)

const (
	signalChannelBufferSize = 1
	defaultShutdownTimeout  = 30 * time.Second
)

// RunUntilInterrupt runs the server until interrupted by signal or error.
func RunUntilInterrupt(
	log logger.Logger,
	server *api.Server,
	scheduler *orchestrator.Scheduler,
	stopJobs context.CancelFunc,
	shutdownTimeout time.Duration,
	errChan <-chan error,
) error {
	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case serverErr := <-errChan:
		log.Error("Server error", logger.Error(serverErr))
		stopJobs()
		return fmt.Errorf("server error: %w", serverErr)
	case sig := <-sigChan:
		return Shutdown(log, server, scheduler, stopJobs, shutdownTimeout, sig)
	}
}

// Shutdown stops the scheduler first so no new run starts, lets running
// jobs drain until the timeout, then stops the HTTP server.
func Shutdown(
	log logger.Logger,
	server *api.Server,
	scheduler *orchestrator.Scheduler,
	stopJobs context.CancelFunc,
	shutdownTimeout time.Duration,
	sig os.Signal,
) error {
	log.Info("Shutdown signal received", logger.String("signal", sig.String()))

	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if scheduler != nil {
		log.Info("Stopping scheduler")
		if err := scheduler.Stop(ctx); err != nil {
			log.Error("Scheduler did not drain, cancelling running jobs", logger.Error(err))
		}
	}
	// Cancelled jobs stop between units and still append their execution record.
	stopJobs()

	log.Info("Stopping HTTP server")
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Failed to stop server", logger.Error(err))
		return fmt.Errorf("failed to stop server: %w", err)
	}

	log.Info("Server stopped successfully")
	return nil
}
