package bootstrap

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/relister/internal/api"
)

// SetupHTTPServer creates the gin server with health checks for every
// external dependency. Redis and marketplace failures only degrade health.
func SetupHTTPServer(app *App, version string) *api.Server {
	cfg := app.Config

	checks := map[string]api.HealthChecker{
		"database":    api.PingChecker("database", false, app.Storage.Ping),
		"marketplace": api.PingChecker("marketplace", true, app.Marketplace.Check),
	}
	if app.Redis != nil {
		checks["redis"] = api.PingChecker("redis", true, func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		})
	}

	if cfg.Auth.APIKey == "" && cfg.Auth.JWTSecret == "" {
		app.Logger.Warn("API authentication disabled, set RELISTER_API_KEY or AUTH_JWT_SECRET")
	}

	handler := api.NewHandler(api.Deps{
		Runner:     app.Services.Runner,
		Scheduler:  app.Services.Scheduler,
		Executions: app.Storage.Executions,
		Listings:   app.Services.Listings,
		Offers:     app.Services.Offers,
		Queue:      app.Services.Queue,
		Purgatory:  app.Services.Purgatory,
		Profit:     app.Services.Profit,
		Budget:     app.Marketplace.Budget,
		Logger:     app.Logger,
	})

	return api.NewServer(api.ServerConfig{
		ServiceName:     serviceName,
		Version:         version,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Debug:           cfg.App.Debug,
	}, app.Logger, func(router *gin.Engine) {
		api.SetupRoutes(router, handler, api.RouteOptions{
			ServiceName: serviceName,
			Version:     version,
			StartedAt:   time.Now(),
			Checks:      checks,
			Gatherer:    app.MetricsRegistry,
			Auth: api.AuthConfig{
				APIKey:    cfg.Auth.APIKey,
				JWTSecret: cfg.Auth.JWTSecret,
			},
		})
	})
}
