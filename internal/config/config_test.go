package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/relister/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// isolate points ENV_FILE at an empty file so a developer .env never leaks in.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", writeFile(t, "empty.env", ""))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "relister", cfg.App.Name)
	assert.Equal(t, config.DriverMemory, cfg.Database.Driver)
	assert.Equal(t, config.ModeMock, cfg.Marketplace.Mode)
	assert.Equal(t, 60, cfg.Zombie.MinDaysActive)
	assert.Equal(t, 10, cfg.Zombie.MaxViews)
	assert.Equal(t, 3, cfg.Zombie.EscalationThreshold)
	assert.Equal(t, 120*time.Second, cfg.Resurrection.Cooldown)
	assert.Equal(t, 30, cfg.Purgatory.MarkdownPercent)
	assert.Equal(t, "7:5,14:10,30:15,45:20", cfg.Repricer.Ladder)
	assert.Equal(t, 24*time.Hour, cfg.Offers.Cooldown)
	assert.Equal(t, "0.9", cfg.Offers.AcceptRatio.String())
	assert.Equal(t, "sunday", cfg.Queue.SurgeDay)
	assert.Equal(t, 14, cfg.Shuffler.MinDaysActive)
	assert.Equal(t, "0.164", cfg.Fees.Rates().Total().String())
	assert.Equal(t, "0 6 * * *", cfg.Orchestrator.Schedules[config.JobScanZombies])
	assert.Equal(t, 30, cfg.AutoRelist.CadenceDays)
	assert.Equal(t, 25, cfg.AutoRelist.ViewsThreshold)
	assert.Equal(t, 1, cfg.StorePulse.DayOfMonth)
	assert.Equal(t, 2, cfg.StorePulse.PulseDays)
	assert.Len(t, cfg.Orchestrator.Schedules, 9)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	isolate(t)
	path := writeFile(t, "config.yml", `
logger:
  level: debug
database:
  driver: postgres
  host: db.internal
fees:
  marketplace_rate: "0.10"
  min_profit: 2.50
zombie:
  min_days_active: 45
purgatory:
  donate_categories: [books]
offers:
  tiers:
    - {min_days: 10, max_days: 0, percent: 12}
orchestrator:
  schedules:
    reprice: ""
    offers: "*/30 * * * *"
`)
	t.Setenv("ZOMBIE_MAX_VIEWS", "4")
	t.Setenv("FEES_MIN_PROFIT", "3.00")
	t.Setenv("DB_HOST", "db.env")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "db.env", cfg.Database.Host)
	assert.Equal(t, 45, cfg.Zombie.MinDaysActive)
	assert.Equal(t, 4, cfg.Zombie.MaxViews)
	assert.Equal(t, "0.1", cfg.Fees.MarketplaceRate.String())
	assert.Equal(t, "3", cfg.Fees.MinProfit.String())
	assert.Equal(t, []string{"books"}, cfg.Purgatory.Policy.DonateCategories)
	require.Len(t, cfg.Offers.Tiers, 1)
	assert.Equal(t, 12, cfg.Offers.Tiers[0].Percent)
	assert.Empty(t, cfg.Orchestrator.Schedules[config.JobReprice])
	assert.Equal(t, "*/30 * * * *", cfg.Orchestrator.Schedules[config.JobOffers])
	assert.Equal(t, "0 6 * * *", cfg.Orchestrator.Schedules[config.JobScanZombies])
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("ENV_FILE", writeFile(t, "test.env", "QUEUE_SURGE_DAY=saturday\nRELISTER_PORT=9100\n"))
	// godotenv leaves already-set variables alone; make sure these start unset.
	t.Setenv("QUEUE_SURGE_DAY", "")
	t.Setenv("RELISTER_PORT", "")
	require.NoError(t, os.Unsetenv("QUEUE_SURGE_DAY"))
	require.NoError(t, os.Unsetenv("RELISTER_PORT"))

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "saturday", cfg.Queue.SurgeDay)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"bad driver", "database:\n  driver: sqlite\n", "database.driver"},
		{"bad mode", "marketplace:\n  mode: live\n", "marketplace.mode"},
		{"rest without url", "marketplace:\n  mode: rest\n", "marketplace.base_url"},
		{"bad ladder", "repricer:\n  ladder: \"7:10,14:5\"\n", "repricer.ladder"},
		{"bad schedule", "orchestrator:\n  schedules:\n    reprice: \"every day\"\n", "orchestrator.schedules.reprice"},
		{"unknown job", "orchestrator:\n  schedules:\n    vacuum: \"0 1 * * *\"\n", "orchestrator.schedules.vacuum"},
		{"bad timezone", "orchestrator:\n  timezone: Mars/Olympus\n", "orchestrator.timezone"},
		{"bad surge day", "queue:\n  surge_day: someday\n", "queue"},
		{"fees too high", "fees:\n  marketplace_rate: 0.9\n  payment_rate: 0.2\n", "fees"},
		{"production without auth", "app:\n  environment: production\n", "auth"},
		{"bad pulse day", "store_pulse:\n  day_of_month: 30\n", "store_pulse"},
		{"zero relist cadence", "auto_relist:\n  cadence_days: -1\n", "auto_relist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := config.Load(writeFile(t, "config.yml", tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
