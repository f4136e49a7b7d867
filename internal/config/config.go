// Package config loads the relister configuration from YAML with
// environment variable overrides.
//
// Environment files are loaded before overrides are applied: ENV_FILE when
// set, otherwise .env.local and then .env. Fields tagged `env:"NAME"` take
// the variable's value when it is set. Defaults only fill what is still
// empty afterwards, so the environment always wins.
package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/relister/internal/autorelist"
	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace/rest"
	"github.com/jonesrussell/north-cloud/relister/internal/offers"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
	"github.com/jonesrussell/north-cloud/relister/internal/pulse"
	"github.com/jonesrussell/north-cloud/relister/internal/purgatory"
	"github.com/jonesrussell/north-cloud/relister/internal/ratelimit"
	"github.com/jonesrussell/north-cloud/relister/internal/repricer"
	"github.com/jonesrussell/north-cloud/relister/internal/resurrect"
	"github.com/jonesrussell/north-cloud/relister/internal/retry"
	"github.com/jonesrussell/north-cloud/relister/internal/shuffler"
	"github.com/jonesrussell/north-cloud/relister/internal/smartqueue"
	"github.com/jonesrussell/north-cloud/relister/internal/zombie"
)

// Default configuration values.
const (
	defaultAppName         = "relister"
	defaultEnvironment     = "development"
	defaultServerPort      = 8095
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultDBDriver        = DriverMemory
	defaultDBHost          = "localhost"
	defaultDBPort          = "5432"
	defaultDBUser          = "postgres"
	defaultDBName          = "relister"
	defaultDBSSLMode       = "disable"
	defaultRedisAddress    = "localhost:6379"
	defaultRedisPrefix     = "relister:"
	defaultMarketplaceMode = ModeMock
	defaultRequestTimeout  = 30 * time.Second
	defaultWorkers         = 4
	defaultJobTimeout      = 10 * time.Minute
	defaultClaimTTL        = 5 * time.Minute
	defaultTimezone        = "America/New_York"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Marketplace modes.
const (
	ModeMock = "mock"
	ModeREST = "rest"
)

// Job names, mirrored here so schedules can be defaulted without a registry.
const (
	JobScanZombies    = zombie.JobName
	JobResurrect      = resurrect.JobName
	JobReprice        = repricer.JobName
	JobOffers         = offers.JobName
	JobReleaseQueue   = smartqueue.JobName
	JobPurgatorySweep = purgatory.JobName
	JobShufflePhotos  = shuffler.JobName
	JobAutoRelist     = autorelist.JobName
	JobStorePulse     = pulse.JobName
)

// DefaultSchedules are the cron specs used for jobs missing from the config.
// An explicit empty string leaves a job manual-only.
func DefaultSchedules() map[string]string {
	return map[string]string{
		JobScanZombies:    "0 6 * * *",
		JobResurrect:      "*/15 * * * *",
		JobReprice:        "0 7 * * *",
		JobOffers:         "0 * * * *",
		JobReleaseQueue:   "0,30 20,21 * * 0",
		JobPurgatorySweep: "0 8 * * *",
		JobShufflePhotos:  "0 9 * * *",
		JobAutoRelist:     "0 10 * * *",
		JobStorePulse:     "0 5 * * *",
	}
}

// Config holds all configuration for the relister.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Logger       logger.Config      `yaml:"logger"`
	Server       ServerConfig       `yaml:"server"`
	Auth         AuthConfig         `yaml:"auth"`
	Database     database.Config    `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Marketplace  MarketplaceConfig  `yaml:"marketplace"`
	Fees         FeesConfig         `yaml:"fees"`
	Zombie       zombie.Config      `yaml:"zombie"`
	Resurrection resurrect.Config   `yaml:"resurrection"`
	Purgatory    purgatory.Config   `yaml:"purgatory"`
	Repricer     repricer.Config    `yaml:"repricer"`
	Offers       offers.Config      `yaml:"offers"`
	Queue        smartqueue.Config  `yaml:"queue"`
	Shuffler     shuffler.Config    `yaml:"shuffler"`
	AutoRelist   autorelist.Config  `yaml:"auto_relist"`
	StorePulse   pulse.Config       `yaml:"store_pulse"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// AppConfig identifies the deployment.
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `env:"APP_ENV"   yaml:"environment"`
	Debug       bool   `env:"APP_DEBUG" yaml:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `env:"RELISTER_PORT" yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds the /api/v1 credentials. Leaving both empty disables
// authentication, which validation refuses in production.
type AuthConfig struct {
	APIKey    string `env:"RELISTER_API_KEY" yaml:"api_key"`
	JWTSecret string `env:"AUTH_JWT_SECRET"  yaml:"jwt_secret"`
}

// RedisConfig enables the Redis claim locker.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// MarketplaceConfig selects and tunes the marketplace gateway.
type MarketplaceConfig struct {
	Mode         string `env:"MARKETPLACE_MODE"     yaml:"mode"`
	FixturesPath string `env:"MARKETPLACE_FIXTURES" yaml:"fixtures_path"`
	rest.Config  `yaml:",inline"`
	RateLimit    ratelimit.Config `yaml:"rate_limit"`
	Retry        retry.Config     `yaml:"retry"`
}

// FeesConfig holds the marketplace fee schedule.
type FeesConfig struct {
	MarketplaceRate decimal.Decimal `env:"FEES_MARKETPLACE_RATE" yaml:"marketplace_rate"`
	PaymentRate     decimal.Decimal `env:"FEES_PAYMENT_RATE"     yaml:"payment_rate"`
	AdvertisingRate decimal.Decimal `env:"FEES_ADVERTISING_RATE" yaml:"advertising_rate"`
	PerOrderFee     decimal.Decimal `env:"FEES_PER_ORDER_FEE"    yaml:"per_order_fee"`
	MinProfit       decimal.Decimal `env:"FEES_MIN_PROFIT"       yaml:"min_profit"`
}

// Rates converts the section to profit model rates.
func (f FeesConfig) Rates() profit.FeeRates {
	return profit.FeeRates{
		Marketplace: f.MarketplaceRate,
		Payment:     f.PaymentRate,
		Advertising: f.AdvertisingRate,
		PerOrderFee: f.PerOrderFee,
		MinProfit:   f.MinProfit,
	}
}

// OrchestratorConfig holds job execution settings.
type OrchestratorConfig struct {
	Workers    int               `env:"ORCHESTRATOR_WORKERS"     yaml:"workers"`
	JobTimeout time.Duration     `env:"ORCHESTRATOR_JOB_TIMEOUT" yaml:"job_timeout"`
	ClaimTTL   time.Duration     `env:"ORCHESTRATOR_CLAIM_TTL"   yaml:"claim_ttl"`
	Timezone   string            `env:"ORCHESTRATOR_TIMEZONE"    yaml:"timezone"`
	Schedules  map[string]string `yaml:"schedules"`
}

// Location resolves the scheduler timezone.
func (o OrchestratorConfig) Location() (*time.Location, error) {
	return time.LoadLocation(o.Timezone)
}

// Load reads the config file at path, applies defaults and environment
// overrides, and validates the result. An empty path uses defaults and
// the environment only.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg, err := decode[Config](path)
	if err != nil {
		return nil, err
	}
	if err = applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	setAppDefaults(&cfg.App)
	cfg.Logger.SetDefaults()
	setServerDefaults(&cfg.Server)
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	setMarketplaceDefaults(&cfg.Marketplace)
	setFeeDefaults(&cfg.Fees)

	cfg.Zombie.SetDefaults()
	cfg.Resurrection.SetDefaults()
	cfg.Purgatory.SetDefaults()
	if cfg.Repricer.Ladder == "" {
		cfg.Repricer.Ladder = repricer.DefaultLadder
	}
	cfg.Offers.SetDefaults()
	cfg.Queue.SetDefaults()
	if cfg.Shuffler.MinDaysActive == 0 {
		cfg.Shuffler.MinDaysActive = shuffler.DefaultMinDaysActive
	}
	cfg.AutoRelist.SetDefaults()
	cfg.StorePulse.SetDefaults()
	setOrchestratorDefaults(&cfg.Orchestrator)
}

func setAppDefaults(a *AppConfig) {
	if a.Name == "" {
		a.Name = defaultAppName
	}
	if a.Environment == "" {
		a.Environment = defaultEnvironment
	}
}

func setServerDefaults(s *ServerConfig) {
	if s.Port == 0 {
		s.Port = defaultServerPort
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = defaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = defaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = defaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = defaultShutdownTimeout
	}
}

func setDatabaseDefaults(d *database.Config) {
	if d.Driver == "" {
		d.Driver = defaultDBDriver
	}
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == "" {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.DBName == "" {
		d.DBName = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddress
	}
	if r.Prefix == "" {
		r.Prefix = defaultRedisPrefix
	}
}

func setMarketplaceDefaults(m *MarketplaceConfig) {
	if m.Mode == "" {
		m.Mode = defaultMarketplaceMode
	}
	if m.RequestTimeout == 0 {
		m.RequestTimeout = defaultRequestTimeout
	}
	m.RateLimit.SetDefaults()
	m.Retry.SetDefaults()
}

func setFeeDefaults(f *FeesConfig) {
	if f.MarketplaceRate.IsZero() {
		f.MarketplaceRate = decimal.RequireFromString("0.13")
	}
	if f.PaymentRate.IsZero() {
		f.PaymentRate = decimal.RequireFromString("0.029")
	}
	if f.AdvertisingRate.IsZero() {
		f.AdvertisingRate = decimal.RequireFromString("0.005")
	}
}

func setOrchestratorDefaults(o *OrchestratorConfig) {
	if o.Workers == 0 {
		o.Workers = defaultWorkers
	}
	if o.JobTimeout == 0 {
		o.JobTimeout = defaultJobTimeout
	}
	if o.ClaimTTL == 0 {
		o.ClaimTTL = defaultClaimTTL
	}
	if o.Timezone == "" {
		o.Timezone = defaultTimezone
	}
	if o.Schedules == nil {
		o.Schedules = make(map[string]string)
	}
	for job, spec := range DefaultSchedules() {
		if _, ok := o.Schedules[job]; !ok {
			o.Schedules[job] = spec
		}
	}
}
