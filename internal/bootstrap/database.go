package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/relister/internal/config"
	"github.com/jonesrussell/north-cloud/relister/internal/database"
	"github.com/jonesrussell/north-cloud/relister/internal/database/memory"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
)

// StorageComponents holds the repositories. DB is nil for the memory driver.
type StorageComponents struct {
	DB         *sqlx.DB
	Listings   database.ListingRepositoryInterface
	Queue      database.QueueRepositoryInterface
	Offers     database.OfferRepositoryInterface
	Executions database.ExecutionRepositoryInterface
	Zombies    database.ZombieRecordRepositoryInterface
}

// SetupStorage creates repositories for the configured driver. The
// postgres driver connects and applies pending migrations.
func SetupStorage(cfg *config.Config, log logger.Logger) (*StorageComponents, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("Using in-memory storage, state is lost on exit")
		data := memory.NewStore(nil)
		return &StorageComponents{
			Listings:   data.Listings,
			Queue:      data.Queue,
			Offers:     data.Offers,
			Executions: data.Executions,
			Zombies:    data.Zombies,
		}, nil
	}

	db, err := ConnectDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	if err = database.MigrateUp(db.DB, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &StorageComponents{
		DB:         db,
		Listings:   database.NewListingRepository(db),
		Queue:      database.NewQueueRepository(db),
		Offers:     database.NewOfferRepository(db),
		Executions: database.NewExecutionRepository(db),
		Zombies:    database.NewZombieRecordRepository(db),
	}, nil
}

// ConnectDatabase opens the PostgreSQL connection without migrating.
func ConnectDatabase(cfg *config.Config, log logger.Logger) (*sqlx.DB, error) {
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, fmt.Errorf("database driver %q has no connection", cfg.Database.Driver)
	}

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	log.Info("Connected to PostgreSQL",
		logger.String("host", cfg.Database.Host),
		logger.String("database", cfg.Database.DBName),
	)
	return db, nil
}

// Ping checks the database. The memory driver is always reachable.
func (s *StorageComponents) Ping(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.PingContext(ctx)
}

// Close releases the database connection.
func (s *StorageComponents) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
