package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/relister/internal/autorelist"
	"github.com/jonesrussell/north-cloud/relister/internal/claim"
	"github.com/jonesrussell/north-cloud/relister/internal/config"
	"github.com/jonesrussell/north-cloud/relister/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/relister/internal/listing"
	"github.com/jonesrussell/north-cloud/relister/internal/logger"
	"github.com/jonesrussell/north-cloud/relister/internal/marketplace"
	"github.com/jonesrussell/north-cloud/relister/internal/metrics"
	"github.com/jonesrussell/north-cloud/relister/internal/offers"
	"github.com/jonesrussell/north-cloud/relister/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/relister/internal/profit"
	"github.com/jonesrussell/north-cloud/relister/internal/pulse"
	"github.com/jonesrussell/north-cloud/relister/internal/purgatory"
	"github.com/jonesrussell/north-cloud/relister/internal/repricer"
	"github.com/jonesrussell/north-cloud/relister/internal/resurrect"
	"github.com/jonesrussell/north-cloud/relister/internal/shuffler"
	"github.com/jonesrussell/north-cloud/relister/internal/smartqueue"
	"github.com/jonesrussell/north-cloud/relister/internal/worker"
	"github.com/jonesrussell/north-cloud/relister/internal/zombie"
)

// ServiceComponents holds the lifecycle services and the orchestrator.
type ServiceComponents struct {
	Profit    *profit.Model
	Machine   *lifecycle.Machine
	Store     *listing.Store
	Listings  *listing.Service
	Executor  *orchestrator.Executor
	Offers    *offers.Engine
	Queue     *smartqueue.Queue
	Purgatory *purgatory.Manager
	Registry  *orchestrator.Registry
	Runner    *orchestrator.Runner
	Scheduler *orchestrator.Scheduler
}

// SetupServices wires the profit model, state machine, every job and the
// orchestrator around storage, the claim locker and the gateway. m may be nil.
func SetupServices(
	cfg *config.Config,
	storage *StorageComponents,
	locker claim.Locker,
	gateway marketplace.Gateway,
	m *metrics.Metrics,
	log logger.Logger,
) (*ServiceComponents, error) {
	model, err := profit.NewModel(cfg.Fees.Rates())
	if err != nil {
		return nil, fmt.Errorf("create profit model: %w", err)
	}

	var machineOpts []lifecycle.Option
	if m != nil {
		machineOpts = append(machineOpts, lifecycle.WithObserver(func(ev lifecycle.Event) {
			m.ObserveTransition(string(ev))
		}))
	}
	machine, err := lifecycle.NewMachine(model, cfg.Zombie.EscalationThreshold, machineOpts...)
	if err != nil {
		return nil, fmt.Errorf("create state machine: %w", err)
	}

	pool, err := worker.NewPool(worker.Config{
		Size: cfg.Orchestrator.Workers,
		// An auth failure fails every remaining unit the same way.
		IsFatal: func(err error) bool { return errors.Is(err, marketplace.ErrAuth) },
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	store := listing.NewStore(storage.Listings, machine, log).WithHistory(storage.Zombies)
	executor := orchestrator.NewExecutor(pool, locker, cfg.Orchestrator.ClaimTTL, log)

	sc := &ServiceComponents{
		Profit:   model,
		Machine:  machine,
		Store:    store,
		Listings: listing.NewService(store, gateway, locker, cfg.Orchestrator.ClaimTTL, log),
		Executor: executor,
	}

	loc, err := cfg.Orchestrator.Location()
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}

	jobs, err := sc.createJobs(cfg, storage, locker, gateway, m, loc, log)
	if err != nil {
		return nil, err
	}

	sc.Registry = orchestrator.NewRegistry()
	for _, job := range jobs {
		if err = sc.Registry.Register(job, cfg.Orchestrator.Schedules[job.Name()]); err != nil {
			return nil, fmt.Errorf("register job %s: %w", job.Name(), err)
		}
	}

	sc.Runner = orchestrator.NewRunner(
		sc.Registry,
		storage.Executions,
		locker,
		m,
		cfg.Orchestrator.JobTimeout,
		log,
	)
	sc.Scheduler = orchestrator.NewScheduler(sc.Runner, loc, log)

	return sc, nil
}

func (sc *ServiceComponents) createJobs(
	cfg *config.Config,
	storage *StorageComponents,
	locker claim.Locker,
	gateway marketplace.Gateway,
	m *metrics.Metrics,
	loc *time.Location,
	log logger.Logger,
) ([]orchestrator.Job, error) {
	store, executor := sc.Store, sc.Executor

	rp, err := repricer.New(cfg.Repricer, store, gateway, executor, log)
	if err != nil {
		return nil, fmt.Errorf("create repricer: %w", err)
	}

	sc.Offers, err = offers.New(cfg.Offers, offers.Deps{
		Listings: store,
		Records:  storage.Offers,
		Gateway:  gateway,
		Executor: executor,
		Locker:   locker,
		ClaimTTL: cfg.Orchestrator.ClaimTTL,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("create offer engine: %w", err)
	}

	sc.Queue, err = smartqueue.New(cfg.Queue, storage.Queue, store, gateway, executor, m, log)
	if err != nil {
		return nil, fmt.Errorf("create smart queue: %w", err)
	}

	sc.Purgatory = purgatory.New(cfg.Purgatory, store, gateway, executor, log)
	resurrector := resurrect.New(cfg.Resurrection, store, gateway, executor, log)

	return []orchestrator.Job{
		zombie.NewDetector(cfg.Zombie, store, gateway, executor, log),
		resurrector,
		autorelist.New(cfg.AutoRelist, store, resurrector, executor, log),
		rp,
		sc.Offers,
		sc.Queue,
		sc.Purgatory,
		shuffler.New(cfg.Shuffler, store, gateway, executor, log),
		pulse.New(cfg.StorePulse, store, gateway, executor, log).WithLocation(loc),
	}, nil
}
