package modules

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/handlers"
	"github.com/pCruvinel/Minervav2-sub003/internal/config"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/infrastructure"
	"github.com/pCruvinel/Minervav2-sub003/internal/jobs"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/worker"
	"github.com/pCruvinel/Minervav2-sub003/internal/repository/memory"
	"github.com/pCruvinel/Minervav2-sub003/internal/repository/postgres"
	"github.com/pCruvinel/Minervav2-sub003/internal/telemetry"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config     *config.Config
	Catalog    *domain.Catalog
	Pools      *worker.Pools
	Dispatcher *domain.EventDispatcher
	Telemetry  *telemetry.Provider

	// UnitOfWork is the store the engine runs on, traced when telemetry
	// is enabled.
	UnitOfWork workflow.UnitOfWork

	// Postgres backend only.
	DB          *infrastructure.DatabaseClients
	PGStore     *postgres.Store
	RiverClient *river.Client[pgx.Tx]

	// Memory backend only.
	MemStore *memory.Store
}

// NewInfrastructure initializes telemetry, pools and the configured store
// backend. On postgres the River client is created here so the store can
// enqueue event jobs; workers are added to DB.Workers before it starts.
func NewInfrastructure(ctx context.Context, cfg *config.Config, version string) (*Infrastructure, error) {
	catalog, err := LoadCatalog(cfg.Workflow.CatalogPath)
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Stdout:      cfg.Telemetry.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		FanoutPoolSize:  cfg.Worker.FanoutPoolSize,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	infra := &Infrastructure{
		Config:     cfg,
		Catalog:    catalog,
		Pools:      pools,
		Dispatcher: domain.NewEventDispatcher(),
		Telemetry:  tp,
	}

	switch cfg.Database.Backend {
	case config.BackendMemory:
		infra.MemStore = memory.New(memory.WithDispatcher(infra.Dispatcher))
		infra.UnitOfWork = telemetry.WrapUnitOfWork(infra.MemStore, tp)
		logger.Warn("Using the in-memory store; state is lost on restart")
	default:
		if err := infra.initPostgres(ctx); err != nil {
			infra.Close()
			return nil, err
		}
	}
	return infra, nil
}

func (i *Infrastructure) initPostgres(ctx context.Context) error {
	cfg := i.Config
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	i.DB = db

	// Dev-mode: create engine tables + River queue tables.
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	if err := db.InitRiverClient(cfg.River, cfg.Workflow.DeadlineScanInterval); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = db.RiverClient

	i.PGStore = postgres.NewStore(db.Pool,
		postgres.WithEnqueuer(jobs.NewRiverEnqueuer(db.RiverClient)),
		postgres.WithLockTimeout(cfg.Database.LockTimeout),
	)
	i.UnitOfWork = telemetry.WrapUnitOfWork(i.PGStore, i.Telemetry)
	return nil
}

// Workers returns the River worker registry, or nil on the memory backend.
func (i *Infrastructure) Workers() *river.Workers {
	if i.DB == nil {
		return nil
	}
	return i.DB.Workers
}

// Pinger returns the readiness probe target, or nil on the memory backend.
func (i *Infrastructure) Pinger() handlers.Pinger {
	if i.PGStore == nil {
		return nil
	}
	return i.PGStore
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
	if i.Telemetry != nil {
		if err := i.Telemetry.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
}

// LoadCatalog reads the catalog at path, or the embedded one when path
// is empty.
func LoadCatalog(path string) (*domain.Catalog, error) {
	if path == "" {
		return domain.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	catalog, err := domain.LoadCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	logger.Info("Loaded order type catalog", zap.String("path", path), zap.Int("types", len(catalog.Types())))
	return catalog, nil
}
