// Package infrastructure provides database and connection pool setup.
//
// One pgxpool is shared by the repository and River, so a unit of work
// can insert its event delivery jobs in the same transaction as its rows.
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/config"
	"github.com/pCruvinel/Minervav2-sub003/internal/jobs"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/repository/postgres"
)

// applicationName tags the engine's sessions in pg_stat_activity.
const applicationName = "minerva"

// pingTimeout bounds the startup connectivity check.
const pingTimeout = 10 * time.Second

// DatabaseClients is the shared pool plus the River client built on it.
type DatabaseClients struct {
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
	// Workers is what RiverClient runs; modules add to it before Start.
	Workers *river.Workers
}

// NewDatabaseClients opens and pings the pool. Every session runs in UTC
// so deadline comparisons in SQL agree with the engine's clock.
func NewDatabaseClients(ctx context.Context, cfg config.DatabaseConfig) (*DatabaseClients, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute
	params := poolConfig.ConnConfig.RuntimeParams
	params["timezone"] = "UTC"
	if params["application_name"] == "" {
		params["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s:%d: %w", poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Port, err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", cfg.MaxConns),
	)
	return &DatabaseClients{Pool: pool, Workers: river.NewWorkers()}, nil
}

// AutoMigrate runs Migrate on the shared pool.
func (c *DatabaseClients) AutoMigrate(ctx context.Context) error {
	return Migrate(ctx, c.Pool)
}

// Migrate brings the engine schema and River's queue tables up to date.
// Both steps are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	start := time.Now()
	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate engine schema: %w", err)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("migrate river tables: %w", err)
	}

	versions := make([]int, 0, len(res.Versions))
	for _, v := range res.Versions {
		versions = append(versions, v.Version)
	}
	logger.Info("Database migrated",
		zap.Ints("river_versions_applied", versions),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// InitRiverClient creates the River client over c.Workers with the
// engine's queues and periodic jobs. The client can insert jobs at once;
// workers are registered on c.Workers before Start.
func (c *DatabaseClients) InitRiverClient(cfg config.RiverConfig, scanInterval time.Duration) error {
	riverClient, err := river.NewClient(riverpgxv5.New(c.Pool), &river.Config{
		Queues:                      jobs.Queues(cfg.MaxWorkers),
		Workers:                     c.Workers,
		PeriodicJobs:                jobs.PeriodicJobs(scanInterval),
		CompletedJobRetentionPeriod: cfg.CompletedJobRetentionPeriod,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}
	c.RiverClient = riverClient
	logger.Info("River client initialized",
		zap.Int("max_workers", cfg.MaxWorkers),
		zap.Duration("deadline_scan_interval", scanInterval),
	)
	return nil
}

// Close closes the connection pool.
func (c *DatabaseClients) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
