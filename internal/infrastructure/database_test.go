package infrastructure

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/require"

	"github.com/pCruvinel/Minervav2-sub003/internal/config"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/testutil"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "json")
	os.Exit(m.Run())
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := testutil.OpenPGXPool(t, "infra_migrate")
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool))

	for _, table := range []string{"service_orders", "order_steps", "domain_events", "notifications", "audit_logs", "river_job"} {
		var exists bool
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`,
			table,
		).Scan(&exists))
		require.True(t, exists, table)
	}
}

func TestInitRiverClient(t *testing.T) {
	pool := testutil.OpenPGXPool(t, "infra_river")
	c := &DatabaseClients{Pool: pool, Workers: river.NewWorkers()}
	require.NoError(t, c.InitRiverClient(config.RiverConfig{MaxWorkers: 2}, time.Hour))
	require.NotNil(t, c.RiverClient)
}

func TestNewDatabaseClients_BadDSN(t *testing.T) {
	t.Parallel()
	_, err := NewDatabaseClients(context.Background(), config.DatabaseConfig{URL: "postgres://%zz"})
	require.ErrorContains(t, err, "parse pool config")
}
