package modules

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/handlers"
	"github.com/pCruvinel/Minervav2-sub003/internal/jobs"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// DeadlineModule moves past-deadline orders to overdue and raises the
// daily deadline alerts.
type DeadlineModule struct {
	scanner     *jobs.DeadlineScanner
	engine      jobs.DeadlineEngine
	alertWindow time.Duration
	interval    time.Duration
}

// NewDeadlineModule creates the scanner. On postgres alerts go through a
// River job unique per order and day; in memory they are raised directly.
func NewDeadlineModule(infra *Infrastructure, engine *workflow.Engine) *DeadlineModule {
	wf := infra.Config.Workflow
	var sink jobs.AlertSink
	if infra.RiverClient != nil {
		sink = jobs.NewRiverAlertSink(infra.RiverClient)
	} else {
		sink = jobs.NewDirectAlertSink(engine, wf.DeadlineAlertWindow)
	}
	orders := infra.UnitOfWork.Reader().Orders
	return &DeadlineModule{
		scanner:     jobs.NewDeadlineScanner(orders, engine, sink, wf.DeadlineNoticeWindow).WithPool(infra.Pools.General),
		engine:      engine,
		alertWindow: wf.DeadlineAlertWindow,
		interval:    wf.DeadlineScanInterval,
	}
}

func (m *DeadlineModule) Name() string { return "deadline" }

func (m *DeadlineModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *DeadlineModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil {
		return
	}
	river.AddWorker(workers, jobs.NewDeadlineCheckWorker(m.scanner))
	river.AddWorker(workers, jobs.NewDeadlineAlertWorker(m.engine, m.alertWindow))
}

// Run scans on start and then every interval. Only the memory backend
// runs it; on postgres the scan is a periodic River job.
func (m *DeadlineModule) Run(ctx context.Context) {
	interval := m.interval
	if interval <= 0 {
		interval = jobs.DefaultDeadlineScanInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.scanner.Scan(ctx); err != nil {
			logger.Warn("deadline scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *DeadlineModule) Shutdown(context.Context) error { return nil }
