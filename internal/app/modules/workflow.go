package modules

import (
	"context"

	"github.com/riverqueue/river"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/handlers"
	"github.com/pCruvinel/Minervav2-sub003/internal/capability"
	"github.com/pCruvinel/Minervav2-sub003/internal/jobs"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// WorkflowModule wires the engine and the delivery of its committed events.
type WorkflowModule struct {
	infra  *Infrastructure
	engine *workflow.Engine
}

// NewWorkflowModule creates the engine over the infrastructure store.
func NewWorkflowModule(infra *Infrastructure) *WorkflowModule {
	wf := infra.Config.Workflow
	caps := capability.New(infra.Catalog, wf.Cargos())
	engine := workflow.NewEngine(infra.UnitOfWork, infra.Catalog, caps,
		workflow.WithMaxHierarchyDepth(wf.MaxHierarchyDepth),
		workflow.WithDeadlineAlertWindow(wf.DeadlineAlertWindow),
		workflow.WithFanoutPool(infra.Pools.Fanout),
	)
	return &WorkflowModule{infra: infra, engine: engine}
}

// Engine returns the module's engine.
func (m *WorkflowModule) Engine() *workflow.Engine { return m.engine }

func (m *WorkflowModule) Name() string { return "workflow" }

func (m *WorkflowModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Engine = m.engine
	deps.Pinger = m.infra.Pinger()
	deps.RefreshCargos = m.infra.Config.Workflow.Cargos()
}

// RegisterWorkers adds the domain event delivery worker. Events are
// loaded from the outbox table the store writes them to.
func (m *WorkflowModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m.infra.PGStore == nil {
		return
	}
	river.AddWorker(workers, jobs.NewDomainEventWorker(m.infra.PGStore.Queries(), m.infra.Dispatcher))
}

func (m *WorkflowModule) Shutdown(context.Context) error { return nil }
