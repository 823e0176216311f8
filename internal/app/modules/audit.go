package modules

import (
	"context"

	"github.com/riverqueue/river"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/handlers"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/governance/audit"
)

// AuditModule records every committed domain event in the audit log.
type AuditModule struct {
	logger *audit.Logger
}

// NewAuditModule writes to audit_logs on postgres and keeps records in
// process otherwise.
func NewAuditModule(infra *Infrastructure) *AuditModule {
	var store audit.Store
	if infra.DB != nil {
		store = audit.NewPGStore(infra.DB.Pool)
	} else {
		store = audit.NewMemoryStore()
	}
	return &AuditModule{logger: audit.NewLogger(store)}
}

func (m *AuditModule) Name() string { return "audit" }

func (m *AuditModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *AuditModule) RegisterWorkers(*river.Workers) {}

// Subscribe registers the audit logger for every event type.
func (m *AuditModule) Subscribe(d *domain.EventDispatcher) {
	m.logger.Register(d)
}

func (m *AuditModule) Shutdown(context.Context) error { return nil }
