package modules

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/handlers"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/jobs"
	"github.com/pCruvinel/Minervav2-sub003/internal/notification"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// inbox is what both inbox backends provide.
type inbox interface {
	notification.Sender
	notification.Inbox
	jobs.NotificationPurger
}

// NotificationModule wires the inbox, the event triggers that fill it and
// retention cleanup.
type NotificationModule struct {
	inbox    inbox
	triggers *notification.Triggers
	cleanup  *jobs.NotificationCleanupWorker
}

// NewNotificationModule picks the inbox matching the store backend.
func NewNotificationModule(infra *Infrastructure) *NotificationModule {
	var box inbox
	if infra.DB != nil {
		box = notification.NewInboxSender(infra.DB.Pool)
	} else {
		box = notification.NewMemoryInbox()
	}
	return &NotificationModule{
		inbox:    box,
		triggers: notification.NewTriggers(box),
		cleanup:  jobs.NewNotificationCleanupWorker(box, infra.Config.Workflow.NotificationRetention),
	}
}

func (m *NotificationModule) Name() string { return "notification" }

func (m *NotificationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Inbox = m.inbox
}

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil {
		return
	}
	river.AddWorker(workers, m.cleanup)
}

// Subscribe registers the notification triggers.
func (m *NotificationModule) Subscribe(d *domain.EventDispatcher) {
	m.triggers.Register(d)
}

// Run purges expired notifications daily. Only the memory backend runs it;
// on postgres the purge is a periodic River job.
func (m *NotificationModule) Run(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := m.cleanup.Purge(ctx); err != nil {
			logger.Warn("notification cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *NotificationModule) Shutdown(context.Context) error { return nil }
