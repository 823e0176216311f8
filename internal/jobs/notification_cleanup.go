package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

const (
	// DefaultNotificationRetention bounds how long the inbox keeps a
	// notification, read or not.
	DefaultNotificationRetention = 90 * 24 * time.Hour

	notificationCleanupTimeout = 5 * time.Minute
)

// NotificationPurger drops inbox rows created before cutoff.
type NotificationPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationCleanupArgs triggers one retention pass over the inbox.
type NotificationCleanupArgs struct{}

func (NotificationCleanupArgs) Kind() string { return "notification_cleanup" }

// InsertOpts dedupes to one pass per day; a failed pass waits for the next.
func (NotificationCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts:  river.UniqueOpts{ByPeriod: 24 * time.Hour, ByQueue: true, ByArgs: true},
	}
}

// NotificationCleanupWorker enforces inbox retention. The memory backend
// calls Purge from a ticker instead of through River.
type NotificationCleanupWorker struct {
	river.WorkerDefaults[NotificationCleanupArgs]
	purger    NotificationPurger
	retention time.Duration
	now       func() time.Time
}

// NewNotificationCleanupWorker uses DefaultNotificationRetention when
// retention is not positive.
func NewNotificationCleanupWorker(purger NotificationPurger, retention time.Duration) *NotificationCleanupWorker {
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	return &NotificationCleanupWorker{
		purger:    purger,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Timeout gives a large backlog room; River's default is one minute.
func (w *NotificationCleanupWorker) Timeout(*river.Job[NotificationCleanupArgs]) time.Duration {
	return notificationCleanupTimeout
}

func (w *NotificationCleanupWorker) Work(ctx context.Context, _ *river.Job[NotificationCleanupArgs]) error {
	if w == nil || w.purger == nil {
		return fmt.Errorf("notification cleanup worker is not initialized")
	}
	_, err := w.Purge(ctx)
	return err
}

// Purge runs one retention pass and reports the rows removed.
func (w *NotificationCleanupWorker) Purge(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.retention)
	deleted, err := w.purger.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications created before %s: %w", cutoff.Format(time.DateOnly), err)
	}

	log := logger.FromContext(ctx)
	if deleted == 0 {
		log.Debug("Inbox retention pass found nothing to purge", zap.Time("cutoff", cutoff))
		return 0, nil
	}
	log.Info("Inbox retention pass purged notifications",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff),
	)
	return deleted, nil
}
