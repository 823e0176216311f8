// Package jobs defines the River jobs that run the engine's background
// work: committed domain event delivery, the deadline scan and inbox
// retention.
//
// Jobs carry ids only. Workers load the row they refer to (claim-check).
package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/repository/postgres"
)

// QueueEvents is the queue domain event jobs run on.
const QueueEvents = "domain_events"

// DomainEventArgs points at one row of domain_events.
type DomainEventArgs struct {
	EventID string `json:"event_id"`
}

// Kind returns the job kind identifier for domain event delivery.
func (DomainEventArgs) Kind() string { return "domain_event" }

// InsertOpts makes one delivery job per event.
func (DomainEventArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueEvents,
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// EventLoader reads and marks domain_events rows. *postgres.Queries
// satisfies it.
type EventLoader interface {
	GetDomainEvent(ctx context.Context, id string) (*domain.DomainEvent, string, error)
	SetDomainEventStatus(ctx context.Context, id, status string) error
}

// DomainEventWorker dispatches one committed event to the registered
// handlers (notifications, audit). Handlers are idempotent, so a retried
// job is safe.
type DomainEventWorker struct {
	river.WorkerDefaults[DomainEventArgs]
	events     EventLoader
	dispatcher *domain.EventDispatcher
}

// NewDomainEventWorker creates the delivery worker.
func NewDomainEventWorker(events EventLoader, dispatcher *domain.EventDispatcher) *DomainEventWorker {
	return &DomainEventWorker{events: events, dispatcher: dispatcher}
}

// Work loads the event and dispatches it.
func (w *DomainEventWorker) Work(ctx context.Context, job *river.Job[DomainEventArgs]) error {
	if w == nil || w.events == nil || w.dispatcher == nil {
		return fmt.Errorf("domain event worker is not initialized")
	}
	eventID := job.Args.EventID

	ev, status, err := w.events.GetDomainEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("fetch domain event %s: %w", eventID, err)
	}
	if status == postgres.EventStatusDispatched {
		logger.Info("domain event already dispatched, skipping duplicate delivery",
			zap.String("event_id", eventID),
		)
		return nil
	}

	if err := w.dispatcher.Dispatch(ctx, ev); err != nil {
		if serr := w.events.SetDomainEventStatus(ctx, eventID, postgres.EventStatusFailed); serr != nil {
			logger.Warn("failed to mark domain event failed",
				zap.String("event_id", eventID),
				zap.Error(serr),
			)
		}
		return fmt.Errorf("dispatch domain event %s: %w", eventID, err)
	}
	if err := w.events.SetDomainEventStatus(ctx, eventID, postgres.EventStatusDispatched); err != nil {
		return fmt.Errorf("mark domain event %s dispatched: %w", eventID, err)
	}

	logger.Debug("domain event dispatched",
		zap.String("event_id", eventID),
		zap.String("event_type", string(ev.EventType)),
		zap.String("order_id", ev.OrderID),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// RiverEnqueuer inserts one DomainEventArgs job per event inside the
// unit of work's transaction.
type RiverEnqueuer struct {
	client *river.Client[pgx.Tx]
}

// NewRiverEnqueuer creates an enqueuer. client may be insert-only.
func NewRiverEnqueuer(client *river.Client[pgx.Tx]) *RiverEnqueuer {
	return &RiverEnqueuer{client: client}
}

var _ postgres.EventEnqueuer = (*RiverEnqueuer)(nil)

// EnqueueTx inserts the delivery jobs on tx.
func (e *RiverEnqueuer) EnqueueTx(ctx context.Context, tx pgx.Tx, events []*domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	params := make([]river.InsertManyParams, 0, len(events))
	for _, ev := range events {
		params = append(params, river.InsertManyParams{Args: DomainEventArgs{EventID: ev.EventID}})
	}
	if _, err := e.client.InsertManyTx(ctx, tx, params); err != nil {
		return fmt.Errorf("insert domain event jobs: %w", err)
	}
	return nil
}
