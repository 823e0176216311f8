package postgres

import (
	"context"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

// Domain event row statuses.
const (
	EventStatusPending    = "PENDING"
	EventStatusDispatched = "DISPATCHED"
	EventStatusFailed     = "FAILED"
)

const insertDomainEvent = `-- name: InsertDomainEvent :exec
INSERT INTO domain_events (
    id, event_type, aggregate_type, aggregate_id, order_id, payload, status, created_by, created_at
) VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', $7, $8)`

func (q *Queries) InsertDomainEvent(ctx context.Context, ev *domain.DomainEvent) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := q.db.Exec(ctx, insertDomainEvent,
		ev.EventID, string(ev.EventType), ev.AggregateType, ev.AggregateID, ev.OrderID,
		payload, ev.CreatedBy, ev.CreatedAt,
	)
	return err
}

const getDomainEvent = `-- name: GetDomainEvent :one
SELECT id, event_type, aggregate_type, aggregate_id, order_id, payload, created_by, created_at, status
FROM domain_events
WHERE id = $1`

// GetDomainEvent returns the event and its dispatch status.
func (q *Queries) GetDomainEvent(ctx context.Context, id string) (*domain.DomainEvent, string, error) {
	var (
		ev        domain.DomainEvent
		eventType string
		status    string
	)
	err := q.db.QueryRow(ctx, getDomainEvent, id).Scan(
		&ev.EventID, &eventType, &ev.AggregateType, &ev.AggregateID, &ev.OrderID,
		&ev.Payload, &ev.CreatedBy, &ev.CreatedAt, &status,
	)
	if err != nil {
		return nil, "", err
	}
	ev.EventType = domain.EventType(eventType)
	ev.CreatedAt = ev.CreatedAt.UTC()
	return &ev, status, nil
}

const setDomainEventStatus = `-- name: SetDomainEventStatus :exec
UPDATE domain_events SET status = $2 WHERE id = $1`

func (q *Queries) SetDomainEventStatus(ctx context.Context, id, status string) error {
	_, err := q.db.Exec(ctx, setDomainEventStatus, id, status)
	return err
}
