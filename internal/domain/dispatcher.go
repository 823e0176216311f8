package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// EventHandler reacts to a committed domain event.
type EventHandler func(ctx context.Context, event *DomainEvent) error

// EventDispatcher fans committed events out to in-process subscribers
// (notification triggers, the audit trail). The memory store calls it
// after commit; on postgres the domain event worker does.
type EventDispatcher struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
}

// NewEventDispatcher returns a dispatcher with no subscribers.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{handlers: make(map[EventType][]EventHandler)}
}

// Register subscribes handler to eventType.
func (d *EventDispatcher) Register(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
	d.mu.Unlock()
}

// RegisterAll subscribes handler to each of eventTypes.
func (d *EventDispatcher) RegisterAll(handler EventHandler, eventTypes ...EventType) {
	for _, et := range eventTypes {
		d.Register(et, handler)
	}
}

// Dispatch runs every subscriber of the event's type in registration
// order. One failing or panicking subscriber does not stop the others;
// all failures are joined into the returned error so the caller can retry
// the delivery.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *DomainEvent) error {
	if d == nil || event == nil {
		return nil
	}
	d.mu.RLock()
	handlers := d.handlers[event.EventType]
	d.mu.RUnlock()

	log := logger.FromContext(ctx).With(
		zap.String("event_type", string(event.EventType)),
		zap.String("event_id", event.EventID),
		logger.OrderID(event.OrderID),
	)
	if len(handlers) == 0 {
		log.Debug("event has no subscribers")
		return nil
	}

	var errs []error
	for i, handler := range handlers {
		if err := safeHandle(ctx, handler, event); err != nil {
			log.Warn("event subscriber failed", zap.Int("subscriber", i), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("dispatch %s: %w", event.EventType, errors.Join(errs...))
	}
	return nil
}

func safeHandle(ctx context.Context, handler EventHandler, event *DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return handler(ctx, event)
}
