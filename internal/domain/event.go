package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of domain event.
type EventType string

const (
	// Order lifecycle
	EventOrderOpened        EventType = "ORDER_OPENED"
	EventOrderStatusChanged EventType = "ORDER_STATUS_CHANGED"
	EventOrderDeadlineAlert EventType = "ORDER_DEADLINE_ALERT"

	// Step lifecycle
	EventStepStarted           EventType = "STEP_STARTED"
	EventStepApprovalRequested EventType = "STEP_APPROVAL_REQUESTED"
	EventStepApproved          EventType = "STEP_APPROVED"
	EventStepRejected          EventType = "STEP_REJECTED"
	EventStepCompleted         EventType = "STEP_COMPLETED"

	// Annotations
	EventAddendumAdded           EventType = "ADDENDUM_ADDED"
	EventDelegationCreated       EventType = "DELEGATION_CREATED"
	EventDelegationStatusChanged EventType = "DELEGATION_STATUS_CHANGED"
)

// EventTypes returns every event type the engine and jobs emit.
func EventTypes() []EventType {
	return []EventType{
		EventOrderOpened, EventOrderStatusChanged, EventOrderDeadlineAlert,
		EventStepStarted, EventStepApprovalRequested, EventStepApproved, EventStepRejected, EventStepCompleted,
		EventAddendumAdded, EventDelegationCreated, EventDelegationStatusChanged,
	}
}

// Aggregate types carried by events.
const (
	AggregateOrder      = "order"
	AggregateStep       = "step"
	AggregateDelegation = "delegation"
)

// DomainEvent is an immutable fact emitted after a committed engine mutation.
type DomainEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	OrderID       string    `json:"order_id"`
	Payload       []byte    `json:"payload"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewEvent builds an event with a fresh id. A payload that fails to
// marshal is stored as an empty object.
func NewEvent(eventType EventType, aggregateType, aggregateID, orderID, actor string, payload any, at time.Time) *DomainEvent {
	data, err := json.Marshal(payload)
	if err != nil || payload == nil {
		data = []byte("{}")
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &DomainEvent{
		EventID:       id.String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OrderID:       orderID,
		Payload:       data,
		CreatedBy:     actor,
		CreatedAt:     at,
	}
}

// Decode unmarshals the payload into v.
func (e *DomainEvent) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// StepEventPayload describes one step transition.
type StepEventPayload struct {
	OrderID       string     `json:"order_id"`
	OrderCode     string     `json:"order_code"`
	StepID        string     `json:"step_id"`
	StepName      string     `json:"step_name"`
	Ordem         int        `json:"ordem"`
	From          StepStatus `json:"from"`
	To            StepStatus `json:"to"`
	Comment       string     `json:"comment,omitempty"`
	ResponsibleID string     `json:"responsible_id,omitempty"`
	ApproverID    string     `json:"approver_id,omitempty"`
	// RequesterID is whoever submitted the step for approval.
	RequesterID string `json:"requester_id,omitempty"`
}

// OrderEventPayload describes an order-level change.
type OrderEventPayload struct {
	OrderID       string      `json:"order_id"`
	OrderCode     string      `json:"order_code"`
	TypeCode      string      `json:"type_code"`
	From          OrderStatus `json:"from,omitempty"`
	To            OrderStatus `json:"to"`
	ResponsibleID string      `json:"responsible_id,omitempty"`
	Deadline      *time.Time  `json:"deadline,omitempty"`
}

// DelegationEventPayload describes a delegation change.
type DelegationEventPayload struct {
	DelegationID string           `json:"delegation_id"`
	OrderID      string           `json:"order_id"`
	DelegatorID  string           `json:"delegator_id"`
	DelegateID   string           `json:"delegate_id"`
	StepIDs      []string         `json:"step_ids"`
	Description  string           `json:"description"`
	From         DelegationStatus `json:"from,omitempty"`
	To           DelegationStatus `json:"to"`
}

// AddendumEventPayload describes an appended addendum.
type AddendumEventPayload struct {
	AddendumID string `json:"addendum_id"`
	StepID     string `json:"step_id"`
	FieldKey   string `json:"field_key"`
}
