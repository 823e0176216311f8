// Package domain holds the Service Order model: orders, steps, addenda,
// delegations, the order-type catalog and the domain events emitted by the
// workflow engine.
package domain

import (
	"fmt"
	"time"
)

// OrderStatus is the coarse lifecycle status of an Order.
type OrderStatus string

const (
	OrderIntake          OrderStatus = "intake"
	OrderAwaitingInfo    OrderStatus = "awaiting_info"
	OrderInProgress      OrderStatus = "in_progress"
	OrderUnderValidation OrderStatus = "under_validation"
	OrderOverdue         OrderStatus = "overdue"
	OrderCompleted       OrderStatus = "completed"
	OrderCancelled       OrderStatus = "cancelled"
	OrderPaused          OrderStatus = "paused"
	OrderAwaitingClient  OrderStatus = "awaiting_client"
)

var orderStatuses = []OrderStatus{
	OrderIntake, OrderAwaitingInfo, OrderInProgress, OrderUnderValidation,
	OrderOverdue, OrderCompleted, OrderCancelled, OrderPaused, OrderAwaitingClient,
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	for _, known := range orderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further step work is expected.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Order is one unit of work following a typed, ordered step template.
type Order struct {
	ID            string      `json:"id"`
	Code          string      `json:"code"`
	TypeCode      string      `json:"type_code"`
	Status        OrderStatus `json:"status"`
	ParentOrderID *string     `json:"parent_order_id,omitempty"`
	Sector        string      `json:"sector,omitempty"`
	ResponsibleID string      `json:"responsible_id,omitempty"`
	CreatedBy     string      `json:"created_by"`
	Description   string      `json:"description,omitempty"`
	EntryDate     time.Time   `json:"entry_date"`
	Deadline      *time.Time  `json:"deadline,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	Version       int64       `json:"version"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// HasParent reports whether the order was spawned by another order.
func (o *Order) HasParent() bool {
	return o != nil && o.ParentOrderID != nil && *o.ParentOrderID != ""
}

// PastDeadline reports whether the deadline is strictly before now.
func (o *Order) PastDeadline(now time.Time) bool {
	return o.Deadline != nil && o.Deadline.Before(now)
}

// OrderPatch is a partial order update. Nil fields are left untouched.
type OrderPatch struct {
	Status        *OrderStatus
	CompletedAt   *time.Time
	ClearComplete bool
	ResponsibleID *string
	Deadline      *time.Time
}

// Empty reports whether the patch changes nothing.
func (p OrderPatch) Empty() bool {
	return p.Status == nil && p.CompletedAt == nil && !p.ClearComplete &&
		p.ResponsibleID == nil && p.Deadline == nil
}

// Apply returns a copy of o with the patch applied. Stores use it so that
// the in-memory and SQL adapters agree on patch semantics.
func (p OrderPatch) Apply(o Order) Order {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		o.CompletedAt = &t
	}
	if p.ClearComplete {
		o.CompletedAt = nil
	}
	if p.ResponsibleID != nil {
		o.ResponsibleID = *p.ResponsibleID
	}
	if p.Deadline != nil {
		t := *p.Deadline
		o.Deadline = &t
	}
	return o
}

// FormatOrderCode renders the human-readable sequential code, e.g. OS-13-0042.
func FormatOrderCode(typeCode string, seq int64) string {
	return fmt.Sprintf("%s-%04d", typeCode, seq)
}
