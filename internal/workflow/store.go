// Package workflow is the Service Order engine: the step state machine,
// the approval gate, the addendum ledger, delegations, hierarchy
// resolution, the unified workflow view and situational status.
//
// The engine holds no state between calls. Everything it reads or writes
// goes through the store interfaces below, and every mutation runs inside
// a per-order UnitOfWork.
package workflow

import (
	"context"
	"time"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

// OrderStore reads and writes orders.
//
// Lookup misses return an error wrapping apperrors.ErrNotFound. Timeouts
// and connection failures return a StoreUnavailableError.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (*domain.Order, error)
	// ListChildren returns direct children ordered by entry date ascending.
	ListChildren(ctx context.Context, parentID string) ([]domain.Order, error)
	CreateOrder(ctx context.Context, draft OrderDraft) (*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
}

// StepStore reads and writes steps.
type StepStore interface {
	// ListSteps returns the order's steps ordered by ordem.
	ListSteps(ctx context.Context, orderID string) ([]domain.Step, error)
	GetStep(ctx context.Context, id string) (*domain.Step, error)
	CreateStep(ctx context.Context, orderID string, tpl domain.StepTemplate, ordem int) (*domain.Step, error)
	// UpdateStep applies patch only when the stored version equals
	// expectedVersion, else it returns a ConcurrentModificationError.
	UpdateStep(ctx context.Context, id string, patch domain.StepPatch, expectedVersion int64) (*domain.Step, error)
}

// AddendumStore is append-only.
type AddendumStore interface {
	InsertAddendum(ctx context.Context, row domain.Addendum) (*domain.Addendum, error)
	// ListAddenda returns addenda ordered by creation time, then insertion.
	ListAddenda(ctx context.Context, stepID string) ([]domain.Addendum, error)
	// CountAddenda returns the number of addenda per step id. Steps
	// without addenda may be absent from the map.
	CountAddenda(ctx context.Context, stepIDs []string) (map[string]int, error)
}

// DelegationStore reads and writes delegations.
type DelegationStore interface {
	InsertDelegation(ctx context.Context, row domain.Delegation) (*domain.Delegation, error)
	UpdateDelegation(ctx context.Context, id string, patch domain.DelegationPatch) (*domain.Delegation, error)
	GetDelegation(ctx context.Context, id string) (*domain.Delegation, error)
	ListDelegations(ctx context.Context, orderID string) ([]domain.Delegation, error)
}

// EventSink receives the events of a unit of work. Implementations must
// make them visible only if the unit of work commits.
type EventSink interface {
	Publish(ctx context.Context, events ...*domain.DomainEvent) error
}

// CapabilityProvider answers "who may act" questions.
type CapabilityProvider interface {
	HasApproverCapability(actor domain.Actor, step *domain.Step) bool
	HasSectorMatch(actor domain.Actor, order *domain.Order) bool
}

// Stores is the set of stores bound to one unit of work.
type Stores struct {
	Orders      OrderStore
	Steps       StepStore
	Addenda     AddendumStore
	Delegations DelegationStore
	// Events may be nil, in which case events are dropped.
	Events EventSink
}

// UnitOfWork serializes mutations per order.
type UnitOfWork interface {
	// InOrder runs fn while holding the order's exclusive lock. The stores
	// passed to fn are bound to one transaction that commits when fn
	// returns nil and rolls back otherwise. fn must use the context it is
	// given, which carries the unit of work's deadline and trace span.
	InOrder(ctx context.Context, orderID string, fn func(ctx context.Context, s Stores) error) error
	// Reader returns stores for read-only paths, outside any lock.
	Reader() Stores
}

// OrderDraft is the input for creating an order. The store assigns the
// sequential code.
type OrderDraft struct {
	ID            string
	TypeCode      string
	Status        domain.OrderStatus
	ParentOrderID *string
	Sector        string
	ResponsibleID string
	CreatedBy     string
	Description   string
	EntryDate     time.Time
	Deadline      *time.Time
}

// OrderFilter narrows ListOrders. Zero fields match everything.
type OrderFilter struct {
	Statuses        []domain.OrderStatus
	ExcludeStatuses []domain.OrderStatus
	Sector          string
	ResponsibleID   string
	TypeCode        string
	// DeadlineBefore selects orders with a deadline strictly before it.
	DeadlineBefore *time.Time
	Limit          int
}
