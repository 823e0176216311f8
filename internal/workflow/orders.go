package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// OpenOrderRequest opens a new order of a catalog type.
type OpenOrderRequest struct {
	TypeCode      string       `json:"type_code" validate:"required"`
	ParentOrderID string       `json:"parent_order_id" validate:"omitempty,uuid"`
	Sector        string       `json:"sector" validate:"omitempty,oneof=administrativo assessoria obras"`
	ResponsibleID string       `json:"responsible_id"`
	Description   string       `json:"description" validate:"max=2000"`
	Deadline      *time.Time   `json:"deadline"`
	Actor         domain.Actor `json:"-"`
}

// OpenOrder creates an order in intake with its first step.
func (e *Engine) OpenOrder(ctx context.Context, req OpenOrderRequest) (*domain.Order, *domain.Step, error) {
	if err := e.validateStruct(req); err != nil {
		return nil, nil, err
	}
	if err := requireActor(req.Actor); err != nil {
		return nil, nil, err
	}
	ot, ok := e.catalog.Type(req.TypeCode)
	if !ok {
		return nil, nil, apperrors.NotFoundError(apperrors.CodeOrderTypeNotFound, "order type", req.TypeCode)
	}
	if !e.catalog.CanInitiate(ot.Code, req.Actor.Cargo) {
		return nil, nil, apperrors.AuthorizationError(req.Actor.ID, "open "+ot.Code)
	}

	var parentID *string
	if req.ParentOrderID != "" {
		if _, err := e.uow.Reader().Orders.GetOrder(ctx, req.ParentOrderID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, nil, apperrors.ValidationError("parent order does not exist", "parent_order_id")
			}
			return nil, nil, err
		}
		pid := req.ParentOrderID
		parentID = &pid
	}

	sector := req.Sector
	if sector == "" {
		sector = string(ot.Sector)
	}
	responsible := strings.TrimSpace(req.ResponsibleID)
	if responsible == "" {
		responsible = req.Actor.ID
	}
	now := e.now()
	id := e.newID()
	first, _ := e.catalog.Template(ot.Code, 1)

	var order *domain.Order
	var step *domain.Step
	err := e.uow.InOrder(ctx, id, func(ctx context.Context, s Stores) error {
		var err error
		order, err = s.Orders.CreateOrder(ctx, OrderDraft{
			ID:            id,
			TypeCode:      ot.Code,
			Status:        domain.OrderIntake,
			ParentOrderID: parentID,
			Sector:        sector,
			ResponsibleID: responsible,
			CreatedBy:     req.Actor.ID,
			Description:   req.Description,
			EntryDate:     now,
			Deadline:      req.Deadline,
		})
		if err != nil {
			return err
		}
		step, err = s.Steps.CreateStep(ctx, order.ID, first, 1)
		if err != nil {
			return fmt.Errorf("create first step of order %s: %w", order.ID, err)
		}
		return publish(ctx, s, []*domain.DomainEvent{
			domain.NewEvent(domain.EventOrderOpened, domain.AggregateOrder, order.ID, order.ID, req.Actor.ID,
				domain.OrderEventPayload{
					OrderID:       order.ID,
					OrderCode:     order.Code,
					TypeCode:      order.TypeCode,
					To:            order.Status,
					ResponsibleID: order.ResponsibleID,
					Deadline:      order.Deadline,
				}, now),
		})
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("order opened",
		zap.String("order_id", order.ID),
		zap.String("code", order.Code),
		zap.String("type", order.TypeCode),
		zap.String("actor", req.Actor.ID),
	)
	return order, step, nil
}

// RefreshOrderStatus recomputes the coarse status of one order, e.g. after
// its deadline passed. It reports whether the status changed.
func (e *Engine) RefreshOrderStatus(ctx context.Context, orderID string, actor domain.Actor) (*domain.Order, bool, error) {
	var (
		out     *domain.Order
		changed bool
	)
	err := e.uow.InOrder(ctx, orderID, func(ctx context.Context, s Stores) error {
		order, err := s.Orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		steps, err := s.Steps.ListSteps(ctx, orderID)
		if err != nil {
			return err
		}
		updated, events, err := e.recompute(ctx, s, order, steps, actor.ID, e.now())
		if err != nil {
			return err
		}
		out, changed = updated, len(events) > 0
		return publish(ctx, s, events)
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		logger.Info("order status refreshed",
			zap.String("order_id", orderID),
			zap.String("to", string(out.Status)),
			zap.String("actor", actor.ID),
		)
	}
	return out, changed, nil
}

// RaiseDeadlineAlert publishes an ORDER_DEADLINE_ALERT for a non-terminal
// order whose deadline is past or within window. It reports whether an
// alert was raised.
func (e *Engine) RaiseDeadlineAlert(ctx context.Context, orderID string, window time.Duration, actor domain.Actor) (bool, error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}
	raised := false
	err := e.uow.InOrder(ctx, orderID, func(ctx context.Context, s Stores) error {
		order, err := s.Orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		now := e.now()
		if order.Status.Terminal() || order.Deadline == nil || order.Deadline.After(now.Add(window)) {
			return nil
		}
		raised = true
		return publish(ctx, s, []*domain.DomainEvent{
			domain.NewEvent(domain.EventOrderDeadlineAlert, domain.AggregateOrder, order.ID, order.ID, actor.ID,
				domain.OrderEventPayload{
					OrderID:       order.ID,
					OrderCode:     order.Code,
					TypeCode:      order.TypeCode,
					To:            order.Status,
					ResponsibleID: order.ResponsibleID,
					Deadline:      order.Deadline,
				}, now),
		})
	})
	if err != nil {
		return false, err
	}
	if raised {
		logger.Info("deadline alert raised",
			zap.String("order_id", orderID),
			zap.String("actor", actor.ID),
		)
	}
	return raised, nil
}

// OrderDetail is an order with its steps and delegations.
type OrderDetail struct {
	Order       *domain.Order       `json:"order"`
	Steps       []domain.Step       `json:"steps"`
	Delegations []domain.Delegation `json:"delegations"`
	CurrentStep *domain.Step        `json:"current_step,omitempty"`
	Situation   SituationalStatus   `json:"situation"`
}

// GetOrderDetail reads one order with its steps and delegations.
func (e *Engine) GetOrderDetail(ctx context.Context, orderID string) (*OrderDetail, error) {
	r := e.uow.Reader()
	order, err := r.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	steps, err := r.Steps.ListSteps(ctx, orderID)
	if err != nil {
		return nil, err
	}
	delegations, err := r.Delegations.ListDelegations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	current := CurrentStep(steps)
	return &OrderDetail{
		Order:       order,
		Steps:       steps,
		Delegations: delegations,
		CurrentStep: current,
		Situation:   e.situation.Resolve(order, current, e.now()),
	}, nil
}

// GetSituationalStatus resolves the order's situation from its own
// current step.
func (e *Engine) GetSituationalStatus(ctx context.Context, orderID string) (SituationalStatus, error) {
	r := e.uow.Reader()
	order, err := r.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	steps, err := r.Steps.ListSteps(ctx, orderID)
	if err != nil {
		return "", err
	}
	return e.situation.Resolve(order, CurrentStep(steps), e.now()), nil
}

// Dashboard lists the orders the actor's sector participates in, with
// their situation, highest priority first.
func (e *Engine) Dashboard(ctx context.Context, filter OrderFilter, actor domain.Actor) ([]DashboardRow, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	r := e.uow.Reader()
	orders, err := r.Orders.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	visible := orders[:0]
	for i := range orders {
		if e.caps.HasSectorMatch(actor, &orders[i]) {
			visible = append(visible, orders[i])
		}
	}

	rows := make([]DashboardRow, len(visible))
	now := e.now()
	var mu sync.Mutex
	var firstErr error
	tasks := make([]func(context.Context), len(visible))
	for i := range visible {
		i := i
		tasks[i] = func(ctx context.Context) {
			steps, err := r.Steps.ListSteps(ctx, visible[i].ID)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			current := CurrentStep(steps)
			var cp *domain.Step
			if current != nil {
				c := *current
				cp = &c
			}
			rows[i] = DashboardRow{
				Order:       visible[i],
				Situation:   e.situation.Resolve(&visible[i], current, now),
				CurrentStep: cp,
			}
		}
	}
	if err := e.runAll(ctx, tasks); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	SortBySituation(rows)
	return rows, nil
}
