package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// DelegateRequest hands the action on some steps of an order to someone
// else. It is bookkeeping only: step responsibility is unchanged and no
// transition is gated by it.
type DelegateRequest struct {
	OrderID     string       `json:"order_id" validate:"required"`
	StepIDs     []string     `json:"step_ids" validate:"required,min=1,unique,dive,required"`
	DelegateID  string       `json:"delegate_id" validate:"required"`
	Description string       `json:"description" validate:"required,max=2000"`
	Notes       string       `json:"notes" validate:"max=4000"`
	Deadline    *time.Time   `json:"deadline"`
	Actor       domain.Actor `json:"-"`
}

var delegationEdges = map[domain.DelegationStatus][]domain.DelegationStatus{
	domain.DelegationPending:    {domain.DelegationInProgress, domain.DelegationCompleted, domain.DelegationDeclined},
	domain.DelegationInProgress: {domain.DelegationCompleted},
}

func delegationEdgeAllowed(from, to domain.DelegationStatus) bool {
	for _, allowed := range delegationEdges[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Delegate records a pending delegation.
func (e *Engine) Delegate(ctx context.Context, req DelegateRequest) (*domain.Delegation, error) {
	if err := e.validateStruct(req); err != nil {
		return nil, err
	}
	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}
	if req.DelegateID == req.Actor.ID {
		return nil, apperrors.ValidationError("cannot delegate to oneself", "delegate_id")
	}

	var out *domain.Delegation
	err := e.uow.InOrder(ctx, req.OrderID, func(ctx context.Context, s Stores) error {
		order, err := s.Orders.GetOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !e.caps.HasSectorMatch(req.Actor, order) && req.Actor.ID != order.ResponsibleID {
			return apperrors.AuthorizationError(req.Actor.ID, "delegate steps of this order")
		}
		steps, err := s.Steps.ListSteps(ctx, order.ID)
		if err != nil {
			return err
		}
		owned := make(map[string]bool, len(steps))
		for _, st := range steps {
			owned[st.ID] = true
		}
		for _, id := range req.StepIDs {
			if !owned[id] {
				return apperrors.ValidationError("step does not belong to the order", "step_ids")
			}
		}

		now := e.now()
		out, err = s.Delegations.InsertDelegation(ctx, domain.Delegation{
			ID:          e.newID(),
			OrderID:     order.ID,
			DelegatorID: req.Actor.ID,
			DelegateID:  req.DelegateID,
			StepIDs:     append([]string(nil), req.StepIDs...),
			Description: req.Description,
			Notes:       req.Notes,
			Deadline:    req.Deadline,
			Status:      domain.DelegationPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		return publish(ctx, s, []*domain.DomainEvent{delegationEvent(domain.EventDelegationCreated, out, "", req.Actor.ID, now)})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("delegation created",
		zap.String("order_id", out.OrderID),
		zap.String("delegation_id", out.ID),
		zap.String("delegate", out.DelegateID),
		zap.String("actor", req.Actor.ID),
	)
	return out, nil
}

// UpdateDelegationStatus moves a delegation forward. Only its delegate or
// delegator may do so; declined is reachable only from pending.
func (e *Engine) UpdateDelegationStatus(ctx context.Context, delegationID string, status domain.DelegationStatus, actor domain.Actor) (*domain.Delegation, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.ValidationError("unknown delegation status", "status")
	}
	pre, err := e.uow.Reader().Delegations.GetDelegation(ctx, delegationID)
	if err != nil {
		return nil, err
	}

	var out *domain.Delegation
	var from domain.DelegationStatus
	err = e.uow.InOrder(ctx, pre.OrderID, func(ctx context.Context, s Stores) error {
		d, err := s.Delegations.GetDelegation(ctx, delegationID)
		if err != nil {
			return err
		}
		if actor.ID != d.DelegateID && actor.ID != d.DelegatorID {
			return apperrors.AuthorizationError(actor.ID, "update delegation")
		}
		if !delegationEdgeAllowed(d.Status, status) {
			return apperrors.InvalidTransitionError(string(d.Status), string(status))
		}
		from = d.Status
		out, err = s.Delegations.UpdateDelegation(ctx, d.ID, domain.DelegationPatch{Status: &status})
		if err != nil {
			return err
		}
		return publish(ctx, s, []*domain.DomainEvent{
			delegationEvent(domain.EventDelegationStatusChanged, out, from, actor.ID, e.now()),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("delegation status updated",
		zap.String("order_id", out.OrderID),
		zap.String("delegation_id", out.ID),
		zap.String("from", string(from)),
		zap.String("to", string(out.Status)),
		zap.String("actor", actor.ID),
	)
	return out, nil
}

func delegationEvent(t domain.EventType, d *domain.Delegation, from domain.DelegationStatus, actor string, now time.Time) *domain.DomainEvent {
	return domain.NewEvent(t, domain.AggregateDelegation, d.ID, d.OrderID, actor, domain.DelegationEventPayload{
		DelegationID: d.ID,
		OrderID:      d.OrderID,
		DelegatorID:  d.DelegatorID,
		DelegateID:   d.DelegateID,
		StepIDs:      d.StepIDs,
		Description:  d.Description,
		From:         from,
		To:           d.Status,
	}, now)
}
