package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// TransitionRequest asks the engine to move one step to Target.
type TransitionRequest struct {
	StepID  string            `json:"step_id" validate:"required"`
	Target  domain.StepStatus `json:"target" validate:"required"`
	Actor   domain.Actor      `json:"-"`
	Payload domain.StepData   `json:"payload"`
	Comment string            `json:"comment" validate:"max=4000"`
	// ExpectedVersion, when non-zero, must equal the stored step version.
	ExpectedVersion int64 `json:"expected_version" validate:"gte=0"`
}

// StepResult is the outcome of a committed transition.
type StepResult struct {
	Step     *domain.Step  `json:"step"`
	Order    *domain.Order `json:"order"`
	NextStep *domain.Step  `json:"next_step,omitempty"`
	// HandoffRequired is set when the next step belongs to another cargo.
	// It is advisory and never blocks the transition.
	HandoffRequired   *domain.HandoffPoint `json:"handoff_required,omitempty"`
	SituationalStatus SituationalStatus    `json:"situational_status"`
}

// TransitionStep validates and applies one step transition. On completion
// it creates the next step when missing and recomputes the order status,
// all inside the order's unit of work.
func (e *Engine) TransitionStep(ctx context.Context, req TransitionRequest) (*StepResult, error) {
	if err := e.validateStruct(req); err != nil {
		return nil, err
	}
	if err := requireActor(req.Actor); err != nil {
		return nil, err
	}
	pre, err := e.uow.Reader().Steps.GetStep(ctx, req.StepID)
	if err != nil {
		return nil, err
	}

	var result *StepResult
	err = e.uow.InOrder(ctx, pre.OrderID, func(ctx context.Context, s Stores) error {
		step, err := s.Steps.GetStep(ctx, req.StepID)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != 0 && step.Version != req.ExpectedVersion {
			return apperrors.ConcurrentModificationError("step", step.ID, req.ExpectedVersion)
		}
		order, err := s.Orders.GetOrder(ctx, step.OrderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return apperrors.InvalidTransitionError(string(step.Status), string(req.Target)).
				WithParams(map[string]any{"order_status": string(order.Status)})
		}
		steps, err := s.Steps.ListSteps(ctx, order.ID)
		if err != nil {
			return err
		}
		tpl := e.templateFor(order, step)
		now := e.now()

		if isWorkEdge(step.Status) && !e.canWork(req.Actor, order, step) {
			return apperrors.AuthorizationError(req.Actor.ID, "work on step")
		}

		patch, err := planTransition(transitionInput{
			Step:       step,
			Siblings:   steps,
			Template:   tpl,
			Target:     req.Target,
			Actor:      req.Actor,
			Payload:    req.Payload,
			Comment:    req.Comment,
			Now:        now,
			IsApprover: e.caps.HasApproverCapability(req.Actor, step),
		})
		if err != nil {
			return err
		}
		updated, err := s.Steps.UpdateStep(ctx, step.ID, patch, step.Version)
		if err != nil {
			return err
		}
		replaceStep(steps, *updated)

		events := e.stepEvents(order, step, updated, req.Actor.ID, now)
		res := &StepResult{Step: updated}

		if updated.Status == domain.StepCompleted {
			next := domain.FindByOrdem(steps, updated.Ordem+1)
			if next == nil {
				if nextTpl, ok := e.catalog.Template(order.TypeCode, updated.Ordem+1); ok {
					created, err := s.Steps.CreateStep(ctx, order.ID, nextTpl, nextTpl.Ordem)
					if err != nil {
						return fmt.Errorf("create step %d of order %s: %w", nextTpl.Ordem, order.ID, err)
					}
					steps = append(steps, *created)
					next = created
				}
			}
			if next != nil {
				cp := *next
				res.NextStep = &cp
			}
			res.HandoffRequired = e.catalog.CheckDelegationRequired(order.TypeCode, updated.Ordem, updated.Ordem+1, req.Actor.Cargo)
		}

		newOrder, orderEvents, err := e.recompute(ctx, s, order, steps, req.Actor.ID, now)
		if err != nil {
			return err
		}
		events = append(events, orderEvents...)
		res.Order = newOrder
		res.SituationalStatus = e.situation.Resolve(newOrder, CurrentStep(steps), now)

		if err := publish(ctx, s, events); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("step transitioned",
		zap.String("order_id", result.Order.ID),
		zap.String("step_id", result.Step.ID),
		zap.String("from", string(pre.Status)),
		zap.String("to", string(req.Target)),
		zap.String("actor", req.Actor.ID),
	)
	return result, nil
}

// isWorkEdge reports edges performed by whoever executes the step, as
// opposed to review edges performed by approvers.
func isWorkEdge(from domain.StepStatus) bool {
	return from == domain.StepPending || from == domain.StepInProgress
}

// canWork: the step or order responsible, or an actor whose sector
// participates in the order.
func (e *Engine) canWork(actor domain.Actor, order *domain.Order, step *domain.Step) bool {
	if actor.ID != "" && (actor.ID == step.ResponsibleID || actor.ID == order.ResponsibleID) {
		return true
	}
	return e.caps.HasSectorMatch(actor, order)
}

func replaceStep(steps []domain.Step, s domain.Step) {
	for i := range steps {
		if steps[i].ID == s.ID {
			steps[i] = s
			return
		}
	}
}

// lastSubmitter returns who last moved the step into awaiting_approval.
func lastSubmitter(s *domain.Step) string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].To == domain.StepAwaitingApproval {
			return s.History[i].Actor
		}
	}
	return ""
}

func (e *Engine) stepEvents(order *domain.Order, before, after *domain.Step, actor string, now time.Time) []*domain.DomainEvent {
	base := domain.StepEventPayload{
		OrderID:       order.ID,
		OrderCode:     order.Code,
		StepID:        after.ID,
		StepName:      after.Name,
		Ordem:         after.Ordem,
		From:          before.Status,
		Comment:       after.Comment,
		ResponsibleID: order.ResponsibleID,
		ApproverID:    after.ApproverID,
		RequesterID:   lastSubmitter(after),
	}
	mk := func(t domain.EventType, to domain.StepStatus) *domain.DomainEvent {
		p := base
		p.To = to
		return domain.NewEvent(t, domain.AggregateStep, after.ID, order.ID, actor, p, now)
	}

	switch {
	case before.Status == domain.StepPending:
		return []*domain.DomainEvent{mk(domain.EventStepStarted, domain.StepInProgress)}
	case after.Status == domain.StepAwaitingApproval:
		return []*domain.DomainEvent{mk(domain.EventStepApprovalRequested, domain.StepAwaitingApproval)}
	case before.Status == domain.StepAwaitingApproval && after.Status == domain.StepCompleted:
		return []*domain.DomainEvent{
			mk(domain.EventStepApproved, domain.StepApproved),
			mk(domain.EventStepCompleted, domain.StepCompleted),
		}
	case before.Status == domain.StepAwaitingApproval && after.Status == domain.StepInProgress:
		return []*domain.DomainEvent{mk(domain.EventStepRejected, domain.StepRejected)}
	case after.Status == domain.StepCompleted:
		return []*domain.DomainEvent{mk(domain.EventStepCompleted, domain.StepCompleted)}
	}
	return nil
}
