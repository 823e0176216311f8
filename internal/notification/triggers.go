package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// Triggers maps committed domain events to inbox notifications:
//   - approval requested goes to the step approver, else the order responsible
//   - approved and rejected go to whoever submitted the step
//   - a new delegation goes to the delegate
//   - a declined or completed delegation goes back to the delegator
//   - a deadline alert goes to the order responsible, once per day
type Triggers struct {
	sender Sender
}

// NewTriggers creates the trigger set.
func NewTriggers(sender Sender) *Triggers {
	return &Triggers{sender: sender}
}

// Register subscribes the triggers on d.
func (t *Triggers) Register(d *domain.EventDispatcher) {
	d.Register(domain.EventStepApprovalRequested, t.OnApprovalRequested)
	d.Register(domain.EventStepApproved, t.OnStepDecision)
	d.Register(domain.EventStepRejected, t.OnStepDecision)
	d.Register(domain.EventDelegationCreated, t.OnDelegationCreated)
	d.Register(domain.EventDelegationStatusChanged, t.OnDelegationStatusChanged)
	d.Register(domain.EventOrderDeadlineAlert, t.OnDeadlineAlert)
}

// OnApprovalRequested notifies the approver of a step submitted for approval.
func (t *Triggers) OnApprovalRequested(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.StepEventPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode step payload: %w", err)
	}
	recipient := p.ApproverID
	if recipient == "" {
		recipient = p.ResponsibleID
	}
	if recipient == "" {
		logger.Warn("no recipient for approval request",
			zap.String("order_id", p.OrderID),
			zap.String("step_id", p.StepID),
		)
		return nil
	}
	return t.sender.Send(ctx, Params{
		RecipientID:  recipient,
		Type:         TypeApprovalRequested,
		Title:        fmt.Sprintf("%s: approval requested", p.OrderCode),
		Message:      fmt.Sprintf("Step %d (%s) is awaiting your approval", p.Ordem, p.StepName),
		OrderID:      p.OrderID,
		ResourceType: domain.AggregateStep,
		ResourceID:   p.StepID,
		DedupKey:     eventKey(ev, recipient),
	})
}

// OnStepDecision notifies the submitter that the step was approved or rejected.
func (t *Triggers) OnStepDecision(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.StepEventPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode step payload: %w", err)
	}
	if p.RequesterID == "" {
		return nil
	}
	typ, verb := TypeStepApproved, "approved"
	if ev.EventType == domain.EventStepRejected {
		typ, verb = TypeStepRejected, "rejected"
	}
	msg := fmt.Sprintf("Step %d (%s) was %s", p.Ordem, p.StepName, verb)
	if p.Comment != "" {
		msg += ": " + p.Comment
	}
	return t.sender.Send(ctx, Params{
		RecipientID:  p.RequesterID,
		Type:         typ,
		Title:        fmt.Sprintf("%s: step %s", p.OrderCode, verb),
		Message:      msg,
		OrderID:      p.OrderID,
		ResourceType: domain.AggregateStep,
		ResourceID:   p.StepID,
		DedupKey:     eventKey(ev, p.RequesterID),
	})
}

// OnDelegationCreated notifies the delegate.
func (t *Triggers) OnDelegationCreated(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.DelegationEventPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode delegation payload: %w", err)
	}
	return t.sender.Send(ctx, Params{
		RecipientID:  p.DelegateID,
		Type:         TypeDelegationCreated,
		Title:        "New delegated task",
		Message:      p.Description,
		OrderID:      p.OrderID,
		ResourceType: domain.AggregateDelegation,
		ResourceID:   p.DelegationID,
		DedupKey:     eventKey(ev, p.DelegateID),
	})
}

// OnDelegationStatusChanged tells the delegator when a delegation is
// declined or completed. Other moves are not notified.
func (t *Triggers) OnDelegationStatusChanged(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.DelegationEventPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode delegation payload: %w", err)
	}
	if p.To != domain.DelegationDeclined && p.To != domain.DelegationCompleted {
		return nil
	}
	return t.sender.Send(ctx, Params{
		RecipientID:  p.DelegatorID,
		Type:         TypeDelegationUpdated,
		Title:        fmt.Sprintf("Delegation %s", p.To),
		Message:      fmt.Sprintf("%s: %s", p.DelegateID, p.Description),
		OrderID:      p.OrderID,
		ResourceType: domain.AggregateDelegation,
		ResourceID:   p.DelegationID,
		DedupKey:     eventKey(ev, p.DelegatorID),
	})
}

// OnDeadlineAlert notifies the order responsible. The dedup key is per
// order and calendar day, so repeated scans on one day send once.
func (t *Triggers) OnDeadlineAlert(ctx context.Context, ev *domain.DomainEvent) error {
	var p domain.OrderEventPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode order payload: %w", err)
	}
	if p.ResponsibleID == "" {
		logger.Warn("no responsible for deadline alert", zap.String("order_id", p.OrderID))
		return nil
	}
	msg := "Order deadline is approaching"
	if p.Deadline != nil {
		if p.Deadline.Before(ev.CreatedAt) {
			msg = "Order deadline has passed: " + p.Deadline.Format("2006-01-02")
		} else {
			msg = "Order deadline is " + p.Deadline.Format("2006-01-02")
		}
	}
	return t.sender.Send(ctx, Params{
		RecipientID:  p.ResponsibleID,
		Type:         TypeDeadlineAlert,
		Title:        fmt.Sprintf("%s: deadline alert", p.OrderCode),
		Message:      msg,
		OrderID:      p.OrderID,
		ResourceType: domain.AggregateOrder,
		ResourceID:   p.OrderID,
		DedupKey:     DeadlineAlertKey(p.OrderID, ev.CreatedAt.UTC().Format("2006-01-02")),
	})
}

// DeadlineAlertKey is the dedup key of a deadline alert for one order and day.
func DeadlineAlertKey(orderID, day string) string {
	return "deadline_alert:" + orderID + ":" + day
}

func eventKey(ev *domain.DomainEvent, recipient string) string {
	return "event:" + ev.EventID + ":" + recipient
}
