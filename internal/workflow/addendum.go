package workflow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// AddAddendum appends a note to one field of a completed step. The
// original value in step_data is never touched.
func (e *Engine) AddAddendum(ctx context.Context, stepID, fieldKey, content string, actor domain.Actor) (*domain.Addendum, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	fieldKey = strings.TrimSpace(fieldKey)
	if fieldKey == "" {
		return nil, apperrors.ValidationError("field key is required", "field_key")
	}
	pre, err := e.uow.Reader().Steps.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	var out *domain.Addendum
	err = e.uow.InOrder(ctx, pre.OrderID, func(ctx context.Context, s Stores) error {
		step, err := s.Steps.GetStep(ctx, stepID)
		if err != nil {
			return err
		}
		if step.Status != domain.StepCompleted {
			return apperrors.StepNotCompletedError(step.ID, string(step.Status))
		}
		if strings.TrimSpace(content) == "" {
			return apperrors.EmptyContentError("content")
		}
		now := e.now()
		out, err = s.Addenda.InsertAddendum(ctx, domain.Addendum{
			ID:        e.newID(),
			StepID:    step.ID,
			FieldKey:  fieldKey,
			Content:   content,
			AuthorID:  actor.ID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		return publish(ctx, s, []*domain.DomainEvent{
			domain.NewEvent(domain.EventAddendumAdded, domain.AggregateStep, step.ID, step.OrderID, actor.ID,
				domain.AddendumEventPayload{AddendumID: out.ID, StepID: step.ID, FieldKey: fieldKey}, now),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("addendum added",
		zap.String("order_id", pre.OrderID),
		zap.String("step_id", stepID),
		zap.String("field_key", fieldKey),
		zap.String("actor", actor.ID),
	)
	return out, nil
}

// ListAddendaForField returns the field's addenda oldest first.
func (e *Engine) ListAddendaForField(ctx context.Context, stepID, fieldKey string) ([]domain.Addendum, error) {
	all, err := e.ListAddenda(ctx, stepID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Addendum, 0, len(all))
	for _, a := range all {
		if a.FieldKey == fieldKey {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListAddenda returns every addendum of the step oldest first.
func (e *Engine) ListAddenda(ctx context.Context, stepID string) ([]domain.Addendum, error) {
	r := e.uow.Reader()
	if _, err := r.Steps.GetStep(ctx, stepID); err != nil {
		return nil, err
	}
	return r.Addenda.ListAddenda(ctx, stepID)
}
