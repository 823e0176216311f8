package workflow

import (
	"strings"
	"time"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
)

// CanEnter reports whether step may start: it is the first step, or the
// step right before it is completed.
func CanEnter(step domain.Step, all []domain.Step) bool {
	if step.Ordem == 1 {
		return true
	}
	prev := domain.FindByOrdem(all, step.Ordem-1)
	return prev != nil && prev.Status == domain.StepCompleted
}

// transitionInput is everything planTransition needs. It performs no I/O.
type transitionInput struct {
	Step       *domain.Step
	Siblings   []domain.Step
	Template   domain.StepTemplate
	Target     domain.StepStatus
	Actor      domain.Actor
	Payload    domain.StepData
	Comment    string
	Now        time.Time
	IsApprover bool
}

// planTransition validates one edge and returns the patch that applies it.
func planTransition(in transitionInput) (domain.StepPatch, error) {
	from := in.Step.Status
	to := in.Target
	if !to.Valid() {
		return domain.StepPatch{}, apperrors.ValidationError("unknown target status", "target")
	}
	comment := strings.TrimSpace(in.Comment)
	edge := func(f, t domain.StepStatus, c string) domain.StepTransition {
		return domain.StepTransition{From: f, To: t, Actor: in.Actor.ID, Comment: c, At: in.Now}
	}
	now := in.Now

	switch {
	case from == domain.StepPending && to == domain.StepInProgress:
		if !CanEnter(*in.Step, in.Siblings) {
			return domain.StepPatch{}, apperrors.InvalidTransitionError(string(from), string(to)).
				WithParams(map[string]any{"from": string(from), "to": string(to), "reason": "predecessor_not_completed"})
		}
		patch := domain.StepPatch{
			Status:    statusPtr(domain.StepInProgress),
			StartedAt: &now,
			Append:    []domain.StepTransition{edge(from, to, comment)},
		}
		if in.Template.SLABusinessDays > 0 {
			due := domain.AddBusinessDays(now, in.Template.SLABusinessDays)
			patch.DueAt = &due
		}
		if in.Step.ResponsibleID == "" && in.Actor.ID != "" {
			patch.ResponsibleID = &in.Actor.ID
		}
		if len(in.Payload) > 0 {
			patch.Data = in.Step.Data.Merge(in.Payload)
		}
		return patch, nil

	case from == domain.StepInProgress && (to == domain.StepAwaitingApproval || to == domain.StepCompleted):
		if (to == domain.StepAwaitingApproval) != in.Template.RequiresApproval {
			return domain.StepPatch{}, apperrors.InvalidTransitionError(string(from), string(to))
		}
		merged := in.Step.Data.Merge(in.Payload)
		if missing := missingFields(in.Template.RequiredFields, merged); len(missing) > 0 {
			return domain.StepPatch{}, apperrors.ValidationError("missing required fields", missing...)
		}
		patch := domain.StepPatch{
			Status: statusPtr(to),
			Data:   merged,
			Append: []domain.StepTransition{edge(from, to, comment)},
		}
		if comment != "" {
			patch.Comment = &comment
		}
		if to == domain.StepCompleted {
			patch.CompletedAt = &now
		}
		return patch, nil

	case from == domain.StepAwaitingApproval && to == domain.StepApproved:
		if !in.IsApprover {
			return domain.StepPatch{}, apperrors.AuthorizationError(in.Actor.ID, "approve step")
		}
		if len(in.Payload) > 0 {
			return domain.StepPatch{}, apperrors.ValidationError("payload is not accepted on review", "payload")
		}
		if ok, missing := CanApprove(in.Template, in.Step); !ok {
			return domain.StepPatch{}, apperrors.MissingDocumentationError(missing)
		}
		return domain.StepPatch{
			Status:      statusPtr(domain.StepCompleted),
			ApproverID:  &in.Actor.ID,
			Comment:     &comment,
			CompletedAt: &now,
			Append: []domain.StepTransition{
				edge(domain.StepAwaitingApproval, domain.StepApproved, comment),
				edge(domain.StepApproved, domain.StepCompleted, ""),
			},
		}, nil

	case from == domain.StepAwaitingApproval && to == domain.StepRejected:
		if !in.IsApprover {
			return domain.StepPatch{}, apperrors.AuthorizationError(in.Actor.ID, "reject step")
		}
		if comment == "" {
			return domain.StepPatch{}, apperrors.ValidationError("a rejection comment is required", "comment")
		}
		if len(in.Payload) > 0 {
			return domain.StepPatch{}, apperrors.ValidationError("payload is not accepted on review", "payload")
		}
		return domain.StepPatch{
			Status:     statusPtr(domain.StepInProgress),
			ApproverID: &in.Actor.ID,
			Comment:    &comment,
			Append: []domain.StepTransition{
				edge(domain.StepAwaitingApproval, domain.StepRejected, comment),
				edge(domain.StepRejected, domain.StepInProgress, ""),
			},
		}, nil
	}

	return domain.StepPatch{}, apperrors.InvalidTransitionError(string(from), string(to))
}

func statusPtr(s domain.StepStatus) *domain.StepStatus { return &s }
