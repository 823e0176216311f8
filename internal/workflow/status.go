package workflow

import (
	"sort"
	"time"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

// RecomputeOrderStatus derives the coarse order status from its steps.
// templateLen is the number of steps the order type defines; zero means
// unknown and every existing step must be completed instead.
//
// cancelled is final. completed is only ever returned when every step is
// completed, which also ends paused and awaiting_client; otherwise those
// manual statuses are kept.
func RecomputeOrderStatus(order *domain.Order, steps []domain.Step, templateLen int, now time.Time) domain.OrderStatus {
	current := order.Status

	completed := 0
	awaiting := false
	started := false
	for _, s := range steps {
		switch s.Status {
		case domain.StepCompleted:
			completed++
		case domain.StepAwaitingApproval:
			awaiting = true
		}
		if s.Status.Started() {
			started = true
		}
	}
	if current == domain.OrderCancelled {
		return current
	}
	total := templateLen
	if total <= 0 {
		total = len(steps)
	}
	if total > 0 && completed >= total {
		return domain.OrderCompleted
	}

	switch current {
	case domain.OrderPaused, domain.OrderAwaitingClient:
		return current
	}

	switch {
	case awaiting:
		return domain.OrderUnderValidation
	case order.PastDeadline(now):
		return domain.OrderOverdue
	case started:
		return domain.OrderInProgress
	case current == domain.OrderIntake || current == domain.OrderAwaitingInfo:
		return current
	}
	return domain.OrderIntake
}

// SituationalStatus is the derived "what needs attention now" value.
type SituationalStatus string

const (
	SituationFinalized        SituationalStatus = "finalized"
	SituationOverdue          SituationalStatus = "overdue"
	SituationAwaitingApproval SituationalStatus = "awaiting_approval"
	SituationAwaitingInfo     SituationalStatus = "awaiting_info"
	SituationDeadlineAlert    SituationalStatus = "deadline_alert"
	SituationActionPending    SituationalStatus = "action_pending"
)

// DefaultDeadlineAlertWindow is how close a deadline must be to raise an alert.
const DefaultDeadlineAlertWindow = 72 * time.Hour

// ResolveSituationalStatus applies the default alert window.
func ResolveSituationalStatus(order *domain.Order, current *domain.Step, now time.Time) SituationalStatus {
	return SituationResolver{AlertWindow: DefaultDeadlineAlertWindow}.Resolve(order, current, now)
}

// SituationResolver resolves situational status with a configurable
// deadline alert window.
type SituationResolver struct {
	AlertWindow time.Duration
}

// Resolve checks, in order: finalized, overdue, awaiting_approval,
// awaiting_info, deadline_alert, and falls back to action_pending.
func (r SituationResolver) Resolve(order *domain.Order, current *domain.Step, now time.Time) SituationalStatus {
	if order == nil {
		return SituationActionPending
	}
	if order.Status == domain.OrderCompleted {
		return SituationFinalized
	}
	if order.PastDeadline(now) {
		return SituationOverdue
	}
	if current != nil && current.Status == domain.StepAwaitingApproval {
		return SituationAwaitingApproval
	}
	if order.Status == domain.OrderAwaitingInfo || order.Status == domain.OrderAwaitingClient {
		return SituationAwaitingInfo
	}
	window := r.AlertWindow
	if window <= 0 {
		window = DefaultDeadlineAlertWindow
	}
	if order.Deadline != nil && order.Deadline.Sub(now) <= window {
		return SituationDeadlineAlert
	}
	return SituationActionPending
}

// CurrentStep picks the step a reader should look at: the first in-flight
// step (in_progress or awaiting_approval), else the first pending one,
// else the last completed one. Steps must be ordered.
func CurrentStep(steps []domain.Step) *domain.Step {
	for i := range steps {
		if steps[i].Status == domain.StepInProgress || steps[i].Status == domain.StepAwaitingApproval {
			return &steps[i]
		}
	}
	for i := range steps {
		if steps[i].Status == domain.StepPending {
			return &steps[i]
		}
	}
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Status == domain.StepCompleted {
			return &steps[i]
		}
	}
	return nil
}

var situationRank = map[SituationalStatus]int{
	SituationOverdue:          0,
	SituationAwaitingApproval: 1,
	SituationDeadlineAlert:    2,
	SituationAwaitingInfo:     3,
	SituationActionPending:    4,
	SituationFinalized:        5,
}

// DashboardRow is one order with its derived situation.
type DashboardRow struct {
	Order       domain.Order      `json:"order"`
	Situation   SituationalStatus `json:"situation"`
	CurrentStep *domain.Step      `json:"current_step,omitempty"`
}

// SortBySituation orders rows by situation priority, then by deadline
// (orders without one last), then by code.
func SortBySituation(rows []DashboardRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := situationRank[rows[i].Situation], situationRank[rows[j].Situation]
		if ri != rj {
			return ri < rj
		}
		di, dj := rows[i].Order.Deadline, rows[j].Order.Deadline
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}
		return rows[i].Order.Code < rows[j].Order.Code
	})
}
