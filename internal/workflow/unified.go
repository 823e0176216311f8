package workflow

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/worker"
)

// UnifiedStep is a step placed in the chain-wide sequence.
type UnifiedStep struct {
	domain.Step
	OrderCode    string       `json:"order_code"`
	TypeCode     string       `json:"type_code"`
	Phase        domain.Phase `json:"phase"`
	Sequence     int          `json:"sequence"`
	AddendaCount int          `json:"addenda_count"`
}

// PhaseView groups the steps of one chain order.
type PhaseView struct {
	Label      domain.Phase       `json:"label"`
	OrderID    string             `json:"order_id"`
	OrderCode  string             `json:"order_code"`
	TypeCode   string             `json:"type_code"`
	Status     domain.OrderStatus `json:"status"`
	Steps      []UnifiedStep      `json:"steps"`
	Completed  int                `json:"completed"`
	Total      int                `json:"total"`
	IsComplete bool               `json:"is_complete"`
	IsActive   bool               `json:"is_active"`
}

// OrderRef is a short reference to a linked order.
type OrderRef struct {
	ID       string             `json:"id"`
	Code     string             `json:"code"`
	TypeCode string             `json:"type_code"`
	Status   domain.OrderStatus `json:"status"`
}

// UnifiedWorkflow is the read model of a whole chain. It is rebuilt on
// every request.
type UnifiedWorkflow struct {
	OrderID     string        `json:"order_id"`
	Phases      []PhaseView   `json:"phases"`
	Steps       []UnifiedStep `json:"steps"`
	Completed   int           `json:"completed"`
	Total       int           `json:"total"`
	Progress    int           `json:"progress"`
	CurrentStep *UnifiedStep  `json:"current_step,omitempty"`
	Parent      *OrderRef     `json:"parent,omitempty"`
	Children    []OrderRef    `json:"children"`
}

type chainSteps struct {
	steps  []domain.Step
	counts map[string]int
	err    error
}

// GetUnifiedWorkflow merges the steps of the order's chain into one
// sequence. Chain orders whose steps cannot be read are skipped; only a
// failure on the queried order is returned.
func (e *Engine) GetUnifiedWorkflow(ctx context.Context, orderID string) (*UnifiedWorkflow, error) {
	r := e.uow.Reader()
	resolver := NewResolver(r.Orders, e.catalog, e.maxDepth)
	chain, err := resolver.ResolveChain(ctx, orderID)
	if err != nil {
		return nil, err
	}

	fetched := make([]chainSteps, len(chain))
	tasks := make([]func(context.Context), len(chain))
	for i := range chain {
		i := i
		tasks[i] = func(ctx context.Context) {
			steps, err := r.Steps.ListSteps(ctx, chain[i].ID)
			if err != nil {
				fetched[i].err = err
				return
			}
			ids := make([]string, len(steps))
			for j := range steps {
				ids[j] = steps[j].ID
			}
			counts, err := r.Addenda.CountAddenda(ctx, ids)
			if err != nil {
				logger.Warn("addenda count unavailable",
					zap.String("order_id", chain[i].ID), zap.Error(err))
			}
			fetched[i] = chainSteps{steps: steps, counts: counts}
		}
	}
	if err := e.runAll(ctx, tasks); err != nil {
		return nil, err
	}

	out := &UnifiedWorkflow{OrderID: orderID, Children: []OrderRef{}}
	seq := 0
	prevComplete := true
	for i, o := range chain {
		f := fetched[i]
		if f.err != nil {
			if o.ID == orderID {
				return nil, f.err
			}
			logger.Warn("chain order steps unavailable, skipping",
				zap.String("order_id", o.ID),
				zap.String("queried_order_id", orderID),
				zap.Error(f.err))
			continue
		}
		phase := PhaseView{
			Label:     e.catalog.CategoryOf(o.TypeCode).Phase(),
			OrderID:   o.ID,
			OrderCode: o.Code,
			TypeCode:  o.TypeCode,
			Status:    o.Status,
			Steps:     make([]UnifiedStep, 0, len(f.steps)),
		}
		for _, s := range f.steps {
			seq++
			phase.Steps = append(phase.Steps, UnifiedStep{
				Step:         s,
				OrderCode:    o.Code,
				TypeCode:     o.TypeCode,
				Phase:        phase.Label,
				Sequence:     seq,
				AddendaCount: f.counts[s.ID],
			})
			if s.Status == domain.StepCompleted {
				phase.Completed++
			}
		}
		phase.Total = len(phase.Steps)
		phase.IsComplete = phase.Total > 0 && phase.Completed == phase.Total
		phase.IsActive = !phase.IsComplete && prevComplete
		prevComplete = prevComplete && phase.IsComplete

		out.Phases = append(out.Phases, phase)
		out.Steps = append(out.Steps, phase.Steps...)
		out.Completed += phase.Completed
		out.Total += phase.Total
	}
	out.Progress = progressPercent(out.Completed, out.Total)
	out.CurrentStep = currentUnified(out.Steps)

	if parent, err := resolver.ResolveParent(ctx, orderID); err != nil {
		logger.Warn("parent lookup failed", zap.String("order_id", orderID), zap.Error(err))
	} else if parent != nil {
		out.Parent = refOf(parent)
	}
	children, err := resolver.ResolveChildren(ctx, orderID)
	if err != nil {
		logger.Warn("children lookup failed", zap.String("order_id", orderID), zap.Error(err))
	}
	for i := range children {
		out.Children = append(out.Children, *refOf(&children[i]))
	}
	return out, nil
}

func progressPercent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

func currentUnified(steps []UnifiedStep) *UnifiedStep {
	plain := make([]domain.Step, len(steps))
	for i := range steps {
		plain[i] = steps[i].Step
	}
	cur := CurrentStep(plain)
	if cur == nil {
		return nil
	}
	for i := range steps {
		if steps[i].ID == cur.ID {
			c := steps[i]
			return &c
		}
	}
	return nil
}

func refOf(o *domain.Order) *OrderRef {
	return &OrderRef{ID: o.ID, Code: o.Code, TypeCode: o.TypeCode, Status: o.Status}
}

// runAll runs tasks on the fan-out pool, or inline when none is set.
func (e *Engine) runAll(ctx context.Context, tasks []func(context.Context)) error {
	if e.fanout == nil {
		for _, t := range tasks {
			t(ctx)
		}
	} else {
		wt := make([]worker.Task, len(tasks))
		for i, t := range tasks {
			wt[i] = t
		}
		if err := e.fanout.RunAll(ctx, wt...); err != nil {
			return apperrors.StoreUnavailableError("fan-out", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return apperrors.StoreUnavailableError("fan-out", err)
	}
	return nil
}
