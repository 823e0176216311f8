package memory

import (
	"context"
	"sort"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// tx is one unit of work over the Store. Each write records an undo
// closure; events are buffered until commit.
type tx struct {
	store    *Store
	readOnly bool
	undo     []func()
	events   []*domain.DomainEvent
}

func (t *tx) stores() workflow.Stores {
	st := workflow.Stores{Orders: t, Steps: t, Addenda: t, Delegations: t}
	if !t.readOnly {
		st.Events = t
	}
	return st
}

func (t *tx) rollback() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.events = nil
}

func (t *tx) record(fn func()) {
	if !t.readOnly {
		t.undo = append(t.undo, fn)
	}
}

// Publish implements workflow.EventSink.
func (t *tx) Publish(_ context.Context, events ...*domain.DomainEvent) error {
	t.events = append(t.events, events...)
	return nil
}

// Orders

func (t *tx) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUp(ctx, "get order", id); err != nil {
		return nil, err
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeOrderNotFound, "order", id)
	}
	return &o, nil
}

func (t *tx) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (*domain.Order, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUp(ctx, "update order", id); err != nil {
		return nil, err
	}
	prev, ok := s.orders[id]
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeOrderNotFound, "order", id)
	}
	next := patch.Apply(prev)
	next.Version = prev.Version + 1
	next.UpdatedAt = s.now()
	s.orders[id] = next
	t.record(func() { s.orders[id] = prev })
	return &next, nil
}

func (t *tx) ListChildren(ctx context.Context, parentID string) ([]domain.Order, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUp(ctx, "list children", parentID); err != nil {
		return nil, err
	}
	var out []domain.Order
	for _, o := range s.orders {
		if o.ParentOrderID != nil && *o.ParentOrderID == parentID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.Before(out[j].EntryDate)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (t *tx) CreateOrder(ctx context.Context, draft workflow.OrderDraft) (*domain.Order, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StoreUnavailableError("create order", err)
	}
	id := draft.ID
	if id == "" {
		id = newID()
	}
	if _, dup := s.orders[id]; dup {
		return nil, apperrors.Conflict("ORDER_EXISTS", "order already exists")
	}
	s.codeSeq[draft.TypeCode]++
	seq := s.codeSeq[draft.TypeCode]
	o := domain.Order{
		ID:            id,
		Code:          domain.FormatOrderCode(draft.TypeCode, seq),
		TypeCode:      draft.TypeCode,
		Status:        draft.Status,
		ParentOrderID: draft.ParentOrderID,
		Sector:        draft.Sector,
		ResponsibleID: draft.ResponsibleID,
		CreatedBy:     draft.CreatedBy,
		Description:   draft.Description,
		EntryDate:     draft.EntryDate,
		Deadline:      draft.Deadline,
		Version:       1,
		UpdatedAt:     s.now(),
	}
	if o.Status == "" {
		o.Status = domain.OrderIntake
	}
	s.orders[id] = o
	// The sequence is not rewound: another unit of work may already hold a
	// later code of the same type.
	t.record(func() { delete(s.orders, id) })
	return &o, nil
}

func (t *tx) ListOrders(ctx context.Context, f workflow.OrderFilter) ([]domain.Order, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StoreUnavailableError("list orders", err)
	}
	in := func(list []domain.OrderStatus, st domain.OrderStatus) bool {
		for _, x := range list {
			if x == st {
				return true
			}
		}
		return false
	}
	var out []domain.Order
	for _, o := range s.orders {
		switch {
		case len(f.Statuses) > 0 && !in(f.Statuses, o.Status),
			in(f.ExcludeStatuses, o.Status),
			f.Sector != "" && o.Sector != f.Sector,
			f.ResponsibleID != "" && o.ResponsibleID != f.ResponsibleID,
			f.TypeCode != "" && o.TypeCode != f.TypeCode,
			f.DeadlineBefore != nil && (o.Deadline == nil || !o.Deadline.Before(*f.DeadlineBefore)):
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.Before(out[j].EntryDate)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Steps

func (t *tx) ListSteps(ctx context.Context, orderID string) ([]domain.Step, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkUp(ctx, "list steps", orderID); err != nil {
		return nil, err
	}
	out := make([]domain.Step, 0, 8)
	for _, st := range s.steps {
		if st.OrderID == orderID {
			out = append(out, cloneStep(st))
		}
	}
	sortSteps(out)
	return out, nil
}

func (t *tx) GetStep(ctx context.Context, id string) (*domain.Step, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.steps[id]
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.StoreUnavailableError("get step", err)
		}
		return nil, apperrors.NotFoundError(apperrors.CodeStepNotFound, "step", id)
	}
	if err := s.checkUp(ctx, "get step", st.OrderID); err != nil {
		return nil, err
	}
	cp := cloneStep(st)
	return &cp, nil
}

func (t *tx) CreateStep(ctx context.Context, orderID string, tpl domain.StepTemplate, ordem int) (*domain.Step, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUp(ctx, "create step", orderID); err != nil {
		return nil, err
	}
	if _, ok := s.orders[orderID]; !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeOrderNotFound, "order", orderID)
	}
	maxOrdem := 0
	for _, st := range s.steps {
		if st.OrderID == orderID && st.Ordem > maxOrdem {
			maxOrdem = st.Ordem
		}
	}
	if ordem != maxOrdem+1 {
		return nil, apperrors.StepOrdemConflictError(orderID, ordem)
	}
	now := s.now()
	st := domain.Step{
		ID:          newID(),
		OrderID:     orderID,
		Ordem:       ordem,
		Name:        tpl.Name,
		TemplateKey: tpl.Key,
		Status:      domain.StepPending,
		Data:        domain.StepData{},
		History:     []domain.StepTransition{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.steps[st.ID] = st
	id := st.ID
	t.record(func() { delete(s.steps, id) })
	cp := cloneStep(st)
	return &cp, nil
}

func (t *tx) UpdateStep(ctx context.Context, id string, patch domain.StepPatch, expectedVersion int64) (*domain.Step, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.steps[id]
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeStepNotFound, "step", id)
	}
	if err := s.checkUp(ctx, "update step", prev.OrderID); err != nil {
		return nil, err
	}
	if prev.Version != expectedVersion {
		return nil, apperrors.ConcurrentModificationError("step", id, expectedVersion)
	}
	next := patch.Apply(cloneStep(prev), s.now())
	s.steps[id] = next
	t.record(func() { s.steps[id] = prev })
	cp := cloneStep(next)
	return &cp, nil
}

// Addenda

func (t *tx) InsertAddendum(ctx context.Context, row domain.Addendum) (*domain.Addendum, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StoreUnavailableError("insert addendum", err)
	}
	if row.ID == "" {
		row.ID = newID()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.addendumSeq++
	row.Seq = s.addendumSeq
	stepID := row.StepID
	s.addenda[stepID] = append(s.addenda[stepID], row)
	t.record(func() {
		list := s.addenda[stepID]
		s.addenda[stepID] = list[:len(list)-1]
	})
	return &row, nil
}

func (t *tx) ListAddenda(ctx context.Context, stepID string) ([]domain.Addendum, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StoreUnavailableError("list addenda", err)
	}
	out := append([]domain.Addendum(nil), s.addenda[stepID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (t *tx) CountAddenda(ctx context.Context, stepIDs []string) (map[string]int, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StoreUnavailableError("count addenda", err)
	}
	out := make(map[string]int, len(stepIDs))
	for _, id := range stepIDs {
		if n := len(s.addenda[id]); n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

// Delegations

func (t *tx) InsertDelegation(ctx context.Context, row domain.Delegation) (*domain.Delegation, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StoreUnavailableError("insert delegation", err)
	}
	if row.ID == "" {
		row.ID = newID()
	}
	row.StepIDs = append([]string(nil), row.StepIDs...)
	s.delegations[row.ID] = row
	id := row.ID
	t.record(func() { delete(s.delegations, id) })
	return &row, nil
}

func (t *tx) UpdateDelegation(ctx context.Context, id string, patch domain.DelegationPatch) (*domain.Delegation, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StoreUnavailableError("update delegation", err)
	}
	prev, ok := s.delegations[id]
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeDelegationNotFound, "delegation", id)
	}
	next := prev
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.Notes != nil {
		next.Notes = *patch.Notes
	}
	next.UpdatedAt = s.now()
	s.delegations[id] = next
	t.record(func() { s.delegations[id] = prev })
	return &next, nil
}

func (t *tx) GetDelegation(ctx context.Context, id string) (*domain.Delegation, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StoreUnavailableError("get delegation", err)
	}
	d, ok := s.delegations[id]
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeDelegationNotFound, "delegation", id)
	}
	return &d, nil
}

func (t *tx) ListDelegations(ctx context.Context, orderID string) ([]domain.Delegation, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StoreUnavailableError("list delegations", err)
	}
	out := []domain.Delegation{}
	for _, d := range s.delegations {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
