package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// unit adapts Queries bound to one transaction (or the pool, for readers)
// to the workflow store interfaces.
type unit struct {
	store    *Store
	q        *Queries
	readOnly bool
	events   []*domain.DomainEvent
}

func (u *unit) stores() workflow.Stores {
	st := workflow.Stores{
		Orders:      u,
		Steps:       u,
		Addenda:     u,
		Delegations: u,
	}
	if !u.readOnly {
		st.Events = u
	}
	return st
}

func (u *unit) Publish(_ context.Context, events ...*domain.DomainEvent) error {
	u.events = append(u.events, events...)
	return nil
}

// Orders

func (u *unit) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := u.q.GetOrder(ctx, id)
	if isNoRows(err) {
		return nil, apperrors.NotFoundError(apperrors.CodeOrderNotFound, "order", id)
	}
	if err != nil {
		return nil, mapError("get order", err)
	}
	return o, nil
}

func (u *unit) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (*domain.Order, error) {
	prev, err := u.q.GetOrderForUpdate(ctx, id)
	if isNoRows(err) {
		return nil, apperrors.NotFoundError(apperrors.CodeOrderNotFound, "order", id)
	}
	if err != nil {
		return nil, mapError("update order", err)
	}
	next := patch.Apply(*prev)
	o, err := u.q.UpdateOrder(ctx, UpdateOrderParams{
		ID:            id,
		Status:        string(next.Status),
		ResponsibleID: next.ResponsibleID,
		Deadline:      tsOf(next.Deadline),
		CompletedAt:   tsOf(next.CompletedAt),
		UpdatedAt:     u.store.now(),
	})
	if err != nil {
		return nil, mapError("update order", err)
	}
	return o, nil
}

func (u *unit) ListChildren(ctx context.Context, parentID string) ([]domain.Order, error) {
	out, err := u.q.ListChildren(ctx, parentID)
	if err != nil {
		return nil, mapError("list children", err)
	}
	return out, nil
}

func (u *unit) CreateOrder(ctx context.Context, draft workflow.OrderDraft) (*domain.Order, error) {
	id := draft.ID
	if id == "" {
		id = newID()
	}
	status := draft.Status
	if status == "" {
		status = domain.OrderIntake
	}
	seq, err := u.q.NextOrderCode(ctx, draft.TypeCode)
	if err != nil {
		return nil, mapError("allocate order code", err)
	}
	o, err := u.q.InsertOrder(ctx, InsertOrderParams{
		ID:            id,
		Code:          domain.FormatOrderCode(draft.TypeCode, seq),
		TypeCode:      draft.TypeCode,
		Status:        string(status),
		ParentOrderID: textOf(draft.ParentOrderID),
		Sector:        draft.Sector,
		ResponsibleID: draft.ResponsibleID,
		CreatedBy:     draft.CreatedBy,
		Description:   draft.Description,
		EntryDate:     draft.EntryDate.UTC(),
		Deadline:      tsOf(draft.Deadline),
		UpdatedAt:     u.store.now(),
	})
	if isUniqueViolation(err, "service_orders_pkey") {
		return nil, apperrors.Conflict("ORDER_EXISTS", "order already exists")
	}
	if err != nil {
		return nil, mapError("create order", err)
	}
	return o, nil
}

func (u *unit) ListOrders(ctx context.Context, f workflow.OrderFilter) ([]domain.Order, error) {
	out, err := u.q.ListOrders(ctx, f)
	if err != nil {
		return nil, mapError("list orders", err)
	}
	return out, nil
}

// Steps

func (u *unit) ListSteps(ctx context.Context, orderID string) ([]domain.Step, error) {
	out, err := u.q.ListSteps(ctx, orderID)
	if err != nil {
		return nil, mapError("list steps", err)
	}
	return out, nil
}

func (u *unit) GetStep(ctx context.Context, id string) (*domain.Step, error) {
	s, err := u.q.GetStep(ctx, id)
	if isNoRows(err) {
		return nil, apperrors.NotFoundError(apperrors.CodeStepNotFound, "step", id)
	}
	if err != nil {
		return nil, mapError("get step", err)
	}
	return s, nil
}

func (u *unit) CreateStep(ctx context.Context, orderID string, tpl domain.StepTemplate, ordem int) (*domain.Step, error) {
	ok, err := u.q.OrderExists(ctx, orderID)
	if err != nil {
		return nil, mapError("create step", err)
	}
	if !ok {
		return nil, apperrors.NotFoundError(apperrors.CodeOrderNotFound, "order", orderID)
	}
	s, err := u.q.InsertStepAt(ctx, InsertStepAtParams{
		ID:          newID(),
		OrderID:     orderID,
		Ordem:       int32(ordem),
		Name:        tpl.Name,
		TemplateKey: tpl.Key,
		CreatedAt:   u.store.now(),
	})
	if isNoRows(err) || isUniqueViolation(err, "") {
		return nil, apperrors.StepOrdemConflictError(orderID, ordem)
	}
	if err != nil {
		return nil, mapError("create step", err)
	}
	return s, nil
}

func (u *unit) UpdateStep(ctx context.Context, id string, patch domain.StepPatch, expectedVersion int64) (*domain.Step, error) {
	prev, err := u.GetStep(ctx, id)
	if err != nil {
		return nil, err
	}
	if prev.Version != expectedVersion {
		return nil, apperrors.ConcurrentModificationError("step", id, expectedVersion)
	}
	next := patch.Apply(*prev, u.store.now())
	params, err := updateStepParams(next, expectedVersion)
	if err != nil {
		return nil, mapError("encode step", err)
	}
	s, err := u.q.UpdateStep(ctx, params)
	if isNoRows(err) {
		return nil, apperrors.ConcurrentModificationError("step", id, expectedVersion)
	}
	if err != nil {
		return nil, mapError("update step", err)
	}
	return s, nil
}

// Addenda

func (u *unit) InsertAddendum(ctx context.Context, row domain.Addendum) (*domain.Addendum, error) {
	if row.ID == "" {
		row.ID = newID()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = u.store.now()
	}
	a, err := u.q.InsertAddendum(ctx, row)
	if err != nil {
		return nil, mapError("insert addendum", err)
	}
	return a, nil
}

func (u *unit) ListAddenda(ctx context.Context, stepID string) ([]domain.Addendum, error) {
	out, err := u.q.ListAddenda(ctx, stepID)
	if err != nil {
		return nil, mapError("list addenda", err)
	}
	return out, nil
}

func (u *unit) CountAddenda(ctx context.Context, stepIDs []string) (map[string]int, error) {
	out, err := u.q.CountAddenda(ctx, stepIDs)
	if err != nil {
		return nil, mapError("count addenda", err)
	}
	return out, nil
}

// Delegations

func (u *unit) InsertDelegation(ctx context.Context, row domain.Delegation) (*domain.Delegation, error) {
	if row.ID == "" {
		row.ID = newID()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = u.store.now()
	}
	d, err := u.q.InsertDelegation(ctx, row)
	if err != nil {
		return nil, mapError("insert delegation", err)
	}
	return d, nil
}

func (u *unit) UpdateDelegation(ctx context.Context, id string, patch domain.DelegationPatch) (*domain.Delegation, error) {
	arg := UpdateDelegationParams{ID: id, UpdatedAt: u.store.now()}
	if patch.Status != nil {
		arg.Status = pgtype.Text{String: string(*patch.Status), Valid: true}
	}
	if patch.Notes != nil {
		arg.Notes = pgtype.Text{String: *patch.Notes, Valid: true}
	}
	d, err := u.q.UpdateDelegation(ctx, arg)
	if isNoRows(err) {
		return nil, apperrors.NotFoundError(apperrors.CodeDelegationNotFound, "delegation", id)
	}
	if err != nil {
		return nil, mapError("update delegation", err)
	}
	return d, nil
}

func (u *unit) GetDelegation(ctx context.Context, id string) (*domain.Delegation, error) {
	d, err := u.q.GetDelegation(ctx, id)
	if isNoRows(err) {
		return nil, apperrors.NotFoundError(apperrors.CodeDelegationNotFound, "delegation", id)
	}
	if err != nil {
		return nil, mapError("get delegation", err)
	}
	return d, nil
}

func (u *unit) ListDelegations(ctx context.Context, orderID string) ([]domain.Delegation, error) {
	out, err := u.q.ListDelegations(ctx, orderID)
	if err != nil {
		return nil, mapError("list delegations", err)
	}
	return out, nil
}
