package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

const storeScopeName = "github.com/pCruvinel/Minervav2-sub003/store"

type instruments struct {
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// op starts a span and counts the named store operation.
func (in *instruments) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := in.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	in.ops.Add(ctx, 1, metric.WithAttributes(attribute.String("db.operation", name)))
	return ctx, span, time.Now()
}

// done ends the span and records duration and error.
func (in *instruments) done(ctx context.Context, span trace.Span, name string, start time.Time, err error) {
	opAttr := metric.WithAttributes(attribute.String("db.operation", name))
	in.dur.Record(ctx, float64(time.Since(start).Microseconds())/1000, opAttr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.errs.Add(ctx, 1, opAttr)
	}
	span.End()
}

// UnitOfWork is a workflow.UnitOfWork that traces every unit of work and
// every store call made inside it.
type UnitOfWork struct {
	inner workflow.UnitOfWork
	in    *instruments
}

// WrapUnitOfWork decorates uow. It returns uow unchanged when p records
// nothing.
func WrapUnitOfWork(uow workflow.UnitOfWork, p *Provider) workflow.UnitOfWork {
	if !p.Enabled() {
		return uow
	}
	m := p.Meter(storeScopeName)
	ops, _ := m.Int64Counter("minerva.store.operations",
		metric.WithDescription("Store operations executed"),
	)
	dur, _ := m.Float64Histogram("minerva.store.operation.duration",
		metric.WithDescription("Store operation duration"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("minerva.store.errors",
		metric.WithDescription("Store operations that returned an error"),
	)
	return &UnitOfWork{
		inner: uow,
		in:    &instruments{tracer: p.Tracer(storeScopeName), ops: ops, dur: dur, errs: errs},
	}
}

// InOrder traces the whole unit of work, lock wait included.
func (u *UnitOfWork) InOrder(ctx context.Context, orderID string, fn func(context.Context, workflow.Stores) error) error {
	const name = "InOrder"
	ctx, span, t := u.in.op(ctx, name, attribute.String("minerva.order.id", orderID))
	err := u.inner.InOrder(ctx, orderID, func(txCtx context.Context, s workflow.Stores) error {
		return fn(txCtx, u.wrap(s))
	})
	u.in.done(ctx, span, name, t, err)
	return err
}

// Reader returns traced read-side stores.
func (u *UnitOfWork) Reader() workflow.Stores {
	return u.wrap(u.inner.Reader())
}

func (u *UnitOfWork) wrap(s workflow.Stores) workflow.Stores {
	out := workflow.Stores{
		Orders:      &orderStore{inner: s.Orders, in: u.in},
		Steps:       &stepStore{inner: s.Steps, in: u.in},
		Addenda:     &addendumStore{inner: s.Addenda, in: u.in},
		Delegations: &delegationStore{inner: s.Delegations, in: u.in},
	}
	if s.Events != nil {
		out.Events = &eventSink{inner: s.Events, in: u.in}
	}
	return out
}

// ── Orders ──────────────────────────────────────────────────────────────────

type orderStore struct {
	inner workflow.OrderStore
	in    *instruments
}

func (s *orderStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span, t := s.in.op(ctx, "GetOrder", attribute.String("minerva.order.id", id))
	v, err := s.inner.GetOrder(ctx, id)
	s.in.done(ctx, span, "GetOrder", t, err)
	return v, err
}

func (s *orderStore) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (*domain.Order, error) {
	ctx, span, t := s.in.op(ctx, "UpdateOrder", attribute.String("minerva.order.id", id))
	v, err := s.inner.UpdateOrder(ctx, id, patch)
	s.in.done(ctx, span, "UpdateOrder", t, err)
	return v, err
}

func (s *orderStore) ListChildren(ctx context.Context, parentID string) ([]domain.Order, error) {
	ctx, span, t := s.in.op(ctx, "ListChildren", attribute.String("minerva.order.id", parentID))
	v, err := s.inner.ListChildren(ctx, parentID)
	s.in.done(ctx, span, "ListChildren", t, err)
	return v, err
}

func (s *orderStore) CreateOrder(ctx context.Context, draft workflow.OrderDraft) (*domain.Order, error) {
	ctx, span, t := s.in.op(ctx, "CreateOrder", attribute.String("minerva.order.type", draft.TypeCode))
	v, err := s.inner.CreateOrder(ctx, draft)
	s.in.done(ctx, span, "CreateOrder", t, err)
	return v, err
}

func (s *orderStore) ListOrders(ctx context.Context, filter workflow.OrderFilter) ([]domain.Order, error) {
	ctx, span, t := s.in.op(ctx, "ListOrders", attribute.Int("minerva.filter.limit", filter.Limit))
	v, err := s.inner.ListOrders(ctx, filter)
	span.SetAttributes(attribute.Int("minerva.order.count", len(v)))
	s.in.done(ctx, span, "ListOrders", t, err)
	return v, err
}

// ── Steps ───────────────────────────────────────────────────────────────────

type stepStore struct {
	inner workflow.StepStore
	in    *instruments
}

func (s *stepStore) ListSteps(ctx context.Context, orderID string) ([]domain.Step, error) {
	ctx, span, t := s.in.op(ctx, "ListSteps", attribute.String("minerva.order.id", orderID))
	v, err := s.inner.ListSteps(ctx, orderID)
	s.in.done(ctx, span, "ListSteps", t, err)
	return v, err
}

func (s *stepStore) GetStep(ctx context.Context, id string) (*domain.Step, error) {
	ctx, span, t := s.in.op(ctx, "GetStep", attribute.String("minerva.step.id", id))
	v, err := s.inner.GetStep(ctx, id)
	s.in.done(ctx, span, "GetStep", t, err)
	return v, err
}

func (s *stepStore) CreateStep(ctx context.Context, orderID string, tpl domain.StepTemplate, ordem int) (*domain.Step, error) {
	ctx, span, t := s.in.op(ctx, "CreateStep",
		attribute.String("minerva.order.id", orderID),
		attribute.Int("minerva.step.ordem", ordem),
	)
	v, err := s.inner.CreateStep(ctx, orderID, tpl, ordem)
	s.in.done(ctx, span, "CreateStep", t, err)
	return v, err
}

func (s *stepStore) UpdateStep(ctx context.Context, id string, patch domain.StepPatch, expectedVersion int64) (*domain.Step, error) {
	ctx, span, t := s.in.op(ctx, "UpdateStep",
		attribute.String("minerva.step.id", id),
		attribute.Int64("minerva.step.version", expectedVersion),
	)
	v, err := s.inner.UpdateStep(ctx, id, patch, expectedVersion)
	s.in.done(ctx, span, "UpdateStep", t, err)
	return v, err
}

// ── Addenda ─────────────────────────────────────────────────────────────────

type addendumStore struct {
	inner workflow.AddendumStore
	in    *instruments
}

func (s *addendumStore) InsertAddendum(ctx context.Context, row domain.Addendum) (*domain.Addendum, error) {
	ctx, span, t := s.in.op(ctx, "InsertAddendum", attribute.String("minerva.step.id", row.StepID))
	v, err := s.inner.InsertAddendum(ctx, row)
	s.in.done(ctx, span, "InsertAddendum", t, err)
	return v, err
}

func (s *addendumStore) ListAddenda(ctx context.Context, stepID string) ([]domain.Addendum, error) {
	ctx, span, t := s.in.op(ctx, "ListAddenda", attribute.String("minerva.step.id", stepID))
	v, err := s.inner.ListAddenda(ctx, stepID)
	s.in.done(ctx, span, "ListAddenda", t, err)
	return v, err
}

func (s *addendumStore) CountAddenda(ctx context.Context, stepIDs []string) (map[string]int, error) {
	ctx, span, t := s.in.op(ctx, "CountAddenda", attribute.Int("minerva.step.count", len(stepIDs)))
	v, err := s.inner.CountAddenda(ctx, stepIDs)
	s.in.done(ctx, span, "CountAddenda", t, err)
	return v, err
}

// ── Delegations ─────────────────────────────────────────────────────────────

type delegationStore struct {
	inner workflow.DelegationStore
	in    *instruments
}

func (s *delegationStore) InsertDelegation(ctx context.Context, row domain.Delegation) (*domain.Delegation, error) {
	ctx, span, t := s.in.op(ctx, "InsertDelegation", attribute.String("minerva.order.id", row.OrderID))
	v, err := s.inner.InsertDelegation(ctx, row)
	s.in.done(ctx, span, "InsertDelegation", t, err)
	return v, err
}

func (s *delegationStore) UpdateDelegation(ctx context.Context, id string, patch domain.DelegationPatch) (*domain.Delegation, error) {
	ctx, span, t := s.in.op(ctx, "UpdateDelegation", attribute.String("minerva.delegation.id", id))
	v, err := s.inner.UpdateDelegation(ctx, id, patch)
	s.in.done(ctx, span, "UpdateDelegation", t, err)
	return v, err
}

func (s *delegationStore) GetDelegation(ctx context.Context, id string) (*domain.Delegation, error) {
	ctx, span, t := s.in.op(ctx, "GetDelegation", attribute.String("minerva.delegation.id", id))
	v, err := s.inner.GetDelegation(ctx, id)
	s.in.done(ctx, span, "GetDelegation", t, err)
	return v, err
}

func (s *delegationStore) ListDelegations(ctx context.Context, orderID string) ([]domain.Delegation, error) {
	ctx, span, t := s.in.op(ctx, "ListDelegations", attribute.String("minerva.order.id", orderID))
	v, err := s.inner.ListDelegations(ctx, orderID)
	s.in.done(ctx, span, "ListDelegations", t, err)
	return v, err
}

// ── Events ──────────────────────────────────────────────────────────────────

type eventSink struct {
	inner workflow.EventSink
	in    *instruments
}

func (s *eventSink) Publish(ctx context.Context, events ...*domain.DomainEvent) error {
	ctx, span, t := s.in.op(ctx, "Publish", attribute.Int("minerva.event.count", len(events)))
	err := s.inner.Publish(ctx, events...)
	s.in.done(ctx, span, "Publish", t, err)
	return err
}
