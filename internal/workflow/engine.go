package workflow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/worker"
)

// Engine exposes the workflow operations. It is safe for concurrent use.
type Engine struct {
	uow       UnitOfWork
	catalog   *domain.Catalog
	caps      CapabilityProvider
	fanout    *worker.Pool
	maxDepth  int
	situation SituationResolver
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFanoutPool runs per-order reads of the unified view on pool.
func WithFanoutPool(pool *worker.Pool) Option {
	return func(e *Engine) { e.fanout = pool }
}

// WithMaxHierarchyDepth overrides MaxHierarchyDepth.
func WithMaxHierarchyDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// WithDeadlineAlertWindow overrides DefaultDeadlineAlertWindow.
func WithDeadlineAlertWindow(d time.Duration) Option {
	return func(e *Engine) { e.situation.AlertWindow = d }
}

// WithIDGenerator overrides uuid v7 ids for new rows.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an Engine.
func NewEngine(uow UnitOfWork, catalog *domain.Catalog, caps CapabilityProvider, opts ...Option) *Engine {
	e := &Engine{
		uow:       uow,
		catalog:   catalog,
		caps:      caps,
		maxDepth:  MaxHierarchyDepth,
		situation: SituationResolver{AlertWindow: DefaultDeadlineAlertWindow},
		validate:  newValidator(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newUUIDv7,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the order-type catalog the engine runs on.
func (e *Engine) Catalog() *domain.Catalog { return e.catalog }

// Resolver returns a hierarchy resolver over the read-side stores.
func (e *Engine) Resolver() *Resolver {
	return NewResolver(e.uow.Reader().Orders, e.catalog, e.maxDepth)
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct maps validator failures to a ValidationError naming the
// offending fields.
func (e *Engine) validateStruct(v any) error {
	err := e.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.ValidationError(err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return apperrors.ValidationError("invalid request", fields...)
}

func (e *Engine) templateLen(typeCode string) int {
	if t, ok := e.catalog.Type(typeCode); ok {
		return t.TotalSteps()
	}
	return 0
}

// templateFor falls back to a permissive template for steps whose order
// type is not in the catalog.
func (e *Engine) templateFor(order *domain.Order, step *domain.Step) domain.StepTemplate {
	if tpl, ok := e.catalog.Template(order.TypeCode, step.Ordem); ok {
		return tpl
	}
	return domain.StepTemplate{Ordem: step.Ordem, Key: step.TemplateKey, Name: step.Name}
}

// recompute updates the order's coarse status from steps when it changed.
func (e *Engine) recompute(ctx context.Context, s Stores, order *domain.Order, steps []domain.Step, actor string, now time.Time) (*domain.Order, []*domain.DomainEvent, error) {
	next := RecomputeOrderStatus(order, steps, e.templateLen(order.TypeCode), now)
	if next == order.Status {
		return order, nil, nil
	}
	patch := domain.OrderPatch{Status: &next}
	if next == domain.OrderCompleted {
		patch.CompletedAt = &now
	} else if order.CompletedAt != nil {
		patch.ClearComplete = true
	}
	updated, err := s.Orders.UpdateOrder(ctx, order.ID, patch)
	if err != nil {
		return nil, nil, err
	}
	ev := domain.NewEvent(domain.EventOrderStatusChanged, domain.AggregateOrder, order.ID, order.ID, actor,
		domain.OrderEventPayload{
			OrderID:       order.ID,
			OrderCode:     order.Code,
			TypeCode:      order.TypeCode,
			From:          order.Status,
			To:            next,
			ResponsibleID: order.ResponsibleID,
			Deadline:      order.Deadline,
		}, now)
	return updated, []*domain.DomainEvent{ev}, nil
}

func publish(ctx context.Context, s Stores, events []*domain.DomainEvent) error {
	if s.Events == nil || len(events) == 0 {
		return nil
	}
	return s.Events.Publish(ctx, events...)
}

func requireActor(actor domain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return apperrors.ValidationError("actor is required", "actor")
	}
	return nil
}
