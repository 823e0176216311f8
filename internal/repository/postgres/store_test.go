package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/pCruvinel/Minervav2-sub003/internal/capability"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/testutil"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "json")
	os.Exit(m.Run())
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recordingEnqueuer struct {
	mu     sync.Mutex
	events []*domain.DomainEvent
	err    error
}

func (r *recordingEnqueuer) EnqueueTx(_ context.Context, _ pgx.Tx, events []*domain.DomainEvent) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestStore(t *testing.T, prefix string, opts ...Option) *Store {
	t.Helper()
	pool := testutil.OpenPGXPool(t, prefix)
	require.NoError(t, Migrate(context.Background(), pool))
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return NewStore(pool, opts...)
}

func createOrder(t *testing.T, s *Store, id, typeCode string, steps int) *domain.Order {
	t.Helper()
	ctx := context.Background()
	var out *domain.Order
	err := s.InOrder(ctx, id, func(ctx context.Context, st workflow.Stores) error {
		o, err := st.Orders.CreateOrder(ctx, workflow.OrderDraft{
			ID: id, TypeCode: typeCode, Sector: "obras", CreatedBy: "u1", EntryDate: t0,
		})
		if err != nil {
			return err
		}
		for i := 1; i <= steps; i++ {
			if _, err := st.Steps.CreateStep(ctx, id, domain.StepTemplate{Key: fmt.Sprintf("k%d", i), Name: "S"}, i); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestBuildListOrders(t *testing.T) {
	t.Parallel()
	cutoff := t0.Add(48 * time.Hour)
	query, args := buildListOrders(workflow.OrderFilter{
		Statuses:        []domain.OrderStatus{domain.OrderInProgress, domain.OrderOverdue},
		ExcludeStatuses: []domain.OrderStatus{domain.OrderCancelled},
		Sector:          "obras",
		DeadlineBefore:  &cutoff,
		Limit:           10,
	})
	require.Contains(t, query, `FROM "service_orders"`)
	require.Contains(t, query, `"service_orders"."status" IN (`)
	require.Contains(t, query, `NOT IN (`)
	require.Contains(t, query, `"service_orders"."deadline" IS NOT NULL`)
	require.Contains(t, query, `ORDER BY "service_orders"."entry_date", "service_orders"."id"`)
	require.Contains(t, query, "LIMIT")
	require.Contains(t, query, "$5")
	require.Equal(t, []any{"in_progress", "overdue", "cancelled", "obras", cutoff}, args)

	query, args = buildListOrders(workflow.OrderFilter{})
	require.NotContains(t, query, "WHERE")
	require.Empty(t, args)
}

func TestMapError(t *testing.T) {
	t.Parallel()
	plain := errors.New("boom")
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"deadline", context.DeadlineExceeded, apperrors.CodeStoreUnavailable},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), apperrors.CodeStoreUnavailable},
		{"query canceled", &pgconn.PgError{Code: pgQueryCanceled}, apperrors.CodeStoreUnavailable},
		{"lock timeout", &pgconn.PgError{Code: pgLockNotAvailable}, apperrors.CodeStoreUnavailable},
		{"app error passes", apperrors.StepOrdemConflictError("o", 2), apperrors.CodeStepOrdemConflict},
		{"other", plain, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mapError("op", tt.err)
			require.Equal(t, tt.code, apperrors.CodeOf(got))
			if tt.code == "" {
				require.ErrorIs(t, got, plain)
			}
		})
	}
	require.NoError(t, mapError("op", nil))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "service_orders_pkey"})
	require.True(t, isUniqueViolation(err, ""))
	require.True(t, isUniqueViolation(err, "service_orders_pkey"))
	require.False(t, isUniqueViolation(err, "order_steps_order_id_ordem_key"))
	require.False(t, isUniqueViolation(errors.New("x"), ""))
}

func TestStore_CreateOrderAndSteps(t *testing.T) {
	s := newTestStore(t, "pg_create")
	ctx := context.Background()

	a := createOrder(t, s, "0190f7a4-0000-7000-8000-000000000001", "OS-13", 3)
	b := createOrder(t, s, "0190f7a4-0000-7000-8000-000000000002", "OS-13", 0)
	require.Equal(t, "OS-13-0001", a.Code)
	require.Equal(t, "OS-13-0002", b.Code)
	require.Equal(t, domain.OrderIntake, a.Status)
	require.Equal(t, int64(1), a.Version)

	steps, err := s.Reader().Steps.ListSteps(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, st := range steps {
		require.Equal(t, i+1, st.Ordem)
		require.Equal(t, domain.StepPending, st.Status)
		require.Empty(t, st.History)
	}

	for _, ordem := range []int{1, 3, 5} {
		err := s.InOrder(ctx, a.ID, func(ctx context.Context, st workflow.Stores) error {
			_, err := st.Steps.CreateStep(ctx, a.ID, domain.StepTemplate{Key: "x"}, ordem)
			return err
		})
		require.True(t, apperrors.IsCode(err, apperrors.CodeStepOrdemConflict), "ordem %d: %v", ordem, err)
	}

	err = s.InOrder(ctx, a.ID, func(ctx context.Context, st workflow.Stores) error {
		_, err := st.Orders.CreateOrder(ctx, workflow.OrderDraft{ID: a.ID, TypeCode: "OS-13", CreatedBy: "u", EntryDate: t0})
		return err
	})
	require.Error(t, err)

	_, err = s.Reader().Orders.GetOrder(ctx, "0190f7a4-0000-7000-8000-00000000ffff")
	require.True(t, apperrors.IsCode(err, apperrors.CodeOrderNotFound))
}

func TestStore_UpdateStepVersionGuard(t *testing.T) {
	s := newTestStore(t, "pg_version")
	ctx := context.Background()
	o := createOrder(t, s, "0190f7a4-0000-7000-8000-000000000010", "OS-07", 1)
	steps, err := s.Reader().Steps.ListSteps(ctx, o.ID)
	require.NoError(t, err)
	stepID := steps[0].ID

	status := domain.StepInProgress
	started := t0
	err = s.InOrder(ctx, o.ID, func(ctx context.Context, st workflow.Stores) error {
		got, err := st.Steps.UpdateStep(ctx, stepID, domain.StepPatch{
			Status:    &status,
			StartedAt: &started,
			Data:      domain.StepData{"cliente": "ACME", domain.DocumentsKey: map[string]any{"art": "a.pdf"}},
			Append:    []domain.StepTransition{{From: domain.StepPending, To: domain.StepInProgress, Actor: "u", At: t0}},
		}, 1)
		require.NoError(t, err)
		require.Equal(t, int64(2), got.Version)
		return nil
	})
	require.NoError(t, err)

	got, err := s.Reader().Steps.GetStep(ctx, stepID)
	require.NoError(t, err)
	require.Equal(t, domain.StepInProgress, got.Status)
	require.Equal(t, "ACME", got.Data["cliente"])
	require.Equal(t, "a.pdf", got.Data.Documents()["art"])
	require.Len(t, got.History, 1)
	require.True(t, got.StartedAt.Equal(t0))

	err = s.InOrder(ctx, o.ID, func(ctx context.Context, st workflow.Stores) error {
		_, err := st.Steps.UpdateStep(ctx, stepID, domain.StepPatch{Status: &status}, 1)
		return err
	})
	require.True(t, apperrors.IsCode(err, apperrors.CodeConcurrentModification))
}

func TestStore_InOrderRollsBack(t *testing.T) {
	enq := &recordingEnqueuer{}
	s := newTestStore(t, "pg_rollback", WithEnqueuer(enq))
	ctx := context.Background()
	o := createOrder(t, s, "0190f7a4-0000-7000-8000-000000000020", "OS-07", 1)
	before := enq.count()
	boom := errors.New("boom")

	err := s.InOrder(ctx, o.ID, func(ctx context.Context, st workflow.Stores) error {
		status := domain.OrderInProgress
		if _, err := st.Orders.UpdateOrder(ctx, o.ID, domain.OrderPatch{Status: &status}); err != nil {
			return err
		}
		if _, err := st.Steps.CreateStep(ctx, o.ID, domain.StepTemplate{Key: "b"}, 2); err != nil {
			return err
		}
		if _, err := st.Orders.CreateOrder(ctx, workflow.OrderDraft{TypeCode: "OS-07", CreatedBy: "u", EntryDate: t0}); err != nil {
			return err
		}
		require.NoError(t, st.Events.Publish(ctx, domain.NewEvent(domain.EventOrderStatusChanged, domain.AggregateOrder, o.ID, o.ID, "u", nil, t0)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	r := s.Reader()
	got, err := r.Orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderIntake, got.Status)
	require.Equal(t, int64(1), got.Version)
	steps, err := r.Steps.ListSteps(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, before, enq.count())

	var events int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM domain_events WHERE order_id = $1`, o.ID).Scan(&events))
	require.Zero(t, events)

	// The code sequence rolled back with the transaction.
	next := createOrder(t, s, "0190f7a4-0000-7000-8000-000000000021", "OS-07", 0)
	require.Equal(t, "OS-07-0002", next.Code)
}

func TestStore_EventsCommitWithMutation(t *testing.T) {
	enq := &recordingEnqueuer{}
	s := newTestStore(t, "pg_events", WithEnqueuer(enq))
	ctx := context.Background()
	o := createOrder(t, s, "0190f7a4-0000-7000-8000-000000000030", "OS-07", 1)

	ev := domain.NewEvent(domain.EventOrderOpened, domain.AggregateOrder, o.ID, o.ID, "u1",
		domain.OrderEventPayload{OrderID: o.ID, OrderCode: o.Code, To: domain.OrderIntake}, t0)
	require.NoError(t, s.InOrder(ctx, o.ID, func(ctx context.Context, st workflow.Stores) error {
		return st.Events.Publish(ctx, ev)
	}))
	require.Equal(t, 1, enq.count())

	got, status, err := s.Queries().GetDomainEvent(ctx, ev.EventID)
	require.NoError(t, err)
	require.Equal(t, EventStatusPending, status)
	require.Equal(t, domain.EventOrderOpened, got.EventType)
	var payload domain.OrderEventPayload
	require.NoError(t, got.Decode(&payload))
	require.Equal(t, o.Code, payload.OrderCode)

	require.NoError(t, s.Queries().SetDomainEventStatus(ctx, ev.EventID, EventStatusDispatched))
	_, status, err = s.Queries().GetDomainEvent(ctx, ev.EventID)
	require.NoError(t, err)
	require.Equal(t, EventStatusDispatched, status)

	// An enqueue failure aborts the whole unit of work.
	enq.err = errors.New("queue down")
	err = s.InOrder(ctx, o.ID, func(ctx context.Context, st workflow.Stores) error {
		status := domain.OrderInProgress
		if _, err := st.Orders.UpdateOrder(ctx, o.ID, domain.OrderPatch{Status: &status}); err != nil {
			return err
		}
		return st.Events.Publish(ctx, domain.NewEvent(domain.EventOrderStatusChanged, domain.AggregateOrder, o.ID, o.ID, "u1", nil, t0))
	})
	require.Error(t, err)
	after, err := s.Reader().Orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderIntake, after.Status)
}

func TestStore_InOrderSerializesSameOrder(t *testing.T) {
	s := newTestStore(t, "pg_lock")
	ctx := context.Background()
	o := createOrder(t, s, "0190f7a4-0000-7000-8000-000000000040", "OS-07", 1)
	steps, err := s.Reader().Steps.ListSteps(ctx, o.ID)
	require.NoError(t, err)
	stepID := steps[0].ID

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.InOrder(ctx, o.ID, func(ctx context.Context, st workflow.Stores) error {
				cur, err := st.Steps.GetStep(ctx, stepID)
				if err != nil {
					return err
				}
				c := fmt.Sprintf("w%d", i)
				_, err = st.Steps.UpdateStep(ctx, stepID, domain.StepPatch{Comment: &c}, cur.Version)
				return err
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	got, err := s.Reader().Steps.GetStep(ctx, stepID)
	require.NoError(t, err)
	require.Equal(t, int64(1+workers), got.Version)
}

func TestStore_AddendaAndDelegations(t *testing.T) {
	s := newTestStore(t, "pg_annotations")
	ctx := context.Background()
	o := createOrder(t, s, "0190f7a4-0000-7000-8000-000000000050", "OS-07", 2)
	steps, err := s.Reader().Steps.ListSteps(ctx, o.ID)
	require.NoError(t, err)

	const n = 20
	require.NoError(t, s.InOrder(ctx, o.ID, func(ctx context.Context, st workflow.Stores) error {
		for i := 0; i < n; i++ {
			if _, err := st.Addenda.InsertAddendum(ctx, domain.Addendum{
				StepID: steps[0].ID, FieldKey: "f", Content: fmt.Sprintf("c%02d", i), AuthorID: "u", CreatedAt: t0,
			}); err != nil {
				return err
			}
		}
		return nil
	}))
	list, err := s.Reader().Addenda.ListAddenda(ctx, steps[0].ID)
	require.NoError(t, err)
	require.Len(t, list, n)
	for i, a := range list {
		require.Equal(t, fmt.Sprintf("c%02d", i), a.Content)
	}
	counts, err := s.Reader().Addenda.CountAddenda(ctx, []string{steps[0].ID, steps[1].ID})
	require.NoError(t, err)
	require.Equal(t, map[string]int{steps[0].ID: n}, counts)

	deadline := t0.Add(72 * time.Hour)
	require.NoError(t, s.InOrder(ctx, o.ID, func(ctx context.Context, st workflow.Stores) error {
		d, err := st.Delegations.InsertDelegation(ctx, domain.Delegation{
			OrderID: o.ID, DelegatorID: "a", DelegateID: "b", StepIDs: []string{steps[1].ID},
			Description: "check", Deadline: &deadline, Status: domain.DelegationPending,
		})
		if err != nil {
			return err
		}
		status := domain.DelegationInProgress
		d, err = st.Delegations.UpdateDelegation(ctx, d.ID, domain.DelegationPatch{Status: &status})
		if err != nil {
			return err
		}
		require.Equal(t, domain.DelegationInProgress, d.Status)
		return nil
	}))
	ds, err := s.Reader().Delegations.ListDelegations(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.Equal(t, []string{steps[1].ID}, ds[0].StepIDs)
	require.True(t, ds[0].Deadline.Equal(deadline))

	_, err = s.Reader().Delegations.GetDelegation(ctx, "missing")
	require.True(t, apperrors.IsCode(err, apperrors.CodeDelegationNotFound))
}

func TestStore_ListOrdersAndChildren(t *testing.T) {
	s := newTestStore(t, "pg_list")
	ctx := context.Background()
	root := createOrder(t, s, "0190f7a4-0000-7000-8000-000000000060", "OS-01", 0)

	parent := root.ID
	for i, id := range []string{"0190f7a4-0000-7000-8000-000000000062", "0190f7a4-0000-7000-8000-000000000061"} {
		entry := t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.InOrder(ctx, id, func(ctx context.Context, st workflow.Stores) error {
			_, err := st.Orders.CreateOrder(ctx, workflow.OrderDraft{
				ID: id, TypeCode: "OS-13", ParentOrderID: &parent, Sector: "obras", CreatedBy: "u", EntryDate: entry,
			})
			return err
		}))
	}

	children, err := s.Reader().Orders.ListChildren(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, "0190f7a4-0000-7000-8000-000000000062", children[0].ID)
	require.Equal(t, root.ID, *children[0].ParentOrderID)

	all, err := s.Reader().Orders.ListOrders(ctx, workflow.OrderFilter{TypeCode: "OS-13"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	one, err := s.Reader().Orders.ListOrders(ctx, workflow.OrderFilter{Sector: "obras", Limit: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
}

func TestStore_DrivesEngine(t *testing.T) {
	s := newTestStore(t, "pg_engine")
	ctx := context.Background()
	catalog := domain.DefaultCatalog()
	engine := workflow.NewEngine(s, catalog, capability.New(catalog, nil),
		workflow.WithClock(func() time.Time { return t0 }))
	actor := domain.Actor{ID: "coord-adm", Cargo: domain.CargoCoordAdministrativo, Sector: domain.SectorAdministrativo}

	order, first, err := engine.OpenOrder(ctx, workflow.OpenOrderRequest{TypeCode: "OS-01", Actor: actor})
	require.NoError(t, err)
	require.Equal(t, "OS-01-0001", order.Code)
	require.Equal(t, 1, first.Ordem)

	_, err = engine.TransitionStep(ctx, workflow.TransitionRequest{StepID: first.ID, Target: domain.StepInProgress, Actor: actor})
	require.NoError(t, err)
	res, err := engine.TransitionStep(ctx, workflow.TransitionRequest{
		StepID: first.ID, Target: domain.StepCompleted, Actor: actor, Payload: domain.StepData{"cliente_id": "c-1"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StepCompleted, res.Step.Status)
	require.NotNil(t, res.NextStep)
	require.Equal(t, 2, res.NextStep.Ordem)

	var events int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM domain_events WHERE order_id = $1`, order.ID).Scan(&events))
	require.GreaterOrEqual(t, events, 3)
}
