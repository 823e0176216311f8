package jobs

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/require"

	"github.com/pCruvinel/Minervav2-sub003/internal/capability"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/notification"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/worker"
	"github.com/pCruvinel/Minervav2-sub003/internal/repository/memory"
	"github.com/pCruvinel/Minervav2-sub003/internal/repository/postgres"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "json")
	os.Exit(m.Run())
}

var scanNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type deadlineFixture struct {
	store   *memory.Store
	inbox   *notification.MemoryInbox
	scanner *DeadlineScanner
}

func newDeadlineFixture(t *testing.T) *deadlineFixture {
	t.Helper()
	clock := func() time.Time { return scanNow }
	inbox := notification.NewMemoryInbox()
	d := domain.NewEventDispatcher()
	notification.NewTriggers(inbox).Register(d)
	store := memory.New(memory.WithClock(clock), memory.WithDispatcher(d))
	catalog := domain.DefaultCatalog()
	engine := workflow.NewEngine(store, catalog, capability.New(catalog, nil), workflow.WithClock(clock))
	scanner := NewDeadlineScanner(store.Reader().Orders, engine, NewDirectAlertSink(engine, DefaultDeadlineNoticeWindow), 0).
		WithClock(clock)
	return &deadlineFixture{store: store, inbox: inbox, scanner: scanner}
}

func (f *deadlineFixture) seed(id string, status domain.OrderStatus, deadline time.Time) {
	f.store.SeedOrder(domain.Order{
		ID: id, Code: id, TypeCode: "OS-07", Status: status, Sector: "assessoria",
		ResponsibleID: "resp-" + id, EntryDate: scanNow.Add(-72 * time.Hour), Deadline: &deadline,
	})
	f.store.SeedStep(domain.Step{ID: id + "-1", OrderID: id, Ordem: 1, Status: domain.StepPending, Data: domain.StepData{}})
}

func TestDeadlineScanner_OverdueAndAlerts(t *testing.T) {
	t.Parallel()
	for _, pooled := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "pooled"}[pooled], func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := newDeadlineFixture(t)
			if pooled {
				pool, err := worker.NewPool("deadline-test", 4, time.Second)
				require.NoError(t, err)
				t.Cleanup(func() { _ = pool.Release(time.Second) })
				f.scanner.WithPool(pool)
			}
			f.seed("past", domain.OrderIntake, scanNow.Add(-time.Hour))
			f.seed("near", domain.OrderInProgress, scanNow.Add(24*time.Hour))
			f.seed("far", domain.OrderInProgress, scanNow.Add(10*24*time.Hour))
			f.seed("done", domain.OrderCompleted, scanNow.Add(-48*time.Hour))

			res, err := f.scanner.Scan(ctx)
			require.NoError(t, err)
			require.Equal(t, ScanResult{Scanned: 2, Overdue: 1, Alerts: 2}, res)

			past, err := f.store.Reader().Orders.GetOrder(ctx, "past")
			require.NoError(t, err)
			require.Equal(t, domain.OrderOverdue, past.Status)
			near, err := f.store.Reader().Orders.GetOrder(ctx, "near")
			require.NoError(t, err)
			require.Equal(t, domain.OrderInProgress, near.Status)

			require.Len(t, f.inbox.For("resp-past"), 1)
			require.Len(t, f.inbox.For("resp-near"), 1)
			require.Empty(t, f.inbox.For("resp-far"))
			require.Empty(t, f.inbox.For("resp-done"))
			require.Equal(t, notification.TypeDeadlineAlert, f.inbox.For("resp-near")[0].Type)

			// A second pass on the same day changes nothing visible.
			res, err = f.scanner.Scan(ctx)
			require.NoError(t, err)
			require.Zero(t, res.Overdue)
			require.Len(t, f.inbox.All(), 2)
		})
	}
}

type failingSink struct{}

func (failingSink) AlertDeadline(context.Context, string, string) error { return errors.New("queue down") }

func TestDeadlineScanner_JoinsPerOrderErrors(t *testing.T) {
	t.Parallel()
	f := newDeadlineFixture(t)
	f.seed("a", domain.OrderInProgress, scanNow.Add(time.Hour))
	f.seed("b", domain.OrderInProgress, scanNow.Add(2*time.Hour))
	f.scanner.sink = failingSink{}

	res, err := f.scanner.Scan(context.Background())
	require.ErrorContains(t, err, "queue down")
	require.Equal(t, 2, res.Scanned)
	require.Zero(t, res.Alerts)
}

type alertEngine struct{ err error }

func (alertEngine) RefreshOrderStatus(context.Context, string, domain.Actor) (*domain.Order, bool, error) {
	return nil, false, nil
}

func (e alertEngine) RaiseDeadlineAlert(context.Context, string, time.Duration, domain.Actor) (bool, error) {
	return e.err == nil, e.err
}

func TestDeadlineAlertWorker_CancelsPermanentFailures(t *testing.T) {
	job := &river.Job[DeadlineAlertArgs]{JobRow: &rivertype.JobRow{Attempt: 1}, Args: DeadlineAlertArgs{OrderID: "o1"}}
	ctx := context.Background()

	tests := []struct {
		name       string
		err        error
		wantCancel bool
	}{
		{"raised", nil, false},
		{"order gone", apperrors.NotFoundError(apperrors.CodeOrderNotFound, "order", "o1"), true},
		{"store timeout", apperrors.StoreUnavailableError("raise alert", context.DeadlineExceeded), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDeadlineAlertWorker(alertEngine{err: tt.err}, time.Hour).Work(ctx, job)
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, tt.wantCancel, strings.HasPrefix(err.Error(), "JobCancelError"))
		})
	}
}

type argsWithOpts interface {
	river.JobArgs
	river.JobArgsWithInsertOpts
}

func TestJobArgs_KindsAndInsertOpts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		args      argsWithOpts
		kind      string
		queue     string
		byPeriod  time.Duration
		attempts  int
		uniqueArg bool
	}{
		{DomainEventArgs{EventID: "e"}, "domain_event", QueueEvents, 0, 5, true},
		{DeadlineCheckArgs{}, "deadline_check", river.QueueDefault, time.Minute, 1, true},
		{DeadlineAlertArgs{OrderID: "o", Day: "2026-03-02"}, "deadline_alert", river.QueueDefault, 24 * time.Hour, 3, true},
	}
	for _, tt := range tests {
		require.Equal(t, tt.kind, tt.args.Kind())
		opts := tt.args.InsertOpts()
		require.Equal(t, tt.queue, opts.Queue, tt.kind)
		require.Equal(t, tt.byPeriod, opts.UniqueOpts.ByPeriod, tt.kind)
		require.Equal(t, tt.attempts, opts.MaxAttempts, tt.kind)
		require.Equal(t, tt.uniqueArg, opts.UniqueOpts.ByArgs, tt.kind)
	}
	require.Len(t, PeriodicJobs(0), 2)
	require.Contains(t, Queues(0), QueueEvents)
}

type fakeEventLoader struct {
	event  *domain.DomainEvent
	status string
	marks  []string
}

func (f *fakeEventLoader) GetDomainEvent(_ context.Context, id string) (*domain.DomainEvent, string, error) {
	if f.event == nil || f.event.EventID != id {
		return nil, "", errors.New("no rows")
	}
	return f.event, f.status, nil
}

func (f *fakeEventLoader) SetDomainEventStatus(_ context.Context, _ string, status string) error {
	f.marks = append(f.marks, status)
	f.status = status
	return nil
}

func eventJob(id string) *river.Job[DomainEventArgs] {
	return &river.Job[DomainEventArgs]{JobRow: &rivertype.JobRow{Attempt: 1}, Args: DomainEventArgs{EventID: id}}
}

func TestDomainEventWorker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ev := domain.NewEvent(domain.EventStepApproved, domain.AggregateStep, "s1", "o1", "boss",
		domain.StepEventPayload{StepID: "s1", RequesterID: "op"}, scanNow)

	calls := 0
	fail := false
	d := domain.NewEventDispatcher()
	d.Register(domain.EventStepApproved, func(context.Context, *domain.DomainEvent) error {
		calls++
		if fail {
			return errors.New("inbox down")
		}
		return nil
	})

	loader := &fakeEventLoader{event: ev, status: postgres.EventStatusPending}
	w := NewDomainEventWorker(loader, d)

	fail = true
	require.Error(t, w.Work(ctx, eventJob(ev.EventID)))
	require.Equal(t, []string{postgres.EventStatusFailed}, loader.marks)

	fail = false
	require.NoError(t, w.Work(ctx, eventJob(ev.EventID)))
	require.Equal(t, postgres.EventStatusDispatched, loader.status)
	require.Equal(t, 2, calls)

	// Already dispatched: a duplicate job is a no-op.
	require.NoError(t, w.Work(ctx, eventJob(ev.EventID)))
	require.Equal(t, 2, calls)

	require.Error(t, w.Work(ctx, eventJob("missing")))
	var nilWorker *DomainEventWorker
	require.ErrorContains(t, nilWorker.Work(ctx, eventJob(ev.EventID)), "not initialized")
}
