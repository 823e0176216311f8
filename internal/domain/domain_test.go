package domain

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "json")
	os.Exit(m.Run())
}

func TestDefaultCatalog_Categories(t *testing.T) {
	t.Parallel()

	c := DefaultCatalog()
	require.Len(t, c.Codes(), 13)

	tests := []struct {
		code  string
		cat   Category
		phase Phase
	}{
		{"OS-01", CategoryLead, PhaseLead},
		{"OS-06", CategoryLead, PhaseLead},
		{"OS-07", CategoryExecution, PhaseExecution},
		{"OS-09", CategorySatellite, PhaseExecution},
		{"OS-10", CategorySatellite, PhaseExecution},
		{"OS-11", CategoryExecution, PhaseExecution},
		{"OS-12", CategoryContract, PhaseContract},
		{"OS-13", CategoryContract, PhaseContract},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			require.Equal(t, tt.cat, c.CategoryOf(tt.code))
			require.Equal(t, tt.phase, c.CategoryOf(tt.code).Phase())
		})
	}
	require.Equal(t, Category(""), c.CategoryOf("OS-99"))
}

func TestDefaultCatalog_TemplatesAreDense(t *testing.T) {
	t.Parallel()

	for _, ot := range DefaultCatalog().Types() {
		for i, st := range ot.Steps {
			require.Equal(t, i+1, st.Ordem, "%s step %s", ot.Code, st.Key)
			owner, ok := DefaultCatalog().StepOwner(ot.Code, st.Ordem)
			require.True(t, ok, "%s step %d has no owner", ot.Code, st.Ordem)
			require.NotEmpty(t, owner.Cargo)
		}
	}
}

func TestCatalog_ReformReviewRequiresDocuments(t *testing.T) {
	t.Parallel()

	tpl, ok := DefaultCatalog().Template("OS-07", 3)
	require.True(t, ok)
	require.True(t, tpl.RequiresApproval)
	require.ElementsMatch(t, []string{"art", "rrt"}, tpl.RequiredDocuments)

	_, ok = DefaultCatalog().Template("OS-07", 99)
	require.False(t, ok)
}

func TestCatalog_Ownership(t *testing.T) {
	t.Parallel()

	c := DefaultCatalog()

	owner, ok := c.StepOwner("OS-01", 5)
	require.True(t, ok)
	require.Equal(t, CargoCoordObras, owner.Cargo)
	require.Equal(t, SectorObras, owner.Sector)

	h, ok := c.HandoffPoint("OS-13", 10, 11)
	require.True(t, ok)
	require.Equal(t, CargoCoordAdministrativo, h.ToCargo)

	require.Nil(t, c.CheckDelegationRequired("OS-01", 4, 5, CargoCoordObras))
	got := c.CheckDelegationRequired("OS-01", 4, 5, CargoCoordAdministrativo)
	require.NotNil(t, got)
	require.Equal(t, CargoCoordObras, got.ToCargo)
	require.Nil(t, c.CheckDelegationRequired("OS-05", 4, 5, CargoOperacionalAdmin))
}

func TestCatalog_CanInitiate(t *testing.T) {
	t.Parallel()

	c := DefaultCatalog()
	tests := []struct {
		name  string
		code  string
		cargo Cargo
		want  bool
	}{
		{"coordinator opens lead", "OS-01", CargoCoordAdministrativo, true},
		{"operational cannot open lead", "OS-01", CargoOperacionalObras, false},
		{"director opens anything", "OS-13", CargoDiretor, true},
		{"client initiated type", "OS-07", CargoOperacionalAssessoria, true},
		{"free type", "OS-09", CargoOperacionalObras, true},
		{"unknown type", "OS-77", CargoAdmin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, c.CanInitiate(tt.code, tt.cargo))
		})
	}
}

func TestNewCatalog_Rejects(t *testing.T) {
	t.Parallel()

	steps := []StepTemplate{{Key: "a"}, {Key: "b"}}
	tests := []struct {
		name string
		in   []OrderType
	}{
		{"empty code", []OrderType{{Category: CategoryLead, Steps: steps}}},
		{"duplicate", []OrderType{
			{Code: "X", Category: CategoryLead, Steps: steps},
			{Code: "X", Category: CategoryLead, Steps: steps},
		}},
		{"bad category", []OrderType{{Code: "X", Category: "other", Steps: steps}}},
		{"no steps", []OrderType{{Code: "X", Category: CategoryLead}}},
		{"stage out of range", []OrderType{{Code: "X", Category: CategoryLead, Steps: steps,
			Ownership: OwnershipRule{Stages: []StageOwner{{From: 1, To: 3, Cargo: CargoAdmin}}}}}},
		{"handoff out of range", []OrderType{{Code: "X", Category: CategoryLead, Steps: steps,
			Ownership: OwnershipRule{Handoffs: []HandoffPoint{{FromStep: 2, ToStep: 3}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.in...)
			require.Error(t, err)
		})
	}
}

func TestLoadCatalog_UnknownFlow(t *testing.T) {
	t.Parallel()

	_, err := LoadCatalog([]byte("order_types:\n  - {code: OS-01, category: lead, flow: missing}\n"))
	require.ErrorContains(t, err, "unknown flow")
}

func TestAddBusinessDays(t *testing.T) {
	t.Parallel()

	friday := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, AddBusinessDays(friday, 1).Weekday())
	require.Equal(t, time.Date(2026, 3, 13, 10, 0, 0, 0, time.UTC), AddBusinessDays(friday, 5))
	require.Equal(t, friday, AddBusinessDays(friday, 0))
}

func TestParseStatus_LegacyLabels(t *testing.T) {
	t.Parallel()

	stepCases := map[string]StepStatus{
		"pendente":             StepPending,
		"Em Andamento":         StepInProgress,
		"aguardando_aprovação": StepAwaitingApproval,
		"CONCLUÍDA":            StepCompleted,
		"rejected":             StepRejected,
	}
	for in, want := range stepCases {
		got, err := ParseStepStatus(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	orderCases := map[string]OrderStatus{
		"em_triagem":             OrderIntake,
		"aguardando-informações": OrderAwaitingInfo,
		"em_validacao":           OrderUnderValidation,
		"atrasada":               OrderOverdue,
		"paused":                 OrderPaused,
	}
	for in, want := range orderCases {
		got, err := ParseOrderStatus(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseStepStatus("whatever")
	require.Error(t, err)
	_, err = ParseOrderStatus("")
	require.Error(t, err)
}

func TestStepData_MergeDocuments(t *testing.T) {
	t.Parallel()

	base := StepData{"a": 1, DocumentsKey: map[string]any{"art": "x"}}
	merged := base.Merge(StepData{"b": 2, DocumentsKey: map[string]any{"rrt": "y"}})

	require.Equal(t, map[string]any{"art": "x", "rrt": "y"}, merged.Documents())
	require.Equal(t, 2, merged["b"])
	require.Equal(t, map[string]any{"art": "x"}, base.Documents(), "base must not be mutated")

	raw, err := json.Marshal(StepData(nil))
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(raw))
}

func TestStepPatch_ApplyBumpsVersionAndAppendsHistory(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	status := StepCompleted
	s := Step{Version: 3, History: []StepTransition{{From: StepPending, To: StepInProgress}}}
	out := StepPatch{
		Status: &status,
		Append: []StepTransition{{From: StepInProgress, To: StepCompleted, Actor: "u1", At: now}},
	}.Apply(s, now)

	require.Equal(t, int64(4), out.Version)
	require.Equal(t, StepCompleted, out.Status)
	require.Len(t, out.History, 2)
	require.Len(t, s.History, 1)
	require.Equal(t, now, out.UpdatedAt)
}

func TestOrderPatch_Apply(t *testing.T) {
	t.Parallel()

	done := time.Now().UTC()
	st := OrderCompleted
	o := OrderPatch{Status: &st, CompletedAt: &done}.Apply(Order{Status: OrderInProgress})
	require.Equal(t, OrderCompleted, o.Status)
	require.NotNil(t, o.CompletedAt)

	o = OrderPatch{ClearComplete: true}.Apply(o)
	require.Nil(t, o.CompletedAt)
	require.True(t, OrderPatch{}.Empty())
	require.Equal(t, "OS-13-0042", FormatOrderCode("OS-13", 42))
}

func TestEventDispatcher_RunsAllHandlers(t *testing.T) {
	t.Parallel()

	d := NewEventDispatcher()
	var calls []string
	d.Register(EventStepCompleted, func(context.Context, *DomainEvent) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.RegisterAll(func(context.Context, *DomainEvent) error {
		calls = append(calls, "second")
		return nil
	}, EventStepCompleted, EventStepApproved)

	ev := NewEvent(EventStepCompleted, AggregateStep, "s1", "o1", "u1",
		StepEventPayload{StepID: "s1", To: StepCompleted}, time.Now())
	err := d.Dispatch(context.Background(), ev)
	require.ErrorContains(t, err, "boom")
	require.Equal(t, []string{"first", "second"}, calls)

	var p StepEventPayload
	require.NoError(t, ev.Decode(&p))
	require.Equal(t, "s1", p.StepID)

	require.NoError(t, d.Dispatch(context.Background(), NewEvent(EventOrderOpened, AggregateOrder, "o1", "o1", "u1", nil, time.Now())))
}

func TestEventDispatcher_ContainsPanicsAndJoinsErrors(t *testing.T) {
	t.Parallel()

	d := NewEventDispatcher()
	errInbox := errors.New("inbox down")
	var delivered bool
	d.Register(EventOrderDeadlineAlert, func(context.Context, *DomainEvent) error { panic("nil payload") })
	d.Register(EventOrderDeadlineAlert, func(context.Context, *DomainEvent) error { return errInbox })
	d.Register(EventOrderDeadlineAlert, func(context.Context, *DomainEvent) error {
		delivered = true
		return nil
	})

	err := d.Dispatch(context.Background(), NewEvent(EventOrderDeadlineAlert, AggregateOrder, "o1", "o1", "system", nil, time.Now()))
	require.ErrorIs(t, err, errInbox)
	require.ErrorContains(t, err, "subscriber panicked: nil payload")
	require.True(t, delivered)

	var nilDispatcher *EventDispatcher
	require.NoError(t, nilDispatcher.Dispatch(context.Background(), nil))
}

func TestActor_EffectiveSector(t *testing.T) {
	t.Parallel()

	require.Equal(t, SectorObras, Actor{Cargo: CargoOperacionalObras}.EffectiveSector())
	require.Equal(t, SectorAssessoria, Actor{Cargo: CargoCoordObras, Sector: SectorAssessoria}.EffectiveSector())
	require.True(t, Actor{Cargo: CargoDiretor}.CrossSector())
	require.False(t, Actor{Cargo: CargoCoordObras}.CrossSector())
}

func TestCargo_Known(t *testing.T) {
	t.Parallel()
	for _, c := range []Cargo{CargoAdmin, CargoDiretor, CargoCoordObras, CargoOperacionalAssessoria} {
		require.True(t, c.Known(), c)
	}
	require.False(t, Cargo("estagiario").Known())
	require.False(t, Cargo("").Known())
}
