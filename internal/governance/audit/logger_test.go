package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "json")
	os.Exit(m.Run())
}

func TestActionFor(t *testing.T) {
	t.Parallel()
	tests := map[domain.EventType]string{
		domain.EventStepApproved:            "step.approved",
		domain.EventOrderStatusChanged:      "order.status_changed",
		domain.EventDelegationStatusChanged: "delegation.status_changed",
		domain.EventType("PLAIN"):           "plain",
	}
	for in, want := range tests {
		require.Equal(t, want, ActionFor(in), string(in))
	}
}

func TestLogger_RecordsEveryEventOnce(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	l := NewLogger(store)
	d := domain.NewEventDispatcher()
	l.Register(d)

	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ev := domain.NewEvent(domain.EventStepRejected, domain.AggregateStep, "s1", "o1", "boss",
		domain.StepEventPayload{StepID: "s1", Comment: "redo"}, at)
	require.NoError(t, d.Dispatch(ctx, ev))
	require.NoError(t, d.Dispatch(ctx, ev))
	for _, typ := range domain.EventTypes() {
		require.NoError(t, d.Dispatch(ctx, domain.NewEvent(typ, domain.AggregateOrder, "o1", "o1", "u", nil, at)))
	}

	recs := store.Records()
	require.Len(t, recs, 1+len(domain.EventTypes()))
	first := recs[0]
	require.Equal(t, "step.rejected", first.Action)
	require.Equal(t, "boss", first.Actor)
	require.Equal(t, "s1", first.ResourceID)
	require.Equal(t, "o1", first.OrderID)
	require.True(t, strings.HasPrefix(first.ID, "audit-"))
	var details map[string]any
	require.NoError(t, json.Unmarshal(first.Details, &details))
	require.Equal(t, "redo", details["comment"])
}

type failingStore struct{}

func (failingStore) Insert(context.Context, Record) error { return errors.New("db down") }

func TestLogger_LogActionFailure(t *testing.T) {
	t.Parallel()
	err := NewLogger(failingStore{}).LogAction(context.Background(), "order.seeded", "order", "o1", "cli", nil)
	require.ErrorContains(t, err, "write audit log")

	store := NewMemoryStore()
	require.NoError(t, NewLogger(store).LogAction(context.Background(), "order.seeded", "order", "o1", "cli", map[string]interface{}{"n": 1}))
	require.JSONEq(t, `{"n":1}`, string(store.Records()[0].Details))
}
