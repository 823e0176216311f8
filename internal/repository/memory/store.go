// Package memory is an in-process implementation of the workflow stores.
// It backs the engine tests and the server's --store=memory mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// Store holds every row in maps guarded by one RWMutex. Per-order
// serialization is layered on top by InOrder.
type Store struct {
	mu          sync.RWMutex
	orders      map[string]domain.Order
	steps       map[string]domain.Step
	addenda     map[string][]domain.Addendum
	delegations map[string]domain.Delegation
	codeSeq     map[string]int64
	addendumSeq int64
	unavailable map[string]bool

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	eventsMu   sync.Mutex
	published  []*domain.DomainEvent
	dispatcher *domain.EventDispatcher

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDispatcher dispatches committed events synchronously.
func WithDispatcher(d *domain.EventDispatcher) Option {
	return func(s *Store) { s.dispatcher = d }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		orders:      make(map[string]domain.Order),
		steps:       make(map[string]domain.Step),
		addenda:     make(map[string][]domain.Addendum),
		delegations: make(map[string]domain.Delegation),
		codeSeq:     make(map[string]int64),
		unavailable: make(map[string]bool),
		locks:       make(map[string]*sync.Mutex),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ workflow.UnitOfWork = (*Store)(nil)

// SeedOrder inserts or replaces an order as-is. Test fixtures use it to
// build states the engine would not produce itself.
func (s *Store) SeedOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Version == 0 {
		o.Version = 1
	}
	s.orders[o.ID] = o
}

// SeedStep inserts or replaces a step as-is.
func (s *Store) SeedStep(st domain.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Version == 0 {
		st.Version = 1
	}
	st.Data = st.Data.Clone()
	s.steps[st.ID] = st
}

// SetUnavailable makes reads of the order and its steps fail as if the
// backing store had timed out.
func (s *Store) SetUnavailable(orderID string, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable[orderID] = down
}

// Published returns the events committed so far.
func (s *Store) Published() []*domain.DomainEvent {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	return append([]*domain.DomainEvent(nil), s.published...)
}

func (s *Store) orderLock(orderID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[orderID] = l
	}
	return l
}

// InOrder holds the order's mutex for the duration of fn. Writes made by
// fn are undone when it returns an error; events are released on success.
func (s *Store) InOrder(ctx context.Context, orderID string, fn func(context.Context, workflow.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StoreUnavailableError("lock order", err)
	}
	l := s.orderLock(orderID)
	l.Lock()
	defer l.Unlock()

	t := &tx{store: s}
	if err := fn(ctx, t.stores()); err != nil {
		t.rollback()
		return err
	}
	s.release(ctx, t.events)
	return nil
}

// Reader returns stores that write through without undo.
func (s *Store) Reader() workflow.Stores {
	t := &tx{store: s, readOnly: true}
	return t.stores()
}

func (s *Store) release(ctx context.Context, events []*domain.DomainEvent) {
	if len(events) == 0 {
		return
	}
	s.eventsMu.Lock()
	s.published = append(s.published, events...)
	s.eventsMu.Unlock()
	for _, ev := range events {
		_ = s.dispatcher.Dispatch(ctx, ev)
	}
}

func (s *Store) checkUp(ctx context.Context, op, orderID string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StoreUnavailableError(op, err)
	}
	if s.unavailable[orderID] {
		return apperrors.StoreUnavailableError(op, context.DeadlineExceeded)
	}
	return nil
}

func cloneStep(st domain.Step) domain.Step {
	st.Data = st.Data.Clone()
	st.History = append([]domain.StepTransition(nil), st.History...)
	return st
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func sortSteps(steps []domain.Step) {
	sort.Slice(steps, func(i, j int) bool { return steps[i].Ordem < steps[j].Ordem })
}
