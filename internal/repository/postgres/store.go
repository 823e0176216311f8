package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"

	"go.uber.org/zap"
)

// EventEnqueuer schedules asynchronous delivery of committed events. It
// runs inside the unit of work's transaction so that a job exists if and
// only if the mutation commits.
type EventEnqueuer interface {
	EnqueueTx(ctx context.Context, tx pgx.Tx, events []*domain.DomainEvent) error
}

// Store implements workflow.UnitOfWork on a shared pgx pool.
//
// Per-order serialization uses a transaction-scoped advisory lock keyed by
// the order id, so two engine calls on the same order queue behind each
// other while calls on different orders proceed in parallel.
type Store struct {
	pool        *pgxpool.Pool
	queries     *Queries
	enqueuer    EventEnqueuer
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithEnqueuer wires event delivery. Without it events are persisted only.
func WithEnqueuer(e EventEnqueuer) Option {
	return func(s *Store) { s.enqueuer = e }
}

// WithLockTimeout bounds the wait for an order lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the time source used for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store on pool.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		queries:     New(pool),
		lockTimeout: 5 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ workflow.UnitOfWork = (*Store)(nil)

// Queries exposes the pool-bound queries to background jobs.
func (s *Store) Queries() *Queries { return s.queries }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return mapError("ping", s.pool.Ping(ctx))
}

const lockOrder = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

// InOrder runs fn in one transaction holding the order's advisory lock.
// Events published by fn are written to domain_events and handed to the
// enqueuer in the same transaction.
func (s *Store) InOrder(ctx context.Context, orderID string, fn func(context.Context, workflow.Stores) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
			return mapError("lock order", err)
		}
	}
	if _, err := tx.Exec(ctx, lockOrder, orderID); err != nil {
		return mapError("lock order", err)
	}

	u := &unit{store: s, q: s.queries.WithTx(tx)}
	if err := fn(ctx, u.stores()); err != nil {
		return err
	}

	for _, ev := range u.events {
		if err := u.q.InsertDomainEvent(ctx, ev); err != nil {
			return mapError("insert domain event", err)
		}
	}
	if s.enqueuer != nil && len(u.events) > 0 {
		if err := s.enqueuer.EnqueueTx(ctx, tx, u.events); err != nil {
			return mapError("enqueue domain events", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError("commit transaction", err)
	}
	if len(u.events) > 0 {
		logger.Debug("order unit of work committed",
			zap.String("order_id", orderID),
			zap.Int("events", len(u.events)),
		)
	}
	return nil
}

// Reader returns stores bound to the pool with no event sink.
func (s *Store) Reader() workflow.Stores {
	u := &unit{store: s, q: s.queries, readOnly: true}
	return u.stores()
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
