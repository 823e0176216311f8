// Package audit records an append-only trail of workflow mutations.
//
// Audit rows are compliance records: they are never updated or deleted.
// Writes are best-effort and keyed by event id so replays are no-ops.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/repository/postgres"
)

// Record is one audit row.
type Record struct {
	ID           string          `json:"id"`
	EventID      string          `json:"event_id,omitempty"`
	Action       string          `json:"action"`
	Actor        string          `json:"actor"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	OrderID      string          `json:"order_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store persists audit records.
type Store interface {
	Insert(ctx context.Context, r Record) error
}

// Logger writes audit records.
type Logger struct {
	store Store
}

// NewLogger creates a Logger on store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// LogAction records an auditable action.
func (l *Logger) LogAction(ctx context.Context, action, resourceType, resourceID, actor string, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil || details == nil {
		raw = []byte("{}")
	}
	return l.write(ctx, Record{
		ID:           generateAuditID(),
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      raw,
		CreatedAt:    time.Now().UTC(),
	})
}

// HandleEvent records a committed domain event. The action is derived from
// the event type, e.g. STEP_APPROVED becomes "step.approved".
func (l *Logger) HandleEvent(ctx context.Context, ev *domain.DomainEvent) error {
	details := ev.Payload
	if len(details) == 0 {
		details = []byte("{}")
	}
	return l.write(ctx, Record{
		ID:           generateAuditID(),
		EventID:      ev.EventID,
		Action:       ActionFor(ev.EventType),
		Actor:        ev.CreatedBy,
		ResourceType: ev.AggregateType,
		ResourceID:   ev.AggregateID,
		OrderID:      ev.OrderID,
		Details:      details,
		CreatedAt:    ev.CreatedAt,
	})
}

// Register subscribes the logger to every domain event type.
func (l *Logger) Register(d *domain.EventDispatcher) {
	d.RegisterAll(l.HandleEvent, domain.EventTypes()...)
}

func (l *Logger) write(ctx context.Context, r Record) error {
	if err := l.store.Insert(ctx, r); err != nil {
		logger.Warn("failed to write audit log",
			zap.String("action", r.Action),
			zap.String("resource_type", r.ResourceType),
			zap.String("resource_id", r.ResourceID),
			zap.String("event_id", r.EventID),
			zap.Error(err),
		)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// ActionFor maps an event type to its dotted audit action.
func ActionFor(t domain.EventType) string {
	s := strings.ToLower(string(t))
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i] + "." + s[i+1:]
	}
	return s
}

// PGStore writes to the audit_logs table.
type PGStore struct {
	db postgres.DBTX
}

// NewPGStore creates a PGStore on db.
func NewPGStore(db postgres.DBTX) *PGStore {
	return &PGStore{db: db}
}

const insertAuditLog = `INSERT INTO audit_logs (
    id, event_id, action, actor, resource_type, resource_id, order_id, details, created_at
) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (event_id) DO NOTHING`

// Insert stores r. A record whose event id was already stored is skipped.
func (s *PGStore) Insert(ctx context.Context, r Record) error {
	_, err := s.db.Exec(ctx, insertAuditLog,
		r.ID, r.EventID, r.Action, r.Actor, r.ResourceType, r.ResourceID, r.OrderID, []byte(r.Details), r.CreatedAt,
	)
	return err
}

// MemoryStore keeps records in process.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	seen    map[string]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

// Insert appends r unless its event id was already stored.
func (s *MemoryStore) Insert(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.EventID != "" {
		if s.seen[r.EventID] {
			return nil
		}
		s.seen[r.EventID] = true
	}
	s.records = append(s.records, r)
	return nil
}

// Records returns the stored records in insertion order.
func (s *MemoryStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}
