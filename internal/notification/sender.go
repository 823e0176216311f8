// Package notification writes in-app inbox notifications for workflow
// events: approval requests and decisions, delegations and deadline
// alerts. Delivery is best-effort and never blocks the engine.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/repository/postgres"
)

// Notification types.
const (
	TypeApprovalRequested = "APPROVAL_REQUESTED"
	TypeStepApproved      = "STEP_APPROVED"
	TypeStepRejected      = "STEP_REJECTED"
	TypeDelegationCreated = "DELEGATION_CREATED"
	TypeDelegationUpdated = "DELEGATION_UPDATED"
	TypeDeadlineAlert     = "DEADLINE_ALERT"
)

// Params holds the fields of one notification.
type Params struct {
	RecipientID  string
	Type         string
	Title        string
	Message      string
	OrderID      string
	ResourceType string // "step", "delegation" or "order"
	ResourceID   string
	// DedupKey, when set, makes repeated sends with the same key a no-op.
	DedupKey string
}

// Notification is one stored inbox row.
type Notification struct {
	ID           string    `json:"id"`
	RecipientID  string    `json:"recipient_id"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	OrderID      string    `json:"order_id,omitempty"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, params Params) error
	// SendToMany is best-effort: individual failures are logged and
	// counted, delivery to the rest continues.
	SendToMany(ctx context.Context, recipientIDs []string, params Params) error
}

// InboxSender writes notifications to the notifications table.
type InboxSender struct {
	db postgres.DBTX
}

// NewInboxSender creates an inbox sender on db.
func NewInboxSender(db postgres.DBTX) *InboxSender {
	return &InboxSender{db: db}
}

const insertNotification = `INSERT INTO notifications (
    id, recipient_id, type, title, message, order_id, resource_type, resource_id, dedup_key, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), now())
ON CONFLICT (dedup_key) DO NOTHING`

// Send stores a single notification.
func (s *InboxSender) Send(ctx context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}
	tag, err := s.db.Exec(ctx, insertNotification,
		newID(), params.RecipientID, params.Type, params.Title, params.Message,
		params.OrderID, params.ResourceType, params.ResourceID, params.DedupKey,
	)
	if err != nil {
		return fmt.Errorf("create notification for user %s: %w", params.RecipientID, err)
	}
	logger.Debug("notification sent",
		zap.String("recipient", params.RecipientID),
		zap.String("type", params.Type),
		zap.Bool("duplicate", tag.RowsAffected() == 0),
	)
	return nil
}

// SendToMany sends params to every recipient.
func (s *InboxSender) SendToMany(ctx context.Context, recipientIDs []string, params Params) error {
	return sendToMany(ctx, s, recipientIDs, params)
}

const deleteNotificationsBefore = `DELETE FROM notifications WHERE created_at < $1`

// DeleteBefore removes notifications created before cutoff.
func (s *InboxSender) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, deleteNotificationsBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MemoryInbox keeps notifications in process. It backs the memory store
// mode and tests.
type MemoryInbox struct {
	mu    sync.Mutex
	rows  []Notification
	dedup map[string]bool
	now   func() time.Time
}

// NewMemoryInbox creates an empty inbox.
func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{
		dedup: make(map[string]bool),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Send appends one notification unless its dedup key was seen.
func (m *MemoryInbox) Send(_ context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if params.DedupKey != "" {
		if m.dedup[params.DedupKey] {
			return nil
		}
		m.dedup[params.DedupKey] = true
	}
	m.rows = append(m.rows, Notification{
		ID:           newID(),
		RecipientID:  params.RecipientID,
		Type:         params.Type,
		Title:        params.Title,
		Message:      params.Message,
		OrderID:      params.OrderID,
		ResourceType: params.ResourceType,
		ResourceID:   params.ResourceID,
		CreatedAt:    m.now(),
	})
	return nil
}

// SendToMany sends params to every recipient.
func (m *MemoryInbox) SendToMany(ctx context.Context, recipientIDs []string, params Params) error {
	return sendToMany(ctx, m, recipientIDs, params)
}

// DeleteBefore removes notifications created before cutoff.
func (m *MemoryInbox) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var n int64
	for _, r := range m.rows {
		if r.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n, nil
}

// For returns the notifications of one recipient in send order.
func (m *MemoryInbox) For(recipientID string) []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, r := range m.rows {
		if r.RecipientID == recipientID {
			out = append(out, r)
		}
	}
	return out
}

// All returns every notification in send order.
func (m *MemoryInbox) All() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.rows...)
}

var (
	_ Sender = (*InboxSender)(nil)
	_ Sender = (*MemoryInbox)(nil)
)

func sendToMany(ctx context.Context, s Sender, recipientIDs []string, params Params) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	var failCount int
	for _, recipientID := range recipientIDs {
		p := params
		p.RecipientID = recipientID
		if p.DedupKey != "" {
			p.DedupKey = params.DedupKey + ":" + recipientID
		}
		if err := s.Send(ctx, p); err != nil {
			failCount++
			logger.Error("notification delivery failed",
				zap.String("recipient", recipientID),
				zap.String("type", params.Type),
				zap.Error(err),
			)
		}
	}
	if failCount > 0 {
		return fmt.Errorf("notification delivery failed for %d/%d recipients", failCount, len(recipientIDs))
	}
	return nil
}

func validateParams(p Params) error {
	if p.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	if p.Type == "" {
		return fmt.Errorf("type is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
