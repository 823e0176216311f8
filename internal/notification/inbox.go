package notification

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
)

// Inbox is the read side of a recipient's notifications.
type Inbox interface {
	// List returns one page of the recipient's notifications, newest
	// first, and the total matching count.
	List(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]Notification, int, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	// MarkRead fails with NOTIFICATION_NOT_FOUND when the notification
	// does not belong to the recipient.
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

var (
	_ Inbox = (*InboxSender)(nil)
	_ Inbox = (*MemoryInbox)(nil)
)

const countNotifications = `SELECT count(*) FROM notifications
WHERE recipient_id = $1 AND (NOT $2::bool OR read = false)`

const listNotifications = `SELECT id, recipient_id, type, title, message, order_id, resource_type, resource_id, read, created_at
FROM notifications
WHERE recipient_id = $1 AND (NOT $2::bool OR read = false)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`

// List implements Inbox.
func (s *InboxSender) List(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]Notification, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, countNotifications, recipientID, unreadOnly).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	rows, err := s.db.Query(ctx, listNotifications, recipientID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var n Notification
		err := row.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message,
			&n.OrderID, &n.ResourceType, &n.ResourceID, &n.Read, &n.CreatedAt)
		n.CreatedAt = n.CreatedAt.UTC()
		return n, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan notifications: %w", err)
	}
	return items, total, nil
}

// UnreadCount implements Inbox.
func (s *InboxSender) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, countNotifications, recipientID, true).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

const markNotificationRead = `UPDATE notifications SET read = true WHERE id = $1 AND recipient_id = $2`

// MarkRead implements Inbox.
func (s *InboxSender) MarkRead(ctx context.Context, recipientID, id string) error {
	tag, err := s.db.Exec(ctx, markNotificationRead, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundError(apperrors.CodeNotificationNotFound, "notification", id)
	}
	return nil
}

const markAllNotificationsRead = `UPDATE notifications SET read = true WHERE recipient_id = $1 AND read = false`

// MarkAllRead implements Inbox.
func (s *InboxSender) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	tag, err := s.db.Exec(ctx, markAllNotificationsRead, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List implements Inbox.
func (m *MemoryInbox) List(_ context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]Notification, int, error) {
	m.mu.Lock()
	var match []Notification
	// Walk backwards so equal timestamps keep newest-sent first.
	for i := len(m.rows) - 1; i >= 0; i-- {
		r := m.rows[i]
		if r.RecipientID == recipientID && (!unreadOnly || !r.Read) {
			match = append(match, r)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(match, func(i, j int) bool { return match[i].CreatedAt.After(match[j].CreatedAt) })
	total := len(match)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return match[offset:end], total, nil
}

// UnreadCount implements Inbox.
func (m *MemoryInbox) UnreadCount(_ context.Context, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.RecipientID == recipientID && !r.Read {
			n++
		}
	}
	return n, nil
}

// MarkRead implements Inbox.
func (m *MemoryInbox) MarkRead(_ context.Context, recipientID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].RecipientID == recipientID {
			m.rows[i].Read = true
			return nil
		}
	}
	return apperrors.NotFoundError(apperrors.CodeNotificationNotFound, "notification", id)
}

// MarkAllRead implements Inbox.
func (m *MemoryInbox) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.rows {
		if m.rows[i].RecipientID == recipientID && !m.rows[i].Read {
			m.rows[i].Read = true
			n++
		}
	}
	return n, nil
}
