package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/repository/postgres"
	"github.com/pCruvinel/Minervav2-sub003/internal/testutil"
)

func seedInbox(t *testing.T, ctx context.Context, s Sender) {
	t.Helper()
	for i, title := range []string{"first", "second", "third"} {
		require.NoError(t, s.Send(ctx, Params{
			RecipientID: "ana",
			Type:        TypeDeadlineAlert,
			Title:       title,
			Message:     "m",
			OrderID:     "o1",
			DedupKey:    "k" + string(rune('0'+i)),
		}))
	}
	require.NoError(t, s.Send(ctx, Params{RecipientID: "bia", Type: TypeStepApproved, Title: "other", Message: "m"}))
}

func exerciseInbox(t *testing.T, inbox Inbox) {
	t.Helper()
	ctx := context.Background()

	items, total, err := inbox.List(ctx, "ana", false, 2, 0)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 2)
	require.Equal(t, "third", items[0].Title)
	require.Equal(t, "second", items[1].Title)

	items, _, err = inbox.List(ctx, "ana", false, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "first", items[0].Title)

	n, err := inbox.UnreadCount(ctx, "ana")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, inbox.MarkRead(ctx, "ana", items[0].ID))
	unread, total, err := inbox.List(ctx, "ana", true, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	for _, u := range unread {
		require.False(t, u.Read)
		require.NotEqual(t, "first", u.Title)
	}

	// Another recipient cannot mark ana's notification.
	err = inbox.MarkRead(ctx, "bia", unread[0].ID)
	require.Equal(t, apperrors.CodeNotificationNotFound, apperrors.CodeOf(err))
	err = inbox.MarkRead(ctx, "ana", "missing")
	require.Equal(t, apperrors.CodeNotificationNotFound, apperrors.CodeOf(err))

	marked, err := inbox.MarkAllRead(ctx, "ana")
	require.NoError(t, err)
	require.EqualValues(t, 2, marked)
	n, err = inbox.UnreadCount(ctx, "ana")
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = inbox.UnreadCount(ctx, "bia")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMemoryInbox_ReadSide(t *testing.T) {
	t.Parallel()
	inbox := NewMemoryInbox()
	tick := at
	inbox.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	seedInbox(t, context.Background(), inbox)
	exerciseInbox(t, inbox)
}

func TestMemoryInbox_ListSameTimestamp(t *testing.T) {
	t.Parallel()
	inbox := NewMemoryInbox()
	inbox.now = func() time.Time { return at }
	seedInbox(t, context.Background(), inbox)

	items, _, err := inbox.List(context.Background(), "ana", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "third", items[0].Title)

	items, total, err := inbox.List(context.Background(), "ana", false, 10, 50)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Empty(t, items)
}

func TestInboxSender_ReadSide(t *testing.T) {
	pool := testutil.OpenPGXPool(t, "notification_inbox")
	ctx := context.Background()
	require.NoError(t, postgres.Migrate(ctx, pool))

	inbox := NewInboxSender(pool)
	seedInbox(t, ctx, inbox)
	// now() is the transaction time; spread the rows so ordering is stable.
	_, err := pool.Exec(ctx, `UPDATE notifications SET created_at = now() - interval '1 hour' WHERE title = 'first'`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE notifications SET created_at = now() - interval '30 minutes' WHERE title = 'second'`)
	require.NoError(t, err)

	exerciseInbox(t, inbox)
}
