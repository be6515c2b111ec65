package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/evcharge-backend/pkg/db/dbtest"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

func seedNotification(t *testing.T, repo *Repository, userID uuid.UUID, at time.Time) *models.Notification {
	t.Helper()
	n := &models.Notification{
		EventID:   uuid.New(),
		UserID:    userID,
		BookingID: uuid.New(),
		StationID: uuid.New(),
		Type:      enums.NotificationTypeBookingCreated,
		Status:    enums.BookingStatusBooked,
		Message:   "Booking confirmed.",
		CreatedAt: at,
	}
	created, err := repo.Insert(context.Background(), n)
	require.NoError(t, err)
	require.True(t, created)
	return n
}

func TestRepositoryCreateIgnoresDuplicateEvent(t *testing.T) {
	repo := NewRepository(dbtest.NewSQLite(t))
	first := seedNotification(t, repo, uuid.New(), time.Now().UTC())

	dup := *first
	dup.ID = uuid.Nil
	created, err := repo.Insert(context.Background(), &dup)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRepositoryListPagesNewestFirst(t *testing.T) {
	repo := NewRepository(dbtest.NewSQLite(t))
	userID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	oldest := seedNotification(t, repo, userID, base)
	middle := seedNotification(t, repo, userID, base.Add(time.Minute))
	newest := seedNotification(t, repo, userID, base.Add(2*time.Minute))
	seedNotification(t, repo, uuid.New(), base.Add(3*time.Minute))

	page, next, err := repo.List(context.Background(), InboxQuery{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, newest.ID, page[0].ID)
	assert.Equal(t, middle.ID, page[1].ID)
	require.NotNil(t, next)

	rest, next, err := repo.List(context.Background(), InboxQuery{UserID: userID, Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, oldest.ID, rest[0].ID)
	assert.Nil(t, next)
}

func TestRepositoryMarkReadScopesToOwner(t *testing.T) {
	repo := NewRepository(dbtest.NewSQLite(t))
	userID := uuid.New()
	n := seedNotification(t, repo, userID, time.Now().UTC())
	seedNotification(t, repo, userID, time.Now().UTC())
	now := time.Now().UTC()

	found, err := repo.MarkRead(context.Background(), uuid.New(), n.ID, now)
	require.NoError(t, err)
	assert.False(t, found, "other users cannot mark the entry")

	found, err = repo.MarkRead(context.Background(), userID, n.ID, now)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.MarkRead(context.Background(), userID, n.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, found, "re-marking stays idempotent")

	unread, err := repo.CountUnread(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	count, err := repo.MarkAllRead(context.Background(), userID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	rows, _, err := repo.List(context.Background(), InboxQuery{UserID: userID, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
