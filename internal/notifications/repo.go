package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/pkg/db"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/pagination"
)

// Store is the inbox persistence used by the service and the consumer.
type Store interface {
	Insert(ctx context.Context, n *models.Notification) (bool, error)
	List(ctx context.Context, q InboxQuery) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}

// InboxQuery selects one page of a driver's inbox, newest first.
type InboxQuery struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

// Repository is the gorm-backed Store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// inbox scopes a query to one user's rows.
func (r *Repository) inbox(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func unread(tx *gorm.DB) *gorm.DB {
	return tx.Where("read_at IS NULL")
}

// Insert stores one entry. A redelivered event hits the event_id unique
// index and reports false without an error.
func (r *Repository) Insert(ctx context.Context, n *models.Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	switch err := r.db.WithContext(ctx).Create(n).Error; {
	case err == nil:
		return true, nil
	case db.IsUniqueViolation(err, ""):
		return false, nil
	default:
		return false, err
	}
}

func (r *Repository) List(ctx context.Context, q InboxQuery) ([]models.Notification, *pagination.Cursor, error) {
	tx := r.inbox(ctx, q.UserID)
	if q.UnreadOnly {
		tx = tx.Scopes(unread)
	}
	if q.Cursor != nil {
		where, args := q.Cursor.Before()
		tx = tx.Where(where, args...)
	}

	var rows []models.Notification
	if err := tx.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(q.Limit)).
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

// MarkRead reports whether the entry exists for userID. Marking an already
// read entry keeps its original read_at.
func (r *Repository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error) {
	res := r.inbox(ctx, userID).Scopes(unread).Where("id = ?", id).UpdateColumn("read_at", at)
	if res.Error != nil || res.RowsAffected > 0 {
		return res.Error == nil, res.Error
	}
	var n int64
	err := r.inbox(ctx, userID).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.inbox(ctx, userID).Scopes(unread).UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.inbox(ctx, userID).Scopes(unread).Count(&n).Error
	return n, err
}
