package bookings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/pagination"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

// ErrStatusChanged means a conditional update found the booking in another status.
var ErrStatusChanged = errors.New("booking status changed concurrently")

// ListFilter narrows booking listings.
type ListFilter struct {
	UserID    *uuid.UUID
	StationID *uuid.UUID
	Status    *enums.BookingStatus
}

// ListResult is one cursor page of bookings, newest first.
type ListResult struct {
	Bookings   []models.Booking
	NextCursor string
}

// Repository defines persistence operations for bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Booking, error)
	CountOverlapping(ctx context.Context, stationID uuid.UUID, chargerID string, start, end time.Time, excludeID uuid.UUID) (int64, error)
	UpdateFromStatus(ctx context.Context, id uuid.UUID, from enums.BookingStatus, updates map[string]any) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	SetFeedback(ctx context.Context, id uuid.UUID, feedback types.Feedback) error
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*ListResult, error)
	ListNoShowCandidates(ctx context.Context, scheduledBefore, immediateBefore time.Time, limit int) ([]models.Booking, error)
	ListPendingRefunds(ctx context.Context, limit int) ([]models.Booking, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Where("payment_transaction_id = ?", strings.TrimSpace(transactionID)).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// CountOverlapping counts open scheduled bookings on the charger whose
// half-open window [start, end) intersects the given one.
func (r *repository) CountOverlapping(ctx context.Context, stationID uuid.UUID, chargerID string, start, end time.Time, excludeID uuid.UUID) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("station_id = ? AND charger_id = ?", stationID, chargerID).
		Where("type = ?", enums.BookingTypeScheduled).
		Where("status IN ?", enums.OpenBookingStatuses).
		Where("window_start < ? AND window_end > ?", end.UTC(), start.UTC())
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&count).Error
	return count, err
}

// UpdateFromStatus applies updates only while the booking is still in from.
func (r *repository) UpdateFromStatus(ctx context.Context, id uuid.UUID, from enums.BookingStatus, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetFeedback stores feedback on a completed booking that has none yet.
func (r *repository) SetFeedback(ctx context.Context, id uuid.UUID, feedback types.Feedback) error {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ? AND feedback IS NULL", id, enums.BookingStatusCompleted).
		Updates(map[string]any{"feedback": feedback, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Model(&models.Booking{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.StationID != nil {
		q = q.Where("station_id = ?", *filter.StationID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if cursor != nil {
		where, args := cursor.Before()
		q = q.Where(where, args...)
	}

	var rows []models.Booking
	if err := q.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	page, next := pagination.Trim(rows, params.Limit, func(b models.Booking) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})
	result := &ListResult{Bookings: page}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// ListNoShowCandidates returns booked rows whose start grace has lapsed:
// scheduled windows that began before scheduledBefore and immediate holds
// created before immediateBefore.
func (r *repository) ListNoShowCandidates(ctx context.Context, scheduledBefore, immediateBefore time.Time, limit int) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.BookingStatusBooked).
		Where("(type = ? AND window_start < ?) OR (type = ? AND created_at < ?)",
			enums.BookingTypeScheduled, scheduledBefore.UTC(),
			enums.BookingTypeImmediate, immediateBefore.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListPendingRefunds returns closed bookings owed a refund the gateway has not confirmed yet.
func (r *repository) ListPendingRefunds(ctx context.Context, limit int) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.BookingStatus{enums.BookingStatusCancelled, enums.BookingStatusNoShow, enums.BookingStatusCompleted}).
		Where("payment_status = ?", enums.PaymentStatusCompleted).
		Where("payment_transaction_id IS NOT NULL").
		Where("refund_amount IS NOT NULL AND refund_amount > 0").
		Where("refund_transaction_id IS NULL").
		Order("updated_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
