package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

// Notification is one in-app inbox entry for a driver.
type Notification struct {
	ID        uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EventID   uuid.UUID              `gorm:"column:event_id;type:uuid;not null"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	BookingID uuid.UUID              `gorm:"column:booking_id;type:uuid;not null"`
	StationID uuid.UUID              `gorm:"column:station_id;type:uuid;not null"`
	Type      enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Status    enums.BookingStatus    `gorm:"column:status;not null"`
	Message   string                 `gorm:"column:message;type:text;not null"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at"`
}
