package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

// NotificationDTO is the inbox entry returned to drivers.
type NotificationDTO struct {
	ID        uuid.UUID              `json:"id"`
	BookingID uuid.UUID              `json:"booking_id"`
	StationID uuid.UUID              `json:"station_id"`
	Type      enums.NotificationType `json:"type"`
	Status    enums.BookingStatus    `json:"status"`
	Message   string                 `json:"message"`
	Read      bool                   `json:"read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func FromModel(m *models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        m.ID,
		BookingID: m.BookingID,
		StationID: m.StationID,
		Type:      m.Type,
		Status:    m.Status,
		Message:   m.Message,
		Read:      m.ReadAt != nil,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}
