package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

// BookingLifecycleEvent is emitted for every committed booking state change.
type BookingLifecycleEvent struct {
	BookingID  uuid.UUID           `json:"booking_id"`
	UserID     uuid.UUID           `json:"user_id"`
	StationID  uuid.UUID           `json:"station_id"`
	ChargerID  string              `json:"charger_id"`
	Type       enums.BookingType   `json:"type"`
	Status     enums.BookingStatus `json:"status"`
	Action     string              `json:"action,omitempty"`
	StartTime  *time.Time          `json:"start_time,omitempty"`
	EndTime    *time.Time          `json:"end_time,omitempty"`
	EnergyKWh  *decimal.Decimal    `json:"energy_kwh,omitempty"`
	Amount     *decimal.Decimal    `json:"amount,omitempty"`
	Currency   string              `json:"currency,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// NotificationRequestedEvent asks the delivery worker to notify a user on one channel.
type NotificationRequestedEvent struct {
	BookingID uuid.UUID                 `json:"booking_id"`
	UserID    uuid.UUID                 `json:"user_id"`
	StationID uuid.UUID                 `json:"station_id"`
	Channel   enums.NotificationChannel `json:"channel"`
	Kind      enums.NotificationType    `json:"kind"`
	Status    enums.BookingStatus       `json:"status"`
	Message   string                    `json:"message"`
}

// PaymentFailedEvent reports a declined or errored charge.
type PaymentFailedEvent struct {
	BookingID     uuid.UUID       `json:"booking_id"`
	UserID        uuid.UUID       `json:"user_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reason        string          `json:"reason,omitempty"`
}

// RefundIssuedEvent reports a refund sent to the payment gateway.
type RefundIssuedEvent struct {
	BookingID     uuid.UUID       `json:"booking_id"`
	UserID        uuid.UUID       `json:"user_id"`
	TransactionID string          `json:"transaction_id"`
	RefundID      string          `json:"refund_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Band          string          `json:"band"`
}
