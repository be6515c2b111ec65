package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

// Booking reserves one charger of one station for a driver.
type Booking struct {
	ID        uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	StationID uuid.UUID           `gorm:"column:station_id;type:uuid;not null"`
	ChargerID string              `gorm:"column:charger_id;not null"`
	Type      enums.BookingType   `gorm:"column:type;type:booking_type;not null"`
	Status    enums.BookingStatus `gorm:"column:status;type:booking_status;not null;default:'booked'"`

	WindowStart *time.Time `gorm:"column:window_start"`
	WindowEnd   *time.Time `gorm:"column:window_end"`
	PreReserved bool       `gorm:"column:pre_reserved;not null;default:false"`

	PricingSnapshot types.PricingSnapshot `gorm:"column:pricing_snapshot;type:jsonb;not null"`
	Currency        enums.Currency        `gorm:"column:currency;not null"`
	EstimatedAmount decimal.Decimal       `gorm:"column:estimated_amount;type:numeric(12,2);not null"`
	FinalAmount     decimal.NullDecimal   `gorm:"column:final_amount;type:numeric(12,2)"`

	SessionStartedAt   *time.Time          `gorm:"column:session_started_at"`
	SessionEndedAt     *time.Time          `gorm:"column:session_ended_at"`
	EnergyDeliveredKWh decimal.NullDecimal `gorm:"column:energy_delivered_kwh;type:numeric(12,3)"`
	PeakPowerKW        *float64            `gorm:"column:peak_power_kw"`
	AvgPowerKW         *float64            `gorm:"column:avg_power_kw"`

	PaymentMethod        enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentStatus        enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	PaymentTransactionID *string             `gorm:"column:payment_transaction_id"`
	PaymentFailureReason *string             `gorm:"column:payment_failure_reason"`

	CancelledAt         *time.Time               `gorm:"column:cancelled_at"`
	CancellationReason  *string                  `gorm:"column:cancellation_reason"`
	CancelledBy         *enums.CancellationActor `gorm:"column:cancelled_by;type:cancellation_actor"`
	RefundAmount        decimal.NullDecimal      `gorm:"column:refund_amount;type:numeric(12,2)"`
	RefundTransactionID *string                  `gorm:"column:refund_transaction_id"`

	Feedback *types.Feedback `gorm:"column:feedback;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// PaidAmount is what the driver has been charged so far.
func (b Booking) PaidAmount() decimal.Decimal {
	if b.PaymentStatus != enums.PaymentStatusCompleted {
		return decimal.Zero
	}
	return b.EstimatedAmount
}
