package bookings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

type WindowDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type SessionDTO struct {
	StartedAt          *time.Time       `json:"started_at,omitempty"`
	EndedAt            *time.Time       `json:"ended_at,omitempty"`
	EnergyDeliveredKWh *decimal.Decimal `json:"energy_delivered_kwh,omitempty"`
	PeakPowerKW        *float64         `json:"peak_power_kw,omitempty"`
	AvgPowerKW         *float64         `json:"avg_power_kw,omitempty"`
}

type PaymentDTO struct {
	Method        enums.PaymentMethod `json:"method"`
	Status        enums.PaymentStatus `json:"status"`
	TransactionID *string             `json:"transaction_id,omitempty"`
	FailureReason *string             `json:"failure_reason,omitempty"`
}

type CancellationDTO struct {
	CancelledAt         time.Time                `json:"cancelled_at"`
	Reason              *string                  `json:"reason,omitempty"`
	Actor               *enums.CancellationActor `json:"actor,omitempty"`
	RefundAmount        *decimal.Decimal         `json:"refund_amount,omitempty"`
	RefundTransactionID *string                  `json:"refund_transaction_id,omitempty"`
}

// BookingDTO is the API view of a booking.
type BookingDTO struct {
	ID              uuid.UUID             `json:"id"`
	UserID          uuid.UUID             `json:"user_id"`
	StationID       uuid.UUID             `json:"station_id"`
	ChargerID       string                `json:"charger_id"`
	Type            enums.BookingType     `json:"type"`
	Status          enums.BookingStatus   `json:"status"`
	Window          *WindowDTO            `json:"window,omitempty"`
	PricingSnapshot types.PricingSnapshot `json:"pricing_snapshot"`
	Currency        enums.Currency        `json:"currency"`
	EstimatedAmount decimal.Decimal       `json:"estimated_amount"`
	FinalAmount     *decimal.Decimal      `json:"final_amount,omitempty"`
	BalanceDue      *decimal.Decimal      `json:"balance_due,omitempty"`
	Session         SessionDTO            `json:"session"`
	Payment         PaymentDTO            `json:"payment"`
	Cancellation    *CancellationDTO      `json:"cancellation,omitempty"`
	RefundAmount    *decimal.Decimal      `json:"refund_amount,omitempty"`
	Feedback        *types.Feedback       `json:"feedback,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// FromModel maps a persisted booking into its DTO.
func FromModel(m *models.Booking) *BookingDTO {
	if m == nil {
		return nil
	}
	dto := &BookingDTO{
		ID:              m.ID,
		UserID:          m.UserID,
		StationID:       m.StationID,
		ChargerID:       m.ChargerID,
		Type:            m.Type,
		Status:          m.Status,
		PricingSnapshot: m.PricingSnapshot,
		Currency:        m.Currency,
		EstimatedAmount: m.EstimatedAmount,
		FinalAmount:     nullDecimal(m.FinalAmount),
		RefundAmount:    nullDecimal(m.RefundAmount),
		Session: SessionDTO{
			StartedAt:          m.SessionStartedAt,
			EndedAt:            m.SessionEndedAt,
			EnergyDeliveredKWh: nullDecimal(m.EnergyDeliveredKWh),
			PeakPowerKW:        m.PeakPowerKW,
			AvgPowerKW:         m.AvgPowerKW,
		},
		Payment: PaymentDTO{
			Method:        m.PaymentMethod,
			Status:        m.PaymentStatus,
			TransactionID: m.PaymentTransactionID,
			FailureReason: m.PaymentFailureReason,
		},
		Feedback:  m.Feedback,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.WindowStart != nil && m.WindowEnd != nil {
		dto.Window = &WindowDTO{Start: *m.WindowStart, End: *m.WindowEnd}
	}
	if m.FinalAmount.Valid {
		if due := m.FinalAmount.Decimal.Sub(m.PaidAmount()); due.IsPositive() {
			dto.BalanceDue = &due
		}
	}
	if m.CancelledAt != nil {
		dto.Cancellation = &CancellationDTO{
			CancelledAt:         *m.CancelledAt,
			Reason:              m.CancellationReason,
			Actor:               m.CancelledBy,
			RefundAmount:        nullDecimal(m.RefundAmount),
			RefundTransactionID: m.RefundTransactionID,
		}
	}
	return dto
}

func nullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// ListDTO is a cursor page of bookings.
type ListDTO struct {
	Bookings   []BookingDTO `json:"bookings"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// CreateInput is a reservation request.
type CreateInput struct {
	StationID     uuid.UUID
	ChargerID     string
	Type          enums.BookingType
	WindowStart   *time.Time
	WindowEnd     *time.Time
	PaymentMethod enums.PaymentMethod
	PaymentToken  string
}

// TransitionInput is a lifecycle event with the data it carries.
type TransitionInput struct {
	Event       enums.BookingEvent
	Reason      string
	EnergyKWh   *decimal.Decimal
	PeakPowerKW *float64
	AvgPowerKW  *float64
}

// FeedbackInput is a post-session review.
type FeedbackInput struct {
	Rating     int
	Categories types.Ratings
	Comment    string
}
