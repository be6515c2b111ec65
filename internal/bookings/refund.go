package bookings

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

// RefundBand names the policy rule that produced a refund.
type RefundBand string

const (
	BandFullLeadTime    RefundBand = "full_lead_time"
	BandLateCancel      RefundBand = "late_cancel"
	BandImmediateUnused RefundBand = "immediate_unused"
	BandOccupiedTooLong RefundBand = "occupied_too_long"
	BandProRated        RefundBand = "pro_rated"
	BandNoShowPenalty   RefundBand = "no_show_penalty"
	BandUnpaid          RefundBand = "unpaid"
)

// RefundDecision is the outcome of applying the policy to one booking.
type RefundDecision struct {
	Band   RefundBand
	Amount decimal.Decimal
}

// RefundInput carries what the policy needs beyond the booking row.
type RefundInput struct {
	Event    enums.BookingEvent
	Actor    enums.CancellationActor
	Now      time.Time
	Consumed decimal.Decimal
}

// RefundPolicy applies the configured cancellation and no-show bands.
type RefundPolicy struct {
	cfg config.BookingPolicyConfig
}

func NewRefundPolicy(cfg config.BookingPolicyConfig) RefundPolicy {
	return RefundPolicy{cfg: cfg}
}

// Decide returns the refund for a cancel or no_show. A booking/event pair no
// band covers is an error, never a silent zero.
func (p RefundPolicy) Decide(b models.Booking, in RefundInput) (RefundDecision, error) {
	paid := b.PaidAmount()
	band, err := p.band(b, in)
	if err != nil {
		return RefundDecision{}, err
	}
	if paid.IsZero() {
		return RefundDecision{Band: BandUnpaid, Amount: decimal.Zero}, nil
	}

	var amount decimal.Decimal
	switch band {
	case BandFullLeadTime, BandImmediateUnused:
		amount = paid
	case BandLateCancel:
		amount = percentOf(paid, p.cfg.LateCancelRefundPercent)
	case BandOccupiedTooLong:
		amount = decimal.Zero
	case BandProRated:
		amount = paid.Sub(in.Consumed)
	case BandNoShowPenalty:
		amount = paid.Sub(percentOf(paid, p.cfg.NoShowPenaltyPercent))
	default:
		return RefundDecision{}, fmt.Errorf("refund band %q has no amount rule", band)
	}
	return RefundDecision{Band: band, Amount: clampRefund(amount, paid)}, nil
}

func (p RefundPolicy) band(b models.Booking, in RefundInput) (RefundBand, error) {
	switch in.Event {
	case enums.BookingEventNoShow:
		if b.Status == enums.BookingStatusBooked {
			return BandNoShowPenalty, nil
		}
	case enums.BookingEventCancel:
		switch b.Status {
		case enums.BookingStatusBooked:
			if b.Type == enums.BookingTypeImmediate {
				return BandImmediateUnused, nil
			}
			if b.WindowStart == nil {
				return "", fmt.Errorf("scheduled booking %s has no window start", b.ID)
			}
			if b.WindowStart.Sub(in.Now) >= p.cfg.FullRefundLeadTime {
				return BandFullLeadTime, nil
			}
			return BandLateCancel, nil
		case enums.BookingStatusActive:
			if b.SessionStartedAt == nil {
				return "", fmt.Errorf("active booking %s has no session start", b.ID)
			}
			if in.Actor == enums.CancellationActorUser && in.Now.Sub(*b.SessionStartedAt) > p.cfg.NoRefundAfterOccupied {
				return BandOccupiedTooLong, nil
			}
			return BandProRated, nil
		}
	}
	return "", fmt.Errorf("no refund band for %s booking on %s", b.Status, in.Event)
}

func clampRefund(amount, paid decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(paid) {
		return paid
	}
	return amount.Round(moneyPlaces)
}
