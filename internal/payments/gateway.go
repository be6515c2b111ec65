package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// ChargeRequest is one booking charge sent to the gateway.
type ChargeRequest struct {
	BookingID      string
	Amount         decimal.Decimal
	Currency       enums.Currency
	Method         enums.PaymentMethod
	PaymentToken   string
	IdempotencyKey string
}

// ChargeResult reports the gateway outcome. A declined card is a result with
// StatusFailed, not an error; errors mean the gateway could not be reached.
type ChargeResult struct {
	TransactionID string
	Status        enums.PaymentStatus
	FailureReason string
}

// RefundRequest returns part or all of a completed charge.
type RefundRequest struct {
	BookingID      string
	TransactionID  string
	Amount         decimal.Decimal
	Currency       enums.Currency
	IdempotencyKey string
}

type RefundResult struct {
	RefundID string
}

// Gateway is the payment collaborator used by the booking lifecycle.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// MinorUnits converts a decimal amount to the integer minor units gateways expect.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func validateCharge(req ChargeRequest) error {
	if strings.TrimSpace(req.BookingID) == "" {
		return fmt.Errorf("booking id is required")
	}
	if req.Amount.IsNegative() {
		return fmt.Errorf("charge amount must not be negative")
	}
	if !req.Currency.IsValid() {
		return fmt.Errorf("unsupported currency %q", req.Currency)
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return fmt.Errorf("idempotency key is required")
	}
	return nil
}

func validateRefund(req RefundRequest) error {
	if strings.TrimSpace(req.TransactionID) == "" {
		return fmt.Errorf("transaction id is required")
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("refund amount must be positive")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return fmt.Errorf("idempotency key is required")
	}
	return nil
}
