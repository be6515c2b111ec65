package payments

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

// StripeAPI exposes the subset of Stripe operations the gateway needs;
// *pkg/stripe.Client satisfies it.
type StripeAPI interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeGateway charges bookings through confirmed PaymentIntents.
type StripeGateway struct {
	api  StripeAPI
	logg *logger.Logger
}

func NewStripeGateway(api StripeAPI, logg *logger.Logger) (*StripeGateway, error) {
	if api == nil {
		return nil, errors.New("stripe api required")
	}
	return &StripeGateway{api: api, logg: logg}, nil
}

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := validateCharge(req); err != nil {
		return ChargeResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid charge request")
	}
	if strings.TrimSpace(req.PaymentToken) == "" {
		return ChargeResult{Status: enums.PaymentStatusFailed, FailureReason: "payment method missing"}, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(MinorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(string(req.Currency))),
		PaymentMethod: stripe.String(req.PaymentToken),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.AddMetadata("booking_id", req.BookingID)
	params.AddMetadata("payment_method", string(req.Method))
	params.SetIdempotencyKey(req.IdempotencyKey)

	intent, err := g.api.CreatePaymentIntent(ctx, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			result := ChargeResult{Status: enums.PaymentStatusFailed, FailureReason: stripeErr.Msg}
			if stripeErr.PaymentIntent != nil {
				result.TransactionID = stripeErr.PaymentIntent.ID
			}
			return result, nil
		}
		return ChargeResult{}, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "create payment intent")
	}

	return ChargeResult{
		TransactionID: intent.ID,
		Status:        StatusFromIntent(intent.Status),
		FailureReason: lastPaymentError(intent),
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if err := validateRefund(req); err != nil {
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund request")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.TransactionID),
		Amount:        stripe.Int64(MinorUnits(req.Amount)),
	}
	params.AddMetadata("booking_id", req.BookingID)
	params.SetIdempotencyKey(req.IdempotencyKey)

	result, err := g.api.CreateRefund(ctx, params)
	if err != nil {
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "create refund")
	}
	return RefundResult{RefundID: result.ID}, nil
}

// StatusFromIntent maps a PaymentIntent status onto the booking payment status.
func StatusFromIntent(status stripe.PaymentIntentStatus) enums.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentStatusCompleted
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}

func lastPaymentError(intent *stripe.PaymentIntent) string {
	if intent == nil || intent.LastPaymentError == nil {
		return ""
	}
	return intent.LastPaymentError.Msg
}
