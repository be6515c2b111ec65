package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/evcharge-backend/internal/payments"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
)

// ConsumerName scopes processed-event markers for Stripe deliveries.
const ConsumerName = "stripe-webhook"

// PaymentSettler applies asynchronous gateway outcomes to bookings.
type PaymentSettler interface {
	SettlePayment(ctx context.Context, transactionID string, status enums.PaymentStatus, reason string) error
}

type ServiceParams struct {
	Settler PaymentSettler
}

type Service struct {
	settler PaymentSettler
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment settler required")
	}
	return &Service{settler: params.Settler}, nil
}

// HandleEvent settles bookings for payment_intent events and ignores the rest.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		if intent.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
		}
		reason := ""
		if intent.LastPaymentError != nil {
			reason = intent.LastPaymentError.Msg
		}
		return s.settler.SettlePayment(ctx, intent.ID, payments.StatusFromIntent(intent.Status), reason)
	default:
		return nil
	}
}
