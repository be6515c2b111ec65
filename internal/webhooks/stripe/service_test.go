package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

type settleCall struct {
	transactionID string
	status        enums.PaymentStatus
	reason        string
}

type stubSettler struct {
	calls []settleCall
	err   error
}

func (s *stubSettler) SettlePayment(_ context.Context, transactionID string, status enums.PaymentStatus, reason string) error {
	s.calls = append(s.calls, settleCall{transactionID, status, reason})
	return s.err
}

func intentEvent(t *testing.T, eventType stripe.EventType, intent *stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestService_HandlePaymentIntentSucceeded(t *testing.T) {
	settler := &stubSettler{}
	svc, err := NewService(ServiceParams{Settler: settler})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{
		ID:     "pi_ok",
		Status: stripe.PaymentIntentStatusSucceeded,
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(settler.calls) != 1 || settler.calls[0].status != enums.PaymentStatusCompleted {
		t.Fatalf("unexpected settle calls %+v", settler.calls)
	}
}

func TestService_HandlePaymentIntentFailedCarriesReason(t *testing.T) {
	settler := &stubSettler{}
	svc, _ := NewService(ServiceParams{Settler: settler})

	event := intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, &stripe.PaymentIntent{
		ID:               "pi_bad",
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Msg: "insufficient funds"},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	call := settler.calls[0]
	if call.transactionID != "pi_bad" || call.status != enums.PaymentStatusFailed || call.reason != "insufficient funds" {
		t.Fatalf("unexpected settle call %+v", call)
	}
}

func TestService_IgnoresUnrelatedEvents(t *testing.T) {
	settler := &stubSettler{}
	svc, _ := NewService(ServiceParams{Settler: settler})

	event := &stripe.Event{Type: stripe.EventTypeCustomerCreated, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(settler.calls) != 0 {
		t.Fatalf("expected no settle calls")
	}
}

func TestService_RejectsNilEvent(t *testing.T) {
	svc, _ := NewService(ServiceParams{Settler: &stubSettler{}})
	if err := svc.HandleEvent(context.Background(), nil); err == nil {
		t.Fatal("expected validation error")
	}
}
