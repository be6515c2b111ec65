package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/internal/notifications"
	"github.com/angelmondragon/evcharge-backend/internal/payments"
	"github.com/angelmondragon/evcharge-backend/pkg/auth"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/payloads"
)

const (
	gatewayUnavailableReason = "payment gateway unavailable"
	refundRetryBand          = "retry"
)

// chargeKey is stable for the first attempt and for replays of any later
// attempt, and changes only after the gateway answered a decline.
func chargeKey(b *models.Booking) string {
	if b.PaymentTransactionID == nil || *b.PaymentTransactionID == "" {
		return fmt.Sprintf("booking:%s:charge", b.ID)
	}
	return fmt.Sprintf("booking:%s:charge:%s", b.ID, *b.PaymentTransactionID)
}

func refundKey(b *models.Booking) string {
	return fmt.Sprintf("booking:%s:refund", b.ID)
}

// charge runs the gateway outside any transaction and records the outcome.
// A gateway error leaves the booking in place with a failed payment.
func (s *service) charge(ctx context.Context, actor auth.Actor, booking *models.Booking, station *models.Station, token, key string) (*models.Booking, error) {
	result, err := s.payments.Charge(ctx, payments.ChargeRequest{
		BookingID:      booking.ID.String(),
		Amount:         booking.EstimatedAmount,
		Currency:       booking.Currency,
		Method:         booking.PaymentMethod,
		PaymentToken:   token,
		IdempotencyKey: key,
	})
	if err != nil {
		s.logg.Error(ctx, "payment gateway charge failed", err)
		result = payments.ChargeResult{Status: enums.PaymentStatusFailed, FailureReason: gatewayUnavailableReason}
		if typed := pkgerrors.As(err); typed.Code() == pkgerrors.CodeValidation {
			result.FailureReason = typed.Message()
		}
	}

	updates := map[string]any{"payment_status": result.Status}
	if result.TransactionID != "" {
		updates["payment_transaction_id"] = result.TransactionID
	}
	if result.Status == enums.PaymentStatusFailed {
		updates["payment_failure_reason"] = result.FailureReason
	} else {
		updates["payment_failure_reason"] = nil
	}

	var updated *models.Booking
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, booking.ID, updates); err != nil {
			return err
		}
		row, err := repo.FindByID(ctx, booking.ID)
		if err != nil {
			return err
		}
		updated = row
		if result.Status != enums.PaymentStatusFailed {
			return nil
		}
		return s.emitPaymentFailed(ctx, tx, actor, row, station, result.FailureReason)
	})
	if err != nil {
		return nil, mapStoreError(err, "record payment")
	}
	if result.Status == enums.PaymentStatusFailed {
		s.logg.Warn(ctx, "booking payment failed: "+result.FailureReason)
	}
	return updated, nil
}

func (s *service) emitPaymentFailed(ctx context.Context, tx *gorm.DB, actor auth.Actor, booking *models.Booking, station *models.Station, reason string) error {
	txnID := ""
	if booking.PaymentTransactionID != nil {
		txnID = *booking.PaymentTransactionID
	}
	ref := actorRef(actor)
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregateBooking,
		AggregateID:   booking.ID,
		Actor:         ref,
		Data: payloads.PaymentFailedEvent{
			BookingID:     booking.ID,
			UserID:        booking.UserID,
			TransactionID: txnID,
			Amount:        booking.EstimatedAmount,
			Currency:      string(booking.Currency),
			Reason:        reason,
		},
	}); err != nil {
		return err
	}
	stationName := ""
	if station != nil {
		stationName = station.Name
	}
	return s.notifier.Notify(ctx, tx, notifications.Notification{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		StationID: booking.StationID,
		Kind:      enums.NotificationTypePaymentFailed,
		Status:    booking.Status,
		Message:   notifications.DefaultMessage(enums.NotificationTypePaymentFailed, stationName, booking.ChargerID),
		Actor:     ref,
	})
}

func (s *service) RetryPayment(ctx context.Context, actor auth.Actor, id uuid.UUID, paymentToken string) (dto *BookingDTO, err error) {
	defer func() { s.metrics.IncTransition("retry_payment", resultLabel(err)) }()

	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another user")
	}
	if booking.Status != enums.BookingStatusBooked {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment can only be retried before the session starts").
			WithDetails(map[string]any{"status": booking.Status})
	}
	if booking.PaymentStatus != enums.PaymentStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not in a failed state").
			WithDetails(map[string]any{"payment_status": booking.PaymentStatus})
	}
	station, err := s.loadStation(ctx, booking.StationID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithBookingID(ctx, booking.ID.String())

	updated, err := s.charge(ctx, actor, booking, station, paymentToken, chargeKey(booking))
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

// SettlePayment applies an asynchronous gateway outcome. Replays and
// regressions from a terminal payment status are ignored.
func (s *service) SettlePayment(ctx context.Context, transactionID string, status enums.PaymentStatus, reason string) error {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if status != enums.PaymentStatusCompleted && status != enums.PaymentStatusFailed {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement status must be completed or failed")
	}
	booking, err := s.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return mapStoreError(err, "load booking by transaction")
	}
	ctx = s.logg.WithBookingID(ctx, booking.ID.String())
	if booking.PaymentStatus == status {
		return nil
	}
	if booking.PaymentStatus == enums.PaymentStatusCompleted || booking.PaymentStatus == enums.PaymentStatusRefunded {
		s.logg.Warn(ctx, "ignoring settlement for an already captured payment")
		return nil
	}

	updates := map[string]any{"payment_status": status, "payment_failure_reason": nil}
	if status == enums.PaymentStatusFailed {
		updates["payment_failure_reason"] = reason
	}
	var station *models.Station
	if status == enums.PaymentStatusFailed {
		if station, err = s.loadStation(ctx, booking.StationID); err != nil {
			return err
		}
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, booking.ID, updates); err != nil {
			return err
		}
		if status != enums.PaymentStatusFailed || booking.Status.IsTerminal() {
			return nil
		}
		return s.emitPaymentFailed(ctx, tx, auth.SystemActor, booking, station, reason)
	})
	if err != nil {
		return mapStoreError(err, "settle payment")
	}
	s.logg.Info(ctx, "payment settled as "+string(status))
	return nil
}

// refundAfterCommit issues the refund recorded on a committed booking. A
// failure leaves the refund pending for RetryRefunds.
func (s *service) refundAfterCommit(ctx context.Context, booking *models.Booking, band string) *models.Booking {
	updated, err := s.issueRefund(ctx, booking, band)
	if err != nil {
		s.logg.Error(ctx, "refund failed; left pending for retry", err)
		return booking
	}
	return updated
}

func (s *service) issueRefund(ctx context.Context, booking *models.Booking, band string) (*models.Booking, error) {
	if !refundPending(booking) {
		return booking, nil
	}
	amount := booking.RefundAmount.Decimal
	result, err := s.payments.Refund(ctx, payments.RefundRequest{
		BookingID:      booking.ID.String(),
		TransactionID:  *booking.PaymentTransactionID,
		Amount:         amount,
		Currency:       booking.Currency,
		IdempotencyKey: refundKey(booking),
	})
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"refund_transaction_id": result.RefundID}
	if amount.GreaterThanOrEqual(booking.PaidAmount()) {
		updates["payment_status"] = enums.PaymentStatusRefunded
	}
	var updated *models.Booking
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, booking.ID, updates); err != nil {
			return err
		}
		row, err := repo.FindByID(ctx, booking.ID)
		if err != nil {
			return err
		}
		updated = row
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         actorRef(auth.SystemActor),
			Data: payloads.RefundIssuedEvent{
				BookingID:     booking.ID,
				UserID:        booking.UserID,
				TransactionID: *booking.PaymentTransactionID,
				RefundID:      result.RefundID,
				Amount:        amount,
				Currency:      string(booking.Currency),
				Band:          band,
			},
		})
	})
	if err != nil {
		return nil, mapStoreError(err, "record refund")
	}
	s.logg.Info(ctx, "refund issued")
	return updated, nil
}

func refundPending(b *models.Booking) bool {
	return b.RefundAmount.Valid &&
		b.RefundAmount.Decimal.IsPositive() &&
		b.PaymentStatus == enums.PaymentStatusCompleted &&
		b.PaymentTransactionID != nil &&
		b.RefundTransactionID == nil
}

// RetryRefunds reissues refunds that were decided but never acknowledged by the gateway.
func (s *service) RetryRefunds(ctx context.Context) (int, error) {
	rows, err := s.repo.ListPendingRefunds(ctx, s.batchSize())
	if err != nil {
		return 0, mapStoreError(err, "list pending refunds")
	}
	var errs error
	issued := 0
	for i := range rows {
		booking := &rows[i]
		bctx := s.logg.WithBookingID(ctx, booking.ID.String())
		if _, err := s.issueRefund(bctx, booking, refundRetryBand); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("booking %s: %w", booking.ID, err))
			continue
		}
		issued++
	}
	return issued, errs
}

// SweepNoShows closes booked reservations whose start grace has elapsed at now.
func (s *service) SweepNoShows(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	rows, err := s.repo.ListNoShowCandidates(ctx, now.Add(-s.cfg.NoShowGrace), now.Add(-s.cfg.ImmediateStartGrace), s.batchSize())
	if err != nil {
		return 0, mapStoreError(err, "list no-show candidates")
	}
	var errs error
	expired := 0
	for i := range rows {
		_, err := s.Transition(ctx, auth.SystemActor, rows[i].ID, TransitionInput{
			Event:  enums.BookingEventNoShow,
			Reason: "start grace period elapsed",
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("booking %s: %w", rows[i].ID, err))
			continue
		}
		expired++
	}
	return expired, errs
}

// ReportProgress records live energy for an active session.
func (s *service) ReportProgress(ctx context.Context, actor auth.Actor, id uuid.UUID, energyKWh decimal.Decimal) error {
	if energyKWh.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "energyKwh must not be negative")
	}
	booking, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.authorizeTransition(ctx, actor, booking, enums.BookingEventEnd); err != nil {
		return err
	}
	if booking.Status != enums.BookingStatusActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "progress is only accepted for active sessions").
			WithDetails(map[string]any{"status": booking.Status})
	}
	return s.guard.RecordEnergy(ctx, booking.StationID, booking.ChargerID, booking.ID.String(), energyKWh)
}

func (s *service) batchSize() int {
	if s.cfg.SweepBatchSize > 0 {
		return s.cfg.SweepBatchSize
	}
	return 100
}
