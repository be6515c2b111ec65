package bookings

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/internal/availability"
	"github.com/angelmondragon/evcharge-backend/internal/notifications"
	"github.com/angelmondragon/evcharge-backend/pkg/auth"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

var transitions = map[enums.BookingStatus]map[enums.BookingEvent]enums.BookingStatus{
	enums.BookingStatusBooked: {
		enums.BookingEventStart:  enums.BookingStatusActive,
		enums.BookingEventCancel: enums.BookingStatusCancelled,
		enums.BookingEventNoShow: enums.BookingStatusNoShow,
	},
	enums.BookingStatusActive: {
		enums.BookingEventEnd:    enums.BookingStatusCompleted,
		enums.BookingEventCancel: enums.BookingStatusCancelled,
	},
}

var lifecycleEvents = map[enums.BookingStatus]enums.OutboxEventType{
	enums.BookingStatusActive:    enums.EventBookingStarted,
	enums.BookingStatusCompleted: enums.EventBookingCompleted,
	enums.BookingStatusCancelled: enums.EventBookingCancelled,
	enums.BookingStatusNoShow:    enums.EventBookingNoShow,
}

// NextStatus returns the status an event moves a booking into. Terminal
// statuses accept no events.
func NextStatus(from enums.BookingStatus, event enums.BookingEvent) (enums.BookingStatus, bool) {
	next, ok := transitions[from][event]
	return next, ok
}

func (s *service) Transition(ctx context.Context, actor auth.Actor, id uuid.UUID, input TransitionInput) (dto *BookingDTO, err error) {
	defer func() { s.metrics.IncTransition(string(input.Event), resultLabel(err)) }()

	if !input.Event.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid booking event")
	}
	if err := validateSessionInput(input); err != nil {
		return nil, err
	}
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithBookingID(ctx, booking.ID.String())
	ctx = s.logg.WithActorRole(ctx, string(actor.Role))

	station, err := s.authorizeTransition(ctx, actor, booking, input.Event)
	if err != nil {
		return nil, err
	}
	if _, ok := NextStatus(booking.Status, input.Event); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "booking cannot take this event in its current status").
			WithDetails(map[string]any{"status": booking.Status, "event": input.Event})
	}
	ctx = s.logg.WithChargerID(ctx, booking.StationID.String(), booking.ChargerID)

	var updated *models.Booking
	switch input.Event {
	case enums.BookingEventStart:
		updated, err = s.start(ctx, actor, booking, station)
	case enums.BookingEventEnd:
		updated, err = s.end(ctx, actor, booking, station, input)
	case enums.BookingEventCancel:
		updated, err = s.cancel(ctx, actor, booking, station, input)
	case enums.BookingEventNoShow:
		updated, err = s.noShow(ctx, actor, booking, station, input)
	}
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "booking transitioned to "+string(updated.Status))
	return FromModel(updated), nil
}

func (s *service) authorizeTransition(ctx context.Context, actor auth.Actor, booking *models.Booking, event enums.BookingEvent) (*models.Station, error) {
	station, err := s.loadStation(ctx, booking.StationID)
	if err != nil {
		return nil, err
	}
	if event == enums.BookingEventNoShow {
		if !actor.IsAdmin() {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no_show is recorded by the system")
		}
		return station, nil
	}
	if booking.UserID == actor.UserID || actor.CanManageStation(station.OperatorID) {
		return station, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another user")
}

func (s *service) start(ctx context.Context, actor auth.Actor, booking *models.Booking, station *models.Station) (*models.Booking, error) {
	if booking.PaymentStatus != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment must complete before the session starts").
			WithDetails(map[string]any{"payment_status": booking.PaymentStatus})
	}
	now := s.now().UTC()
	if booking.Type == enums.BookingTypeScheduled && booking.WindowStart != nil {
		earliest := booking.WindowStart.Add(-s.cfg.EarlyStartTolerance)
		if now.Before(earliest) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "too early to start this booking").
				WithDetails(map[string]any{"window_start": booking.WindowStart, "earliest_start": earliest})
		}
		if booking.WindowEnd != nil && !now.Before(*booking.WindowEnd) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking window has ended").
				WithDetails(map[string]any{"window_end": booking.WindowEnd})
		}
	}

	outcome, err := s.guard.TryReserve(ctx, booking.StationID, booking.ChargerID, booking.ID.String())
	if err != nil {
		return nil, err
	}
	if outcome != availability.OutcomeReserved {
		return nil, chargerUnavailable(booking, outcome)
	}

	updated, err := s.commit(ctx, actor, booking, station, map[string]any{
		"status":             enums.BookingStatusActive,
		"session_started_at": now,
		"pre_reserved":       true,
	})
	if err != nil && !booking.PreReserved {
		if _, relErr := s.guard.Release(ctx, booking.StationID, booking.ChargerID, availability.ReleaseInput{BookingID: booking.ID.String()}); relErr != nil {
			s.logg.Error(ctx, "failed to release charger after start failed", relErr)
		}
	}
	return updated, err
}

func (s *service) end(ctx context.Context, actor auth.Actor, booking *models.Booking, station *models.Station, input TransitionInput) (*models.Booking, error) {
	now := s.now().UTC()
	energy := s.sessionEnergy(station, booking, input.EnergyKWh)
	held := heldSession(station, booking)
	released, err := s.guard.Release(ctx, booking.StationID, booking.ChargerID, availability.ReleaseInput{
		BookingID:    booking.ID.String(),
		EnergyKWh:    energy,
		CountSession: true,
	})
	if err != nil {
		return nil, err
	}

	final := SessionAmount(booking.PricingSnapshot, energy, sessionLength(booking, now))
	updates := map[string]any{
		"status":               enums.BookingStatusCompleted,
		"session_ended_at":     now,
		"energy_delivered_kwh": decimal.NewNullDecimal(energy),
		"final_amount":         decimal.NewNullDecimal(final),
	}
	if input.PeakPowerKW != nil {
		updates["peak_power_kw"] = *input.PeakPowerKW
	}
	if input.AvgPowerKW != nil {
		updates["avg_power_kw"] = *input.AvgPowerKW
	}
	if excess := booking.PaidAmount().Sub(final); excess.IsPositive() {
		updates["refund_amount"] = decimal.NewNullDecimal(excess)
	}

	updated, err := s.commit(ctx, actor, booking, station, updates)
	if err != nil {
		if released {
			s.reinstate(ctx, booking, held, &energy)
		}
		return nil, err
	}
	return s.refundAfterCommit(ctx, updated, "overpayment"), nil
}

func (s *service) cancel(ctx context.Context, actor auth.Actor, booking *models.Booking, station *models.Station, input TransitionInput) (*models.Booking, error) {
	now := s.now().UTC()
	by := cancellationActor(actor, booking)

	var energy, consumed decimal.Decimal
	if booking.Status == enums.BookingStatusActive {
		energy = s.sessionEnergy(station, booking, input.EnergyKWh)
		consumed = SessionAmount(booking.PricingSnapshot, energy, sessionLength(booking, now))
	}
	decision, err := s.decideRefund(ctx, booking, RefundInput{Event: enums.BookingEventCancel, Actor: by, Now: now, Consumed: consumed})
	if err != nil {
		return nil, err
	}

	held := heldSession(station, booking)
	released := false
	if booking.Status == enums.BookingStatusActive || booking.PreReserved {
		released, err = s.guard.Release(ctx, booking.StationID, booking.ChargerID, availability.ReleaseInput{
			BookingID:    booking.ID.String(),
			EnergyKWh:    energy,
			CountSession: booking.Status == enums.BookingStatusActive,
		})
		if err != nil {
			return nil, err
		}
	}

	updates := map[string]any{
		"status":        enums.BookingStatusCancelled,
		"cancelled_at":  now,
		"cancelled_by":  by,
		"refund_amount": decimal.NewNullDecimal(decision.Amount),
	}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		updates["cancellation_reason"] = reason
	}
	if booking.Status == enums.BookingStatusActive {
		updates["session_ended_at"] = now
		updates["energy_delivered_kwh"] = decimal.NewNullDecimal(energy)
		updates["final_amount"] = decimal.NewNullDecimal(consumed)
	}

	updated, err := s.commit(ctx, actor, booking, station, updates)
	if err != nil {
		if released {
			var counted *decimal.Decimal
			if booking.Status == enums.BookingStatusActive {
				counted = &energy
			}
			s.reinstate(ctx, booking, held, counted)
		}
		return nil, err
	}
	return s.refundAfterCommit(ctx, updated, string(decision.Band)), nil
}

func (s *service) noShow(ctx context.Context, actor auth.Actor, booking *models.Booking, station *models.Station, input TransitionInput) (*models.Booking, error) {
	now := s.now().UTC()
	decision, err := s.decideRefund(ctx, booking, RefundInput{Event: enums.BookingEventNoShow, Actor: enums.CancellationActorSystem, Now: now})
	if err != nil {
		return nil, err
	}
	held := heldSession(station, booking)
	released := false
	if booking.PreReserved {
		released, err = s.guard.Release(ctx, booking.StationID, booking.ChargerID, availability.ReleaseInput{BookingID: booking.ID.String()})
		if err != nil {
			return nil, err
		}
	}

	updates := map[string]any{
		"status":        enums.BookingStatusNoShow,
		"refund_amount": decimal.NewNullDecimal(decision.Amount),
	}
	if reason := strings.TrimSpace(input.Reason); reason != "" {
		updates["cancellation_reason"] = reason
	}
	updated, err := s.commit(ctx, actor, booking, station, updates)
	if err != nil {
		if released {
			s.reinstate(ctx, booking, held, nil)
		}
		return nil, err
	}
	return s.refundAfterCommit(ctx, updated, string(decision.Band)), nil
}

// heldSession copies the charger session booking holds on the loaded station.
func heldSession(station *models.Station, booking *models.Booking) *types.ChargerSession {
	idx := station.Chargers.Find(booking.ChargerID)
	if idx < 0 {
		return nil
	}
	session := station.Chargers[idx].CurrentSession
	if session == nil || session.BookingID != booking.ID.String() {
		return nil
	}
	held := *session
	return &held
}

// reinstate puts back a charger released ahead of a booking update that failed.
func (s *service) reinstate(ctx context.Context, booking *models.Booking, held *types.ChargerSession, counted *decimal.Decimal) {
	if held == nil {
		return
	}
	ok, err := s.guard.Reinstate(ctx, booking.StationID, booking.ChargerID, *held, counted)
	switch {
	case err != nil:
		s.logg.Error(ctx, "failed to reinstate charger after booking update failed", err)
	case !ok:
		s.logg.Warn(ctx, "charger was taken before it could be reinstated")
	}
}

func (s *service) decideRefund(ctx context.Context, booking *models.Booking, in RefundInput) (RefundDecision, error) {
	decision, err := s.refunds.Decide(*booking, in)
	if err != nil {
		s.logg.Error(ctx, "refund policy has no rule for booking", err)
		return RefundDecision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refund policy has no rule for this booking")
	}
	return decision, nil
}

// commit moves the booking out of its current status and records the change
// in the outbox within one transaction.
func (s *service) commit(ctx context.Context, actor auth.Actor, booking *models.Booking, station *models.Station, updates map[string]any) (*models.Booking, error) {
	var updated *models.Booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateFromStatus(ctx, booking.ID, booking.Status, updates); err != nil {
			return err
		}
		row, err := repo.FindByID(ctx, booking.ID)
		if err != nil {
			return err
		}
		updated = row
		return s.emitLifecycle(ctx, tx, actor, row, station, lifecycleEvents[row.Status])
	})
	if err != nil {
		return nil, mapStoreError(err, "update booking")
	}
	return updated, nil
}

func (s *service) emitLifecycle(ctx context.Context, tx *gorm.DB, actor auth.Actor, booking *models.Booking, station *models.Station, eventType enums.OutboxEventType) error {
	payload := payloads.BookingLifecycleEvent{
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		StationID:  booking.StationID,
		ChargerID:  booking.ChargerID,
		Type:       booking.Type,
		Status:     booking.Status,
		Action:     string(eventType),
		StartTime:  booking.WindowStart,
		EndTime:    booking.WindowEnd,
		EnergyKWh:  nullDecimal(booking.EnergyDeliveredKWh),
		Amount:     nullDecimal(booking.FinalAmount),
		Currency:   string(booking.Currency),
		OccurredAt: booking.UpdatedAt,
	}
	if booking.Status == enums.BookingStatusActive {
		payload.StartTime = booking.SessionStartedAt
	}
	if payload.Amount == nil {
		payload.Amount = &booking.EstimatedAmount
	}
	ref := actorRef(actor)
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateBooking,
		AggregateID:   booking.ID,
		Actor:         ref,
		Data:          payload,
	}); err != nil {
		return err
	}

	kind := notifications.KindForStatus(booking.Status)
	return s.notifier.Notify(ctx, tx, notifications.Notification{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		StationID: booking.StationID,
		Kind:      kind,
		Status:    booking.Status,
		Message:   notifications.DefaultMessage(kind, station.Name, booking.ChargerID),
		Actor:     ref,
	})
}

// sessionEnergy prefers reported energy, then the charger's live session counter.
func (s *service) sessionEnergy(station *models.Station, booking *models.Booking, reported *decimal.Decimal) decimal.Decimal {
	if reported != nil {
		return *reported
	}
	if idx := station.Chargers.Find(booking.ChargerID); idx >= 0 {
		session := station.Chargers[idx].CurrentSession
		if session != nil && session.BookingID == booking.ID.String() {
			return session.EnergyKWh
		}
	}
	return decimal.Zero
}

func sessionLength(booking *models.Booking, now time.Time) time.Duration {
	if booking.SessionStartedAt == nil || now.Before(*booking.SessionStartedAt) {
		return 0
	}
	return now.Sub(*booking.SessionStartedAt)
}

func validateSessionInput(input TransitionInput) error {
	if input.EnergyKWh != nil && input.EnergyKWh.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "energyKwh must not be negative")
	}
	if input.PeakPowerKW != nil && *input.PeakPowerKW < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "peakPowerKw must not be negative")
	}
	if input.AvgPowerKW != nil && *input.AvgPowerKW < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "avgPowerKw must not be negative")
	}
	return nil
}

func cancellationActor(actor auth.Actor, booking *models.Booking) enums.CancellationActor {
	switch {
	case actor.UserID != uuid.Nil && actor.UserID == booking.UserID:
		return enums.CancellationActorUser
	case actor.Role == enums.UserRoleOperator:
		return enums.CancellationActorOperator
	default:
		return enums.CancellationActorSystem
	}
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}
