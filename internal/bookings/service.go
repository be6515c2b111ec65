package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/internal/availability"
	"github.com/angelmondragon/evcharge-backend/internal/notifications"
	"github.com/angelmondragon/evcharge-backend/internal/payments"
	"github.com/angelmondragon/evcharge-backend/internal/stations"
	"github.com/angelmondragon/evcharge-backend/pkg/auth"
	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/metrics"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
	"github.com/angelmondragon/evcharge-backend/pkg/pagination"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

const (
	windowConstraint   = "bookings_charger_window_excl"
	activeConstraint   = "bookings_one_active_per_charger"
	maxFeedbackComment = 2000
)

type stationReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Station, error)
	MutateStation(ctx context.Context, id uuid.UUID, fn stations.Mutation) (*models.Station, error)
	ClaimForBooking(ctx context.Context, tx *gorm.DB, stationID uuid.UUID, chargerID string) error
}

type chargerGuard interface {
	TryReserve(ctx context.Context, stationID uuid.UUID, chargerID, bookingID string) (availability.Outcome, error)
	Release(ctx context.Context, stationID uuid.UUID, chargerID string, in availability.ReleaseInput) (bool, error)
	Reinstate(ctx context.Context, stationID uuid.UUID, chargerID string, session types.ChargerSession, counted *decimal.Decimal) (bool, error)
	RecordEnergy(ctx context.Context, stationID uuid.UUID, chargerID, bookingID string, energyKWh decimal.Decimal) error
	WithChargerLock(ctx context.Context, stationID uuid.UUID, chargerID string, fn func(ctx context.Context) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, n notifications.Notification) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service runs the booking lifecycle.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*BookingDTO, error)
	Transition(ctx context.Context, actor auth.Actor, id uuid.UUID, input TransitionInput) (*BookingDTO, error)
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*BookingDTO, error)
	ListForUser(ctx context.Context, actor auth.Actor, userID uuid.UUID, status *enums.BookingStatus, params pagination.Params) (*ListDTO, error)
	ListForStation(ctx context.Context, actor auth.Actor, stationID uuid.UUID, status *enums.BookingStatus, params pagination.Params) (*ListDTO, error)
	AddFeedback(ctx context.Context, actor auth.Actor, id uuid.UUID, input FeedbackInput) (*BookingDTO, error)
	RetryPayment(ctx context.Context, actor auth.Actor, id uuid.UUID, paymentToken string) (*BookingDTO, error)
	SettlePayment(ctx context.Context, transactionID string, status enums.PaymentStatus, reason string) error
	ReportProgress(ctx context.Context, actor auth.Actor, id uuid.UUID, energyKWh decimal.Decimal) error
	SweepNoShows(ctx context.Context, now time.Time) (int, error)
	RetryRefunds(ctx context.Context) (int, error)
}

// ServiceParams wires the lifecycle collaborators.
type ServiceParams struct {
	Repo     Repository
	Stations stationReader
	Guard    chargerGuard
	Payments payments.Gateway
	Outbox   eventEmitter
	Notifier notifier
	Tx       txRunner
	Policy   config.BookingPolicyConfig
	Metrics  *metrics.EngineMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	stations stationReader
	guard    chargerGuard
	payments payments.Gateway
	outbox   eventEmitter
	notifier notifier
	tx       txRunner
	cfg      config.BookingPolicyConfig
	refunds  RefundPolicy
	metrics  *metrics.EngineMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("booking repository required")
	}
	if params.Stations == nil {
		return nil, fmt.Errorf("station repository required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("availability guard required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notification sink required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		stations: params.Stations,
		guard:    params.Guard,
		payments: params.Payments,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		tx:       params.Tx,
		cfg:      params.Policy,
		refunds:  NewRefundPolicy(params.Policy),
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (dto *BookingDTO, err error) {
	defer func() { s.metrics.IncTransition("create", resultLabel(err)) }()

	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	now := s.now().UTC()
	if err := s.validateCreate(input, now); err != nil {
		return nil, err
	}

	station, charger, err := s.loadCharger(ctx, input.StationID, input.ChargerID)
	if err != nil {
		return nil, err
	}
	if !station.Status.AcceptsBookings() {
		return nil, pkgerrors.New(pkgerrors.CodeChargerUnavailable, "station is not accepting bookings").
			WithDetails(map[string]any{"station_id": station.ID, "station_status": station.Status})
	}
	if charger.Status == enums.ChargerStatusOutOfOrder || charger.Status == enums.ChargerStatusMaintenance {
		return nil, pkgerrors.New(pkgerrors.CodeChargerUnavailable, "charger is not operational").
			WithDetails(map[string]any{"charger_id": charger.ID, "charger_status": charger.Status})
	}

	snapshot := types.SnapshotFrom(*charger, decimal.Zero, now)
	duration := time.Duration(s.cfg.EstimateMinutes) * time.Minute
	if input.Type == enums.BookingTypeScheduled {
		duration = input.WindowEnd.Sub(*input.WindowStart)
	}

	booking := &models.Booking{
		ID:              uuid.New(),
		UserID:          actor.UserID,
		StationID:       station.ID,
		ChargerID:       charger.ID,
		Type:            input.Type,
		Status:          enums.BookingStatusBooked,
		PricingSnapshot: snapshot,
		Currency:        snapshot.Currency,
		EstimatedAmount: EstimateAmount(snapshot, duration),
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if input.Type == enums.BookingTypeScheduled {
		start, end := input.WindowStart.UTC(), input.WindowEnd.UTC()
		booking.WindowStart = &start
		booking.WindowEnd = &end
	}

	ctx = s.logg.WithBookingID(ctx, booking.ID.String())
	ctx = s.logg.WithChargerID(ctx, station.ID.String(), charger.ID)

	switch input.Type {
	case enums.BookingTypeImmediate:
		err = s.createImmediate(ctx, actor, booking, station)
	default:
		err = s.createScheduled(ctx, actor, booking, station)
	}
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "booking created")

	charged, err := s.charge(ctx, actor, booking, station, input.PaymentToken, chargeKey(booking))
	if err != nil {
		s.logg.Error(ctx, "failed to record charge outcome", err)
		return FromModel(booking), nil
	}
	return FromModel(charged), nil
}

// createImmediate holds the charger before the booking row exists so two
// drivers can never both leave with the same plug.
func (s *service) createImmediate(ctx context.Context, actor auth.Actor, booking *models.Booking, station *models.Station) error {
	outcome, err := s.guard.TryReserve(ctx, station.ID, booking.ChargerID, booking.ID.String())
	if err != nil {
		return err
	}
	if outcome != availability.OutcomeReserved {
		return chargerUnavailable(booking, outcome)
	}
	booking.PreReserved = true
	if err := s.insert(ctx, actor, booking, station, false); err != nil {
		if _, relErr := s.guard.Release(ctx, station.ID, booking.ChargerID, availability.ReleaseInput{BookingID: booking.ID.String()}); relErr != nil {
			s.logg.Error(ctx, "failed to release charger after booking insert failed", relErr)
		}
		return err
	}
	return nil
}

func (s *service) createScheduled(ctx context.Context, actor auth.Actor, booking *models.Booking, station *models.Station) error {
	return s.guard.WithChargerLock(ctx, station.ID, booking.ChargerID, func(ctx context.Context) error {
		return s.insert(ctx, actor, booking, station, true)
	})
}

func (s *service) insert(ctx context.Context, actor auth.Actor, booking *models.Booking, station *models.Station, checkWindow bool) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.stations.ClaimForBooking(ctx, tx, booking.StationID, booking.ChargerID); err != nil {
			return err
		}
		if checkWindow {
			overlapping, err := repo.CountOverlapping(ctx, booking.StationID, booking.ChargerID, *booking.WindowStart, *booking.WindowEnd, uuid.Nil)
			if err != nil {
				return err
			}
			if overlapping > 0 {
				return windowConflict(booking)
			}
		}
		if err := repo.Create(ctx, booking); err != nil {
			return err
		}
		return s.emitLifecycle(ctx, tx, actor, booking, station, enums.EventBookingCreated)
	})
	if db.IsExclusionViolation(err, windowConstraint) {
		return windowConflict(booking)
	}
	return mapStoreError(err, "create booking")
}

func (s *service) validateCreate(input CreateInput, now time.Time) error {
	if input.StationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stationId is required")
	}
	if strings.TrimSpace(input.ChargerID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "chargerId is required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	switch input.Type {
	case enums.BookingTypeImmediate:
		if input.WindowStart != nil || input.WindowEnd != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "immediate bookings do not take a window")
		}
		return nil
	case enums.BookingTypeScheduled:
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid booking type")
	}

	if input.WindowStart == nil || input.WindowEnd == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "scheduled bookings require startTime and endTime")
	}
	start, end := *input.WindowStart, *input.WindowEnd
	if !start.After(now) {
		return pkgerrors.New(pkgerrors.CodeValidation, "startTime must be in the future")
	}
	if !end.After(start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "endTime must be after startTime")
	}
	length := end.Sub(start)
	if s.cfg.MinWindow > 0 && length < s.cfg.MinWindow {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "window must be at least %s", s.cfg.MinWindow)
	}
	if s.cfg.MaxWindow > 0 && length > s.cfg.MaxWindow {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "window must be at most %s", s.cfg.MaxWindow)
	}
	if s.cfg.MaxAdvance > 0 && start.Sub(now) > s.cfg.MaxAdvance {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "startTime must be within %s", s.cfg.MaxAdvance)
	}
	return nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*BookingDTO, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != actor.UserID && !actor.IsAdmin() {
		station, err := s.loadStation(ctx, booking.StationID)
		if err != nil {
			return nil, err
		}
		if !actor.CanManageStation(station.OperatorID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another user")
		}
	}
	return FromModel(booking), nil
}

func (s *service) ListForUser(ctx context.Context, actor auth.Actor, userID uuid.UUID, status *enums.BookingStatus, params pagination.Params) (*ListDTO, error) {
	if actor.UserID != userID && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list another user's bookings")
	}
	return s.list(ctx, ListFilter{UserID: &userID, Status: status}, params)
}

func (s *service) ListForStation(ctx context.Context, actor auth.Actor, stationID uuid.UUID, status *enums.BookingStatus, params pagination.Params) (*ListDTO, error) {
	station, err := s.loadStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManageStation(station.OperatorID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "station belongs to another operator")
	}
	return s.list(ctx, ListFilter{StationID: &stationID, Status: status}, params)
}

func (s *service) list(ctx context.Context, filter ListFilter, params pagination.Params) (*ListDTO, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid booking status filter")
	}
	result, err := s.repo.List(ctx, filter, params)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, mapStoreError(err, "list bookings")
	}
	out := &ListDTO{Bookings: make([]BookingDTO, 0, len(result.Bookings)), NextCursor: result.NextCursor}
	for i := range result.Bookings {
		out.Bookings = append(out.Bookings, *FromModel(&result.Bookings[i]))
	}
	return out, nil
}

func (s *service) AddFeedback(ctx context.Context, actor auth.Actor, id uuid.UUID, input FeedbackInput) (*BookingDTO, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the driver can review a booking")
	}
	if booking.Status != enums.BookingStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "feedback is only accepted on completed bookings").
			WithDetails(map[string]any{"status": booking.Status})
	}
	if booking.Feedback != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "feedback already submitted")
	}
	categories, err := validateFeedback(input)
	if err != nil {
		return nil, err
	}

	feedback := types.Feedback{
		Rating:      input.Rating,
		Categories:  categories,
		Comment:     strings.TrimSpace(input.Comment),
		SubmittedAt: s.now().UTC(),
	}
	if err := s.repo.SetFeedback(ctx, booking.ID, feedback); err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "feedback already submitted")
		}
		return nil, mapStoreError(err, "save feedback")
	}

	ctx = s.logg.WithStationID(ctx, booking.StationID.String())
	_, err = s.stations.MutateStation(ctx, booking.StationID, func(st *models.Station) error {
		total := decimal.NewFromFloat(st.RatingAverage).Mul(decimal.NewFromInt(int64(st.RatingCount)))
		st.RatingCount++
		avg, _ := total.Add(decimal.NewFromInt(int64(input.Rating))).
			Div(decimal.NewFromInt(int64(st.RatingCount))).
			Round(2).
			Float64()
		st.RatingAverage = avg
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, "failed to update station rating", err)
	}

	booking.Feedback = &feedback
	return FromModel(booking), nil
}

func validateFeedback(input FeedbackInput) (types.Ratings, error) {
	if !types.ValidScore(input.Rating) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "rating must be between %d and %d", types.MinScore, types.MaxScore)
	}
	categories, err := input.Categories.Normalized()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	if len(input.Comment) > maxFeedbackComment {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment is too long")
	}
	return categories, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "load booking")
	}
	return booking, nil
}

func (s *service) loadStation(ctx context.Context, id uuid.UUID) (*models.Station, error) {
	station, err := s.stations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "station not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "load station")
	}
	return station, nil
}

func (s *service) loadCharger(ctx context.Context, stationID uuid.UUID, chargerID string) (*models.Station, *types.Charger, error) {
	station, err := s.loadStation(ctx, stationID)
	if err != nil {
		return nil, nil, err
	}
	idx := station.Chargers.Find(chargerID)
	if idx < 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "charger not found")
	}
	return station, &station.Chargers[idx], nil
}

func chargerUnavailable(booking *models.Booking, outcome availability.Outcome) error {
	return pkgerrors.New(pkgerrors.CodeChargerUnavailable, "charger is not available").
		WithDetails(map[string]any{
			"station_id": booking.StationID,
			"charger_id": booking.ChargerID,
			"reason":     outcome,
		})
}

func windowConflict(booking *models.Booking) error {
	return pkgerrors.New(pkgerrors.CodeWindowConflict, "charger already booked for an overlapping window").
		WithDetails(map[string]any{
			"charger_id": booking.ChargerID,
			"start_time": booking.WindowStart,
			"end_time":   booking.WindowEnd,
		})
}

// mapStoreError translates repository failures into coded errors.
func mapStoreError(err error, action string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	case errors.Is(err, stations.ErrChargerNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "charger not found")
	case errors.Is(err, stations.ErrStationClosed):
		return pkgerrors.Wrap(pkgerrors.CodeChargerUnavailable, err, "station is not accepting bookings")
	case errors.Is(err, ErrStatusChanged):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "booking changed concurrently; reload and retry")
	case db.IsUniqueViolation(err, activeConstraint):
		return pkgerrors.Wrap(pkgerrors.CodeChargerUnavailable, err, "charger already has an active session")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, action)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "error"
}
