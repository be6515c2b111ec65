package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/evcharge-backend/api/middleware"
	"github.com/angelmondragon/evcharge-backend/api/responses"
	"github.com/angelmondragon/evcharge-backend/api/validators"
	"github.com/angelmondragon/evcharge-backend/internal/bookings"
	"github.com/angelmondragon/evcharge-backend/pkg/auth"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/pagination"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

type bookingCreateRequest struct {
	StationID     uuid.UUID  `json:"station_id" validate:"required"`
	ChargerID     string     `json:"charger_id" validate:"required,max=64"`
	Type          string     `json:"type" validate:"required,oneof=immediate scheduled"`
	WindowStart   *time.Time `json:"window_start,omitempty"`
	WindowEnd     *time.Time `json:"window_end,omitempty"`
	PaymentMethod string     `json:"payment_method" validate:"required,oneof=card wallet upi"`
	PaymentToken  string     `json:"payment_token" validate:"required,max=255"`
}

func (r bookingCreateRequest) toInput() bookings.CreateInput {
	return bookings.CreateInput{
		StationID:     r.StationID,
		ChargerID:     strings.TrimSpace(r.ChargerID),
		Type:          enums.BookingType(r.Type),
		WindowStart:   r.WindowStart,
		WindowEnd:     r.WindowEnd,
		PaymentMethod: enums.PaymentMethod(r.PaymentMethod),
		PaymentToken:  strings.TrimSpace(r.PaymentToken),
	}
}

type bookingTransitionRequest struct {
	Reason      string           `json:"reason,omitempty" validate:"omitempty,max=500"`
	EnergyKWh   *decimal.Decimal `json:"energy_kwh,omitempty"`
	PeakPowerKW *float64         `json:"peak_power_kw,omitempty" validate:"omitempty,gte=0"`
	AvgPowerKW  *float64         `json:"avg_power_kw,omitempty" validate:"omitempty,gte=0"`
}

type paymentRetryRequest struct {
	PaymentToken string `json:"payment_token" validate:"required,max=255"`
}

type feedbackRequest struct {
	Rating     int            `json:"rating" validate:"required,min=1,max=5"`
	Categories map[string]int `json:"categories,omitempty"`
	Comment    string         `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

type progressRequest struct {
	EnergyKWh decimal.Decimal `json:"energy_kwh"`
}

// BookingCreate reserves a charger for the caller.
func BookingCreate(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		var payload bookingCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Create(r.Context(), actor, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

// BookingList returns the caller's bookings newest first.
func BookingList(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		status, params, err := parseBookingListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForUser(r.Context(), actor, actor.UserID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// StationBookingList returns a station's bookings to its operator.
func StationBookingList(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		stationID, err := pathUUID(r, "stationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, params, err := parseBookingListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForStation(r.Context(), actor, stationID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func parseBookingListQuery(r *http.Request) (*enums.BookingStatus, pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return nil, pagination.Params{}, err
	}
	params := pagination.Params{Limit: limit, Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, params, nil
	}
	status, err := enums.ParseBookingStatus(strings.ToLower(raw))
	if err != nil {
		return nil, params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
	}
	return &status, params, nil
}

// BookingGet returns one booking visible to the caller.
func BookingGet(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		bookingID, err := pathUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.Get(r.Context(), actor, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// BookingTransition applies a lifecycle event. The request body is optional.
func BookingTransition(svc bookings.Service, event enums.BookingEvent, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		bookingID, err := pathUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bookingTransitionRequest
		if hasBody(r) {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		booking, err := svc.Transition(r.Context(), actor, bookingID, bookings.TransitionInput{
			Event:       event,
			Reason:      validators.SanitizeString(payload.Reason, 500),
			EnergyKWh:   payload.EnergyKWh,
			PeakPowerKW: payload.PeakPowerKW,
			AvgPowerKW:  payload.AvgPowerKW,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// BookingPaymentRetry charges a booking whose payment failed.
func BookingPaymentRetry(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		bookingID, err := pathUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload paymentRetryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.RetryPayment(r.Context(), actor, bookingID, strings.TrimSpace(payload.PaymentToken))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// BookingFeedback records the driver's review of a completed session.
func BookingFeedback(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		bookingID, err := pathUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload feedbackRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.AddFeedback(r.Context(), actor, bookingID, bookings.FeedbackInput{
			Rating:     payload.Rating,
			Categories: types.Ratings(payload.Categories),
			Comment:    payload.Comment,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

// BookingProgress records energy delivered so far on an active session.
func BookingProgress(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}
		bookingID, err := pathUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload progressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ReportProgress(r.Context(), actor, bookingID, payload.EnergyKWh); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "recorded"})
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return auth.Actor{}, false
	}
	return actor, true
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}
