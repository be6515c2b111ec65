package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/evcharge-backend/api/responses"
	"github.com/angelmondragon/evcharge-backend/api/validators"
	"github.com/angelmondragon/evcharge-backend/internal/stations"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/maps"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

type chargerRequest struct {
	ID            string               `json:"id,omitempty" validate:"omitempty,max=64"`
	ConnectorType string               `json:"connector_type" validate:"required"`
	PowerKW       float64              `json:"power_kw" validate:"required,gt=0"`
	Pricing       types.ChargerPricing `json:"pricing"`
}

func (r chargerRequest) toInput() stations.ChargerInput {
	return stations.ChargerInput{
		ID:            strings.TrimSpace(r.ID),
		ConnectorType: enums.ConnectorType(strings.ToLower(strings.TrimSpace(r.ConnectorType))),
		PowerKW:       r.PowerKW,
		Pricing:       r.Pricing,
	}
}

type stationCreateRequest struct {
	Name           string                `json:"name" validate:"required,max=200"`
	OperatorName   string                `json:"operator_name" validate:"max=200"`
	Address        *types.Address        `json:"address,omitempty"`
	Location       *types.GeographyPoint `json:"location,omitempty"`
	PlaceID        *string               `json:"place_id,omitempty"`
	Chargers       []chargerRequest      `json:"chargers" validate:"dive"`
	Amenities      []string              `json:"amenities,omitempty"`
	OperatingHours types.OperatingHours  `json:"operating_hours,omitempty"`
	Status         *string               `json:"status,omitempty"`
}

func (r stationCreateRequest) toInput() stations.CreateStationInput {
	input := stations.CreateStationInput{
		Name:           validators.SanitizeString(r.Name, 200),
		OperatorName:   validators.SanitizeString(r.OperatorName, 200),
		Address:        r.Address,
		Location:       r.Location,
		PlaceID:        r.PlaceID,
		Amenities:      toAmenities(r.Amenities),
		OperatingHours: r.OperatingHours,
	}
	for _, c := range r.Chargers {
		input.Chargers = append(input.Chargers, c.toInput())
	}
	if r.Status != nil {
		status := enums.StationStatus(strings.ToLower(strings.TrimSpace(*r.Status)))
		input.Status = &status
	}
	return input
}

type stationUpdateRequest struct {
	Name           *string               `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	OperatorName   *string               `json:"operator_name,omitempty" validate:"omitempty,max=200"`
	Address        *types.Address        `json:"address,omitempty"`
	Location       *types.GeographyPoint `json:"location,omitempty"`
	PlaceID        *string               `json:"place_id,omitempty"`
	Amenities      *[]string             `json:"amenities,omitempty"`
	OperatingHours *types.OperatingHours `json:"operating_hours,omitempty"`
}

func (r stationUpdateRequest) toInput() stations.UpdateStationInput {
	input := stations.UpdateStationInput{
		Name:           r.Name,
		OperatorName:   r.OperatorName,
		Address:        r.Address,
		Location:       r.Location,
		PlaceID:        r.PlaceID,
		OperatingHours: r.OperatingHours,
	}
	if r.Amenities != nil {
		amenities := toAmenities(*r.Amenities)
		input.Amenities = &amenities
	}
	return input
}

type chargerUpdateRequest struct {
	ConnectorType *string               `json:"connector_type,omitempty"`
	PowerKW       *float64              `json:"power_kw,omitempty" validate:"omitempty,gt=0"`
	Pricing       *types.ChargerPricing `json:"pricing,omitempty"`
}

func (r chargerUpdateRequest) toInput() stations.ChargerUpdateInput {
	input := stations.ChargerUpdateInput{PowerKW: r.PowerKW, Pricing: r.Pricing}
	if r.ConnectorType != nil {
		ct := enums.ConnectorType(strings.ToLower(strings.TrimSpace(*r.ConnectorType)))
		input.ConnectorType = &ct
	}
	return input
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func toAmenities(raw []string) []enums.Amenity {
	out := make([]enums.Amenity, 0, len(raw))
	for _, a := range raw {
		out = append(out, enums.Amenity(strings.ToLower(strings.TrimSpace(a))))
	}
	return out
}

// OperatorStationCreate registers a station owned by the caller.
func OperatorStationCreate(svc stations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "station service unavailable"))
			return
		}
		var payload stationCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		station, err := svc.Create(r.Context(), actor, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, station)
	}
}

// OperatorStationUpdate edits descriptive station fields.
func OperatorStationUpdate(svc stations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "station service unavailable"))
			return
		}
		stationID, err := pathUUID(r, "stationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload stationUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		station, err := svc.Update(r.Context(), actor, stationID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, station)
	}
}

func OperatorStationStatus(svc stations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "station service unavailable"))
			return
		}
		stationID, err := pathUUID(r, "stationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload statusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := enums.StationStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
		station, err := svc.SetStatus(r.Context(), actor, stationID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, station)
	}
}

func OperatorStationDelete(svc stations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "station service unavailable"))
			return
		}
		stationID, err := pathUUID(r, "stationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), actor, stationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func OperatorChargerAdd(svc stations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "station service unavailable"))
			return
		}
		stationID, err := pathUUID(r, "stationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload chargerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		station, err := svc.AddCharger(r.Context(), actor, stationID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, station)
	}
}

func OperatorChargerUpdate(svc stations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "station service unavailable"))
			return
		}
		stationID, chargerID, err := chargerPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload chargerUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		station, err := svc.UpdateCharger(r.Context(), actor, stationID, chargerID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, station)
	}
}

func OperatorChargerRemove(svc stations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "station service unavailable"))
			return
		}
		stationID, chargerID, err := chargerPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		station, err := svc.RemoveCharger(r.Context(), actor, stationID, chargerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, station)
	}
}

// ChargerStatusSetter moves chargers between operational states under the charger lock.
type ChargerStatusSetter interface {
	SetOperationalStatus(ctx context.Context, stationID uuid.UUID, chargerID string, status enums.ChargerStatus) error
}

// OperatorChargerStatus checks station ownership, then hands the change to the guard.
func OperatorChargerStatus(svc stations.Service, guard ChargerStatusSetter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		if svc == nil || guard == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "station service unavailable"))
			return
		}
		stationID, chargerID, err := chargerPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload statusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Authorize(r.Context(), actor, stationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := enums.ChargerStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
		if err := guard.SetOperationalStatus(r.Context(), stationID, chargerID, status); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		station, err := svc.Get(r.Context(), stationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, station)
	}
}

func chargerPath(r *http.Request) (uuid.UUID, string, error) {
	stationID, err := pathUUID(r, "stationId")
	if err != nil {
		return uuid.Nil, "", err
	}
	chargerID := strings.TrimSpace(chi.URLParam(r, "chargerId"))
	if chargerID == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "chargerId is required")
	}
	return stationID, chargerID, nil
}

// OperatorPlaceSuggest completes a partial station address via Google Places.
func OperatorPlaceSuggest(places maps.PlaceSuggester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if places == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeServiceUnavailable, "place lookup is not configured"))
			return
		}
		query := validators.SanitizeString(r.URL.Query().Get("q"), 200)
		if query == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "q is required"))
			return
		}
		suggestions, err := places.SuggestPlaces(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, suggestions)
	}
}
