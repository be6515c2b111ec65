package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/evcharge-backend/api/responses"
	"github.com/angelmondragon/evcharge-backend/api/validators"
	"github.com/angelmondragon/evcharge-backend/internal/geoindex"
	"github.com/angelmondragon/evcharge-backend/internal/search"
	"github.com/angelmondragon/evcharge-backend/internal/stations"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
)

const maxQueryPage = 1_000_000

// StationSearch answers GET /api/v1/stations.
func StationSearch(svc search.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "search service unavailable"))
			return
		}

		criteria, err := parseSearchCriteria(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Search(r.Context(), criteria)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseSearchCriteria(r *http.Request) (search.Criteria, error) {
	q := r.URL.Query()
	criteria := search.Criteria{
		Query: validators.SanitizeString(q.Get("q"), 0),
		City:  validators.SanitizeString(q.Get("city"), 120),
		State: validators.SanitizeString(q.Get("state"), 120),
		Sort:  search.SortKey(strings.TrimSpace(q.Get("sort"))),
		Order: search.SortOrder(strings.ToLower(strings.TrimSpace(q.Get("order")))),
	}

	for _, raw := range validators.ParseQueryList(r, "amenities") {
		criteria.Amenities = append(criteria.Amenities, enums.Amenity(strings.ToLower(raw)))
	}
	if raw := strings.TrimSpace(q.Get("chargerType")); raw != "" {
		ct := enums.ConnectorType(strings.ToLower(raw))
		criteria.ChargerType = &ct
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st := enums.StationStatus(strings.ToLower(raw))
		criteria.Status = &st
	}

	var err error
	if criteria.HasAvailable, err = validators.ParseQueryBool(r, "hasAvailable"); err != nil {
		return criteria, err
	}
	if criteria.MinRating, err = validators.ParseQueryFloat(r, "minRating"); err != nil {
		return criteria, err
	}
	if criteria.Page, err = validators.ParseQueryInt(r, "page", 0, 0, maxQueryPage); err != nil {
		return criteria, err
	}
	if criteria.PageSize, err = validators.ParseQueryInt(r, "pageSize", 0, 0, maxQueryPage); err != nil {
		return criteria, err
	}

	lat, err := validators.ParseQueryFloat(r, "lat")
	if err != nil {
		return criteria, err
	}
	lng, err := validators.ParseQueryFloat(r, "lng")
	if err != nil {
		return criteria, err
	}
	radius, err := validators.ParseQueryFloat(r, "radiusKm")
	if err != nil {
		return criteria, err
	}
	if (lat == nil) != (lng == nil) {
		return criteria, pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must be provided together")
	}
	if lat != nil {
		criteria.Center = &geoindex.Point{Lat: *lat, Lng: *lng}
	}
	if radius != nil {
		criteria.RadiusKm = *radius
	}
	return criteria, nil
}

// StationGet returns a single station with its derived available count.
func StationGet(svc stations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "station service unavailable"))
			return
		}
		stationID, err := pathUUID(r, "stationId")
		if err != nil {
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

// LiveFeed upgrades a request into a charger status stream.
type LiveFeed interface {
	ServeStation(w http.ResponseWriter, r *http.Request, stationID uuid.UUID)
}

// StationLive streams charger status changes for one existing station.
func StationLive(svc stations.Service, feed LiveFeed, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || feed == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeServiceUnavailable, "live status unavailable"))
			return
		}
		stationID, err := pathUUID(r, "stationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.Get(r.Context(), stationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		feed.ServeStation(w, r, stationID)
	}
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}
