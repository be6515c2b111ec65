package stations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/internal/geoindex"
	"github.com/angelmondragon/evcharge-backend/pkg/auth"
	"github.com/angelmondragon/evcharge-backend/pkg/db"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/maps"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

// ErrChargerNotFound is returned by charger mutations on an unknown charger id.
var ErrChargerNotFound = errors.New("charger not found")

const maxChargersPerStation = 64

type stationRepository interface {
	Create(ctx context.Context, station *models.Station) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Station, error)
	ListLocations(ctx context.Context) ([]models.Station, error)
	DeleteIf(ctx context.Context, id uuid.UUID, check Mutation) error
	CountOpenBookings(ctx context.Context, stationID uuid.UUID, chargerID string) (int64, error)
	MutateStation(ctx context.Context, id uuid.UUID, fn Mutation) (*models.Station, error)
	MutateCharger(ctx context.Context, stationID uuid.UUID, chargerID string, fn ChargerMutation) (*models.Station, error)
}

// Locator is the slice of the geo index the registry keeps in sync.
type Locator interface {
	Upsert(stationID string, p geoindex.Point) error
	Remove(stationID string)
}

// Service exposes the station and charger registry.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateStationInput) (*StationDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*StationDTO, error)
	Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateStationInput) (*StationDTO, error)
	SetStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status enums.StationStatus) (*StationDTO, error)
	Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error
	AddCharger(ctx context.Context, actor auth.Actor, stationID uuid.UUID, input ChargerInput) (*StationDTO, error)
	UpdateCharger(ctx context.Context, actor auth.Actor, stationID uuid.UUID, chargerID string, input ChargerUpdateInput) (*StationDTO, error)
	RemoveCharger(ctx context.Context, actor auth.Actor, stationID uuid.UUID, chargerID string) (*StationDTO, error)
	AvailableChargerCount(ctx context.Context, id uuid.UUID) (int, error)
	Authorize(ctx context.Context, actor auth.Actor, stationID uuid.UUID) error
	WarmIndex(ctx context.Context) (int, error)
}

type service struct {
	repo     stationRepository
	index    Locator
	geocoder maps.Geocoder
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the registry. geocoder may be nil when Google Maps is not
// configured; placeId inputs are then rejected.
func NewService(repo stationRepository, index Locator, geocoder maps.Geocoder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("station repository required")
	}
	if index == nil {
		return nil, fmt.Errorf("geo index required")
	}
	return &service{
		repo:     repo,
		index:    index,
		geocoder: geocoder,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateStationInput) (*StationDTO, error) {
	if !actor.Role.CanOperateStations() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "operator role required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len(input.Chargers) > maxChargersPerStation {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d chargers per station", maxChargersPerStation)
	}

	location, address, placeID, err := s.resolveLocation(ctx, input.Location, input.Address, input.PlaceID)
	if err != nil {
		return nil, err
	}
	amenities, err := normalizeAmenities(input.Amenities)
	if err != nil {
		return nil, err
	}
	if err := input.OperatingHours.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid operating hours")
	}
	status := enums.StationStatusActive
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid station status")
		}
		status = *input.Status
	}

	chargers := types.Chargers{}
	for _, in := range input.Chargers {
		charger, err := newCharger(chargers, in)
		if err != nil {
			return nil, err
		}
		chargers = append(chargers, charger)
	}

	operatorName := strings.TrimSpace(input.OperatorName)
	if operatorName == "" {
		operatorName = name
	}
	now := s.now().UTC()
	station := &models.Station{
		ID:             uuid.New(),
		Name:           name,
		OperatorID:     actor.UserID,
		OperatorName:   operatorName,
		Address:        address,
		Location:       location,
		PlaceID:        placeID,
		Chargers:       chargers,
		Amenities:      amenities,
		OperatingHours: input.OperatingHours,
		Status:         status,
		TotalEnergyKWh: decimal.Zero,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, station); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "create station")
	}
	s.syncIndex(ctx, station)

	if s.logg != nil {
		logCtx := s.logg.WithStationID(ctx, station.ID.String())
		s.logg.Info(logCtx, fmt.Sprintf("station created with %d chargers", len(chargers)))
	}
	return FromModel(station), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*StationDTO, error) {
	station, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(station), nil
}

func (s *service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateStationInput) (*StationDTO, error) {
	if err := s.Authorize(ctx, actor, id); err != nil {
		return nil, err
	}

	var (
		location *types.GeographyPoint
		address  *types.Address
		placeID  *string
	)
	if input.Location != nil || input.PlaceID != nil {
		loc, addr, pid, err := s.resolvePoint(ctx, input.Location, input.PlaceID)
		if err != nil {
			return nil, err
		}
		location, address, placeID = &loc, addr, pid
	}
	if input.Address != nil {
		address = input.Address
	}
	if address != nil {
		normalized, err := normalizeAddress(*address)
		if err != nil {
			return nil, err
		}
		address = &normalized
	}

	var amenities types.Amenities
	if input.Amenities != nil {
		normalized, err := normalizeAmenities(*input.Amenities)
		if err != nil {
			return nil, err
		}
		amenities = normalized
	}
	if input.OperatingHours != nil {
		if err := input.OperatingHours.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid operating hours")
		}
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must not be empty")
	}

	station, err := s.repo.MutateStation(ctx, id, func(st *models.Station) error {
		if input.Name != nil {
			st.Name = strings.TrimSpace(*input.Name)
		}
		if input.OperatorName != nil {
			st.OperatorName = strings.TrimSpace(*input.OperatorName)
		}
		if address != nil {
			st.Address = *address
		}
		if location != nil {
			st.Location = *location
		}
		if placeID != nil {
			st.PlaceID = placeID
		}
		if input.Amenities != nil {
			st.Amenities = amenities
		}
		if input.OperatingHours != nil {
			st.OperatingHours = *input.OperatingHours
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "update station")
	}
	if location != nil {
		s.syncIndex(ctx, station)
	}
	return FromModel(station), nil
}

func (s *service) SetStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status enums.StationStatus) (*StationDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid station status")
	}
	if err := s.Authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	station, err := s.repo.MutateStation(ctx, id, func(st *models.Station) error {
		if !status.AcceptsBookings() {
			if err := s.ensureNoOpenBookings(ctx, id, ""); err != nil {
				return err
			}
		}
		st.Status = status
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "update station status")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithStationID(ctx, id.String()), fmt.Sprintf("station status set to %s", status))
	}
	return FromModel(station), nil
}

func (s *service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if err := s.Authorize(ctx, actor, id); err != nil {
		return err
	}
	err := s.repo.DeleteIf(ctx, id, func(*models.Station) error {
		return s.ensureNoOpenBookings(ctx, id, "")
	})
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return pkgerrors.New(pkgerrors.CodeConflict, "station has booking history; deactivate it instead")
		}
		return mapStoreError(err, "delete station")
	}
	s.index.Remove(id.String())
	if s.logg != nil {
		s.logg.Info(s.logg.WithStationID(ctx, id.String()), "station deleted")
	}
	return nil
}

func (s *service) AddCharger(ctx context.Context, actor auth.Actor, stationID uuid.UUID, input ChargerInput) (*StationDTO, error) {
	if err := s.Authorize(ctx, actor, stationID); err != nil {
		return nil, err
	}
	station, err := s.repo.MutateStation(ctx, stationID, func(st *models.Station) error {
		if len(st.Chargers) >= maxChargersPerStation {
			return pkgerrors.New(pkgerrors.CodeConflict, "station charger limit reached")
		}
		charger, err := newCharger(st.Chargers, input)
		if err != nil {
			return err
		}
		st.Chargers = append(st.Chargers, charger)
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "add charger")
	}
	return FromModel(station), nil
}

func (s *service) UpdateCharger(ctx context.Context, actor auth.Actor, stationID uuid.UUID, chargerID string, input ChargerUpdateInput) (*StationDTO, error) {
	if err := s.Authorize(ctx, actor, stationID); err != nil {
		return nil, err
	}
	if input.ConnectorType != nil && !input.ConnectorType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid connector type")
	}
	if input.PowerKW != nil && *input.PowerKW <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "power must be positive")
	}
	if input.Pricing != nil {
		if err := validatePricing(*input.Pricing); err != nil {
			return nil, err
		}
	}
	station, err := s.repo.MutateCharger(ctx, stationID, chargerID, func(_ *models.Station, c *types.Charger) error {
		if input.ConnectorType != nil {
			c.ConnectorType = *input.ConnectorType
		}
		if input.PowerKW != nil {
			c.PowerKW = *input.PowerKW
		}
		if input.Pricing != nil {
			c.Pricing = *input.Pricing
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "update charger")
	}
	return FromModel(station), nil
}

func (s *service) RemoveCharger(ctx context.Context, actor auth.Actor, stationID uuid.UUID, chargerID string) (*StationDTO, error) {
	if err := s.Authorize(ctx, actor, stationID); err != nil {
		return nil, err
	}
	station, err := s.repo.MutateStation(ctx, stationID, func(st *models.Station) error {
		idx := st.Chargers.Find(chargerID)
		if idx < 0 {
			return ErrChargerNotFound
		}
		if st.Chargers[idx].Status == enums.ChargerStatusOccupied {
			return pkgerrors.New(pkgerrors.CodeConflict, "charger is occupied")
		}
		if err := s.ensureNoOpenBookings(ctx, stationID, chargerID); err != nil {
			return err
		}
		st.Chargers = append(st.Chargers[:idx], st.Chargers[idx+1:]...)
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "remove charger")
	}
	return FromModel(station), nil
}

func (s *service) AvailableChargerCount(ctx context.Context, id uuid.UUID) (int, error) {
	station, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	return station.AvailableChargerCount(), nil
}

// Authorize checks the actor may mutate the station.
func (s *service) Authorize(ctx context.Context, actor auth.Actor, stationID uuid.UUID) error {
	if !actor.Role.CanOperateStations() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "operator role required")
	}
	station, err := s.load(ctx, stationID)
	if err != nil {
		return err
	}
	if !actor.CanManageStation(station.OperatorID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "station belongs to another operator")
	}
	return nil
}

// WarmIndex loads every station coordinate into the geo index.
func (s *service) WarmIndex(ctx context.Context) (int, error) {
	rows, err := s.repo.ListLocations(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "list station locations")
	}
	loaded := 0
	for i := range rows {
		if err := s.index.Upsert(rows[i].ID.String(), geoindex.Point{Lat: rows[i].Location.Lat, Lng: rows[i].Location.Lng}); err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithStationID(ctx, rows[i].ID.String()), "skipping station with invalid coordinates")
			}
			continue
		}
		loaded++
	}
	if s.logg != nil {
		s.logg.Info(ctx, fmt.Sprintf("geo index warmed with %d stations", loaded))
	}
	return loaded, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Station, error) {
	station, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "load station")
	}
	return station, nil
}

func (s *service) ensureNoOpenBookings(ctx context.Context, stationID uuid.UUID, chargerID string) error {
	open, err := s.repo.CountOpenBookings(ctx, stationID, chargerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "count open bookings")
	}
	if open > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "station has open bookings").
			WithDetails(map[string]any{"open_bookings": open})
	}
	return nil
}

func (s *service) syncIndex(ctx context.Context, station *models.Station) {
	err := s.index.Upsert(station.ID.String(), geoindex.Point{Lat: station.Location.Lat, Lng: station.Location.Lng})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithStationID(ctx, station.ID.String()), "geo index upsert failed", err)
	}
}

// resolveLocation prefers explicit coordinates and falls back to geocoding a
// place id. A new station always needs an address.
func (s *service) resolveLocation(ctx context.Context, location *types.GeographyPoint, address *types.Address, placeID *string) (types.GeographyPoint, types.Address, *string, error) {
	point, geocoded, pid, err := s.resolvePoint(ctx, location, placeID)
	if err != nil {
		return types.GeographyPoint{}, types.Address{}, nil, err
	}
	if address == nil {
		address = geocoded
	}
	if address == nil {
		return types.GeographyPoint{}, types.Address{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}
	normalized, err := normalizeAddress(*address)
	if err != nil {
		return types.GeographyPoint{}, types.Address{}, nil, err
	}
	return point, normalized, pid, nil
}

// resolvePoint returns the validated coordinate, plus the geocoded address
// when the point came from a place lookup.
func (s *service) resolvePoint(ctx context.Context, location *types.GeographyPoint, placeID *string) (types.GeographyPoint, *types.Address, *string, error) {
	var pid *string
	if placeID != nil && strings.TrimSpace(*placeID) != "" {
		trimmed := strings.TrimSpace(*placeID)
		pid = &trimmed
	}

	var geocoded *types.Address
	if location == nil {
		if pid == nil {
			return types.GeographyPoint{}, nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "location or place_id is required")
		}
		if s.geocoder == nil {
			return types.GeographyPoint{}, nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "place lookup is not configured; supply coordinates")
		}
		resolved, err := s.geocoder.LocateStation(ctx, *pid)
		if err != nil {
			return types.GeographyPoint{}, nil, nil, err
		}
		location = &resolved.Point
		geocoded = &resolved.Address
	}
	if err := location.Validate(); err != nil {
		return types.GeographyPoint{}, nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
	}
	return *location, geocoded, pid, nil
}

func normalizeAddress(a types.Address) (types.Address, error) {
	normalized, err := a.Normalized()
	if err != nil {
		return types.Address{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	return normalized, nil
}

func normalizeAmenities(in []enums.Amenity) (types.Amenities, error) {
	seen := map[enums.Amenity]struct{}{}
	out := types.Amenities{}
	for _, a := range in {
		if !a.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown amenity %q", a)
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func validatePricing(p types.ChargerPricing) error {
	if p.PerKWh.IsNegative() || p.PerMinute.IsNegative() || p.SessionFee.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "pricing components must not be negative")
	}
	if !p.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid pricing currency")
	}
	return nil
}

// newCharger validates input and assigns the next C<n> id when none is given.
func newCharger(existing types.Chargers, in ChargerInput) (types.Charger, error) {
	if !in.ConnectorType.IsValid() {
		return types.Charger{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid connector type")
	}
	if in.PowerKW <= 0 {
		return types.Charger{}, pkgerrors.New(pkgerrors.CodeValidation, "power must be positive")
	}
	if err := validatePricing(in.Pricing); err != nil {
		return types.Charger{}, err
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = nextChargerID(existing)
	} else if existing.Find(id) >= 0 {
		return types.Charger{}, pkgerrors.Newf(pkgerrors.CodeConflict, "charger %s already exists", id)
	}
	return types.Charger{
		ID:             id,
		ConnectorType:  in.ConnectorType,
		PowerKW:        in.PowerKW,
		Pricing:        in.Pricing,
		Status:         enums.ChargerStatusAvailable,
		TotalEnergyKWh: decimal.Zero,
	}, nil
}

func nextChargerID(existing types.Chargers) string {
	highest := 0
	for _, c := range existing {
		if !strings.HasPrefix(c.ID, "C") {
			continue
		}
		if n, err := strconv.Atoi(c.ID[1:]); err == nil && n > highest {
			highest = n
		}
	}
	return "C" + strconv.Itoa(highest+1)
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
		return pkgerrors.New(pkgerrors.CodeNotFound, "station not found")
	case errors.Is(err, ErrChargerNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "charger not found")
	case errors.Is(err, ErrVersionConflict):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "station was modified concurrently; retry")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, action)
	}
}
