package stations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

// ErrVersionConflict is returned when a compare-and-set keeps losing to
// concurrent writers after every retry.
var ErrVersionConflict = errors.New("station version conflict")

// ErrStationClosed is returned by ClaimForBooking when the station stopped
// accepting bookings.
var ErrStationClosed = errors.New("station is not accepting bookings")

const defaultCASRetries = 5

// Mutation edits a private copy of a station. Returning an error aborts the write.
type Mutation func(station *models.Station) error

// ChargerMutation edits one charger of a private station copy.
type ChargerMutation func(station *models.Station, charger *types.Charger) error

// ListFilter is the portable SQL prefilter used by search and warm-up.
type ListFilter struct {
	IDs    []uuid.UUID
	Status *enums.StationStatus
}

// Repository handles station persistence.
type Repository struct {
	db      *gorm.DB
	retries int
}

// NewRepository binds a GORM DB to station operations.
func NewRepository(db *gorm.DB, casRetries int) *Repository {
	if casRetries <= 0 {
		casRetries = defaultCASRetries
	}
	return &Repository{db: db, retries: casRetries}
}

// Create persists a new station row.
func (r *Repository) Create(ctx context.Context, station *models.Station) error {
	if station == nil {
		return fmt.Errorf("station is required")
	}
	return r.db.WithContext(ctx).Create(station).Error
}

// FindByID loads a station by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Station, error) {
	var station models.Station
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&station).Error; err != nil {
		return nil, err
	}
	return &station, nil
}

// List returns stations matching the filter in creation order.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Station, error) {
	q := r.db.WithContext(ctx).Model(&models.Station{})
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []models.Station{}, nil
		}
		q = q.Where("id IN ?", filter.IDs)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	var out []models.Station
	if err := q.Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListLocations loads only ids and coordinates, for warming the geo index.
func (r *Repository) ListLocations(ctx context.Context) ([]models.Station, error) {
	var out []models.Station
	if err := r.db.WithContext(ctx).Select("id", "geom").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteIf removes the station when check passes against the row as read.
// The delete is conditional on that row's version, so a concurrent
// ClaimForBooking forces a re-read and a fresh check.
func (r *Repository) DeleteIf(ctx context.Context, id uuid.UUID, check Mutation) error {
	for attempt := 0; attempt < r.retries; attempt++ {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := check(current); err != nil {
			return err
		}
		res := r.db.WithContext(ctx).Where("id = ? AND version = ?", id, current.Version).Delete(&models.Station{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrVersionConflict
}

// ClaimForBooking runs inside the booking insert transaction. It re-reads the
// station, confirms the charger still exists and the station accepts
// bookings, then bumps the version. Registry writes that checked for open
// bookings against the older version lose their compare-and-set and re-check.
func (r *Repository) ClaimForBooking(ctx context.Context, tx *gorm.DB, stationID uuid.UUID, chargerID string) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	for attempt := 0; attempt < r.retries; attempt++ {
		var station models.Station
		if err := conn.WithContext(ctx).Where("id = ?", stationID).First(&station).Error; err != nil {
			return err
		}
		if !station.Status.AcceptsBookings() {
			return ErrStationClosed
		}
		if station.Chargers.Find(chargerID) < 0 {
			return ErrChargerNotFound
		}
		res := conn.WithContext(ctx).Model(&models.Station{}).
			Where("id = ? AND version = ?", stationID, station.Version).
			Updates(map[string]any{"version": station.Version + 1, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrVersionConflict
}

// CountOpenBookings counts booked/active bookings on a station, optionally
// narrowed to one charger.
func (r *Repository) CountOpenBookings(ctx context.Context, stationID uuid.UUID, chargerID string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("station_id = ? AND status IN ?", stationID, enums.OpenBookingStatuses)
	if chargerID != "" {
		q = q.Where("charger_id = ?", chargerID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MutateStation applies fn to a fresh copy of the station and writes it back
// with a version compare-and-set, reloading and retrying on conflict.
func (r *Repository) MutateStation(ctx context.Context, id uuid.UUID, fn Mutation) (*models.Station, error) {
	for attempt := 0; attempt < r.retries; attempt++ {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		next := *current
		next.Chargers = current.Chargers.Clone()
		if err := fn(&next); err != nil {
			return nil, err
		}
		swapped, err := r.compareAndSwap(ctx, current.Version, &next)
		if err != nil {
			return nil, err
		}
		if swapped {
			return &next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, ErrVersionConflict
}

// MutateCharger is the single write path for charger status and session
// state. Callers outside the availability guard use it only for tariff edits.
func (r *Repository) MutateCharger(ctx context.Context, stationID uuid.UUID, chargerID string, fn ChargerMutation) (*models.Station, error) {
	return r.MutateStation(ctx, stationID, func(station *models.Station) error {
		idx := station.Chargers.Find(chargerID)
		if idx < 0 {
			return ErrChargerNotFound
		}
		return fn(station, &station.Chargers[idx])
	})
}

func (r *Repository) compareAndSwap(ctx context.Context, expected int64, next *models.Station) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Station{}).
		Where("id = ? AND version = ?", next.ID, expected).
		Updates(map[string]any{
			"name":             next.Name,
			"operator_name":    next.OperatorName,
			"address":          next.Address,
			"geom":             next.Location,
			"place_id":         next.PlaceID,
			"chargers":         next.Chargers,
			"amenities":        next.Amenities,
			"operating_hours":  next.OperatingHours,
			"rating_average":   next.RatingAverage,
			"rating_count":     next.RatingCount,
			"status":           next.Status,
			"total_sessions":   next.TotalSessions,
			"total_energy_kwh": next.TotalEnergyKWh,
			"version":          expected + 1,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	next.Version = expected + 1
	next.UpdatedAt = now
	return true, nil
}
