package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

// Station is a charging site owning an embedded list of chargers.
// Version guards every charger mutation with a compare-and-set update.
type Station struct {
	ID             uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string               `gorm:"column:name;not null"`
	OperatorID     uuid.UUID            `gorm:"column:operator_id;type:uuid;not null"`
	OperatorName   string               `gorm:"column:operator_name;not null"`
	Address        types.Address        `gorm:"column:address;type:address_t;not null"`
	Location       types.GeographyPoint `gorm:"column:geom;type:geography(Point,4326);not null"`
	PlaceID        *string              `gorm:"column:place_id"`
	Chargers       types.Chargers       `gorm:"column:chargers;type:jsonb;not null"`
	Amenities      types.Amenities      `gorm:"column:amenities;type:jsonb;not null"`
	OperatingHours types.OperatingHours `gorm:"column:operating_hours;type:jsonb;not null"`
	RatingAverage  float64              `gorm:"column:rating_average;not null;default:0"`
	RatingCount    int                  `gorm:"column:rating_count;not null;default:0"`
	Status         enums.StationStatus  `gorm:"column:status;type:station_status;not null;default:'active'"`
	TotalSessions  int64                `gorm:"column:total_sessions;not null;default:0"`
	TotalEnergyKWh decimal.Decimal      `gorm:"column:total_energy_kwh;type:numeric(14,3);not null;default:0"`
	Version        int64                `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableChargerCount is derived from charger statuses on every call.
func (s Station) AvailableChargerCount() int {
	return s.Chargers.AvailableCount()
}
