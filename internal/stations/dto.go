package stations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

// RatingDTO is the aggregate rating of a station.
type RatingDTO struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// StationDTO exposes a station with its derived available charger count.
type StationDTO struct {
	ID                    uuid.UUID            `json:"id"`
	Name                  string               `json:"name"`
	OperatorID            uuid.UUID            `json:"operator_id"`
	OperatorName          string               `json:"operator_name"`
	Address               types.Address        `json:"address"`
	Location              types.GeographyPoint `json:"location"`
	PlaceID               *string              `json:"place_id,omitempty"`
	Chargers              types.Chargers       `json:"chargers"`
	AvailableChargerCount int                  `json:"available_charger_count"`
	Amenities             types.Amenities      `json:"amenities"`
	OperatingHours        types.OperatingHours `json:"operating_hours,omitempty"`
	Rating                RatingDTO            `json:"rating"`
	Status                enums.StationStatus  `json:"status"`
	TotalSessions         int64                `json:"total_sessions"`
	TotalEnergyKWh        decimal.Decimal      `json:"total_energy_kwh"`
	DistanceMeters        *float64             `json:"distance_meters,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// FromModel maps the persisted station into a DTO.
func FromModel(m *models.Station) *StationDTO {
	if m == nil {
		return nil
	}
	chargers := m.Chargers.Clone()
	if chargers == nil {
		chargers = types.Chargers{}
	}
	amenities := append(types.Amenities{}, m.Amenities...)
	return &StationDTO{
		ID:                    m.ID,
		Name:                  m.Name,
		OperatorID:            m.OperatorID,
		OperatorName:          m.OperatorName,
		Address:               m.Address,
		Location:              m.Location,
		PlaceID:               m.PlaceID,
		Chargers:              chargers,
		AvailableChargerCount: m.AvailableChargerCount(),
		Amenities:             amenities,
		OperatingHours:        m.OperatingHours,
		Rating:                RatingDTO{Average: m.RatingAverage, Count: m.RatingCount},
		Status:                m.Status,
		TotalSessions:         m.TotalSessions,
		TotalEnergyKWh:        m.TotalEnergyKWh,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// ChargerInput describes a charger supplied at creation or when added later.
type ChargerInput struct {
	ID            string
	ConnectorType enums.ConnectorType
	PowerKW       float64
	Pricing       types.ChargerPricing
}

// CreateStationInput carries station creation data. Either Location or
// PlaceID must be set.
type CreateStationInput struct {
	Name           string
	OperatorName   string
	Address        *types.Address
	Location       *types.GeographyPoint
	PlaceID        *string
	Chargers       []ChargerInput
	Amenities      []enums.Amenity
	OperatingHours types.OperatingHours
	Status         *enums.StationStatus
}

// UpdateStationInput captures the mutable descriptive station fields.
type UpdateStationInput struct {
	Name           *string
	OperatorName   *string
	Address        *types.Address
	Location       *types.GeographyPoint
	PlaceID        *string
	Amenities      *[]enums.Amenity
	OperatingHours *types.OperatingHours
}

// ChargerUpdateInput edits tariff and hardware attributes; status is owned
// by the availability guard.
type ChargerUpdateInput struct {
	ConnectorType *enums.ConnectorType
	PowerKW       *float64
	Pricing       *types.ChargerPricing
}
