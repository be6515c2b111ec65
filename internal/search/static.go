package search

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/evcharge-backend/internal/geoindex"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

//go:embed data/stations.yaml
var defaultDataset []byte

type staticDataset struct {
	Stations []staticStation `yaml:"stations"`
}

type staticStation struct {
	ID           string               `yaml:"id"`
	Name         string               `yaml:"name"`
	OperatorName string               `yaml:"operator_name"`
	Address      types.Address        `yaml:"address"`
	Location     types.GeographyPoint `yaml:"location"`
	Amenities    []enums.Amenity      `yaml:"amenities"`
	Rating       float64              `yaml:"rating"`
	RatingCount  int                  `yaml:"rating_count"`
	Status       enums.StationStatus  `yaml:"status"`
	CreatedAt    time.Time            `yaml:"created_at"`
	Chargers     []staticCharger      `yaml:"chargers"`
}

type staticCharger struct {
	ID         string              `yaml:"id"`
	Connector  enums.ConnectorType `yaml:"connector"`
	PowerKW    float64             `yaml:"power_kw"`
	PerKWh     string              `yaml:"per_kwh"`
	PerMinute  string              `yaml:"per_minute"`
	SessionFee string              `yaml:"session_fee"`
	Currency   enums.Currency      `yaml:"currency"`
	Status     enums.ChargerStatus `yaml:"status"`
}

// StaticSource serves a pre-loaded dataset with its own geo index. It is
// read-only after construction.
type StaticSource struct {
	stations map[uuid.UUID]models.Station
	order    []uuid.UUID
	index    *geoindex.Index
}

// NewDefaultStaticSource loads the dataset compiled into the binary.
func NewDefaultStaticSource(cellDegrees float64) (*StaticSource, error) {
	return NewStaticSource(defaultDataset, cellDegrees)
}

// NewStaticSource parses a YAML dataset.
func NewStaticSource(data []byte, cellDegrees float64) (*StaticSource, error) {
	var ds staticDataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode static dataset: %w", err)
	}
	src := &StaticSource{
		stations: make(map[uuid.UUID]models.Station, len(ds.Stations)),
		index:    geoindex.New(cellDegrees),
	}
	for i, raw := range ds.Stations {
		st, err := raw.toModel()
		if err != nil {
			return nil, fmt.Errorf("static station %d: %w", i, err)
		}
		if _, dup := src.stations[st.ID]; dup {
			return nil, fmt.Errorf("static station %d: duplicate id %s", i, st.ID)
		}
		if err := src.index.Upsert(st.ID.String(), geoindex.Point{Lat: st.Location.Lat, Lng: st.Location.Lng}); err != nil {
			return nil, fmt.Errorf("static station %s: %w", st.ID, err)
		}
		src.stations[st.ID] = st
		src.order = append(src.order, st.ID)
	}
	return src, nil
}

func (s *StaticSource) Name() string { return "fallback" }

// Len is the number of stations in the dataset.
func (s *StaticSource) Len() int { return len(s.order) }

func (s *StaticSource) Candidates(_ context.Context, c Criteria) ([]Candidate, error) {
	if !c.GeoMode() {
		out := make([]Candidate, 0, len(s.order))
		for _, id := range s.order {
			out = append(out, Candidate{Station: s.copyOf(id)})
		}
		return out, nil
	}

	hits, err := s.index.Query(*c.Center, c.RadiusKm)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		id, err := uuid.Parse(hit.StationID)
		if err != nil {
			continue
		}
		d := hit.DistanceMeters
		out = append(out, Candidate{Station: s.copyOf(id), DistanceMeters: &d})
	}
	return out, nil
}

func (s *StaticSource) copyOf(id uuid.UUID) models.Station {
	st := s.stations[id]
	st.Chargers = st.Chargers.Clone()
	st.Amenities = append(types.Amenities{}, st.Amenities...)
	return st
}

func (r staticStation) toModel() (models.Station, error) {
	id, err := uuid.Parse(strings.TrimSpace(r.ID))
	if err != nil {
		return models.Station{}, fmt.Errorf("invalid id: %w", err)
	}
	if strings.TrimSpace(r.Name) == "" {
		return models.Station{}, fmt.Errorf("name is required")
	}
	status := r.Status
	if status == "" {
		status = enums.StationStatusActive
	}
	if !status.IsValid() {
		return models.Station{}, fmt.Errorf("invalid status %q", status)
	}
	for _, a := range r.Amenities {
		if !a.IsValid() {
			return models.Station{}, fmt.Errorf("invalid amenity %q", a)
		}
	}

	chargers := make(types.Chargers, 0, len(r.Chargers))
	for _, c := range r.Chargers {
		charger, err := c.toCharger()
		if err != nil {
			return models.Station{}, fmt.Errorf("charger %s: %w", c.ID, err)
		}
		chargers = append(chargers, charger)
	}

	return models.Station{
		ID:            id,
		Name:          r.Name,
		OperatorName:  r.OperatorName,
		Address:       r.Address,
		Location:      r.Location,
		Chargers:      chargers,
		Amenities:     types.Amenities(r.Amenities),
		RatingAverage: r.Rating,
		RatingCount:   r.RatingCount,
		Status:        status,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.CreatedAt.UTC(),
	}, nil
}

func (c staticCharger) toCharger() (types.Charger, error) {
	if !c.Connector.IsValid() {
		return types.Charger{}, fmt.Errorf("invalid connector %q", c.Connector)
	}
	status := c.Status
	if status == "" {
		status = enums.ChargerStatusAvailable
	}
	if !status.IsValid() {
		return types.Charger{}, fmt.Errorf("invalid status %q", status)
	}
	perKWh, err := parseMoney(c.PerKWh)
	if err != nil {
		return types.Charger{}, fmt.Errorf("per_kwh: %w", err)
	}
	perMinute, err := parseMoney(c.PerMinute)
	if err != nil {
		return types.Charger{}, fmt.Errorf("per_minute: %w", err)
	}
	fee, err := parseMoney(c.SessionFee)
	if err != nil {
		return types.Charger{}, fmt.Errorf("session_fee: %w", err)
	}
	currency := c.Currency
	if currency == "" {
		currency = enums.CurrencyINR
	}
	return types.Charger{
		ID:            c.ID,
		ConnectorType: c.Connector,
		PowerKW:       c.PowerKW,
		Pricing: types.ChargerPricing{
			PerKWh:     perKWh,
			PerMinute:  perMinute,
			SessionFee: fee,
			Currency:   currency,
		},
		Status:         status,
		TotalEnergyKWh: decimal.Zero,
	}, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(raw))
}
