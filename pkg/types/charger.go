package types

import (
	"database/sql/driver"
	"time"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// ChargerPricing holds the live tariff of a charger.
type ChargerPricing struct {
	PerKWh     decimal.Decimal `json:"per_kwh"`
	PerMinute  decimal.Decimal `json:"per_minute"`
	SessionFee decimal.Decimal `json:"session_fee"`
	Currency   enums.Currency  `json:"currency"`
}

// ChargerSession is present only while the charger is occupied.
type ChargerSession struct {
	BookingID string          `json:"booking_id"`
	StartedAt time.Time       `json:"started_at"`
	EnergyKWh decimal.Decimal `json:"energy_kwh"`
}

// Charger is a physical connector owned by a station.
type Charger struct {
	ID             string              `json:"id"`
	ConnectorType  enums.ConnectorType `json:"connector_type"`
	PowerKW        float64             `json:"power_kw"`
	Pricing        ChargerPricing      `json:"pricing"`
	Status         enums.ChargerStatus `json:"status"`
	CurrentSession *ChargerSession     `json:"current_session,omitempty"`
	TotalSessions  int64               `json:"total_sessions"`
	TotalEnergyKWh decimal.Decimal     `json:"total_energy_kwh"`
}

// Chargers is the embedded charger list of a station, stored as JSONB.
type Chargers []Charger

func (c Chargers) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return jsonValue([]Charger(c), "[]")
}

func (c *Chargers) Scan(value interface{}) error {
	if value == nil {
		*c = Chargers{}
		return nil
	}
	var out []Charger
	if err := jsonScan(value, &out, "chargers"); err != nil {
		return err
	}
	*c = Chargers(out)
	return nil
}

// Find returns the index of the charger with the given id, or -1.
func (c Chargers) Find(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// AvailableCount counts chargers whose status is available.
func (c Chargers) AvailableCount() int {
	n := 0
	for i := range c {
		if c[i].Status == enums.ChargerStatusAvailable {
			n++
		}
	}
	return n
}

// Clone deep-copies the list so callers can mutate without aliasing.
func (c Chargers) Clone() Chargers {
	if c == nil {
		return nil
	}
	out := make(Chargers, len(c))
	for i := range c {
		out[i] = c[i]
		if c[i].CurrentSession != nil {
			session := *c[i].CurrentSession
			out[i].CurrentSession = &session
		}
	}
	return out
}

// HasConnector reports whether any charger exposes the connector type.
func (c Chargers) HasConnector(connector enums.ConnectorType) bool {
	for i := range c {
		if c[i].ConnectorType == connector {
			return true
		}
	}
	return false
}
