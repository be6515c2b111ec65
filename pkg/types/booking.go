package types

import (
	"database/sql/driver"
	"time"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// PricingSnapshot freezes a charger's tariff at booking time so later price
// changes never affect an in-flight booking.
type PricingSnapshot struct {
	PerKWh        decimal.Decimal     `json:"per_kwh"`
	PerMinute     decimal.Decimal     `json:"per_minute"`
	SessionFee    decimal.Decimal     `json:"session_fee"`
	Discount      decimal.Decimal     `json:"discount"`
	Currency      enums.Currency      `json:"currency"`
	PowerKW       float64             `json:"power_kw"`
	ConnectorType enums.ConnectorType `json:"connector_type"`
	CapturedAt    time.Time           `json:"captured_at"`
}

// SnapshotFrom copies the live pricing of c.
func SnapshotFrom(c Charger, discount decimal.Decimal, at time.Time) PricingSnapshot {
	return PricingSnapshot{
		PerKWh:        c.Pricing.PerKWh,
		PerMinute:     c.Pricing.PerMinute,
		SessionFee:    c.Pricing.SessionFee,
		Discount:      discount,
		Currency:      c.Pricing.Currency,
		PowerKW:       c.PowerKW,
		ConnectorType: c.ConnectorType,
		CapturedAt:    at.UTC(),
	}
}

func (p PricingSnapshot) Value() (driver.Value, error) {
	return jsonValue(p, "{}")
}

func (p *PricingSnapshot) Scan(value interface{}) error {
	if value == nil {
		*p = PricingSnapshot{}
		return nil
	}
	return jsonScan(value, p, "pricing_snapshot")
}

