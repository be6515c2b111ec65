package bookings

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

const moneyPlaces = 2

// BilledMinutes rounds a session duration up to whole minutes.
func BilledMinutes(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Minutes()))
}

// SessionAmount prices a session from the frozen snapshot:
// energy*perKwh + billedMinutes*perMinute + sessionFee - discount, floored at zero.
func SessionAmount(p types.PricingSnapshot, energyKWh decimal.Decimal, d time.Duration) decimal.Decimal {
	minutes := decimal.NewFromInt(BilledMinutes(d))
	amount := energyKWh.Mul(p.PerKWh).
		Add(minutes.Mul(p.PerMinute)).
		Add(p.SessionFee).
		Sub(p.Discount)
	return floorMoney(amount)
}

// EstimateAmount prices a planned window assuming the charger runs at rated power.
func EstimateAmount(p types.PricingSnapshot, d time.Duration) decimal.Decimal {
	hours := decimal.NewFromFloat(d.Hours())
	energy := decimal.NewFromFloat(p.PowerKW).Mul(hours).Round(3)
	return SessionAmount(p, energy, d)
}

func floorMoney(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(moneyPlaces)
}

func percentOf(amount decimal.Decimal, percent int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Round(moneyPlaces)
}
