package bookings

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

func snapshot(perKWh, perMinute, fee, discount string) types.PricingSnapshot {
	return types.PricingSnapshot{
		PerKWh:     decimal.RequireFromString(perKWh),
		PerMinute:  decimal.RequireFromString(perMinute),
		SessionFee: decimal.RequireFromString(fee),
		Discount:   decimal.RequireFromString(discount),
		Currency:   enums.CurrencyINR,
		PowerKW:    22,
	}
}

func TestBilledMinutesRoundsUp(t *testing.T) {
	cases := map[time.Duration]int64{
		0:                               0,
		-time.Minute:                    0,
		time.Second:                     1,
		time.Minute:                     1,
		time.Minute + time.Millisecond:  2,
		30 * time.Minute:                30,
		59*time.Minute + 59*time.Second: 60,
	}
	for d, want := range cases {
		if got := BilledMinutes(d); got != want {
			t.Fatalf("BilledMinutes(%s) = %d, want %d", d, got, want)
		}
	}
}

func TestSessionAmount(t *testing.T) {
	cases := []struct {
		name   string
		price  types.PricingSnapshot
		energy string
		d      time.Duration
		want   string
	}{
		{"energy and fee", snapshot("10", "0", "20", "0"), "10", 30 * time.Minute, "120"},
		{"per minute billed up", snapshot("18", "0.5", "20", "0"), "12.345", 90*time.Second + time.Millisecond, "243.21"},
		{"discount applied", snapshot("10", "1", "20", "15"), "2", 5 * time.Minute, "30"},
		{"floored at zero", snapshot("1", "0", "0", "50"), "3", time.Minute, "0"},
		{"no energy", snapshot("10", "0", "25", "0"), "0", 0, "25"},
	}
	for _, tc := range cases {
		got := SessionAmount(tc.price, decimal.RequireFromString(tc.energy), tc.d)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%s: SessionAmount = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestSessionAmountIsDeterministic(t *testing.T) {
	price := snapshot("17.75", "0.35", "12.5", "1.25")
	energy := decimal.RequireFromString("33.333")
	first := SessionAmount(price, energy, 47*time.Minute)
	for i := 0; i < 50; i++ {
		if got := SessionAmount(price, energy, 47*time.Minute); !got.Equal(first) {
			t.Fatalf("run %d: got %s, want %s", i, got, first)
		}
	}
}

func TestEstimateAmountUsesRatedPower(t *testing.T) {
	price := snapshot("10", "0", "20", "0")
	got := EstimateAmount(price, 30*time.Minute)
	if want := decimal.RequireFromString("130"); !got.Equal(want) {
		t.Fatalf("EstimateAmount = %s, want %s", got, want)
	}
}
