package types

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// DayHours is the opening window for one weekday in HH:MM local time.
// A day marked Open24h ignores Opens/Closes; a missing day is closed.
type DayHours struct {
	Opens   string `json:"opens,omitempty" yaml:"opens,omitempty"`
	Closes  string `json:"closes,omitempty" yaml:"closes,omitempty"`
	Open24h bool   `json:"open_24h,omitempty" yaml:"open_24h,omitempty"`
}

// OperatingHours maps lowercase weekday names to opening windows.
type OperatingHours map[string]DayHours

func (o OperatingHours) Value() (driver.Value, error) {
	if o == nil {
		return "{}", nil
	}
	return jsonValue(map[string]DayHours(o), "{}")
}

func (o *OperatingHours) Scan(value interface{}) error {
	if value == nil {
		*o = OperatingHours{}
		return nil
	}
	out := map[string]DayHours{}
	if err := jsonScan(value, &out, "operating_hours"); err != nil {
		return err
	}
	*o = OperatingHours(out)
	return nil
}

// Validate checks weekday keys and HH:MM formatting.
func (o OperatingHours) Validate() error {
	for day, hours := range o {
		if _, ok := weekdays[strings.ToLower(day)]; !ok {
			return fmt.Errorf("operating_hours: unknown day %q", day)
		}
		if hours.Open24h {
			continue
		}
		opens, err := time.Parse("15:04", hours.Opens)
		if err != nil {
			return fmt.Errorf("operating_hours: %s opens: %w", day, err)
		}
		closes, err := time.Parse("15:04", hours.Closes)
		if err != nil {
			return fmt.Errorf("operating_hours: %s closes: %w", day, err)
		}
		if !closes.After(opens) {
			return fmt.Errorf("operating_hours: %s closes before it opens", day)
		}
	}
	return nil
}

// OpenAt reports whether the station is open at t (interpreted in t's location).
// An empty table is treated as always open.
func (o OperatingHours) OpenAt(t time.Time) bool {
	if len(o) == 0 {
		return true
	}
	hours, ok := o[strings.ToLower(t.Weekday().String())]
	if !ok {
		return false
	}
	if hours.Open24h {
		return true
	}
	clock := t.Format("15:04")
	return clock >= hours.Opens && clock < hours.Closes
}

var weekdays = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {},
	"friday": {}, "saturday": {}, "sunday": {},
}
