package types

import (
	"database/sql/driver"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

// Amenities is the set of facilities advertised by a station, stored as a JSONB array.
type Amenities []enums.Amenity

func (a Amenities) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return jsonValue([]enums.Amenity(a), "[]")
}

func (a *Amenities) Scan(value interface{}) error {
	if value == nil {
		*a = Amenities{}
		return nil
	}
	var out []enums.Amenity
	if err := jsonScan(value, &out, "amenities"); err != nil {
		return err
	}
	*a = Amenities(out)
	return nil
}

// Contains reports whether the amenity is present.
func (a Amenities) Contains(amenity enums.Amenity) bool {
	for _, candidate := range a {
		if candidate == amenity {
			return true
		}
	}
	return false
}

// Intersects reports whether any of the wanted amenities is present.
func (a Amenities) Intersects(wanted []enums.Amenity) bool {
	for _, w := range wanted {
		if a.Contains(w) {
			return true
		}
	}
	return false
}
