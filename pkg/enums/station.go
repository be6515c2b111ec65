package enums

// StationStatus maps to the station_status enum in Postgres.
type StationStatus string

const (
	StationStatusActive       StationStatus = "active"
	StationStatusInactive     StationStatus = "inactive"
	StationStatusMaintenance  StationStatus = "maintenance"
	StationStatusConstruction StationStatus = "construction"
)

var validStationStatuses = []StationStatus{
	StationStatusActive,
	StationStatusInactive,
	StationStatusMaintenance,
	StationStatusConstruction,
}

func (s StationStatus) IsValid() bool { return isOneOf(s, validStationStatuses) }

func ParseStationStatus(value string) (StationStatus, error) {
	return parseOneOf("station status", value, validStationStatuses)
}

// AcceptsBookings reports whether new bookings may target a station in this status.
func (s StationStatus) AcceptsBookings() bool {
	return s == StationStatusActive
}

// Amenity is a facility advertised at a station.
type Amenity string

const (
	AmenityRestroom   Amenity = "restroom"
	AmenityWifi       Amenity = "wifi"
	AmenityCafe       Amenity = "cafe"
	AmenityRestaurant Amenity = "restaurant"
	AmenityShopping   Amenity = "shopping"
	AmenityParking    Amenity = "parking"
	AmenityLounge     Amenity = "lounge"
	AmenityCarWash    Amenity = "car_wash"
	AmenityAccessible Amenity = "accessible"
	AmenityCovered    Amenity = "covered"
)

var validAmenities = []Amenity{
	AmenityRestroom,
	AmenityWifi,
	AmenityCafe,
	AmenityRestaurant,
	AmenityShopping,
	AmenityParking,
	AmenityLounge,
	AmenityCarWash,
	AmenityAccessible,
	AmenityCovered,
}

func (a Amenity) IsValid() bool { return isOneOf(a, validAmenities) }

func ParseAmenity(value string) (Amenity, error) {
	return parseOneOf("amenity", value, validAmenities)
}
