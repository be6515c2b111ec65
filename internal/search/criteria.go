package search

import (
	"math"
	"strings"

	"github.com/angelmondragon/evcharge-backend/internal/geoindex"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/pagination"
)

// SortKey orders non-geo results.
type SortKey string

const (
	SortName      SortKey = "name"
	SortRating    SortKey = "rating"
	SortCreatedAt SortKey = "createdAt"
)

// SortOrder is the direction of the sort key.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

const maxQueryLength = 200

// Criteria is a station search request. Zero values mean "no filter".
type Criteria struct {
	Query        string
	City         string
	State        string
	Amenities    []enums.Amenity
	ChargerType  *enums.ConnectorType
	HasAvailable bool
	MinRating    *float64
	Status       *enums.StationStatus
	Sort         SortKey
	Order        SortOrder
	Page         int
	PageSize     int
	Center       *geoindex.Point
	RadiusKm     float64
}

// GeoMode reports whether results are ordered by distance from Center.
func (c Criteria) GeoMode() bool {
	return c.Center != nil
}

// Normalize validates the criteria and fills defaults. It never touches a data source.
func (c Criteria) Normalize() (Criteria, pagination.Page, error) {
	c.Query = strings.TrimSpace(c.Query)
	c.City = strings.TrimSpace(c.City)
	c.State = strings.TrimSpace(c.State)
	if len(c.Query) > maxQueryLength {
		return c, pagination.Page{}, pkgerrors.Newf(pkgerrors.CodeValidation, "q must be at most %d characters", maxQueryLength)
	}

	for _, a := range c.Amenities {
		if !a.IsValid() {
			return c, pagination.Page{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown amenity %q", a)
		}
	}
	if c.ChargerType != nil && !c.ChargerType.IsValid() {
		return c, pagination.Page{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown chargerType")
	}
	if c.Status != nil && !c.Status.IsValid() {
		return c, pagination.Page{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown status")
	}
	if c.MinRating != nil && (math.IsNaN(*c.MinRating) || *c.MinRating < 0 || *c.MinRating > 5) {
		return c, pagination.Page{}, pkgerrors.New(pkgerrors.CodeValidation, "minRating must be between 0 and 5")
	}

	switch c.Sort {
	case "":
		c.Sort = SortName
	case SortName, SortRating, SortCreatedAt:
	default:
		return c, pagination.Page{}, pkgerrors.New(pkgerrors.CodeValidation, "sort must be one of name, rating, createdAt")
	}
	switch c.Order {
	case "":
		c.Order = OrderAsc
		if c.Sort != SortName {
			c.Order = OrderDesc
		}
	case OrderAsc, OrderDesc:
	default:
		return c, pagination.Page{}, pkgerrors.New(pkgerrors.CodeValidation, "order must be asc or desc")
	}

	if c.Page < 0 || c.PageSize < 0 {
		return c, pagination.Page{}, pkgerrors.New(pkgerrors.CodeValidation, "page and pageSize must not be negative")
	}

	if c.Center != nil {
		if err := c.Center.Validate(); err != nil {
			return c, pagination.Page{}, err
		}
		if math.IsNaN(c.RadiusKm) || c.RadiusKm <= 0 {
			return c, pagination.Page{}, pkgerrors.New(pkgerrors.CodeValidation, "radiusKm must be positive when lat/lng are given")
		}
	} else if c.RadiusKm != 0 {
		return c, pagination.Page{}, pkgerrors.New(pkgerrors.CodeValidation, "radiusKm requires lat and lng")
	}

	page := pagination.NormalizePage(c.Page, c.PageSize)
	c.Page, c.PageSize = page.Number, page.Size
	return c, page, nil
}
