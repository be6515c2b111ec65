package search

import (
	"sort"
	"strings"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

// Candidate is a station offered by a data source, with its distance when
// the search is in geo mode.
type Candidate struct {
	Station        models.Station
	DistanceMeters *float64
}

// Matches applies every non-geo predicate of c to the station. Live and
// fallback sources share it so both return the same kind of rows.
func Matches(st *models.Station, c Criteria) bool {
	if c.Status != nil && st.Status != *c.Status {
		return false
	}
	if c.Query != "" {
		q := strings.ToLower(c.Query)
		if !containsFold(st.Name, q) && !containsFold(st.Address.Line1, q) && !containsFold(st.Address.City, q) {
			return false
		}
	}
	if c.City != "" && !containsFold(st.Address.City, strings.ToLower(c.City)) {
		return false
	}
	if c.State != "" && !containsFold(st.Address.State, strings.ToLower(c.State)) {
		return false
	}
	if len(c.Amenities) > 0 && !anyAmenity(st, c.Amenities) {
		return false
	}
	if c.ChargerType != nil && !st.Chargers.HasConnector(*c.ChargerType) {
		return false
	}
	if c.HasAvailable && st.AvailableChargerCount() == 0 {
		return false
	}
	if c.MinRating != nil && st.RatingAverage < *c.MinRating {
		return false
	}
	return true
}

func containsFold(s, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}

func anyAmenity(st *models.Station, wanted []enums.Amenity) bool {
	for _, have := range st.Amenities {
		for _, want := range wanted {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Filter keeps candidates matching c, preserving order.
func Filter(in []Candidate, c Criteria) []Candidate {
	out := make([]Candidate, 0, len(in))
	for i := range in {
		if Matches(&in[i].Station, c) {
			out = append(out, in[i])
		}
	}
	return out
}

// Order sorts candidates in place: by distance in geo mode, else by the sort
// key. Station id breaks ties so pages are stable.
func Order(in []Candidate, c Criteria) {
	if c.GeoMode() {
		sort.SliceStable(in, func(a, b int) bool {
			da, db := distanceOf(in[a]), distanceOf(in[b])
			if da != db {
				return da < db
			}
			return in[a].Station.ID.String() < in[b].Station.ID.String()
		})
		return
	}

	desc := c.Order == OrderDesc
	sort.SliceStable(in, func(a, b int) bool {
		sa, sb := &in[a].Station, &in[b].Station
		var cmp int
		switch c.Sort {
		case SortRating:
			cmp = compareFloat(sa.RatingAverage, sb.RatingAverage)
		case SortCreatedAt:
			cmp = sa.CreatedAt.Compare(sb.CreatedAt)
		default:
			cmp = strings.Compare(strings.ToLower(sa.Name), strings.ToLower(sb.Name))
		}
		if cmp == 0 {
			return sa.ID.String() < sb.ID.String()
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func distanceOf(c Candidate) float64 {
	if c.DistanceMeters == nil {
		return 0
	}
	return *c.DistanceMeters
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
