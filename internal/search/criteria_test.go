package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/evcharge-backend/internal/geoindex"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
)

func TestNormalizeDefaults(t *testing.T) {
	c, page, err := Criteria{Query: "  hub  "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "hub", c.Query)
	assert.Equal(t, SortName, c.Sort)
	assert.Equal(t, OrderAsc, c.Order)
	assert.Equal(t, 1, page.Number)
	assert.Equal(t, 20, page.Size)

	c, _, err = Criteria{Sort: SortRating}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, OrderDesc, c.Order)
}

func TestNormalizeRejectsInvalidCriteria(t *testing.T) {
	badConnector := enums.ConnectorType("nacs")
	badStatus := enums.StationStatus("closed")
	tooHigh := 5.5
	center := geoindex.Point{Lat: 12.97, Lng: 77.59}
	offMap := geoindex.Point{Lat: 91, Lng: 0}

	cases := map[string]Criteria{
		"long query":      {Query: strings.Repeat("x", 201)},
		"amenity":         {Amenities: []enums.Amenity{"spa"}},
		"connector":       {ChargerType: &badConnector},
		"status":          {Status: &badStatus},
		"rating":          {MinRating: &tooHigh},
		"sort":            {Sort: "distance"},
		"order":           {Order: "up"},
		"negative page":   {Page: -1},
		"missing radius":  {Center: &center},
		"bad latitude":    {Center: &offMap, RadiusKm: 5},
		"radius no point": {RadiusKm: 5},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := c.Normalize()
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		})
	}
}

func TestMatchesAnyRequestedAmenity(t *testing.T) {
	static, err := NewDefaultStaticSource(geoindex.DefaultCellDegrees)
	require.NoError(t, err)
	st := static.copyOf(static.order[0])

	assert.True(t, Matches(&st, Criteria{Amenities: []enums.Amenity{enums.AmenityLounge, enums.AmenityWifi}}))
	assert.False(t, Matches(&st, Criteria{Amenities: []enums.Amenity{enums.AmenityLounge}}))
}
