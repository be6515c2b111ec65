package maps

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
	"github.com/angelmondragon/evcharge-backend/pkg/types"
)

const (
	suggestFieldMask = "suggestions.placePrediction.placeId,suggestions.placePrediction.text"
	placeFieldMask   = "id,formattedAddress,location,addressComponents"
	minSuggestInput  = 3
)

// Geocoder resolves place ids into station locations.
type Geocoder interface {
	LocateStation(ctx context.Context, placeID string) (*StationLocation, error)
}

// PlaceSuggester completes partial addresses typed by an operator.
type PlaceSuggester interface {
	SuggestPlaces(ctx context.Context, input string) ([]Suggestion, error)
}

type Suggestion struct {
	PlaceID     string `json:"place_id"`
	Description string `json:"description"`
}

// StationLocation is the geocoded position and postal address of a station site.
type StationLocation struct {
	PlaceID string
	Point   types.GeographyPoint
	Address types.Address
}

type suggestRequest struct {
	Input               string   `json:"input"`
	IncludedRegionCodes []string `json:"includedRegionCodes,omitempty"`
	LanguageCode        string   `json:"languageCode,omitempty"`
}

type suggestResponse struct {
	Suggestions []struct {
		PlacePrediction struct {
			PlaceID string `json:"placeId"`
			Text    struct {
				Text string `json:"text"`
			} `json:"text"`
		} `json:"placePrediction"`
	} `json:"suggestions"`
}

type place struct {
	ID               string `json:"id"`
	FormattedAddress string `json:"formattedAddress"`
	Location         struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Components []struct {
		Long  string   `json:"longText"`
		Short string   `json:"shortText"`
		Types []string `json:"types"`
	} `json:"addressComponents"`
}

// SuggestPlaces returns up to five predictions for input, biased to the
// client's region. Inputs shorter than three characters return nothing.
func (c *Client) SuggestPlaces(ctx context.Context, input string) ([]Suggestion, error) {
	input = strings.TrimSpace(input)
	if len([]rune(input)) < minSuggestInput {
		return []Suggestion{}, nil
	}
	req := suggestRequest{Input: input, LanguageCode: c.language}
	if c.region != "" {
		req.IncludedRegionCodes = []string{c.region}
	}
	var resp suggestResponse
	if err := c.call(ctx, http.MethodPost, "places:autocomplete", suggestFieldMask, req, &resp); err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(resp.Suggestions))
	for _, s := range resp.Suggestions {
		if s.PlacePrediction.PlaceID == "" {
			continue
		}
		out = append(out, Suggestion{PlaceID: s.PlacePrediction.PlaceID, Description: s.PlacePrediction.Text.Text})
	}
	return out, nil
}

// LocateStation resolves placeID and maps Google's address components onto
// types.Address.
func (c *Client) LocateStation(ctx context.Context, placeID string) (*StationLocation, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "place id is required")
	}
	var p place
	if err := c.call(ctx, http.MethodGet, "places/"+url.PathEscape(placeID), placeFieldMask, nil, &p); err != nil {
		return nil, err
	}
	point := types.GeographyPoint{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
	if err := point.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeServiceUnavailable, err, "place returned invalid coordinates")
	}
	return &StationLocation{PlaceID: p.ID, Point: point, Address: p.address()}, nil
}

// address fills what Google returns and leaves the rest empty. Street falls
// back to sublocality, then to the formatted address.
func (p place) address() types.Address {
	street := strings.TrimSpace(p.component("street_number", false) + " " + p.component("route", false))
	if street == "" {
		street = p.component("sublocality", false)
	}
	if street == "" {
		street = p.FormattedAddress
	}
	city := p.component("locality", false)
	if city == "" {
		city = p.component("administrative_area_level_2", false)
	}
	return types.Address{
		Line1:      street,
		City:       city,
		State:      p.component("administrative_area_level_1", true),
		PostalCode: p.component("postal_code", false),
		Country:    p.component("country", true),
	}
}

func (p place) component(kind string, short bool) string {
	for _, comp := range p.Components {
		for _, t := range comp.Types {
			if t != kind {
				continue
			}
			if short && comp.Short != "" {
				return comp.Short
			}
			return comp.Long
		}
	}
	return ""
}
