package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

type geocodeCandidate struct {
	Name    string   `json:"name"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Country string   `json:"country"`
	State   string   `json:"state"`
}

// Geocode resolves city through the direct geocoding endpoint with limit=1.
// An empty slice with a nil error means the provider knows no such place.
func (c *OpenWeatherClient) Geocode(ctx context.Context, city string) ([]models.Place, error) {
	params := url.Values{}
	params.Set("q", city)
	params.Set("limit", "1")

	var candidates []geocodeCandidate
	if err := c.getJSON(ctx, endpointGeocode, c.geocodeURL, params, &candidates); err != nil {
		return nil, err
	}

	places := make([]models.Place, 0, len(candidates))
	for i, cand := range candidates {
		if cand.Lat == nil || cand.Lon == nil {
			return nil, fmt.Errorf("%w: geocode candidate %d has no coordinate", ErrIncompletePayload, i)
		}
		places = append(places, models.Place{
			Name:       cand.Name,
			Country:    cand.Country,
			State:      cand.State,
			Coordinate: models.Coordinate{Lat: *cand.Lat, Lon: *cand.Lon},
		})
	}
	return places, nil
}
