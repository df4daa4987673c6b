package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

// openWeatherResponse mirrors the fields of /data/2.5/weather the widget
// shows. Pointers distinguish an absent object from a zero value.
type openWeatherResponse struct {
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike float64  `json:"feels_like"`
		Humidity  int      `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind *struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds *struct {
		All int `json:"all"`
	} `json:"clouds"`
	Sys *struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
	Coord *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
}

// CurrentWeather fetches current conditions at coord in metric units.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, coord models.Coordinate) (models.WeatherSnapshot, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	params.Set("units", "metric")

	var apiResp openWeatherResponse
	if err := c.getJSON(ctx, endpointWeather, c.weatherURL, params, &apiResp); err != nil {
		return models.WeatherSnapshot{}, err
	}
	return mapResponse(apiResp)
}

func mapResponse(apiResp openWeatherResponse) (models.WeatherSnapshot, error) {
	switch {
	case apiResp.Main == nil || apiResp.Main.Temp == nil:
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing main.temp", ErrIncompletePayload)
	case len(apiResp.Weather) == 0:
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing weather[0]", ErrIncompletePayload)
	case apiResp.Wind == nil:
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing wind", ErrIncompletePayload)
	case apiResp.Clouds == nil:
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing clouds", ErrIncompletePayload)
	case apiResp.Sys == nil:
		return models.WeatherSnapshot{}, fmt.Errorf("%w: missing sys", ErrIncompletePayload)
	}

	condition := apiResp.Weather[0].Description
	if condition == "" {
		condition = apiResp.Weather[0].Main
	}

	snap := models.WeatherSnapshot{
		Temperature: *apiResp.Main.Temp,
		FeelsLike:   apiResp.Main.FeelsLike,
		Humidity:    apiResp.Main.Humidity,
		WindSpeed:   apiResp.Wind.Speed,
		Clouds:      apiResp.Clouds.All,
		Condition:   condition,
		Sunrise:     time.Unix(apiResp.Sys.Sunrise, 0).UTC(),
		Sunset:      time.Unix(apiResp.Sys.Sunset, 0).UTC(),
		FetchedAt:   time.Now().UTC(),
	}
	if apiResp.Coord != nil {
		snap.Coord = models.Coordinate{Lat: apiResp.Coord.Lat, Lon: apiResp.Coord.Lon}
	}
	return snap, nil
}
