// Package lookup implements the two-stage fetch pipeline: geocode a city
// name, then fetch current weather for the first match.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/client"
	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
)

const (
	// MessageCityNotFound is shown when the geocoder returns no candidates.
	MessageCityNotFound = "City not found."
	// MessageFetchFailed is shown for every other failure.
	MessageFetchFailed = "Failed to fetch weather data."
)

// ErrCityNotFound is returned when geocoding yields an empty candidate list.
var ErrCityNotFound = errors.New("city not found")

// Runner runs one lookup. Implemented by *Pipeline; the widget and HTTP
// handlers depend on this interface.
type Runner interface {
	Run(ctx context.Context, city string) (models.Report, error)
}

// Pipeline chains a Geocoder and a WeatherClient.
type Pipeline struct {
	geocoder client.Geocoder
	weather  client.WeatherClient
}

func NewPipeline(geocoder client.Geocoder, weather client.WeatherClient) *Pipeline {
	return &Pipeline{geocoder: geocoder, weather: weather}
}

// Run resolves city, takes the first candidate, fetches its weather and
// stamps the geocoded coordinate onto the snapshot. Any failure aborts the
// run; there are no partial results.
func (p *Pipeline) Run(ctx context.Context, city string) (models.Report, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	report, err := p.run(ctx, city)
	observability.LookupDuration.Observe(time.Since(start).Seconds())
	observability.LookupsTotal.WithLabelValues(Outcome(err)).Inc()

	if err != nil {
		logger.Debug("lookup failed",
			zap.String("city", city),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.Report{}, err
	}
	logger.Debug("lookup ready",
		zap.String("city", city),
		zap.Float64("lat", report.Snapshot.Coord.Lat),
		zap.Float64("lon", report.Snapshot.Coord.Lon),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, city string) (models.Report, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return models.Report{}, ErrCityNotFound
	}

	places, err := p.geocoder.Geocode(ctx, city)
	if err != nil {
		return models.Report{}, fmt.Errorf("geocode %q: %w", city, err)
	}
	if len(places) == 0 {
		return models.Report{}, fmt.Errorf("geocode %q: %w", city, ErrCityNotFound)
	}
	coord := places[0].Coordinate

	snap, err := p.weather.CurrentWeather(ctx, coord)
	if err != nil {
		return models.Report{}, fmt.Errorf("weather at %.4f,%.4f: %w", coord.Lat, coord.Lon, err)
	}
	snap.Coord = coord

	return models.Report{City: city, Snapshot: snap}, nil
}

// Message collapses a pipeline error into the single user-visible string.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrCityNotFound) {
		return MessageCityNotFound
	}
	return MessageFetchFailed
}

// Outcome returns the lookupsTotal label for err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ready"
	case errors.Is(err, ErrCityNotFound):
		return "not_found"
	default:
		return "failed"
	}
}
