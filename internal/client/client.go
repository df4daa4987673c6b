package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/weather-lookup/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
)

const (
	DefaultGeocodeURL = "https://api.openweathermap.org/geo/1.0/direct"
	DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

	endpointGeocode = "geocode"
	endpointWeather = "weather"

	// maxBodyBytes bounds upstream payloads; real responses are a few KB.
	maxBodyBytes = 1 << 20
)

// Geocoder resolves a free-text city name to candidate places.
type Geocoder interface {
	Geocode(ctx context.Context, city string) ([]models.Place, error)
}

// WeatherClient fetches current conditions for a coordinate.
type WeatherClient interface {
	CurrentWeather(ctx context.Context, coord models.Coordinate) (models.WeatherSnapshot, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrIncompletePayload = errors.New("incomplete payload")
)

// OpenWeatherClient talks to the OpenWeatherMap geocoding and current-weather
// endpoints. It implements both Geocoder and WeatherClient. Requests are made
// once; there is no retry.
type OpenWeatherClient struct {
	apiKey     string
	geocodeURL string
	weatherURL string
	timeout    time.Duration
	client     *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient validates the key shape and returns a client. Empty
// URLs fall back to the public OpenWeatherMap endpoints.
func NewOpenWeatherClient(apiKey, geocodeURL, weatherURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if geocodeURL == "" {
		geocodeURL = DefaultGeocodeURL
	}
	if weatherURL == "" {
		weatherURL = DefaultWeatherURL
	}
	for _, raw := range []string{geocodeURL, weatherURL} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return nil, fmt.Errorf("invalid API URL %q: %w", raw, err)
		}
	}

	return &OpenWeatherClient{
		apiKey:     apiKey,
		geocodeURL: geocodeURL,
		weatherURL: weatherURL,
		timeout:    timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker routes every upstream call through cb. Passing nil disables it.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// getJSON performs one GET against rawURL with params plus the API key, and
// decodes a 2xx body into out. Metrics are recorded under endpoint.
func (c *OpenWeatherClient) getJSON(ctx context.Context, endpoint, rawURL string, params url.Values, out interface{}) error {
	call := func() error {
		return c.doGetJSON(ctx, endpoint, rawURL, params, out)
	}

	var err error
	if c.breaker == nil {
		err = call()
	} else {
		// Only upstream health failures count against the breaker; a bad key
		// or an unknown city says nothing about availability.
		var callErr error
		err = c.breaker.Call(ctx, func() error {
			callErr = call()
			if countsAsFailure(callErr) {
				return callErr
			}
			return nil
		})
		if err == nil {
			err = callErr
		}
	}

	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
	}
	return err
}

func (c *OpenWeatherClient) doGetJSON(ctx context.Context, endpoint, rawURL string, params url.Values, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, rawURL, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())

		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("appid", c.apiKey)
	baseURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

// countsAsFailure reports whether err indicates the upstream is unhealthy.
func countsAsFailure(err error) bool {
	switch CategorizeError(err) {
	case "", ErrorCategoryInvalidAPIKey, ErrorCategoryLocationNotFound, ErrorCategoryIncomplete, ErrorCategoryParsing:
		return false
	default:
		return true
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey probes the geocoding endpoint directly, bypassing the
// circuit breaker. Used by /health.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("q", "London")
	params.Set("limit", "1")
	req, err := c.buildRequest(ctx, c.geocodeURL, params)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
