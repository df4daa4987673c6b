//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup/internal/client"
	"github.com/kjstillabower/weather-lookup/internal/lookup"
	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/view"
	"github.com/kjstillabower/weather-lookup/internal/widget"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger()
	if err != nil {
		panic(err)
	}
}

// setupIntegrationServer wires the full stack against the live OpenWeatherMap
// API. Skips when WEATHER_API_KEY is unset.
func setupIntegrationServer(t *testing.T, limiter *rate.Limiter) *testServer {
	t.Helper()
	key := os.Getenv("WEATHER_API_KEY")
	if key == "" {
		t.Skip("WEATHER_API_KEY not set")
	}
	c, err := client.NewOpenWeatherClient(key, "", "", 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient: %v", err)
	}
	pipeline := lookup.NewPipeline(c, c)
	renderer, err := view.NewRenderer(time.UTC)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	sessions := widget.NewRegistry(pipeline, widget.RegistryConfig{DefaultCity: "Mysore", RunTimeout: 11 * time.Second})
	h := NewHandler(pipeline, c, sessions, renderer, WidgetConfig{PollSeconds: 1, CityMinLength: 1, CityMaxLength: 100},
		&HealthConfig{Window: time.Minute, DegradedErrorPct: 50}, testLogger)
	return &testServer{
		handler:  h,
		router:   NewRouter(h, testLogger, limiter, 12*time.Second),
		sessions: sessions,
	}
}

// TestIntegration_Widget_DefaultCity verifies the first visit resolves
// Mysore end to end.
func TestIntegration_Widget_DefaultCity(t *testing.T) {
	s := setupIntegrationServer(t, nil)

	cookie := openReadySession(t, s)
	body := s.do(t, withSession(httptest.NewRequest("GET", "/", nil), cookie)).Body.String()

	if !strings.Contains(body, "<h1>Mysore</h1>") {
		t.Errorf("expected Mysore report, got:\n%s", body)
	}
	if !strings.Contains(body, "°N") || !strings.Contains(body, "°E") {
		t.Error("Mysore coordinate must be in the northern and eastern hemispheres")
	}
}

// TestIntegration_GetWeather_Live verifies the JSON route against live data.
func TestIntegration_GetWeather_Live(t *testing.T) {
	s := setupIntegrationServer(t, nil)

	rec := s.do(t, httptest.NewRequest("GET", "/api/weather/London", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200. Body: %s", rec.Code, rec.Body.String())
	}
	var report models.Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Snapshot.Coord.Lat < 51 || report.Snapshot.Coord.Lat > 52 {
		t.Errorf("London latitude = %v", report.Snapshot.Coord.Lat)
	}
	if report.Snapshot.Sunrise.IsZero() || report.Snapshot.Condition == "" {
		t.Errorf("incomplete snapshot: %+v", report.Snapshot)
	}
}

// TestIntegration_GetWeather_UnknownCity verifies the live geocoder's empty
// result maps to 404.
func TestIntegration_GetWeather_UnknownCity(t *testing.T) {
	s := setupIntegrationServer(t, nil)

	rec := s.do(t, httptest.NewRequest("GET", "/api/weather/Zzzonkqwv", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", rec.Code)
	}
}

// TestIntegration_GetHealth_FullStack verifies the health probe validates
// the configured key.
func TestIntegration_GetHealth_FullStack(t *testing.T) {
	s := setupIntegrationServer(t, nil)

	rec := s.do(t, httptest.NewRequest("GET", "/health", nil))
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	status, _ := resp["status"].(string)
	if status != "healthy" && status != "degraded" {
		t.Errorf("Status = %q, want healthy or degraded", status)
	}
}

// TestIntegration_GetMetrics_Format verifies the metrics endpoint after a live lookup.
func TestIntegration_GetMetrics_Format(t *testing.T) {
	s := setupIntegrationServer(t, nil)
	s.do(t, httptest.NewRequest("GET", "/api/weather/Mysore", nil))

	body := s.do(t, httptest.NewRequest("GET", "/metrics", nil)).Body.String()
	for _, name := range []string{"httpRequestsTotal", "upstreamCallsTotal", "lookupsTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("Metrics missing %s", name)
		}
	}
}

// TestIntegration_RateLimiting_Enforcement verifies the limiter denies
// requests past the burst before they reach the upstream.
func TestIntegration_RateLimiting_Enforcement(t *testing.T) {
	burst := 3
	s := setupIntegrationServer(t, rate.NewLimiter(rate.Limit(0.1), burst))

	denied := 0
	for i := 0; i < burst+3; i++ {
		if s.do(t, httptest.NewRequest("GET", "/api/weather/Mysore", nil)).Code == http.StatusTooManyRequests {
			denied++
		}
	}
	if denied != 3 {
		t.Errorf("denied = %d, want 3", denied)
	}
}
