package view

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

func TestState_Variants(t *testing.T) {
	var zero State
	assert.Equal(t, KindLoading, zero.Kind(), "zero value is Loading")

	failed := Failed("City not found.")
	assert.Equal(t, KindError, failed.Kind())
	assert.Equal(t, "City not found.", failed.Message())
	_, ok := failed.Report()
	assert.False(t, ok)

	report := models.Report{City: "Mysore"}
	ready := Ready(report)
	assert.Equal(t, KindReady, ready.Kind())
	assert.Empty(t, ready.Message())
	got, ok := ready.Report()
	assert.True(t, ok)
	assert.Equal(t, report, got)
}

func TestFormatTemperature(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{24.1, "24°C"},
		{24.5, "25°C"},
		{-2.5, "-2°C"},
		{-0.4, "0°C"},
		{0, "0°C"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTemperature(tt.in), "FormatTemperature(%v)", tt.in)
	}
}

func TestFormatCoordinate(t *testing.T) {
	assert.Equal(t, "12.31°N, 76.66°E", FormatCoordinate(models.Coordinate{Lat: 12.3052, Lon: 76.6552}))
	assert.Equal(t, "33.87°S, 151.21°E", FormatCoordinate(models.Coordinate{Lat: -33.8688, Lon: 151.2093}))
	assert.Equal(t, "40.71°N, 74.01°W", FormatCoordinate(models.Coordinate{Lat: 40.7128, Lon: -74.0060}))
}

func TestFormatWindAndPercent(t *testing.T) {
	assert.Equal(t, "4 m/s", FormatWind(3.6))
	assert.Equal(t, "0 m/s", FormatWind(0.2))
	assert.Equal(t, "78%", FormatPercent(78))
}

func TestFormatClock(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	sunrise := time.Date(2026, 10, 16, 0, 40, 0, 0, time.UTC)
	assert.Equal(t, "06:10 AM", FormatClock(sunrise, ist))
	sunset := time.Date(2026, 10, 16, 12, 45, 0, 0, time.UTC)
	assert.Equal(t, "06:15 PM", FormatClock(sunset, ist))
	assert.Equal(t, "12:45 PM", FormatClock(sunset, time.UTC))
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(time.UTC)
	require.NoError(t, err)
	return r
}

func render(t *testing.T, s State, page Page) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, newTestRenderer(t).Render(&buf, s, page))
	return buf.String()
}

func TestRender_Loading(t *testing.T) {
	out := render(t, Loading(), Page{SearchAction: "/search", PollSeconds: 1})

	assert.Contains(t, out, `class="spinner"`)
	assert.Contains(t, out, `http-equiv="refresh" content="1"`)
	assert.NotContains(t, out, "<form", "loading shows the spinner only")
}

func TestRender_Error(t *testing.T) {
	out := render(t, Failed("City not found."), Page{SearchAction: "/search", PollSeconds: 1})

	assert.Contains(t, out, `action="/search"`)
	assert.Contains(t, out, `<p class="error">City not found.</p>`)
	assert.NotContains(t, out, "http-equiv", "only loading polls")
	assert.NotContains(t, out, "Sunrise")
}

func TestRender_Ready_Mysore(t *testing.T) {
	report := models.Report{
		City: "Mysore",
		Snapshot: models.WeatherSnapshot{
			Temperature: 24.1,
			FeelsLike:   24.5,
			Humidity:    78,
			WindSpeed:   3.6,
			Clouds:      40,
			Condition:   "scattered clouds",
			Sunrise:     time.Date(2026, 10, 16, 0, 40, 0, 0, time.UTC),
			Sunset:      time.Date(2026, 10, 16, 12, 45, 0, 0, time.UTC),
			Coord:       models.Coordinate{Lat: 12.3052, Lon: 76.6552},
		},
	}
	out := render(t, Ready(report), Page{SearchAction: "/search", RefreshAction: "/refresh"})

	for _, want := range []string{
		"<h1>Mysore</h1>",
		"12.31°N, 76.66°E",
		`<p class="temp">24°C</p>`,
		"scattered clouds",
		"<strong>25°C</strong>",
		"<strong>78%</strong>",
		"<strong>4 m/s</strong>",
		"<strong>40%</strong>",
		"<strong>12:40 AM</strong>",
		"<strong>12:45 PM</strong>",
		`action="/refresh"`,
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, `class="error"`)
}

func TestRender_EscapesUserInput(t *testing.T) {
	out := render(t, Ready(models.Report{City: "<script>alert(1)</script>"}), Page{SearchAction: "/search"})
	assert.False(t, strings.Contains(out, "<script>alert"), "city must be HTML-escaped")
	assert.Contains(t, out, "&lt;script&gt;")
}
