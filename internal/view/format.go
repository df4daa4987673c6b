package view

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

// roundHalfUp rounds like a browser's Math.round: halves go toward +Inf,
// and negative zero prints as 0.
func roundHalfUp(v float64) int {
	r := math.Floor(v + 0.5)
	if r == 0 {
		return 0
	}
	return int(r)
}

// FormatTemperature renders a metric temperature, e.g. 24.1 -> "24°C".
func FormatTemperature(celsius float64) string {
	return strconv.Itoa(roundHalfUp(celsius)) + "°C"
}

// FormatCoordinate renders two decimals with hemisphere letters,
// e.g. "12.31°N, 76.66°E".
func FormatCoordinate(c models.Coordinate) string {
	ns, ew := "N", "E"
	lat, lon := c.Lat, c.Lon
	if lat < 0 {
		ns, lat = "S", -lat
	}
	if lon < 0 {
		ew, lon = "W", -lon
	}
	return fmt.Sprintf("%.2f°%s, %.2f°%s", lat, ns, lon, ew)
}

// FormatWind renders wind speed rounded to whole metres per second.
func FormatWind(ms float64) string {
	return strconv.Itoa(roundHalfUp(ms)) + " m/s"
}

func FormatPercent(p int) string {
	return strconv.Itoa(p) + "%"
}

// FormatClock renders a two-digit 12-hour clock, e.g. "06:04 AM", in loc.
func FormatClock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("03:04 PM")
}
