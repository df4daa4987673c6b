package models

import "time"

// Coordinate is a geographic position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Place is a single geocoding candidate.
type Place struct {
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
	Coordinate
}

type WeatherSnapshot struct {
	Temperature float64    `json:"temperature"`
	FeelsLike   float64    `json:"feelsLike"`
	Humidity    int        `json:"humidity"`
	WindSpeed   float64    `json:"windSpeed"`
	Clouds      int        `json:"clouds"`
	Condition   string     `json:"condition"`
	Sunrise     time.Time  `json:"sunrise"`
	Sunset      time.Time  `json:"sunset"`
	Coord       Coordinate `json:"coord"`
	FetchedAt   time.Time  `json:"fetchedAt"`
}

// Report is the result of one lookup: the queried city and its snapshot.
// Snapshot.Coord always holds the geocoded coordinate.
type Report struct {
	City     string          `json:"city"`
	Snapshot WeatherSnapshot `json:"snapshot"`
}
