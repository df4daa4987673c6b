package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page carries the per-request values the template needs besides State.
type Page struct {
	SearchAction  string
	RefreshAction string
	// PollSeconds is the auto-refresh interval while Loading; 0 disables it.
	PollSeconds int
}

// Renderer turns a State into the widget HTML.
type Renderer struct {
	tmpl     *template.Template
	location *time.Location
}

// NewRenderer parses the embedded templates. Sunrise and sunset are shown
// in loc; nil means the server's local zone.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.Local
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, location: loc}, nil
}

type readyModel struct {
	City       string
	Coordinate string
	Temp       string
	Condition  string
	FeelsLike  string
	Humidity   string
	Wind       string
	Clouds     string
	Sunrise    string
	Sunset     string
}

type pageModel struct {
	Page
	Kind    string
	Message string
	Ready   *readyModel
}

// Render writes the page for s. Output is buffered so a template failure
// never leaves a half-written response.
func (r *Renderer) Render(w io.Writer, s State, page Page) error {
	m := pageModel{Page: page, Kind: s.Kind().String()}
	switch s.Kind() {
	case KindError:
		m.Message = s.Message()
	case KindReady:
		report, _ := s.Report()
		snap := report.Snapshot
		m.Ready = &readyModel{
			City:       report.City,
			Coordinate: FormatCoordinate(snap.Coord),
			Temp:       FormatTemperature(snap.Temperature),
			Condition:  snap.Condition,
			FeelsLike:  FormatTemperature(snap.FeelsLike),
			Humidity:   FormatPercent(snap.Humidity),
			Wind:       FormatWind(snap.WindSpeed),
			Clouds:     FormatPercent(snap.Clouds),
			Sunrise:    FormatClock(snap.Sunrise, r.location),
			Sunset:     FormatClock(snap.Sunset, r.location),
		}
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "widget.html", m); err != nil {
		return fmt.Errorf("render %s: %w", m.Kind, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
