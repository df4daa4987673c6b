// Package view holds the widget's tri-state view model and renders it to HTML.
package view

import "github.com/kjstillabower/weather-lookup/internal/models"

// Kind tags which variant of State is active.
type Kind int

const (
	KindLoading Kind = iota
	KindError
	KindReady
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindError:
		return "error"
	case KindReady:
		return "ready"
	default:
		return "unknown"
	}
}

// State is exactly one of Loading, Error(message) or Ready(report).
// The zero value is Loading. Construct with Loading, Failed or Ready.
type State struct {
	kind    Kind
	message string
	report  models.Report
}

func Loading() State {
	return State{kind: KindLoading}
}

func Failed(message string) State {
	return State{kind: KindError, message: message}
}

func Ready(report models.Report) State {
	return State{kind: KindReady, report: report}
}

func (s State) Kind() Kind {
	return s.kind
}

// Message returns the error text; empty unless Kind is KindError.
func (s State) Message() string {
	return s.message
}

// Report returns the lookup result and true when Kind is KindReady.
func (s State) Report() (models.Report, bool) {
	return s.report, s.kind == KindReady
}
