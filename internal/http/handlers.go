package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/client"
	"github.com/kjstillabower/weather-lookup/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup/internal/lookup"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/traffic"
	"github.com/kjstillabower/weather-lookup/internal/validation"
	"github.com/kjstillabower/weather-lookup/internal/view"
	"github.com/kjstillabower/weather-lookup/internal/widget"
)

// SessionCookie names the cookie that binds a browser to its widget.
const SessionCookie = "wl_session"

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	Window               time.Duration
	DegradedErrorPct     int
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when rate limiter disabled
}

// WidgetConfig holds the page and input settings for the widget routes.
type WidgetConfig struct {
	PollSeconds   int
	CityMinLength int
	CityMaxLength int
	// SecureCookie marks the session cookie Secure; set behind TLS.
	SecureCookie bool
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	runner       lookup.Runner
	client       client.WeatherClient
	sessions     *widget.Registry
	renderer     *view.Renderer
	widgetConfig WidgetConfig
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	runner lookup.Runner,
	client client.WeatherClient,
	sessions *widget.Registry,
	renderer *view.Renderer,
	widgetConfig WidgetConfig,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		runner:       runner,
		client:       client,
		sessions:     sessions,
		renderer:     renderer,
		widgetConfig: widgetConfig,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// Index handles GET /. It renders the caller's widget, creating one (and
// starting the default-city lookup) on first visit.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	wg := h.openSession(w, r)
	state := wg.State()

	page := view.Page{SearchAction: "/search"}
	if state.Kind() == view.KindLoading {
		page.PollSeconds = h.widgetConfig.PollSeconds
	} else if wg.City() != "" {
		page.RefreshAction = "/refresh"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.renderer.Render(w, state, page); err != nil {
		observability.LoggerFromContext(r.Context()).Error("render widget", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Search handles POST /search with form field "city". Blank input is
// ignored; input that fails validation is shown as not found without an
// upstream call.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	wg := h.openSession(w, r)
	logger := observability.LoggerFromContext(r.Context())

	raw := r.PostFormValue("city")
	city, err := validation.ValidateCity(raw, h.widgetConfig.CityMinLength, h.widgetConfig.CityMaxLength)
	switch {
	case errors.Is(err, validation.ErrCityEmpty):
		logger.Debug("ignoring blank search")
	case err != nil:
		logger.Debug("rejected search", zap.String("city", raw), zap.Error(err))
		wg.Reject(raw, lookup.MessageCityNotFound)
	default:
		wg.Submit(r.Context(), city)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Refresh handles POST /refresh by rerunning the session's current query.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	wg := h.openSession(w, r)
	if _, err := validation.ValidateCity(wg.City(), h.widgetConfig.CityMinLength, h.widgetConfig.CityMaxLength); err == nil {
		wg.Refresh(r.Context())
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) *widget.Widget {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	id, wg, created := h.sessions.Open(r.Context(), id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.widgetConfig.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		})
		observability.LoggerFromContext(r.Context()).Debug("session created", zap.String("session", id))
	}
	return wg
}

// GetWeather handles GET /api/weather/{city}: one synchronous pipeline run.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], h.widgetConfig.CityMinLength, h.widgetConfig.CityMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}

	report, err := h.runner.Run(r.Context(), city)
	switch {
	case err == nil:
		traffic.RecordSuccess()
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, lookup.ErrCityNotFound):
		traffic.RecordSuccess()
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", lookup.MessageCityNotFound)
	default:
		traffic.RecordError()
		writeServiceError(w, r, err)
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-lookup",
		"version":   "dev",
		"phase":     lifecycle.CurrentPhase().String(),
		"sessions":  h.sessions.Count(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.client.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.healthConfig == nil || h.healthConfig.Window <= 0 {
		return healthResult{"healthy", http.StatusOK, ""}
	}

	window := h.healthConfig.Window
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadThresholdPct > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * window.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(traffic.DenialCount(window)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(window)
		if total > 0 && float64(errs)*100/float64(total) >= float64(h.healthConfig.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError writes a 503 for upstream failures and logs the cause at debug.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", lookup.MessageFetchFailed)
	observability.LoggerFromContext(r.Context()).Debug("upstream error",
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))
}
