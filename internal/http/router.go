package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup/internal/observability"
)

// NewRouter wires every route and middleware. Rate limiting covers the
// routes that can reach the upstream API; the request timeout applies to
// the synchronous JSON lookup only, since widget runs carry their own bound.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	widgetRouter := router.NewRoute().Subrouter()
	widgetRouter.Use(RateLimitMiddleware(limiter))
	widgetRouter.HandleFunc("/", h.Index).Methods("GET")
	widgetRouter.HandleFunc("/search", h.Search).Methods("POST")
	widgetRouter.HandleFunc("/refresh", h.Refresh).Methods("POST")

	apiRouter := router.PathPrefix("/api/weather").Subrouter()
	apiRouter.Use(RateLimitMiddleware(limiter))
	apiRouter.Use(TimeoutMiddleware(requestTimeout))
	apiRouter.HandleFunc("/{city}", h.GetWeather).Methods("GET")

	return router
}
