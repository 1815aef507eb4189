package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// NewRouter wires the page, API, health and metrics routes. Routes that can trigger a
// fetch cycle are rate limited and bounded by requestTimeout.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	fetching := router.NewRoute().Subrouter()
	fetching.Use(RateLimitMiddleware(limiter))
	fetching.Use(TimeoutMiddleware(requestTimeout))

	fetching.HandleFunc("/", h.GetPage).Methods(http.MethodGet)
	fetching.HandleFunc("/search", h.PostSearch).Methods(http.MethodPost)
	fetching.HandleFunc("/unit/{unit}", h.PostUnit).Methods(http.MethodPost)
	fetching.HandleFunc("/section/{section}", h.PostSection).Methods(http.MethodPost)
	fetching.HandleFunc("/sidebar/toggle", h.PostSidebarToggle).Methods(http.MethodPost)

	api := fetching.PathPrefix("/api").Subrouter()
	api.HandleFunc("/dashboard", h.GetDashboard).Methods(http.MethodGet)
	api.HandleFunc("/search", h.PostSearchAPI).Methods(http.MethodPost)
	api.HandleFunc("/unit/{unit}", h.PostUnitAPI).Methods(http.MethodPost)
	api.HandleFunc("/section/{section}", h.PostSectionAPI).Methods(http.MethodPost)
	api.HandleFunc("/sidebar/toggle", h.PostSidebarToggleAPI).Methods(http.MethodPost)

	fetching.HandleFunc("/weather/{city}", h.GetWeather).Methods(http.MethodGet)
	return router
}
