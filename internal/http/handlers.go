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

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	RateLimitBurst       int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService   *service.WeatherService
	sessions         *dashboard.Store
	dashboardConfig  dashboard.Config
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. dashboardConfig drives the sessionless /weather
// rendering and should match the config the session store was built with.
func NewHandler(
	weatherService *service.WeatherService,
	sessions *dashboard.Store,
	dashboardConfig dashboard.Config,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weatherService:  weatherService,
		sessions:        sessions,
		dashboardConfig: dashboardConfig,
		healthConfig:    healthConfig,
		logger:          logger,
	}
}

// GetWeather handles GET /weather/{city}. It renders one report without touching any
// session; ?units=imperial selects Fahrenheit.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], h.dashboardConfig.CityMinLength, h.dashboardConfig.CityMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}
	unit := models.UnitMetric
	if q := r.URL.Query().Get("units"); q != "" {
		if unit, err = models.ParseUnit(q); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_UNIT", err.Error())
			return
		}
	}

	report, err := h.weatherService.GetReport(r.Context(), city)
	if err == nil {
		var view dashboard.ReportView
		if view, err = dashboard.RenderReport(report, h.dashboardConfig, unit); err == nil {
			traffic.Record(traffic.Rendered)
			writeJSON(w, http.StatusOK, view)
			return
		}
	}
	traffic.Record(traffic.Errored)
	writeServiceError(w, r, err)
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

	checks := make(map[string]string)
	if result.reason == "api_key_invalid" || result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-dashboard",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Len()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.weatherService.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	// Overloaded when rate limit denials in the window exceed the configured share of capacity.
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadWindow > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(traffic.DenialCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope: code, message and the request's
// correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps a failed fetch cycle onto a status code by error category.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	category := client.CategorizeError(err)
	status, code, msg := http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data"
	switch {
	case category == client.ErrorCategoryLocationNotFound:
		status, code, msg = http.StatusNotFound, "CITY_NOT_FOUND", "City not found"
	case category == client.ErrorCategoryValidation:
		status, code, msg = http.StatusBadRequest, "INVALID_CITY", err.Error()
	case category == client.ErrorCategoryRateLimited:
		status, code, msg = http.StatusTooManyRequests, "UPSTREAM_RATE_LIMITED", "Weather provider rate limit reached"
	case errors.Is(err, dashboard.ErrMalformedReport), category == client.ErrorCategoryMalformed:
		status, code = http.StatusBadGateway, "MALFORMED_RESPONSE"
	case category == client.ErrorCategoryTimeout:
		status, code = http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
	}
	writeError(w, r, status, code, msg)
	observability.LoggerFromContext(r.Context(), zap.NewNop()).Debug("upstream error",
		zap.String("category", string(category)), zap.Error(err))
}
