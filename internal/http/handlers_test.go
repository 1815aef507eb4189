package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// mockWeatherClient serves fixed conditions per lowercased city; unknown cities are
// not found.
type mockWeatherClient struct {
	mu          sync.Mutex
	cities      map[string]models.CurrentConditions
	err         error
	validateErr error
	calls       int
}

func newMockClient() *mockWeatherClient {
	return &mockWeatherClient{cities: map[string]models.CurrentConditions{
		"london": {City: "London", Country: "GB", Temp: 12.3, FeelsLike: 10.9, Description: "broken clouds", Icon: "04d", WindSpeed: 5, Humidity: 81, Visibility: 10000},
		"paris":  {City: "Paris", Country: "FR", Temp: 20, FeelsLike: 19.4, Description: "clear sky", Icon: "01d", WindSpeed: 2, Humidity: 40, Visibility: 9000},
	}}
}

func (m *mockWeatherClient) lookup(city string) (models.CurrentConditions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return models.CurrentConditions{}, m.err
	}
	c, ok := m.cities[strings.ToLower(city)]
	if !ok {
		return models.CurrentConditions{}, fmt.Errorf("%w: %s", client.ErrLocationNotFound, city)
	}
	return c, nil
}

func (m *mockWeatherClient) GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error) {
	return m.lookup(city)
}

func (m *mockWeatherClient) GetForecast(ctx context.Context, city string) (models.Forecast, error) {
	c, err := m.lookup(city)
	if err != nil {
		return models.Forecast{}, err
	}
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	f := models.Forecast{City: c.City, Country: c.Country}
	for i := 0; i < 16; i++ {
		f.Entries = append(f.Entries, models.ForecastEntry{
			Time:        start.Add(time.Duration(i) * 3 * time.Hour),
			Temp:        c.Temp,
			TempMin:     c.Temp - 2,
			TempMax:     c.Temp + 2,
			Icon:        "10d",
			Description: "light rain",
		})
	}
	return f, nil
}

func (m *mockWeatherClient) ValidateAPIKey(ctx context.Context) error {
	return m.validateErr
}

func (m *mockWeatherClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testDashboardConfig() dashboard.Config {
	return dashboard.Config{
		DefaultCity:   "London",
		Timezone:      "UTC",
		IconBaseURL:   "https://icons.test/wn",
		CityMinLength: 1,
		CityMaxLength: 50,
	}
}

// newTestRouter builds the full router over mc with an in-memory cache and no rate limit.
func newTestRouter(t *testing.T, mc *mockWeatherClient, hc *HealthConfig, logger *zap.Logger) (*Handler, http.Handler) {
	t.Helper()
	traffic.Reset()
	lifecycle.SetShuttingDown(false)
	t.Cleanup(func() {
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := service.NewWeatherService(mc, cache.NewInMemoryCache(), time.Minute, false, 0)
	store := dashboard.NewStore(testDashboardConfig(), svc, logger, time.Hour)
	h := NewHandler(svc, store, testDashboardConfig(), hc, logger)
	return h, NewRouter(h, logger, nil, 5*time.Second)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func TestHandler_GetWeather_Success(t *testing.T) {
	_, router := newTestRouter(t, newMockClient(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather/London", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var view dashboard.ReportView
	decodeBody(t, w, &view)
	if view.Location != "London, GB" {
		t.Errorf("Location = %q, want London, GB", view.Location)
	}
	if view.Current == nil || view.Current.Temp != 12 || view.Current.WindKmh != 18 {
		t.Errorf("Current = %+v, want temp 12 wind 18", view.Current)
	}
	if len(view.Hourly) != 8 || len(view.Daily) != 2 {
		t.Errorf("hourly/daily = %d/%d, want 8/2", len(view.Hourly), len(view.Daily))
	}
	if n := traffic.RequestCount(time.Minute); n != 1 {
		t.Errorf("traffic RequestCount = %d, want 1", n)
	}
}

func TestHandler_GetWeather_Imperial(t *testing.T) {
	_, router := newTestRouter(t, newMockClient(), nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather/paris?units=imperial", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var view dashboard.ReportView
	decodeBody(t, w, &view)
	if view.UnitSymbol != "°F" || view.Current.Temp != 68 {
		t.Errorf("imperial view = %s %d, want °F 68", view.UnitSymbol, view.Current.Temp)
	}
}

func TestHandler_GetWeather_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		clientErr  error
		wantStatus int
		wantCode   string
		wantCalls  bool
	}{
		{"unknown city", "/weather/Nowhere", nil, http.StatusNotFound, "CITY_NOT_FOUND", true},
		{"invalid chars", "/weather/L%3Cndon", nil, http.StatusBadRequest, "INVALID_CITY", false},
		{"invalid unit", "/weather/London?units=kelvin", nil, http.StatusBadRequest, "INVALID_UNIT", false},
		{"upstream failure", "/weather/London", client.ErrUpstreamFailure, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", true},
		{"provider rate limit", "/weather/London", client.ErrRateLimited, http.StatusTooManyRequests, "UPSTREAM_RATE_LIMITED", true},
		{"timeout", "/weather/London", context.DeadlineExceeded, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", true},
		{"malformed", "/weather/London", client.ErrMalformedResponse, http.StatusBadGateway, "MALFORMED_RESPONSE", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := newMockClient()
			mc.err = tt.clientErr
			_, router := newTestRouter(t, mc, nil, nil)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Correlation-ID", "corr-1")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			var body errorBody
			decodeBody(t, w, &body)
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.wantCode)
			}
			if body.Error.RequestID != "corr-1" {
				t.Errorf("requestId = %q, want corr-1", body.Error.RequestID)
			}
			if got := mc.callCount() > 0; got != tt.wantCalls {
				t.Errorf("provider called = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

// TestHandler_GetWeather_NotFoundSkipsForecast verifies the forecast call is never made
// once current conditions fail.
func TestHandler_GetWeather_NotFoundSkipsForecast(t *testing.T) {
	mc := newMockClient()
	_, router := newTestRouter(t, mc, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather/Nowhere", nil))

	if mc.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", mc.callCount())
	}
	errs, total := traffic.ErrorRate(time.Minute)
	if errs != 1 || total != 1 {
		t.Errorf("ErrorRate = %d/%d, want 1/1", errs, total)
	}
}

type healthBody struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Checks   map[string]string `json:"checks"`
	Sessions int               `json:"sessions"`
}

func getHealth(t *testing.T, router http.Handler) (int, healthBody) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body healthBody
	decodeBody(t, w, &body)
	return w.Code, body
}

func TestHandler_GetHealth_Healthy(t *testing.T) {
	_, router := newTestRouter(t, newMockClient(), &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}, nil)

	code, body := getHealth(t, router)
	if code != http.StatusOK || body.Status != "healthy" {
		t.Errorf("health = %d %s, want 200 healthy", code, body.Status)
	}
	if body.Service != "weather-dashboard" {
		t.Errorf("service = %q", body.Service)
	}
	if body.Checks["weatherApi"] != "healthy" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestHandler_GetHealth_Priority(t *testing.T) {
	hc := &HealthConfig{
		OverloadWindow:       time.Minute,
		OverloadThresholdPct: 50,
		RateLimitRPS:         1,
		DegradedWindow:       time.Minute,
		DegradedErrorPct:     50,
	}
	tests := []struct {
		name       string
		setup      func(mc *mockWeatherClient)
		wantStatus string
		wantCode   int
	}{
		{"shutting down wins", func(mc *mockWeatherClient) {
			mc.validateErr = client.ErrInvalidAPIKey
			lifecycle.SetShuttingDown(true)
		}, "shutting-down", http.StatusServiceUnavailable},
		{"api key invalid", func(mc *mockWeatherClient) {
			mc.validateErr = client.ErrInvalidAPIKey
		}, "degraded", http.StatusServiceUnavailable},
		{"overloaded", func(mc *mockWeatherClient) {
			// threshold = 1 rps * 60s * 50% = 30 denials
			traffic.RecordN(traffic.Denied, 31)
			traffic.RecordN(traffic.Errored, 10)
		}, "overloaded", http.StatusServiceUnavailable},
		{"error rate breach", func(mc *mockWeatherClient) {
			traffic.RecordN(traffic.Errored, 5)
			traffic.RecordN(traffic.Rendered, 5)
		}, "degraded", http.StatusServiceUnavailable},
		{"below error threshold", func(mc *mockWeatherClient) {
			traffic.RecordN(traffic.Errored, 4)
			traffic.RecordN(traffic.Rendered, 6)
			traffic.RecordN(traffic.Denied, 30)
		}, "healthy", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := newMockClient()
			_, router := newTestRouter(t, mc, hc, nil)
			tt.setup(mc)

			code, body := getHealth(t, router)
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("health = %d %s, want %d %s", code, body.Status, tt.wantCode, tt.wantStatus)
			}
		})
	}
}

func TestHandler_GetHealth_CachePing(t *testing.T) {
	hc := &HealthConfig{CachePing: func() error { return errors.New("dial tcp: connection refused") }}
	_, router := newTestRouter(t, newMockClient(), hc, nil)

	_, body := getHealth(t, router)
	if body.Checks["cache"] != "unhealthy" {
		t.Errorf("checks[cache] = %q, want unhealthy", body.Checks["cache"])
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	mc := newMockClient()
	_, router := newTestRouter(t, mc, nil, zap.New(core))

	getHealth(t, router)
	mc.validateErr = client.ErrInvalidAPIKey
	getHealth(t, router)

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "degraded" || fields["reason"] != "api_key_invalid" {
		t.Errorf("transition fields = %v", fields)
	}
}

func TestHandler_GetHealth_ReportsSessions(t *testing.T) {
	h, router := newTestRouter(t, newMockClient(), nil, nil)
	h.sessions.Create()
	h.sessions.Create()

	_, body := getHealth(t, router)
	if body.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", body.Sessions)
	}
}

func TestWriteServiceError_WrappedNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	err := fmt.Errorf("fetch current conditions for atlantis: %w", client.ErrLocationNotFound)
	writeServiceError(w, httptest.NewRequest(http.MethodGet, "/weather/atlantis", nil), err)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
