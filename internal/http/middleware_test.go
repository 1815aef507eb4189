package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

func TestCorrelationIDMiddleware_GeneratesAndStores(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var gotID string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/probe", func(w http.ResponseWriter, r *http.Request) {
		gotID = observability.CorrelationID(r.Context())
		observability.LoggerFromContext(r.Context(), nil).Info("probe")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	header := w.Header().Get("X-Correlation-ID")
	if header == "" || header != gotID {
		t.Errorf("header %q, context %q; want equal and non-empty", header, gotID)
	}
	entries := logs.FilterMessage("probe").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != header {
		t.Errorf("request logger missing correlation_id: %v", entries)
	}
}

func TestCorrelationIDMiddleware_Propagated(t *testing.T) {
	_, router := newTestRouter(t, newMockClient(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	var during int64
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/probe", func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
	})

	before := InFlightCount()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/probe", nil))

	if during != before+1 {
		t.Errorf("in-flight during request = %d, want %d", during, before+1)
	}
	if after := InFlightCount(); after != before {
		t.Errorf("in-flight after request = %d, want %d", after, before)
	}
}

func TestGetRoute(t *testing.T) {
	var got string
	router := mux.NewRouter()
	probe := func(w http.ResponseWriter, r *http.Request) { got = getRoute(r) }
	router.HandleFunc("/weather/{city}", probe)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/unit/{unit}", probe)

	tests := []struct {
		path string
		want string
	}{
		{"/weather/London", "/weather/{city}"},
		{"/api/unit/imperial", "/api/unit/{unit}"},
	}
	for _, tt := range tests {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
		if got != tt.want {
			t.Errorf("getRoute(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}

	// Outside a router the raw path is bucketed.
	if r := getRoute(httptest.NewRequest(http.MethodGet, "/weather/Paris", nil)); r != "/weather/{city}" {
		t.Errorf("unrouted /weather/Paris = %q", r)
	}
	if r := getRoute(httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)); r != "other" {
		t.Errorf("unrouted /favicon.ico = %q, want other", r)
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !ok {
		t.Fatal("no deadline on request context")
	}
	if until := time.Until(deadline); until > 50*time.Millisecond {
		t.Errorf("deadline %v away, want <= 50ms", until)
	}
}

// TestTimeoutMiddleware_AbortsSlowFetch verifies a provider that outlives the request
// timeout surfaces as a gateway timeout.
func TestTimeoutMiddleware_AbortsSlowFetch(t *testing.T) {
	traffic.Reset()
	t.Cleanup(traffic.Reset)

	block := make(chan struct{})
	defer close(block)
	slow := &blockingClient{mockWeatherClient: newMockClient(), block: block}
	svc := service.NewWeatherService(slow, cache.NewInMemoryCache(), time.Minute, false, 0)
	store := dashboard.NewStore(testDashboardConfig(), svc, nil, time.Hour)
	h := NewHandler(svc, store, testDashboardConfig(), nil, nil)
	router := NewRouter(h, zap.NewNop(), nil, 50*time.Millisecond)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather/London", nil))

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", w.Code)
	}
}

type blockingClient struct {
	*mockWeatherClient
	block chan struct{}
}

func (b *blockingClient) GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error) {
	select {
	case <-ctx.Done():
		return models.CurrentConditions{}, ctx.Err()
	case <-b.block:
		return b.mockWeatherClient.GetCurrentConditions(ctx, city)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	traffic.Reset()
	t.Cleanup(traffic.Reset)

	svc := service.NewWeatherService(newMockClient(), cache.NewInMemoryCache(), time.Minute, false, 0)
	store := dashboard.NewStore(testDashboardConfig(), svc, nil, time.Hour)
	h := NewHandler(svc, store, testDashboardConfig(), nil, nil)
	router := NewRouter(h, zap.NewNop(), rate.NewLimiter(1, 2), 5*time.Second)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather/London", nil))

		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		var body errorBody
		decodeBody(t, w, &body)
		if body.Error.Code != "RATE_LIMITED" {
			t.Errorf("error.code = %q, want RATE_LIMITED", body.Error.Code)
		}
		if body.Error.RequestID == "" {
			t.Error("429 response missing requestId")
		}
	}
	if n := traffic.DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount = %d, want 1", n)
	}

	// Health and metrics are never rate limited.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	h := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("nil limiter blocked the request")
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	_, router := newTestRouter(t, newMockClient(), nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
