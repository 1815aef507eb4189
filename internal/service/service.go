// Package service runs one weather fetch cycle per city: current conditions first,
// then the forecast, behind a report cache.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// WeatherService orchestrates report retrieval using cache-aside with upstream fallback.
type WeatherService struct {
	client    client.WeatherClient
	cache     cache.Cache
	ttl       time.Duration
	coalescer *requestCoalescer
	now       func() time.Time
}

// NewWeatherService creates a WeatherService. ttl is the report cache lifetime.
// Coalescing is disabled when coalesceEnabled is false or coalesceTimeout is zero.
func NewWeatherService(c client.WeatherClient, rc cache.Cache, ttl time.Duration, coalesceEnabled bool, coalesceTimeout time.Duration) *WeatherService {
	var coalescer *requestCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	if rc == nil {
		rc = cache.NoopCache{}
	}
	return &WeatherService{
		client:    c,
		cache:     rc,
		ttl:       ttl,
		coalescer: coalescer,
		now:       time.Now,
	}
}

// GetReport returns current conditions and forecast for city. The forecast is requested
// only after current conditions succeed; the first failure aborts the cycle. Only
// complete reports are cached.
func (s *WeatherService) GetReport(ctx context.Context, city string) (models.Report, error) {
	query := strings.TrimSpace(city)
	key := normalizeCity(query)
	if key == "" {
		return models.Report{}, fmt.Errorf("fetch report: %w", client.ErrLocationNotFound)
	}
	start := s.now()
	logger := observability.LoggerFromContext(ctx, zap.NewNop())

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("city", key), zap.String("category", categorizeCacheError(err)), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.Inc()
		logger.Debug("report served", zap.String("city", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}
	observability.CacheMissesTotal.Inc()
	logger.Debug("cache miss, fetching upstream", zap.String("city", key))

	var report models.Report
	if s.coalescer != nil {
		var joined bool
		report, joined, err = s.coalescer.GetOrDo(ctx, key, func(ctx context.Context) (models.Report, error) {
			return s.fetch(ctx, query)
		})
		if joined && err == nil {
			observability.CoalescedFetchesTotal.Inc()
		}
	} else {
		report, err = s.fetch(ctx, query)
	}
	if err != nil {
		return models.Report{}, err
	}

	if setErr := s.cache.Set(ctx, key, report, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", zap.String("city", key), zap.Error(setErr))
	}
	logger.Debug("report served", zap.String("city", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return report, nil
}

// fetch performs the two sequential provider calls.
func (s *WeatherService) fetch(ctx context.Context, city string) (models.Report, error) {
	current, err := s.client.GetCurrentConditions(ctx, city)
	if err != nil {
		return models.Report{}, fmt.Errorf("fetch current conditions for %s: %w", city, err)
	}
	fc, err := s.client.GetForecast(ctx, city)
	if err != nil {
		return models.Report{}, fmt.Errorf("fetch forecast for %s: %w", city, err)
	}
	if current.FetchedAt.IsZero() {
		current.FetchedAt = s.now()
	}
	return models.Report{Current: current, Forecast: fc}, nil
}

// ValidateAPIKey checks the configured credential against the provider.
func (s *WeatherService) ValidateAPIKey(ctx context.Context) error {
	return s.client.ValidateAPIKey(ctx)
}

// categorizeCacheError returns a stable label for cache failure logs.
func categorizeCacheError(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &netErr):
		return "connection"
	}
	msg := err.Error()
	if strings.Contains(msg, "timeout") {
		return "timeout"
	}
	if strings.Contains(msg, "connection") || strings.Contains(msg, "network") {
		return "connection"
	}
	if strings.Contains(msg, "decode") {
		return "decode"
	}
	return "unknown"
}

// normalizeCity trims and lowercases a city so cache keys ignore input formatting.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
