package main

import (
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

// backend is the provider stack shared by the web and terminal front ends.
type backend struct {
	service   *service.WeatherService
	memcached *cache.MemcachedCache // nil unless cache.backend is memcached
}

func (b *backend) close(logger *zap.Logger) {
	if b.memcached == nil {
		return
	}
	if err := b.memcached.Close(); err != nil {
		logger.Error("memcached close", zap.Error(err))
	}
}

func newBackend(cfg *config.Config, logger *zap.Logger) (*backend, error) {
	weatherClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		return nil, err
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), int(to))
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	b := &backend{}
	var cacheSvc cache.Cache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, err
		}
		b.memcached = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "none":
		cacheSvc = cache.NoopCache{}
		logger.Info("cache backend: none")
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}
	b.service = service.NewWeatherService(weatherClient, cacheSvc, cfg.CacheTTL, cfg.CoalesceEnabled, cfg.CoalesceTimeout)
	return b, nil
}

func dashboardConfig(cfg *config.Config) dashboard.Config {
	return dashboard.Config{
		DefaultCity:      cfg.DefaultCity,
		DefaultUnit:      cfg.DefaultUnit,
		NarrowBreakpoint: cfg.NarrowBreakpoint,
		HourlySlots:      cfg.HourlySlots,
		DailyOrder:       cfg.DailyOrder,
		Timezone:         cfg.Timezone,
		IconBaseURL:      cfg.WeatherIconURL,
		CityMinLength:    cfg.CityMinLength,
		CityMaxLength:    cfg.CityMaxLength,
	}
}
