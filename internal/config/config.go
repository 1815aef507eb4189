package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-dashboard/internal/forecast"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Config holds dashboard configuration loaded from YAML, .env and environment.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherIconURL    string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend string // "in_memory", "memcached" or "none"
	CacheTTL     time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration
	WarmCache       bool
	WarmInterval    time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	DefaultCity      string
	DefaultUnit      models.Unit
	NarrowBreakpoint int
	HourlySlots      int
	DailyOrder       forecast.Order
	Timezone         string
	SessionTTL       time.Duration

	CityMinLength int
	CityMaxLength int

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		IconURL string `yaml:"icon_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Coalesce        *bool  `yaml:"coalesce"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Warm            bool   `yaml:"warm"`
		WarmInterval    string `yaml:"warm_interval"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts               int    `yaml:"retry_max_attempts"`
		RetryBaseDelay                 string `yaml:"retry_base_delay"`
		RetryMaxDelay                  string `yaml:"retry_max_delay"`
		RateLimitRPS                   int    `yaml:"rate_limit_rps"`
		RateLimitBurst                 int    `yaml:"rate_limit_burst"`
		CircuitBreakerEnabled          bool   `yaml:"circuit_breaker_enabled"`
		CircuitBreakerFailureThreshold int    `yaml:"circuit_breaker_failure_threshold"`
		CircuitBreakerSuccessThreshold int    `yaml:"circuit_breaker_success_threshold"`
		CircuitBreakerTimeout          string `yaml:"circuit_breaker_timeout"`
	} `yaml:"reliability"`

	Dashboard struct {
		DefaultCity      string `yaml:"default_city"`
		DefaultUnit      string `yaml:"default_unit"`
		NarrowBreakpoint int    `yaml:"narrow_breakpoint"`
		HourlySlots      int    `yaml:"hourly_slots"`
		DailyOrder       string `yaml:"daily_order"`
		Timezone         string `yaml:"timezone"`
		SessionTTL       string `yaml:"session_ttl"`
	} `yaml:"dashboard"`

	Validation struct {
		CityMinLength int `yaml:"city_min_length"`
		CityMaxLength int `yaml:"city_max_length"`
	} `yaml:"validation"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration relative to the working directory. See LoadFrom.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads root/.env (optional), root/config/{ENV_NAME}.yaml (default dev) and
// root/config/secrets.yaml. The API key comes from WEATHER_API_KEY or the secrets file;
// variables already set in the environment win over .env.
func LoadFrom(root string) (*Config, error) {
	envFile := filepath.Join(root, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(root, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = envOr("PORT", fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey = strings.TrimSpace(os.Getenv("WEATHER_API_KEY"))
	if cfg.WeatherAPIKey == "" {
		key, err := readSecrets(filepath.Join(root, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env, or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = strings.TrimSpace(fc.WeatherAPI.URL)
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.openweathermap.org/data/2.5"
	}
	cfg.WeatherIconURL = strings.TrimSpace(fc.WeatherAPI.IconURL)
	if cfg.WeatherIconURL == "" {
		cfg.WeatherIconURL = "https://openweathermap.org/img/wn"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 12*time.Second)

	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.CoalesceEnabled = true
	if fc.Cache.Coalesce != nil {
		cfg.CoalesceEnabled = *fc.Cache.Coalesce
	}
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 15*time.Second)
	cfg.WarmCache = fc.Cache.Warm
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreakerEnabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreakerFailureThreshold
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreakerSuccessThreshold
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreakerTimeout, 30*time.Second)

	cfg.DefaultCity = strings.TrimSpace(envOr("DEFAULT_CITY", fc.Dashboard.DefaultCity))
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = "London"
	}
	cfg.DefaultUnit = models.UnitMetric
	if s := strings.TrimSpace(fc.Dashboard.DefaultUnit); s != "" {
		u, err := models.ParseUnit(s)
		if err != nil {
			return nil, fmt.Errorf("dashboard.default_unit: %w", err)
		}
		cfg.DefaultUnit = u
	}
	cfg.NarrowBreakpoint = fc.Dashboard.NarrowBreakpoint
	if cfg.NarrowBreakpoint <= 0 {
		cfg.NarrowBreakpoint = 992
	}
	cfg.HourlySlots = fc.Dashboard.HourlySlots
	if cfg.HourlySlots <= 0 {
		cfg.HourlySlots = forecast.DefaultHourlySlots
	}
	order, err := forecast.ParseOrder(fc.Dashboard.DailyOrder)
	if err != nil {
		return nil, fmt.Errorf("dashboard.daily_order: %w", err)
	}
	cfg.DailyOrder = order
	cfg.Timezone = strings.TrimSpace(fc.Dashboard.Timezone)
	if cfg.Timezone == "" {
		cfg.Timezone = "local"
	}
	cfg.SessionTTL = parseDuration(fc.Dashboard.SessionTTL, 30*time.Minute)

	cfg.CityMinLength = fc.Validation.CityMinLength
	if cfg.CityMinLength <= 0 {
		cfg.CityMinLength = 1
	}
	cfg.CityMaxLength = fc.Validation.CityMaxLength
	if cfg.CityMaxLength <= 0 {
		cfg.CityMaxLength = 100
	}

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 10*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 5*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.TrackedCities = fc.Metrics.TrackedCities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

// envOr returns the trimmed environment variable key, or fallback when unset or blank.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero returns defaultVal on empty input or parse error. Zero and
// negative durations are returned as-is for the caller to handle.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks cross-field constraints. RequestTimeout is raised to cover two
// sequential provider calls when configured too low.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if min := 2*cfg.WeatherAPITimeout + time.Second; cfg.RequestTimeout < min {
		cfg.RequestTimeout = min
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "none":
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or none, got %q", cfg.CacheBackend)
	}
	if cfg.CityMaxLength < cfg.CityMinLength {
		return fmt.Errorf("validation.city_max_length (%d) must be >= city_min_length (%d)", cfg.CityMaxLength, cfg.CityMinLength)
	}
	switch cfg.Timezone {
	case "local", "city":
	default:
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("dashboard.timezone: %w", err)
		}
	}
	return nil
}
