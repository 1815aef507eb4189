package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/forecast"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const minimalEnvYAML = `
weather_api:
  timeout: 5s
`

// clearEnv unsets variables Load reads so the host environment cannot leak in.
// t.Setenv restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"WEATHER_API_KEY", "ENV_NAME", "PORT", "CACHE_BACKEND", "MEMCACHED_ADDRS", "DEFAULT_CITY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeEnvFile(t *testing.T, dir, body string) {
	t.Helper()
	writeConfigFile(t, dir, "dev.yaml", body)
}

func writeSecretsFile(t *testing.T, dir, body string) {
	t.Helper()
	writeConfigFile(t, dir, "secrets.yaml", body)
}

func writeConfigFile(t *testing.T, dir, name, body string) {
	t.Helper()
	cfgDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
}

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadFrom(dir)
	if err == nil {
		t.Fatal("LoadFrom() expected error when no WEATHER_API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadFrom() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("LoadFrom() error = %v, want message containing WEATHER_API_KEY", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\n")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoad_DotEnvSuppliesKey(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY=key-from-dotenv\nDEFAULT_CITY=Paris\n"), 0o600); err != nil {
		t.Fatalf("WriteFile .env: %v", err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want key-from-dotenv", cfg.WeatherAPIKey)
	}
	if cfg.DefaultCity != "Paris" {
		t.Errorf("DefaultCity = %q, want Paris", cfg.DefaultCity)
	}
}

func TestLoad_EnvironmentWinsOverDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "key-from-env")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY=key-from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("WriteFile .env: %v", err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-env" {
		t.Errorf("WeatherAPIKey = %q, want key-from-env", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	t.Setenv("WEATHER_API_KEY", "test-key")

	_, err := LoadFrom(t.TempDir())
	if err == nil {
		t.Fatal("LoadFrom() expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("LoadFrom() error = %v, want config file not found", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"ServerPort", cfg.ServerPort, "8080"},
		{"DefaultCity", cfg.DefaultCity, "London"},
		{"DefaultUnit", cfg.DefaultUnit, models.UnitMetric},
		{"NarrowBreakpoint", cfg.NarrowBreakpoint, 992},
		{"HourlySlots", cfg.HourlySlots, forecast.DefaultHourlySlots},
		{"DailyOrder", cfg.DailyOrder, forecast.OrderCalendar},
		{"Timezone", cfg.Timezone, "local"},
		{"CacheBackend", cfg.CacheBackend, "in_memory"},
		{"CacheTTL", cfg.CacheTTL, 5 * time.Minute},
		{"CoalesceEnabled", cfg.CoalesceEnabled, true},
		{"RetryAttempts", cfg.RetryAttempts, 1},
		{"CityMinLength", cfg.CityMinLength, 1},
		{"CityMaxLength", cfg.CityMaxLength, 100},
		{"SessionTTL", cfg.SessionTTL, 30 * time.Minute},
		{"WeatherAPIURL", cfg.WeatherAPIURL, "https://api.openweathermap.org/data/2.5"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_DashboardSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
weather_api:
  timeout: 2s
dashboard:
  default_city: Tokyo
  default_unit: imperial
  narrow_breakpoint: 768
  hourly_slots: 4
  daily_order: first_seen
  timezone: city
cache:
  backend: none
  coalesce: false
metrics:
  tracked_cities: [Tokyo, Osaka]
`)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.DefaultCity != "Tokyo" || cfg.DefaultUnit != models.UnitImperial {
		t.Errorf("default = %s/%s, want Tokyo/imperial", cfg.DefaultCity, cfg.DefaultUnit)
	}
	if cfg.NarrowBreakpoint != 768 || cfg.HourlySlots != 4 {
		t.Errorf("breakpoint/slots = %d/%d, want 768/4", cfg.NarrowBreakpoint, cfg.HourlySlots)
	}
	if cfg.DailyOrder != forecast.OrderFirstSeen || cfg.Timezone != "city" {
		t.Errorf("order/timezone = %s/%s", cfg.DailyOrder, cfg.Timezone)
	}
	if cfg.CacheBackend != "none" || cfg.CoalesceEnabled {
		t.Errorf("cache = %s coalesce=%v, want none/false", cfg.CacheBackend, cfg.CoalesceEnabled)
	}
	if len(cfg.TrackedCities) != 2 {
		t.Errorf("TrackedCities = %v, want 2 entries", cfg.TrackedCities)
	}
	// Two sequential 2s provider calls need at least 5s overall.
	if cfg.RequestTimeout < 5*time.Second {
		t.Errorf("RequestTimeout = %v, want >= 5s", cfg.RequestTimeout)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unit", "dashboard:\n  default_unit: kelvin\n", "default_unit"},
		{"order", "dashboard:\n  daily_order: alphabetical\n", "daily_order"},
		{"timezone", "dashboard:\n  timezone: Not/AZone\n", "timezone"},
		{"backend", "cache:\n  backend: redis\n", "cache.backend"},
		{"city lengths", "validation:\n  city_min_length: 10\n  city_max_length: 5\n", "city_max_length"},
		{"api timeout", "weather_api:\n  timeout: 0s\n", "weather_api.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("WEATHER_API_KEY", "test-key")
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)

			_, err := LoadFrom(dir)
			if err == nil {
				t.Fatalf("LoadFrom() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadFrom() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_BACKEND", "MEMCACHED")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want memcached", cfg.CacheBackend)
	}
	if cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		def  time.Duration
		want time.Duration
	}{
		{"", time.Second, time.Second},
		{"garbage", time.Second, time.Second},
		{"0s", time.Second, time.Second},
		{"-5s", time.Second, time.Second},
		{"250ms", time.Second, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, tt.def); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := parseDurationOrZero("0s", time.Minute); got != 0 {
		t.Errorf("parseDurationOrZero(0s) = %v, want 0", got)
	}
}
