package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// WeatherClient is the provider contract consumed by the fetch orchestrator.
type WeatherClient interface {
	GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error)
	GetForecast(ctx context.Context, city string) (models.Forecast, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
)

// Provider endpoints, relative to the configured base URL.
const (
	EndpointCurrent  = "weather"
	EndpointForecast = "forecast"
)

const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

type OpenWeatherClient struct {
	apiKey         string
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient returns a client that makes a single attempt per call.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, baseURL, timeout, 1, 100*time.Millisecond, 2*time.Second)
}

func NewOpenWeatherClientWithRetry(apiKey, baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards every upstream call with cb. Nil disables the breaker.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type weatherEntry struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type currentResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []weatherEntry `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility float64 `json:"visibility"`
	Timezone   int     `json:"timezone"`
}

type forecastResponse struct {
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp    float64 `json:"temp"`
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Weather []weatherEntry `json:"weather"`
	} `json:"list"`
}

// GetCurrentConditions fetches the "current weather" resource for city.
func (c *OpenWeatherClient) GetCurrentConditions(ctx context.Context, city string) (models.CurrentConditions, error) {
	var apiResp currentResponse
	if err := c.get(ctx, EndpointCurrent, city, &apiResp); err != nil {
		return models.CurrentConditions{}, err
	}
	return mapCurrent(apiResp)
}

// GetForecast fetches the 5-day/3-hour forecast for city.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, city string) (models.Forecast, error) {
	var apiResp forecastResponse
	if err := c.get(ctx, EndpointForecast, city, &apiResp); err != nil {
		return models.Forecast{}, err
	}
	return mapForecast(apiResp)
}

// get runs one logical call with retry, optionally behind the circuit breaker.
func (c *OpenWeatherClient) get(ctx context.Context, endpoint, city string, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.WithLabelValues(endpoint).Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		var err error
		if c.breaker != nil {
			// An unknown city is a healthy upstream answering; it must not open the circuit.
			var callErr error
			err = c.breaker.Call(ctx, func() error {
				callErr = c.callAPI(ctx, endpoint, city, out)
				if errors.Is(callErr, ErrLocationNotFound) {
					return nil
				}
				return callErr
			})
			if err == nil {
				err = callErr
			}
		} else {
			err = c.callAPI(ctx, endpoint, city, out)
		}
		if err == nil {
			return nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return err
		}
	}

	if c.retryAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, city string, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *OpenWeatherClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded")
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func mapCurrent(apiResp currentResponse) (models.CurrentConditions, error) {
	if apiResp.Name == "" {
		return models.CurrentConditions{}, fmt.Errorf("%w: current conditions missing name", ErrMalformedResponse)
	}
	if len(apiResp.Weather) == 0 {
		return models.CurrentConditions{}, fmt.Errorf("%w: current conditions missing weather[0]", ErrMalformedResponse)
	}
	w := apiResp.Weather[0]
	description := w.Description
	if description == "" {
		description = w.Main
	}

	return models.CurrentConditions{
		City:           apiResp.Name,
		Country:        apiResp.Sys.Country,
		Temp:           apiResp.Main.Temp,
		FeelsLike:      apiResp.Main.FeelsLike,
		Description:    description,
		Icon:           w.Icon,
		WindSpeed:      apiResp.Wind.Speed,
		Humidity:       apiResp.Main.Humidity,
		Visibility:     apiResp.Visibility,
		TimezoneOffset: apiResp.Timezone,
		FetchedAt:      time.Now(),
	}, nil
}

func mapForecast(apiResp forecastResponse) (models.Forecast, error) {
	if len(apiResp.List) == 0 {
		return models.Forecast{}, fmt.Errorf("%w: forecast list is empty", ErrMalformedResponse)
	}
	entries := make([]models.ForecastEntry, 0, len(apiResp.List))
	for i, item := range apiResp.List {
		if len(item.Weather) == 0 {
			return models.Forecast{}, fmt.Errorf("%w: forecast list[%d] missing weather[0]", ErrMalformedResponse, i)
		}
		description := item.Weather[0].Description
		if description == "" {
			description = item.Weather[0].Main
		}
		entries = append(entries, models.ForecastEntry{
			Time:        time.Unix(item.Dt, 0).UTC(),
			Temp:        item.Main.Temp,
			TempMin:     item.Main.TempMin,
			TempMax:     item.Main.TempMax,
			Icon:        item.Weather[0].Icon,
			Description: description,
		})
	}

	return models.Forecast{
		City:           apiResp.City.Name,
		Country:        apiResp.City.Country,
		TimezoneOffset: apiResp.City.Timezone,
		Entries:        entries,
	}, nil
}

// IconURL builds a provider-hosted icon image URL. large selects the @2x variant used
// for the current-conditions panel.
func IconURL(base, code string, large bool) string {
	base = strings.TrimRight(base, "/")
	if large {
		return fmt.Sprintf("%s/%s@2x.png", base, code)
	}
	return fmt.Sprintf("%s/%s.png", base, code)
}

// DefaultIconBaseURL hosts the provider's weather icons.
const DefaultIconBaseURL = "https://openweathermap.org/img/wn"

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a current-conditions request for a known city and reports
// whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, EndpointCurrent, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
