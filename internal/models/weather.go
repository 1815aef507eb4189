package models

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the display unit system for temperatures.
type Unit string

const (
	UnitMetric   Unit = "metric"
	UnitImperial Unit = "imperial"
)

// Symbol returns the label rendered next to temperatures.
func (u Unit) Symbol() string {
	if u == UnitImperial {
		return "°F"
	}
	return "°C"
}

// ParseUnit accepts the unit names used by the UI controls.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metric", "celsius", "c":
		return UnitMetric, nil
	case "imperial", "fahrenheit", "f":
		return UnitImperial, nil
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// CurrentConditions is a single snapshot of weather for a city. Temperatures are °C,
// wind speed m/s and visibility meters, as requested from the provider with units=metric.
type CurrentConditions struct {
	City           string    `json:"city"`
	Country        string    `json:"country"`
	Temp           float64   `json:"temp"`
	FeelsLike      float64   `json:"feelsLike"`
	Description    string    `json:"description"`
	Icon           string    `json:"icon"`
	WindSpeed      float64   `json:"windSpeed"`
	Humidity       int       `json:"humidity"`
	Visibility     float64   `json:"visibility"`
	TimezoneOffset int       `json:"timezoneOffset"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// ForecastEntry is one provider-reported 3-hour sample.
type ForecastEntry struct {
	Time        time.Time `json:"time"`
	Temp        float64   `json:"temp"`
	TempMin     float64   `json:"tempMin"`
	TempMax     float64   `json:"tempMax"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
}

// Forecast is the ordered 5-day/3-hour sample sequence for a city.
type Forecast struct {
	City           string          `json:"city"`
	Country        string          `json:"country"`
	TimezoneOffset int             `json:"timezoneOffset"`
	Entries        []ForecastEntry `json:"entries"`
}

// Report is the result of one complete fetch cycle.
type Report struct {
	Current  CurrentConditions `json:"current"`
	Forecast Forecast          `json:"forecast"`
}

// DailyAggregate summarizes all forecast samples that fall on one calendar day.
type DailyAggregate struct {
	Date        time.Time `json:"date"`
	Day         string    `json:"day"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
	Samples     int       `json:"samples"`
}
