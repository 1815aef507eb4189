// Package forecast reshapes provider data into the values the dashboard displays:
// hourly strip, daily aggregates, and unit-converted detail fields.
package forecast

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/units"
)

// DefaultHourlySlots is the number of 3-hour samples covering the next 24 hours.
const DefaultHourlySlots = 8

// Order selects how daily aggregates are sequenced.
type Order string

const (
	// OrderCalendar sorts days chronologically.
	OrderCalendar Order = "calendar"
	// OrderFirstSeen keeps days in the order they first appear in the sample list.
	OrderFirstSeen Order = "first_seen"
)

// ParseOrder returns OrderCalendar for empty input.
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderCalendar:
		return OrderCalendar, nil
	case OrderFirstSeen:
		return OrderFirstSeen, nil
	}
	return "", fmt.Errorf("unknown daily order %q", s)
}

// WindKmh converts m/s to km/h, rounded.
func WindKmh(ms float64) int {
	return units.Round(ms * 3.6)
}

// VisibilityKm converts meters to kilometers with one decimal place.
func VisibilityKm(meters float64) string {
	return fmt.Sprintf("%.1f", meters/1000)
}

// Hourly returns the first n samples in their original order. Fewer samples yield a
// shorter strip.
func Hourly(entries []models.ForecastEntry, n int) []models.ForecastEntry {
	if n < 0 {
		n = 0
	}
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]models.ForecastEntry, n)
	copy(out, entries[:n])
	return out
}

// GroupDaily folds samples into one aggregate per calendar day in loc. Each day keeps
// the min of temp_min, the max of temp_max, and the icon and description of the first
// sample seen for it.
func GroupDaily(entries []models.ForecastEntry, loc *time.Location, order Order) []models.DailyAggregate {
	if loc == nil {
		loc = time.UTC
	}
	index := make(map[string]int)
	var days []models.DailyAggregate
	for _, e := range entries {
		t := e.Time.In(loc)
		key := t.Format("2006-01-02")
		i, ok := index[key]
		if !ok {
			index[key] = len(days)
			days = append(days, models.DailyAggregate{
				Date:        time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc),
				Day:         DayName(e.Time, loc),
				Min:         e.TempMin,
				Max:         e.TempMax,
				Icon:        e.Icon,
				Description: e.Description,
				Samples:     1,
			})
			continue
		}
		d := &days[i]
		if e.TempMin < d.Min {
			d.Min = e.TempMin
		}
		if e.TempMax > d.Max {
			d.Max = e.TempMax
		}
		d.Samples++
	}
	if order != OrderFirstSeen {
		sort.SliceStable(days, func(a, b int) bool { return days[a].Date.Before(days[b].Date) })
	}
	return days
}

// TimeLabel formats a sample time as numeric hour plus AM/PM, e.g. "3 PM".
func TimeLabel(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("3 PM")
}

// DayName returns the long weekday name, e.g. "Monday".
func DayName(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Weekday().String()
}

// Timezone resolves the configured label time zone. "local" (or empty) uses the
// process zone, "city" uses the provider's UTC offset in seconds, anything else is
// loaded as an IANA zone name.
func Timezone(setting string, cityOffset int) (*time.Location, error) {
	switch strings.TrimSpace(setting) {
	case "", "local":
		return time.Local, nil
	case "city":
		return time.FixedZone(zoneName(cityOffset), cityOffset), nil
	}
	loc, err := time.LoadLocation(setting)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", setting, err)
	}
	return loc, nil
}

// zoneName formats an offset in seconds as UTC+hh:mm.
func zoneName(offset int) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, offset/3600, offset%3600/60)
}
