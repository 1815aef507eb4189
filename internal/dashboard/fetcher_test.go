package dashboard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// fakeFetcher serves canned reports keyed by lowercased city. A city present in block
// waits on its channel; ignoreCancel makes it wait even after ctx is canceled.
type fakeFetcher struct {
	mu           sync.Mutex
	reports      map[string]models.Report
	err          error
	calls        []string
	block        map[string]chan struct{}
	started      chan string
	ignoreCancel bool
}

func newFakeFetcher(reports ...models.Report) *fakeFetcher {
	f := &fakeFetcher{reports: make(map[string]models.Report), block: make(map[string]chan struct{})}
	for _, r := range reports {
		f.reports[strings.ToLower(r.Current.City)] = r
	}
	return f
}

func (f *fakeFetcher) GetReport(ctx context.Context, city string) (models.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, city)
	ch := f.block[strings.ToLower(city)]
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- city
	}
	if ch != nil {
		if f.ignoreCancel {
			<-ch
		} else {
			select {
			case <-ch:
			case <-ctx.Done():
				return models.Report{}, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return models.Report{}, f.err
	}
	r, ok := f.reports[strings.ToLower(city)]
	if !ok {
		return models.Report{}, client.ErrLocationNotFound
	}
	return r, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// report builds a report with n 3-hourly samples from 2024-03-04 00:00 UTC (a Monday).
func report(city, country string, temp float64, n int) models.Report {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	entries := make([]models.ForecastEntry, n)
	for i := range entries {
		entries[i] = models.ForecastEntry{
			Time:        start.Add(time.Duration(i) * 3 * time.Hour),
			Temp:        temp + float64(i)*0.5,
			TempMin:     temp - 1 + float64(i)*0.5,
			TempMax:     temp + 1 + float64(i)*0.5,
			Icon:        "10d",
			Description: "light rain",
		}
	}
	return models.Report{
		Current: models.CurrentConditions{
			City:        city,
			Country:     country,
			Temp:        temp,
			FeelsLike:   temp - 1.4,
			Description: "broken clouds",
			Icon:        "04d",
			WindSpeed:   5.0,
			Humidity:    81,
			Visibility:  10000,
		},
		Forecast: models.Forecast{City: city, Country: country, Entries: entries},
	}
}

func testConfig() Config {
	return Config{DefaultCity: "London", Timezone: "UTC", IconBaseURL: "https://icons.test/wn"}
}
