package dashboard

import (
	"fmt"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/forecast"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/units"
)

// ErrMalformedReport is returned when a report lacks fields the panels need. It wraps
// client.ErrMalformedResponse so it categorises as malformed.
var ErrMalformedReport = fmt.Errorf("report: %w", client.ErrMalformedResponse)

// rendered is the numeric model behind the three panels. Temperatures stay in their
// source unit; display integers are derived on every View.
type rendered struct {
	city     string
	country  string
	location string

	temp         units.Temperature
	feelsLike    units.Temperature
	description  string
	icon         string
	windKmh      int
	humidity     int
	visibilityKm string

	hourly []hourlySlot
	daily  []dailySlot
}

type hourlySlot struct {
	label       string
	icon        string
	description string
	temp        units.Temperature
}

type dailySlot struct {
	date        time.Time
	day         string
	icon        string
	description string
	max, min    units.Temperature
}

// render turns a report into the panel model. Every field access happens here so a
// bad report fails the cycle instead of painting part of it.
func render(report models.Report, cfg Config) (*rendered, error) {
	cur := report.Current
	if cur.City == "" {
		return nil, fmt.Errorf("%w: current conditions missing city name", ErrMalformedReport)
	}
	if cur.Icon == "" {
		return nil, fmt.Errorf("%w: current conditions missing icon", ErrMalformedReport)
	}
	loc, err := forecast.Timezone(cfg.Timezone, report.Forecast.TimezoneOffset)
	if err != nil {
		return nil, err
	}

	r := &rendered{
		city:         cur.City,
		country:      cur.Country,
		location:     LocationLabel(cur),
		temp:         units.Celsius(cur.Temp),
		feelsLike:    units.Celsius(cur.FeelsLike),
		description:  cur.Description,
		icon:         cur.Icon,
		windKmh:      forecast.WindKmh(cur.WindSpeed),
		humidity:     cur.Humidity,
		visibilityKm: forecast.VisibilityKm(cur.Visibility),
	}

	for i, e := range forecast.Hourly(report.Forecast.Entries, cfg.HourlySlots) {
		if e.Time.IsZero() {
			return nil, fmt.Errorf("%w: forecast sample %d has no timestamp", ErrMalformedReport, i)
		}
		r.hourly = append(r.hourly, hourlySlot{
			label:       forecast.TimeLabel(e.Time, loc),
			icon:        e.Icon,
			description: e.Description,
			temp:        units.Celsius(e.Temp),
		})
	}
	for _, d := range forecast.GroupDaily(report.Forecast.Entries, loc, cfg.DailyOrder) {
		r.daily = append(r.daily, dailySlot{
			date:        d.Date,
			day:         d.Day,
			icon:        d.Icon,
			description: d.Description,
			max:         units.Celsius(d.Max),
			min:         units.Celsius(d.Min),
		})
	}
	return r, nil
}

// LocationLabel formats "<city name>, <country code>". A missing country leaves the
// bare city name.
func LocationLabel(c models.CurrentConditions) string {
	if c.Country == "" {
		return c.City
	}
	return fmt.Sprintf("%s, %s", c.City, c.Country)
}

// CurrentView is the painted current-conditions panel.
type CurrentView struct {
	City         string `json:"city"`
	Country      string `json:"country"`
	Temp         int    `json:"temp"`
	FeelsLike    int    `json:"feelsLike"`
	Description  string `json:"description"`
	Icon         string `json:"icon"`
	IconURL      string `json:"iconUrl"`
	WindKmh      int    `json:"windKmh"`
	Humidity     int    `json:"humidity"`
	VisibilityKm string `json:"visibilityKm"`
}

// HourlyView is one item of the hourly strip.
type HourlyView struct {
	Time        string `json:"time"`
	Icon        string `json:"icon"`
	IconURL     string `json:"iconUrl"`
	Description string `json:"description"`
	Temp        int    `json:"temp"`
}

// DailyView is one block of the daily strip.
type DailyView struct {
	Date        string `json:"date"`
	Day         string `json:"day"`
	Icon        string `json:"icon"`
	IconURL     string `json:"iconUrl"`
	Description string `json:"description"`
	Max         int    `json:"max"`
	Min         int    `json:"min"`
}

func (r *rendered) current(unit models.Unit, iconBase string) *CurrentView {
	return &CurrentView{
		City:         r.city,
		Country:      r.country,
		Temp:         r.temp.Display(unit),
		FeelsLike:    r.feelsLike.Display(unit),
		Description:  r.description,
		Icon:         r.icon,
		IconURL:      client.IconURL(iconBase, r.icon, true),
		WindKmh:      r.windKmh,
		Humidity:     r.humidity,
		VisibilityKm: r.visibilityKm,
	}
}

func (r *rendered) hourlyViews(unit models.Unit, iconBase string) []HourlyView {
	out := make([]HourlyView, 0, len(r.hourly))
	for _, h := range r.hourly {
		out = append(out, HourlyView{
			Time:        h.label,
			Icon:        h.icon,
			IconURL:     client.IconURL(iconBase, h.icon, false),
			Description: h.description,
			Temp:        h.temp.Display(unit),
		})
	}
	return out
}

func (r *rendered) dailyViews(unit models.Unit, iconBase string) []DailyView {
	out := make([]DailyView, 0, len(r.daily))
	for _, d := range r.daily {
		out = append(out, DailyView{
			Date:        d.date.Format("2006-01-02"),
			Day:         d.day,
			Icon:        d.icon,
			IconURL:     client.IconURL(iconBase, d.icon, false),
			Description: d.description,
			Max:         d.max.Display(unit),
			Min:         d.min.Display(unit),
		})
	}
	return out
}

// ReportView is a sessionless rendering of one report in one unit.
type ReportView struct {
	Location   string       `json:"location"`
	Unit       models.Unit  `json:"unit"`
	UnitSymbol string       `json:"unitSymbol"`
	Current    *CurrentView `json:"current"`
	Hourly     []HourlyView `json:"hourly"`
	Daily      []DailyView  `json:"daily"`
}

// RenderReport renders report the way a session would, without keeping any state.
func RenderReport(report models.Report, cfg Config, unit models.Unit) (ReportView, error) {
	if unit != models.UnitMetric && unit != models.UnitImperial {
		return ReportView{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	cfg = cfg.withDefaults()
	r, err := render(report, cfg)
	if err != nil {
		return ReportView{}, err
	}
	return ReportView{
		Location:   r.location,
		Unit:       unit,
		UnitSymbol: unit.Symbol(),
		Current:    r.current(unit, cfg.IconBaseURL),
		Hourly:     r.hourlyViews(unit, cfg.IconBaseURL),
		Daily:      r.dailyViews(unit, cfg.IconBaseURL),
	}, nil
}
