package main

import (
	"testing"

	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/forecast"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "tui"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Find(%s) = %v, %v", name, cmd, err)
		}
	}
	tuiCmd, _, _ := root.Find([]string{"tui"})
	for _, flag := range []string{"city", "unit"} {
		if tuiCmd.Flags().Lookup(flag) == nil {
			t.Errorf("tui missing --%s", flag)
		}
	}
}

func TestDashboardConfig(t *testing.T) {
	cfg := &config.Config{
		DefaultCity:      "Oslo",
		DefaultUnit:      models.UnitImperial,
		NarrowBreakpoint: 800,
		HourlySlots:      6,
		DailyOrder:       forecast.OrderFirstSeen,
		Timezone:         "city",
		WeatherIconURL:   "https://icons.test",
		CityMinLength:    2,
		CityMaxLength:    40,
	}
	got := dashboardConfig(cfg)
	if got.DefaultCity != "Oslo" || got.DefaultUnit != models.UnitImperial || got.NarrowBreakpoint != 800 ||
		got.HourlySlots != 6 || got.DailyOrder != forecast.OrderFirstSeen || got.Timezone != "city" ||
		got.IconBaseURL != "https://icons.test" || got.CityMinLength != 2 || got.CityMaxLength != 40 {
		t.Errorf("dashboardConfig() = %+v", got)
	}
}

// TestServe_Untested documents the gap: serve and runTUI are wiring only, and every
// piece they assemble is tested in its own package.
func TestServe_Untested(t *testing.T) {
	t.Skip("serve/runTUI bind sockets and terminals; covered by internal package tests")
}
