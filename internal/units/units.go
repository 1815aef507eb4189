package units

import (
	"math"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Convert converts a temperature between unit systems. It is a pure function of
// (value, from, to); converting to the unit a value is already in returns it unchanged.
func Convert(value float64, from, to models.Unit) float64 {
	if from == to {
		return value
	}
	if to == models.UnitImperial {
		return value*9/5 + 32
	}
	return (value - 32) * 5 / 9
}

// Round rounds half up (15.5 -> 16, -2.5 -> -2).
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Temperature is a displayed temperature kept in its source unit. Display values are
// always recomputed from it, never parsed back from rendered text.
type Temperature struct {
	Value float64
	Unit  models.Unit
}

// Celsius returns a Temperature holding a °C value.
func Celsius(v float64) Temperature {
	return Temperature{Value: v, Unit: models.UnitMetric}
}

// In returns the exact value in the target unit.
func (t Temperature) In(unit models.Unit) float64 {
	return Convert(t.Value, t.Unit, unit)
}

// Display returns the rounded integer shown for the target unit.
func (t Temperature) Display(unit models.Unit) int {
	return Round(t.In(unit))
}
