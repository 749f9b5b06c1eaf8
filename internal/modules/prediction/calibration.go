package prediction

import (
	"time"

	"github.com/bozweather/trader/pkg/formulas"
	"github.com/bozweather/trader/pkg/units"
)

// Season groups months for error calibration.
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
)

// SeasonOf maps a month to its season: winter 12,1,2; spring 3,4,5;
// summer 6,7,8; fall 9,10,11.
func SeasonOf(month time.Month) Season {
	switch month {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonFall
	}
}

// Months returns the calendar months belonging to the season.
func (s Season) Months() []int {
	switch s {
	case SeasonWinter:
		return []int{12, 1, 2}
	case SeasonSpring:
		return []int{3, 4, 5}
	case SeasonSummer:
		return []int{6, 7, 8}
	default:
		return []int{9, 10, 11}
	}
}

// minCalibrationSample is the sample size below which we fall back to the
// static table.
const minCalibrationSample = 30

// Fallback error standard deviations by (city, season). Deliberately on
// the wide side: without calibration data a fatter distribution produces
// fewer trades.
var fallbackErrorStd = map[units.City]map[Season]float64{
	units.CityNYC: {
		SeasonWinter: 3.0, SeasonSpring: 3.5, SeasonSummer: 2.5, SeasonFall: 3.0,
	},
	units.CityAustin: {
		SeasonWinter: 3.5, SeasonSpring: 3.0, SeasonSummer: 2.0, SeasonFall: 3.0,
	},
	units.CityChicago: {
		SeasonWinter: 4.0, SeasonSpring: 3.5, SeasonSummer: 2.5, SeasonFall: 3.5,
	},
	units.CityMiami: {
		SeasonWinter: 2.5, SeasonSpring: 2.0, SeasonSummer: 1.5, SeasonFall: 2.0,
	},
}

const defaultFallbackStd = 3.5

// FallbackErrorStd returns the static error std for a city and season.
func FallbackErrorStd(city units.City, season Season) float64 {
	if bySeason, ok := fallbackErrorStd[city]; ok {
		if std, ok := bySeason[season]; ok {
			return std
		}
	}
	return defaultFallbackStd
}

// ErrorStd chooses the outcome-distribution spread for a city and month:
// the sample standard deviation of historical actual-minus-predicted
// errors when the sample is large enough, else the fallback table.
func ErrorStd(city units.City, month time.Month, history []float64) float64 {
	if len(history) >= minCalibrationSample {
		if std := formulas.StdDev(history); std > 0 {
			return std
		}
	}
	return FallbackErrorStd(city, SeasonOf(month))
}
