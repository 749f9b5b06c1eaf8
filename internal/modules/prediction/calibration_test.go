package prediction

import (
	"math"
	"testing"
	"time"

	"github.com/bozweather/trader/pkg/units"
)

func TestSeasonOf(t *testing.T) {
	tests := []struct {
		month    time.Month
		expected Season
	}{
		{time.December, SeasonWinter},
		{time.January, SeasonWinter},
		{time.February, SeasonWinter},
		{time.March, SeasonSpring},
		{time.May, SeasonSpring},
		{time.June, SeasonSummer},
		{time.August, SeasonSummer},
		{time.September, SeasonFall},
		{time.November, SeasonFall},
	}

	for _, tt := range tests {
		if s := SeasonOf(tt.month); s != tt.expected {
			t.Errorf("SeasonOf(%v) = %s, want %s", tt.month, s, tt.expected)
		}
	}
}

func TestSeasonMonths(t *testing.T) {
	months := SeasonWinter.Months()
	if len(months) != 3 || months[0] != 12 || months[1] != 1 || months[2] != 2 {
		t.Errorf("Winter months = %v, want [12 1 2]", months)
	}
}

func TestErrorStd_FallbackBelowSampleMinimum(t *testing.T) {
	history := make([]float64, 29)
	for i := range history {
		history[i] = float64(i % 5)
	}

	std := ErrorStd(units.CityNYC, time.February, history)
	if std != 3.0 {
		t.Errorf("29 samples should use NYC winter fallback 3.0, got %.2f", std)
	}
}

func TestErrorStd_SampleStdAtThreshold(t *testing.T) {
	// 30 alternating errors of ±1 have sample std just above 1.
	history := make([]float64, 30)
	for i := range history {
		if i%2 == 0 {
			history[i] = 1
		} else {
			history[i] = -1
		}
	}

	std := ErrorStd(units.CityNYC, time.February, history)
	expected := math.Sqrt(30.0 / 29.0)
	if math.Abs(std-expected) > 1e-9 {
		t.Errorf("Expected sample std %.6f, got %.6f", expected, std)
	}
}

func TestFallbackErrorStd_UnknownCity(t *testing.T) {
	if std := FallbackErrorStd(units.City("atlantis"), SeasonSummer); std != defaultFallbackStd {
		t.Errorf("Unknown city should use default fallback, got %.2f", std)
	}
}
