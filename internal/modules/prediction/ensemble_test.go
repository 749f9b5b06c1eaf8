package prediction

import (
	"math"
	"testing"

	"github.com/bozweather/trader/internal/modules/forecast"
)

func TestSourceWeight(t *testing.T) {
	tests := []struct {
		source   string
		expected float64
	}{
		{"nws", 0.35},
		{"ecmwf", 0.30},
		{"gfs", 0.20},
		{"icon", 0.10},
		{"gem", 0.05},
		{"some_new_provider", 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if w := SourceWeight(tt.source); w != tt.expected {
				t.Errorf("Expected weight %.2f for %s, got %.2f", tt.expected, tt.source, w)
			}
		})
	}
}

func TestEnsemble_WeightedBlend(t *testing.T) {
	// Governmental 55, ECMWF 53, GFS 54: blend lands near 54, pulled
	// slightly above by the heavier governmental weight.
	forecasts := map[string]forecast.Forecast{
		"nws":   {Source: "nws", PredictedHigh: 55},
		"ecmwf": {Source: "ecmwf", PredictedHigh: 53},
		"gfs":   {Source: "gfs", PredictedHigh: 54},
	}

	result, err := Ensemble(forecasts)
	if err != nil {
		t.Fatalf("Ensemble failed: %v", err)
	}

	expected := (55*0.35 + 53*0.30 + 54*0.20) / 0.85
	if math.Abs(result.High-expected) > 1e-9 {
		t.Errorf("Expected high %.4f, got %.4f", expected, result.High)
	}
	if result.Spread != 2 {
		t.Errorf("Expected spread 2, got %.2f", result.Spread)
	}
	if len(result.Sources) != 3 || result.Sources[0] != "ecmwf" {
		t.Errorf("Expected sorted sources [ecmwf gfs nws], got %v", result.Sources)
	}
}

func TestEnsemble_SingleSource(t *testing.T) {
	forecasts := map[string]forecast.Forecast{
		"nws": {Source: "nws", PredictedHigh: 71.5},
	}

	result, err := Ensemble(forecasts)
	if err != nil {
		t.Fatalf("Ensemble failed: %v", err)
	}
	if result.High != 71.5 {
		t.Errorf("Single source should equal its own temperature, got %.2f", result.High)
	}
	if result.Spread != 0 {
		t.Errorf("Single source spread should be 0, got %.2f", result.Spread)
	}
}

func TestEnsemble_UnknownSourceDoesNotDominate(t *testing.T) {
	forecasts := map[string]forecast.Forecast{
		"nws":     {Source: "nws", PredictedHigh: 60},
		"mystery": {Source: "mystery", PredictedHigh: 90},
	}

	result, err := Ensemble(forecasts)
	if err != nil {
		t.Fatalf("Ensemble failed: %v", err)
	}
	// Floor weight 0.05 against 0.35 keeps the outlier's pull small.
	expected := (60*0.35 + 90*0.05) / 0.40
	if math.Abs(result.High-expected) > 1e-9 {
		t.Errorf("Expected high %.4f, got %.4f", expected, result.High)
	}
	if result.High > 65 {
		t.Errorf("Unknown source dominated the blend: %.2f", result.High)
	}
}

func TestEnsemble_Empty(t *testing.T) {
	if _, err := Ensemble(nil); err != ErrNoForecasts {
		t.Errorf("Expected ErrNoForecasts, got %v", err)
	}
}
