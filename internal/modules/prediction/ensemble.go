package prediction

import (
	"errors"
	"sort"

	"github.com/bozweather/trader/internal/modules/forecast"
	"github.com/bozweather/trader/pkg/formulas"
)

// ErrNoForecasts is returned when the ensemble has nothing to combine.
var ErrNoForecasts = errors.New("prediction: no forecasts available")

// Static source weights. A source we have never heard of still
// contributes, at the floor weight, so a new provider can't dominate or
// zero out the blend.
var sourceWeights = map[string]float64{
	forecast.SourceNWS: 0.35,
	"ecmwf":            0.30,
	"gfs":              0.20,
	"icon":             0.10,
	"gem":              0.05,
}

const unknownSourceWeight = 0.05

// SourceWeight returns the static weight for a source name.
func SourceWeight(source string) float64 {
	if w, ok := sourceWeights[source]; ok {
		return w
	}
	return unknownSourceWeight
}

// EnsembleResult is the weighted blend of one run's forecasts.
type EnsembleResult struct {
	High    float64  // weighted mean high, °F
	Spread  float64  // max - min across sources, °F
	Sources []string // contributing source names, sorted
}

// Ensemble blends per-source forecasts into a weighted mean. A single
// source is valid and gets full weight; empty input is an error.
func Ensemble(forecasts map[string]forecast.Forecast) (EnsembleResult, error) {
	if len(forecasts) == 0 {
		return EnsembleResult{}, ErrNoForecasts
	}

	temps := make([]float64, 0, len(forecasts))
	weights := make([]float64, 0, len(forecasts))
	sources := make([]string, 0, len(forecasts))
	for source, f := range forecasts {
		temps = append(temps, f.PredictedHigh)
		weights = append(weights, SourceWeight(source))
		sources = append(sources, source)
	}
	sort.Strings(sources)

	return EnsembleResult{
		High:    formulas.WeightedMean(temps, weights),
		Spread:  formulas.Spread(temps),
		Sources: sources,
	}, nil
}
