// Package prediction turns raw forecasts into calibrated bracket
// probability vectors and writes the postmortem for settled trades.
package prediction

import (
	"time"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/units"
)

// BracketProbability pairs a bracket with the model's probability that the
// official high lands in it.
type BracketProbability struct {
	Ticker      string   `json:"ticker"`
	LowerBound  *float64 `json:"lower_bound,omitempty"`
	UpperBound  *float64 `json:"upper_bound,omitempty"`
	Label       string   `json:"label"`
	Probability float64  `json:"probability"`
}

// Prediction is an immutable snapshot of one engine run. The probability
// vector always has exactly as many entries as the event has brackets,
// each in [0,1], summing to 1 within 1e-9.
type Prediction struct {
	ID           int64                `json:"id"`
	City         units.City           `json:"city"`
	TargetDate   string               `json:"target_date"`
	EnsembleHigh float64              `json:"ensemble_high_f"`
	Spread       float64              `json:"forecast_spread_f"`
	ErrorStd     float64              `json:"error_std_f"`
	Confidence   domain.Confidence    `json:"confidence"`
	Sources      []string             `json:"source_names"`
	Brackets     []BracketProbability `json:"bracket_probabilities"`
	GeneratedAt  time.Time            `json:"generated_at"`
}

// ProbabilityFor returns the probability for a bracket ticker, or 0 when
// the ticker is not part of the snapshot.
func (p Prediction) ProbabilityFor(ticker string) float64 {
	for _, b := range p.Brackets {
		if b.Ticker == ticker {
			return b.Probability
		}
	}
	return 0
}

// AgeAt returns the snapshot's age at the given instant.
func (p Prediction) AgeAt(now time.Time) time.Duration {
	return now.Sub(p.GeneratedAt)
}
