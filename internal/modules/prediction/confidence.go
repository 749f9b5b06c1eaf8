package prediction

import (
	"time"

	"github.com/bozweather/trader/internal/domain"
)

// ConfidenceInput carries the signals the scorer reads.
type ConfidenceInput struct {
	Spread      float64       // max - min across sources, °F
	ErrorStd    float64       // calibrated sigma, °F
	SourceCount int           // distinct contributing providers
	NewestAge   time.Duration // age of the freshest forecast
}

// ScoreConfidence buckets a prediction into HIGH, MEDIUM, or LOW from a
// seven-point score. Tight agreement between sources and a recent fetch
// score highest; data older than two hours costs a point.
func ScoreConfidence(in ConfidenceInput) (domain.Confidence, int) {
	score := 0

	switch {
	case in.Spread <= 1:
		score += 3
	case in.Spread <= 2:
		score += 2
	case in.Spread <= 3:
		score++
	}

	switch {
	case in.ErrorStd <= 2:
		score += 2
	case in.ErrorStd <= 3:
		score++
	}

	if in.SourceCount >= 4 {
		score++
	}

	if in.NewestAge <= 60*time.Minute {
		score++
	} else if in.NewestAge > 120*time.Minute {
		score--
	}

	switch {
	case score >= 5:
		return domain.ConfidenceHigh, score
	case score >= 3:
		return domain.ConfidenceMedium, score
	default:
		return domain.ConfidenceLow, score
	}
}
