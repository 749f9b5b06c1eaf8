package prediction

import (
	"errors"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/pkg/formulas"
)

// ErrNoBrackets is returned when an event carries no brackets to price.
var ErrNoBrackets = errors.New("prediction: event has no brackets")

// probabilitySumTolerance is the acceptable drift from 1.0 after
// renormalization.
const probabilitySumTolerance = 1e-9

// BracketProbabilities prices every bracket of an event under a Normal
// outcome distribution centered on the ensemble high. Each probability is
// clamped to [0,1] and the vector is renormalized so it sums to exactly
// 1.0; the edge brackets are open-ended so a contiguous ladder always
// has full mass.
func BracketProbabilities(brackets []domain.Bracket, ensembleHigh, errorStd float64) ([]BracketProbability, error) {
	if len(brackets) == 0 {
		return nil, ErrNoBrackets
	}

	out := make([]BracketProbability, 0, len(brackets))
	var sum float64
	for _, b := range brackets {
		p := formulas.NormalIntervalProb(b.LowerBound, b.UpperBound, ensembleHigh, errorStd)
		out = append(out, BracketProbability{
			Ticker:      b.Ticker,
			LowerBound:  b.LowerBound,
			UpperBound:  b.UpperBound,
			Label:       b.Label,
			Probability: p,
		})
		sum += p
	}

	if sum > 0 {
		for i := range out {
			out[i].Probability /= sum
		}
	} else {
		// Degenerate sigma far outside every bracket; spread mass evenly
		// rather than emit a zero vector.
		uniform := 1.0 / float64(len(out))
		for i := range out {
			out[i].Probability = uniform
		}
	}
	return out, nil
}

// probabilitySum is a test hook confirming the renormalized vector mass.
func probabilitySum(probs []BracketProbability) float64 {
	var sum float64
	for _, p := range probs {
		sum += p.Probability
	}
	return sum
}
