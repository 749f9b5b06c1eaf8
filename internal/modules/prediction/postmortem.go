package prediction

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/modules/forecast"
	"github.com/bozweather/trader/pkg/money"
)

// TradeTerms carries the entry-side facts of a settled trade into its
// narrative. The settlement layer fills it from the trade record; the
// zero value omits the entry sentences.
type TradeTerms struct {
	Side       domain.Side
	Ticker     string
	Label      string
	EntryPrice money.Cents
	Quantity   int64
	ModelProb  float64
	MarketProb float64
}

// Postmortem explains a settled trade: the entry terms, the model-vs-market
// probability at entry, how far the ensemble missed, which source came
// closest, and where the official high actually landed. The output is
// deterministic for a given input so it can be stored and re-rendered.
func Postmortem(pred Prediction, terms TradeTerms, forecasts map[string]forecast.Forecast, actualHigh float64, outcome domain.TradeStatus) string {
	var sb strings.Builder

	if terms.Ticker != "" {
		fmt.Fprintf(&sb, "Bought %d %s on %s (%s) at %d¢.", terms.Quantity, terms.Side, terms.Ticker, terms.Label, int64(terms.EntryPrice))
		fmt.Fprintf(&sb, " Model %.0f%% vs market %.0f%% at entry. ", terms.ModelProb*100, terms.MarketProb*100)
	}

	missF := actualHigh - pred.EnsembleHigh
	fmt.Fprintf(&sb, "Official high %.1f°F vs ensemble %.1f°F (miss %+.1f°F).", actualHigh, pred.EnsembleHigh, missF)

	if name, f, ok := closestSource(forecasts, actualHigh); ok {
		fmt.Fprintf(&sb, " Closest source: %s at %.1f°F (off by %.1f°F).", name, f.PredictedHigh, math.Abs(f.PredictedHigh-actualHigh))
	}

	if landed := landedBracket(pred.Brackets, actualHigh); landed != nil {
		fmt.Fprintf(&sb, " High landed in %s, which the model priced at %.0f%%.", landed.Label, landed.Probability*100)
	} else {
		sb.WriteString(" High landed outside every tracked bracket.")
	}

	switch outcome {
	case domain.TradeWon:
		sb.WriteString(" Trade won.")
	case domain.TradeLost:
		sb.WriteString(" Trade lost.")
	}
	return sb.String()
}

// closestSource returns the source whose forecast came nearest the actual
// high, breaking ties alphabetically so the narrative is stable.
func closestSource(forecasts map[string]forecast.Forecast, actualHigh float64) (string, forecast.Forecast, bool) {
	if len(forecasts) == 0 {
		return "", forecast.Forecast{}, false
	}
	names := make([]string, 0, len(forecasts))
	for name := range forecasts {
		names = append(names, name)
	}
	sort.Strings(names)

	best := names[0]
	bestDiff := math.Abs(forecasts[best].PredictedHigh - actualHigh)
	for _, name := range names[1:] {
		if diff := math.Abs(forecasts[name].PredictedHigh - actualHigh); diff < bestDiff {
			best, bestDiff = name, diff
		}
	}
	return best, forecasts[best], true
}

func landedBracket(brackets []BracketProbability, actualHigh float64) *BracketProbability {
	for i, b := range brackets {
		bracket := domain.Bracket{LowerBound: b.LowerBound, UpperBound: b.UpperBound}
		if bracket.Contains(actualHigh) {
			return &brackets[i]
		}
	}
	return nil
}
