package prediction

import (
	"strings"
	"testing"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/modules/forecast"
	"github.com/bozweather/trader/pkg/units"
)

func TestPostmortem_NamesClosestSourceAndMiss(t *testing.T) {
	pred := Prediction{
		City:         units.CityNYC,
		TargetDate:   "2026-02-18",
		EnsembleHigh: 54.1,
		Brackets: []BracketProbability{
			{Ticker: "T-52", Label: "52-54°F", LowerBound: f(52), UpperBound: f(54), Probability: 0.26},
			{Ticker: "T-54", Label: "54-56°F", LowerBound: f(54), UpperBound: f(56), Probability: 0.30},
		},
	}
	forecasts := map[string]forecast.Forecast{
		"nws":   {Source: "nws", PredictedHigh: 55},
		"ecmwf": {Source: "ecmwf", PredictedHigh: 53},
		"gfs":   {Source: "gfs", PredictedHigh: 54},
	}
	terms := TradeTerms{
		Side:       domain.SideYes,
		Ticker:     "KXHIGHNY-26FEB18-T52",
		Label:      "52-54°F",
		EntryPrice: 22,
		Quantity:   1,
		ModelProb:  0.26,
		MarketProb: 0.22,
	}

	narrative := Postmortem(pred, terms, forecasts, 53.4, domain.TradeWon)

	if !strings.Contains(narrative, "Bought 1 yes on KXHIGHNY-26FEB18-T52 (52-54°F) at 22¢.") {
		t.Errorf("Narrative should state the entry terms, got: %s", narrative)
	}
	if !strings.Contains(narrative, "Model 26% vs market 22% at entry.") {
		t.Errorf("Narrative should state model vs market probability, got: %s", narrative)
	}
	if !strings.Contains(narrative, "ecmwf") {
		t.Errorf("Narrative should name ecmwf as closest to 53.4, got: %s", narrative)
	}
	if !strings.Contains(narrative, "-0.7°F") {
		t.Errorf("Narrative should state the ensemble miss, got: %s", narrative)
	}
	if !strings.Contains(narrative, "52-54°F") {
		t.Errorf("Narrative should name the landed bracket, got: %s", narrative)
	}
	if !strings.Contains(narrative, "Trade won.") {
		t.Errorf("Narrative should state the outcome, got: %s", narrative)
	}
}

func TestPostmortem_Deterministic(t *testing.T) {
	pred := Prediction{EnsembleHigh: 60}
	forecasts := map[string]forecast.Forecast{
		// Both sources tie at 1°F off; the alphabetically first wins.
		"gfs":  {Source: "gfs", PredictedHigh: 62},
		"icon": {Source: "icon", PredictedHigh: 60},
	}

	first := Postmortem(pred, TradeTerms{}, forecasts, 61, domain.TradeLost)
	for i := 0; i < 10; i++ {
		if got := Postmortem(pred, TradeTerms{}, forecasts, 61, domain.TradeLost); got != first {
			t.Fatalf("Narrative not deterministic:\n%s\n%s", first, got)
		}
	}
	if !strings.Contains(first, "gfs") {
		t.Errorf("Tie should break alphabetically to gfs, got: %s", first)
	}
}

func TestPostmortem_NoForecasts(t *testing.T) {
	narrative := Postmortem(Prediction{EnsembleHigh: 50}, TradeTerms{}, nil, 49, domain.TradeLost)
	if strings.Contains(narrative, "Closest source") {
		t.Errorf("No sources should omit the closest-source clause, got: %s", narrative)
	}
}
