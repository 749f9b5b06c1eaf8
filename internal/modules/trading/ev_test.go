package trading

import (
	"testing"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/modules/prediction"
	"github.com/bozweather/trader/pkg/money"
	"github.com/bozweather/trader/pkg/units"
)

func f(v float64) *float64 { return &v }

func testConfig() EVConfig {
	return EVConfig{
		Fees:              money.DefaultFeeSchedule(),
		MinEVThreshold:    0.05,
		KellyCap:          0.25,
		MaxTradeSizeCents: 10000,
		BankrollCents:     100000,
	}
}

func testPrediction(ticker string, prob float64) prediction.Prediction {
	return prediction.Prediction{
		City:       units.CityNYC,
		TargetDate: "2026-02-18",
		Confidence: domain.ConfidenceMedium,
		Brackets: []prediction.BracketProbability{
			{Ticker: ticker, Probability: prob},
		},
	}
}

func TestScanSignals_EmitsYesWhenModelBeatsMarket(t *testing.T) {
	pred := testPrediction("T-52", 0.45)
	brackets := []domain.Bracket{
		{Ticker: "T-52", Label: "52-54°F", LowerBound: f(52), UpperBound: f(54), YesAsk: 22, NoAsk: 80},
	}

	signals := ScanSignals(pred, brackets, testConfig())
	if len(signals) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(signals))
	}

	sig := signals[0]
	if sig.Side != domain.SideYes {
		t.Errorf("Expected yes side, got %s", sig.Side)
	}
	if sig.LimitPrice != 22 {
		t.Errorf("Expected limit price 22, got %d", sig.LimitPrice)
	}
	if sig.EV < 0.05 {
		t.Errorf("Emitted signal below threshold: %.4f", sig.EV)
	}
	if sig.Quantity < 1 {
		t.Errorf("Signal sized below one contract: %d", sig.Quantity)
	}
	if err := sig.Validate(); err != nil {
		t.Errorf("Emitted signal fails validation: %v", err)
	}
}

func TestScanSignals_ThresholdBlocksThinEdges(t *testing.T) {
	// Model 0.25 vs ask 22 is a thin edge that fee drag pushes under the
	// default 0.05 floor.
	pred := testPrediction("T-52", 0.25)
	brackets := []domain.Bracket{
		{Ticker: "T-52", Label: "52-54°F", YesAsk: 22, NoAsk: 80},
	}

	if signals := ScanSignals(pred, brackets, testConfig()); len(signals) != 0 {
		t.Errorf("Expected no signals under threshold, got %d", len(signals))
	}
}

func TestScanSignals_NoRestingAskRejected(t *testing.T) {
	pred := testPrediction("T-52", 0.90)
	brackets := []domain.Bracket{
		// Zero asks mean nobody is offering either side.
		{Ticker: "T-52", Label: "52-54°F", YesAsk: 0, NoAsk: 0},
	}

	if signals := ScanSignals(pred, brackets, testConfig()); len(signals) != 0 {
		t.Errorf("Expected no signals without a resting ask, got %d", len(signals))
	}
}

func TestScanSignals_NoSideWhenModelBelowMarket(t *testing.T) {
	// Model gives the bracket 5% while yes asks imply 40%: buying no at 65
	// wins 95% of the time.
	pred := testPrediction("T-52", 0.05)
	brackets := []domain.Bracket{
		{Ticker: "T-52", Label: "52-54°F", YesAsk: 40, NoAsk: 65},
	}

	signals := ScanSignals(pred, brackets, testConfig())
	if len(signals) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(signals))
	}
	if signals[0].Side != domain.SideNo {
		t.Errorf("Expected no side, got %s", signals[0].Side)
	}
	if signals[0].LimitPrice != 65 {
		t.Errorf("Expected limit price 65, got %d", signals[0].LimitPrice)
	}
}

func TestRankSignals_TieBreaks(t *testing.T) {
	signals := []domain.TradeSignal{
		{City: units.CityNYC, EV: 0.08, Confidence: domain.ConfidenceLow},
		{City: units.CityMiami, EV: 0.08, Confidence: domain.ConfidenceHigh},
		{City: units.CityAustin, EV: 0.08, Confidence: domain.ConfidenceHigh},
		{City: units.CityChicago, EV: 0.12, Confidence: domain.ConfidenceLow},
	}

	RankSignals(signals)

	expected := []units.City{units.CityChicago, units.CityAustin, units.CityMiami, units.CityNYC}
	for i, city := range expected {
		if signals[i].City != city {
			t.Errorf("Position %d: expected %s, got %s", i, city, signals[i].City)
		}
	}
}
