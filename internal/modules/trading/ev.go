package trading

import (
	"fmt"
	"sort"

	"github.com/bozweather/trader/internal/domain"
	"github.com/bozweather/trader/internal/modules/prediction"
	"github.com/bozweather/trader/pkg/money"
)

// EVConfig parameterizes the scanner and sizer.
type EVConfig struct {
	Fees              money.FeeSchedule
	MinEVThreshold    float64     // net EV floor for emitting a signal
	KellyCap          float64     // fractional-Kelly cap, (0, 1]
	MaxTradeSizeCents money.Cents // per-trade notional cap
	BankrollCents     money.Cents // sizing base
}

// ScanSignals prices both sides of every active bracket against the
// model's probability vector and emits sized signals whose net EV clears
// the threshold. Output is ranked: EV descending, then confidence, then
// city alphabetically.
func ScanSignals(pred prediction.Prediction, brackets []domain.Bracket, cfg EVConfig) []domain.TradeSignal {
	var signals []domain.TradeSignal
	for _, bracket := range brackets {
		if bracket.Status != "" && bracket.Status != "active" {
			continue
		}
		modelProb := pred.ProbabilityFor(bracket.Ticker)
		for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
			sig, ok := evaluateSide(pred, bracket, side, modelProb, cfg)
			if ok {
				signals = append(signals, sig)
			}
		}
	}
	RankSignals(signals)
	return signals
}

// evaluateSide prices one side of one bracket. Sides with no resting ask
// are unpriceable and rejected outright.
func evaluateSide(pred prediction.Prediction, bracket domain.Bracket, side domain.Side, modelProb float64, cfg EVConfig) (domain.TradeSignal, bool) {
	var (
		ask     money.Cents
		winProb float64
	)
	switch side {
	case domain.SideYes:
		ask = bracket.YesAsk
		winProb = modelProb
	default:
		ask = bracket.NoAsk
		winProb = 1 - modelProb
	}
	if !money.ValidPrice(ask) {
		return domain.TradeSignal{}, false
	}

	marketProb := ask.Probability()
	grossEV := winProb - marketProb

	quantity := SizeQuantity(winProb, ask, cfg)
	if quantity < 1 {
		return domain.TradeSignal{}, false
	}

	netEV := grossEV - cfg.Fees.FeeDrag(ask, quantity, winProb)
	if netEV < cfg.MinEVThreshold {
		return domain.TradeSignal{}, false
	}

	return domain.TradeSignal{
		City:          pred.City,
		TargetDate:    pred.TargetDate,
		BracketTicker: bracket.Ticker,
		BracketLabel:  bracket.Label,
		Side:          side,
		ModelProb:     winProb,
		MarketProb:    marketProb,
		EV:            netEV,
		Confidence:    pred.Confidence,
		Reasoning: fmt.Sprintf("model %.1f%% vs market %.1f%% on %s %s, net EV %+.3f",
			winProb*100, marketProb*100, bracket.Label, side, netEV),
		Quantity:   quantity,
		LimitPrice: ask,
	}, true
}

// RankSignals orders competing signals for budget allocation: net EV
// descending, confidence rank, then city alphabetically for a stable
// deterministic order.
func RankSignals(signals []domain.TradeSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].EV != signals[j].EV {
			return signals[i].EV > signals[j].EV
		}
		if ri, rj := signals[i].Confidence.Rank(), signals[j].Confidence.Rank(); ri != rj {
			return ri > rj
		}
		return signals[i].City < signals[j].City
	})
}
