package trading

import (
	"github.com/bozweather/trader/pkg/formulas"
	"github.com/bozweather/trader/pkg/money"
)

// SizeQuantity converts a Kelly fraction of bankroll into a whole-contract
// quantity at the quoted ask. The dollar stake is clamped by the kelly cap
// and the per-trade notional cap; a stake too small for one contract
// drops the signal.
func SizeQuantity(winProb float64, ask money.Cents, cfg EVConfig) int64 {
	if !money.ValidPrice(ask) || cfg.BankrollCents <= 0 {
		return 0
	}

	fraction := formulas.CappedKelly(winProb, ask.Probability(), cfg.KellyCap)
	if fraction <= 0 {
		return 0
	}

	stakeCents := int64(fraction * float64(cfg.BankrollCents))
	if cfg.MaxTradeSizeCents > 0 && stakeCents > int64(cfg.MaxTradeSizeCents) {
		stakeCents = int64(cfg.MaxTradeSizeCents)
	}

	quantity := stakeCents / int64(ask)
	if quantity < 1 {
		return 0
	}
	return quantity
}
