package money

import (
	"github.com/shopspring/decimal"
)

// FeeSchedule parameterizes the exchange fee model. Both rates are
// configurable because the published formula is approximate: roughly 1% of
// notional per trade and 10% of profit at settlement.
type FeeSchedule struct {
	TradeFeeRate      decimal.Decimal // fraction of traded notional
	SettlementFeeRate decimal.Decimal // fraction of profit-if-win
}

// DefaultFeeSchedule returns the schedule matching the exchange's
// published approximations.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		TradeFeeRate:      decimal.NewFromFloat(0.01),
		SettlementFeeRate: decimal.NewFromFloat(0.10),
	}
}

// TradeFee returns the entry fee in cents for buying quantity contracts at
// price, rounded up to the next whole cent.
func (f FeeSchedule) TradeFee(price Cents, quantity int64) Cents {
	notional := decimal.NewFromInt(int64(price)).Mul(decimal.NewFromInt(quantity))
	fee := notional.Mul(f.TradeFeeRate)
	return Cents(fee.Ceil().IntPart())
}

// SettlementFee returns the fee in cents charged against the profit of a
// winning position, rounded up.
func (f FeeSchedule) SettlementFee(profit Cents) Cents {
	if profit <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(int64(profit)).Mul(f.SettlementFeeRate)
	return Cents(fee.Ceil().IntPart())
}

// Total returns the combined fee drag in cents for a position entered at
// price with the given quantity, assuming it wins. profitIfWin is the gross
// profit (100 - price per contract for yes, price symmetric for no).
func (f FeeSchedule) Total(price Cents, quantity int64, profitIfWin Cents) Cents {
	return f.TradeFee(price, quantity) + f.SettlementFee(profitIfWin)
}

// FeeDrag expresses the total expected fee as a probability-space drag per
// $1 of notional, for comparison against gross EV.
func (f FeeSchedule) FeeDrag(price Cents, quantity int64, modelProb float64) float64 {
	if quantity <= 0 {
		return 0
	}
	profitIfWin := Cents(int64(100-price) * quantity)
	entry := f.TradeFee(price, quantity)
	settle := f.SettlementFee(profitIfWin)
	expected := float64(entry) + modelProb*float64(settle)
	notional := float64(quantity) * 100.0
	return expected / notional
}
