package formulas

// KellyFraction returns the optimal bet fraction f* = (b*p - q) / b for a
// binary contract, where p is the model win probability, q = 1-p, and
// b = (1-price)/price is the net odds at the quoted price (price expressed
// as a probability in (0, 1)).
//
// The result is clamped below at 0; callers apply their own upper cap.
func KellyFraction(modelProb, price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	b := (1 - price) / price
	q := 1 - modelProb
	f := (b*modelProb - q) / b
	if f < 0 {
		return 0
	}
	return f
}

// CappedKelly applies the fractional-Kelly cap used for sizing. cap must be
// in (0, 1]; values above it are truncated.
func CappedKelly(modelProb, price, cap float64) float64 {
	f := KellyFraction(modelProb, price)
	if cap > 0 && f > cap {
		return cap
	}
	return f
}
