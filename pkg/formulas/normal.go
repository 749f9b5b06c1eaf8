package formulas

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// NormalCDF returns P(X <= x) for X ~ Normal(mu, sigma).
// A non-positive sigma degenerates to a step function at mu.
func NormalCDF(x, mu, sigma float64) float64 {
	if sigma <= 0 {
		if x >= mu {
			return 1
		}
		return 0
	}
	dist := distuv.Normal{Mu: mu, Sigma: sigma}
	return dist.CDF(x)
}

// NormalIntervalProb returns P(lower < X <= upper) for X ~ Normal(mu, sigma).
// A nil lower bound means -inf; a nil upper bound means +inf.
func NormalIntervalProb(lower, upper *float64, mu, sigma float64) float64 {
	lo := 0.0
	if lower != nil {
		lo = NormalCDF(*lower, mu, sigma)
	}
	hi := 1.0
	if upper != nil {
		hi = NormalCDF(*upper, mu, sigma)
	}
	p := hi - lo
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
