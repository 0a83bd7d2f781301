package services

import (
	"math"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
)

// minCorrelationSamples is the smallest sample a coefficient is reported for.
const minCorrelationSamples = 3

// PearsonCorrelation computes r over paired values using centered products.
// ok is false when there are fewer than three pairs or either side is
// constant.
func PearsonCorrelation(pairs []datasource.NumericPair) (r float64, ok bool) {
	n := len(pairs)
	if n < minCorrelationSamples {
		return 0, false
	}

	var sumA, sumB float64
	for _, p := range pairs {
		sumA += p.A
		sumB += p.B
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for _, p := range pairs {
		da := p.A - meanA
		db := p.B - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}

	r = cov / math.Sqrt(varA*varB)
	if math.IsNaN(r) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, r)), true
}

// populationBounds returns mean ∓ k·stddev.
func populationBounds(mean, stddev, k float64) (lower, upper float64) {
	return mean - k*stddev, mean + k*stddev
}
