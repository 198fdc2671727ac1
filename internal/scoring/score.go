// Package scoring ranks trial outcomes: the composite score, the best known
// score per applicant and the bounded leaderboard of results.
package scoring

import "math"

// ScoreStep is the resolution composite scores are rounded up to
const ScoreStep = 1e-8

// CeilToStep rounds x up to the nearest multiple of step. Values that are
// already a multiple of step up to floating point noise are returned as the
// nearest multiple, which keeps the function idempotent. NaN, infinities and
// a non-positive step return x unchanged.
func CeilToStep(x, step float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return x
	}

	q := x / step
	n := math.Ceil(q)
	if r := math.Round(q); r < n && q-r < math.Max(1e-9, math.Abs(q)*1e-14) {
		n = r
	}

	res := n * step
	if res < x {
		// the multiplication lost the last ulp
		return x
	}
	return res
}

// CompositeScore is the ranking key of an outcome: wallet times drawdown
// rounded up to ScoreStep
func CompositeScore(wallet, drawdown float64) float64 {
	return CeilToStep(wallet*drawdown, ScoreStep)
}
