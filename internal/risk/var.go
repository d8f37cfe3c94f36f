package risk

import "sort"

// HistoricalVaR computes Value-at-Risk and Conditional Value-at-Risk from the
// empirical return distribution. Both figures are reported as positive loss
// fractions.
type HistoricalVaR struct{}

// VaR implements domain.VaRCalculator. alpha is the confidence level, e.g.
// 0.99 means the loss exceeded in 1% of observations. CVaR is the mean loss
// across the tail at and beyond the VaR cutoff.
func (HistoricalVaR) VaR(returns []float64, alpha float64) (float64, float64) {
	if len(returns) == 0 {
		return 0, 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// Index of the (1-alpha) quantile in the loss tail.
	idx := int(float64(len(sorted)) * (1 - alpha))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	v := -sorted[idx]
	if v < 0 {
		v = 0
	}

	var tailSum float64
	for _, r := range sorted[:idx+1] {
		tailSum += -r
	}
	cv := tailSum / float64(idx+1)
	if cv < 0 {
		cv = 0
	}
	if cv < v {
		cv = v
	}
	return v, cv
}
