package signature

import (
	"math"
	"sort"
)

// weightedCDFs evaluates the weighted empirical CDFs of samples a and b on
// the sorted union of their values. Observation weights come from weightFor,
// which maps a pooled-rank position in [0,1] to a weight.
func weightedCDFs(a, b []float64, weightFor func(u float64) float64) (grid, cdfA, cdfB []float64) {
	pooled := make([]float64, 0, len(a)+len(b))
	pooled = append(pooled, a...)
	pooled = append(pooled, b...)
	sort.Float64s(pooled)

	grid = dedupSorted(pooled)

	// Each observation is weighted by its midrank position in the pooled
	// sample, so both groups share one weighting scheme.
	rank := func(x float64) float64 {
		lo := sort.SearchFloat64s(pooled, x)
		hi := sort.Search(len(pooled), func(i int) bool { return pooled[i] > x })
		return (float64(lo+hi-1) / 2.0) / float64(len(pooled)-1)
	}

	cdfA = weightedCDFOnGrid(a, grid, rank, weightFor)
	cdfB = weightedCDFOnGrid(b, grid, rank, weightFor)
	return grid, cdfA, cdfB
}

func weightedCDFOnGrid(sample, grid []float64, rank func(float64) float64, weightFor func(float64) float64) []float64 {
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	weights := make([]float64, len(sorted))
	var total float64
	for i, x := range sorted {
		w := weightFor(rank(x))
		weights[i] = w
		total += w
	}

	cdf := make([]float64, len(grid))
	var cum float64
	j := 0
	for i, g := range grid {
		for j < len(sorted) && sorted[j] <= g {
			cum += weights[j]
			j++
		}
		cdf[i] = cum / total
	}
	return cdf
}

func dedupSorted(sorted []float64) []float64 {
	out := sorted[:0:0]
	for i, x := range sorted {
		if i == 0 || x != sorted[i-1] {
			out = append(out, x)
		}
	}
	return out
}

// ksDistance returns the maximum vertical separation between two CDF
// vectors evaluated on the same grid.
func ksDistance(cdfA, cdfB []float64) float64 {
	var max float64
	for i := range cdfA {
		if d := math.Abs(cdfA[i] - cdfB[i]); d > max {
			max = d
		}
	}
	return max
}

// ksPValue returns the asymptotic two-sample Kolmogorov-Smirnov p-value
// for distance d with group sizes na and nb, using the Stephens
// finite-sample correction of the effective size.
func ksPValue(d float64, na, nb int) float64 {
	ne := float64(na) * float64(nb) / float64(na+nb)
	sqrtNe := math.Sqrt(ne)
	lambda := (sqrtNe + 0.12 + 0.11/sqrtNe) * d
	return kolmogorovQ(lambda)
}

// kolmogorovQ is the complementary Kolmogorov distribution
// Q(λ) = 2 Σ_{k≥1} (-1)^{k-1} exp(-2 k² λ²).
func kolmogorovQ(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	const (
		maxTerms = 100
		eps      = 1e-12
	)
	var sum float64
	sign := 1.0
	for k := 1; k <= maxTerms; k++ {
		term := sign * math.Exp(-2*float64(k)*float64(k)*lambda*lambda)
		sum += term
		if math.Abs(term) < eps {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
