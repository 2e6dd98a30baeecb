// Package divergence scores treatment clusters against control clusters
// with a smoothed, histogram-based Kullback-Leibler divergence over a
// signature feature subset.
package divergence

import (
	"math"

	mstats "github.com/montanaflynn/stats"

	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// klDivergence computes D(P‖Q) between the empirical distributions of two
// samples of one feature. Both samples are binned on shared edges spanning
// their joint range; floor is the pseudo-count added to every bin mass so
// regions the control never occupies cannot blow the divergence up to
// infinity.
func klDivergence(p, q []float64, bins int, floor float64) (float64, error) {
	p = finiteOnly(p)
	q = finiteOnly(q)
	if len(p) == 0 || len(q) == 0 {
		return 0, errors.New(errors.ErrCodeDivergenceInput, "empty sample after dropping missing values")
	}

	lo, hi := jointRange(p, q)
	if lo == hi {
		// Both samples concentrate on a single point; the distributions
		// are identical by construction.
		return 0, nil
	}

	ph := histogramDensity(p, lo, hi, bins, floor)
	qh := histogramDensity(q, lo, hi, bins, floor)

	var kl float64
	for i := range ph {
		kl += ph[i] * math.Log(ph[i]/qh[i])
	}
	if kl < 0 {
		// Floating-point residue near identical distributions.
		kl = 0
	}
	return kl, nil
}

func jointRange(p, q []float64) (float64, float64) {
	minP, _ := mstats.Min(p)
	maxP, _ := mstats.Max(p)
	minQ, _ := mstats.Min(q)
	maxQ, _ := mstats.Max(q)
	return math.Min(minP, minQ), math.Max(maxP, maxQ)
}

// histogramDensity bins the sample into bins equal-width buckets over
// [lo, hi] and normalizes to a probability vector with a per-bin
// pseudo-count of floor.
func histogramDensity(sample []float64, lo, hi float64, bins int, floor float64) []float64 {
	counts := make([]float64, bins)
	width := (hi - lo) / float64(bins)
	for _, x := range sample {
		idx := int((x - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}
	total := float64(len(sample)) + floor*float64(bins)
	for i := range counts {
		counts[i] = (counts[i] + floor) / total
	}
	return counts
}

func finiteOnly(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}
