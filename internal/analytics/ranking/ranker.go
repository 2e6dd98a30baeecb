// Package ranking orders compound score records so that compounds low on
// both the on-score and the off-score surface first. Strategies are
// pluggable; all of them break ties by compound identifier so reruns
// produce identical output.
package ranking

import (
	"math"
	"sort"

	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

const (
	StrategyWeightedSum = "weighted_sum"
	StrategyRankProduct = "rank_product"
	StrategyPareto      = "pareto"
)

// Strategy orders scorable compounds best-first.
type Strategy interface {
	Name() string
	Order(entries []screen.CompoundScore) []screen.CompoundScore
}

// NewStrategy resolves a strategy by name. The weights only apply to
// weighted_sum and must not both be zero.
func NewStrategy(name string, onWeight, offWeight float64) (Strategy, error) {
	switch name {
	case StrategyWeightedSum, "":
		if onWeight < 0 || offWeight < 0 || (onWeight == 0 && offWeight == 0) {
			return nil, errors.Newf(errors.ErrCodeValidation,
				"weighted_sum needs non-negative weights with a positive sum, got on=%v off=%v", onWeight, offWeight)
		}
		return &weightedSum{on: onWeight, off: offWeight}, nil
	case StrategyRankProduct:
		return &rankProduct{}, nil
	case StrategyPareto:
		return &pareto{}, nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownRankStrategy, "unknown ranking strategy %q", name)
	}
}

// Ranker applies a strategy to a run's score records.
type Ranker struct {
	strategy Strategy
	logger   logging.Logger
}

// NewRanker creates a Ranker.
func NewRanker(strategy Strategy, logger logging.Logger) *Ranker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Ranker{strategy: strategy, logger: logger}
}

// Rank orders the scorable records best-first and assigns 1-based ranks.
// Excluded records keep Rank 0 and follow the ranked block sorted by
// compound identifier. At least one scorable record is required.
func (r *Ranker) Rank(records []screen.CompoundScore) ([]screen.CompoundScore, error) {
	var scorable, excluded []screen.CompoundScore
	for _, rec := range records {
		if rec.Excluded {
			excluded = append(excluded, rec)
		} else {
			scorable = append(scorable, rec)
		}
	}
	if len(scorable) == 0 {
		return nil, errors.New(errors.ErrCodeNoScorableCompounds, "every compound was excluded before ranking")
	}

	ordered := r.strategy.Order(scorable)
	for i := range ordered {
		ordered[i].Rank = i + 1
	}
	sort.Slice(excluded, func(i, j int) bool { return excluded[i].Compound < excluded[j].Compound })

	r.logger.Info("compounds ranked",
		logging.String("strategy", r.strategy.Name()),
		logging.Int("ranked", len(ordered)),
		logging.Int("excluded", len(excluded)),
	)
	return append(ordered, excluded...), nil
}

// weightedSum ranks by on*wOn + off*wOff, ascending.
type weightedSum struct {
	on, off float64
}

func (s *weightedSum) Name() string { return StrategyWeightedSum }

func (s *weightedSum) Order(entries []screen.CompoundScore) []screen.CompoundScore {
	out := cloneScores(entries)
	sort.Slice(out, func(i, j int) bool {
		ki := s.on*out[i].OnScore + s.off*out[i].OffScore
		kj := s.on*out[j].OnScore + s.off*out[j].OffScore
		if ki != kj {
			return ki < kj
		}
		return out[i].Compound < out[j].Compound
	})
	return out
}

// rankProduct ranks each axis independently and orders by the product of
// the two per-axis ranks. A compound best on one axis but worst on the
// other lands behind a compound that is merely good on both.
type rankProduct struct{}

func (s *rankProduct) Name() string { return StrategyRankProduct }

func (s *rankProduct) Order(entries []screen.CompoundScore) []screen.CompoundScore {
	out := cloneScores(entries)
	onRank := axisRanks(out, func(e screen.CompoundScore) float64 { return e.OnScore })
	offRank := axisRanks(out, func(e screen.CompoundScore) float64 { return e.OffScore })

	product := make(map[string]float64, len(out))
	for _, e := range out {
		id := string(e.Compound)
		product[id] = onRank[id] * offRank[id]
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := product[string(out[i].Compound)], product[string(out[j].Compound)]
		if pi != pj {
			return pi < pj
		}
		return out[i].Compound < out[j].Compound
	})
	return out
}

// axisRanks assigns ascending midranks along one score axis.
func axisRanks(entries []screen.CompoundScore, key func(screen.CompoundScore) float64) map[string]float64 {
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ka, kb := key(entries[idx[a]]), key(entries[idx[b]])
		if ka != kb {
			return ka < kb
		}
		return entries[idx[a]].Compound < entries[idx[b]].Compound
	})

	ranks := make(map[string]float64, len(entries))
	for pos := 0; pos < len(idx); {
		end := pos
		for end < len(idx) && key(entries[idx[end]]) == key(entries[idx[pos]]) {
			end++
		}
		mid := float64(pos+end+1) / 2.0 // 1-based midrank of the tie group
		for k := pos; k < end; k++ {
			ranks[string(entries[idx[k]].Compound)] = mid
		}
		pos = end
	}
	return ranks
}

// pareto orders by non-domination depth: the first front holds compounds
// no other compound beats on both axes, then the fronts peel off
// iteratively. Within a front the unweighted score sum decides.
type pareto struct{}

func (s *pareto) Name() string { return StrategyPareto }

func (s *pareto) Order(entries []screen.CompoundScore) []screen.CompoundScore {
	out := cloneScores(entries)
	front := make([]int, len(out))
	for i := range out {
		front[i] = -1
	}

	assigned := 0
	for depth := 0; assigned < len(out); depth++ {
		var round []int
		for i := range out {
			if front[i] != -1 {
				continue
			}
			dominated := false
			for j := range out {
				if i == j || front[j] != -1 {
					continue
				}
				if dominates(out[j], out[i]) {
					dominated = true
					break
				}
			}
			if !dominated {
				round = append(round, i)
			}
		}
		if len(round) == 0 {
			// Mutually dominating duplicates cannot occur, but guard
			// against an infinite loop on NaN scores.
			for i := range out {
				if front[i] == -1 {
					round = append(round, i)
				}
			}
		}
		for _, i := range round {
			front[i] = depth
			assigned++
		}
	}

	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if front[i] != front[j] {
			return front[i] < front[j]
		}
		si := out[i].OnScore + out[i].OffScore
		sj := out[j].OnScore + out[j].OffScore
		if si != sj {
			return si < sj
		}
		return out[i].Compound < out[j].Compound
	})

	ordered := make([]screen.CompoundScore, len(out))
	for pos, i := range idx {
		ordered[pos] = out[i]
	}
	return ordered
}

// dominates reports whether a beats b on at least one axis without losing
// on the other. Lower scores are better on both axes.
func dominates(a, b screen.CompoundScore) bool {
	if math.IsNaN(a.OnScore) || math.IsNaN(a.OffScore) {
		return false
	}
	return a.OnScore <= b.OnScore && a.OffScore <= b.OffScore &&
		(a.OnScore < b.OnScore || a.OffScore < b.OffScore)
}

func cloneScores(entries []screen.CompoundScore) []screen.CompoundScore {
	out := make([]screen.CompoundScore, len(entries))
	copy(out, entries)
	return out
}
