package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

func score(id string, on, off float64) screen.CompoundScore {
	return screen.CompoundScore{Compound: common.CompoundID(id), OnScore: on, OffScore: off}
}

func compounds(entries []screen.CompoundScore) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Compound)
	}
	return out
}

func TestWeightedSumRanksLowScoresFirst(t *testing.T) {
	s, err := NewStrategy(StrategyWeightedSum, 1, 1)
	require.NoError(t, err)
	r := NewRanker(s, nil)

	ranked, err := r.Rank([]screen.CompoundScore{
		score("cmpd-b", 0.5, 0.5),
		score("cmpd-a", 0.1, 0.1),
		score("cmpd-c", 2.0, 1.5),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cmpd-a", "cmpd-b", "cmpd-c"}, compounds(ranked))
	for i, e := range ranked {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestWeightedSumTieBreaksByCompoundID(t *testing.T) {
	s, err := NewStrategy(StrategyWeightedSum, 1, 1)
	require.NoError(t, err)
	r := NewRanker(s, nil)

	ranked, err := r.Rank([]screen.CompoundScore{
		score("cmpd-z", 1, 1),
		score("cmpd-a", 1, 1),
		score("cmpd-m", 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cmpd-a", "cmpd-m", "cmpd-z"}, compounds(ranked))
}

func TestRankProductPenalizesOneSidedCompounds(t *testing.T) {
	// Best on one axis and worst on the other must not outrank a
	// compound that is good on both.
	s, err := NewStrategy(StrategyRankProduct, 0, 0)
	require.NoError(t, err)
	r := NewRanker(s, nil)

	ranked, err := r.Rank([]screen.CompoundScore{
		score("one-sided", 0.0, 10.0),
		score("balanced", 0.5, 0.5),
		score("poor", 5.0, 5.0),
	})
	require.NoError(t, err)
	assert.Equal(t, "balanced", compounds(ranked)[0])
}

func TestParetoFrontOrdering(t *testing.T) {
	s, err := NewStrategy(StrategyPareto, 0, 0)
	require.NoError(t, err)
	r := NewRanker(s, nil)

	ranked, err := r.Rank([]screen.CompoundScore{
		score("dominated", 2.0, 2.0), // beaten by front-a on both axes
		score("front-a", 1.0, 1.0),
		score("front-b", 0.5, 3.0), // non-dominated, worse sum
	})
	require.NoError(t, err)
	got := compounds(ranked)
	assert.Equal(t, "front-a", got[0])
	assert.Equal(t, "front-b", got[1])
	assert.Equal(t, "dominated", got[2])
}

func TestRankAppendsExcludedAfterRanked(t *testing.T) {
	s, err := NewStrategy(StrategyWeightedSum, 1, 1)
	require.NoError(t, err)
	r := NewRanker(s, nil)

	excluded := screen.CompoundScore{Compound: "cmpd-x", Excluded: true, Reason: "all cells noise"}
	ranked, err := r.Rank([]screen.CompoundScore{
		score("cmpd-b", 1, 1),
		excluded,
		score("cmpd-a", 0.2, 0.2),
	})
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "cmpd-x", string(ranked[2].Compound))
	assert.True(t, ranked[2].Excluded)
	assert.Zero(t, ranked[2].Rank)
}

func TestRankAllExcluded(t *testing.T) {
	s, err := NewStrategy(StrategyWeightedSum, 1, 1)
	require.NoError(t, err)
	r := NewRanker(s, nil)

	_, err = r.Rank([]screen.CompoundScore{
		{Compound: "cmpd-x", Excluded: true, Reason: "too few cells"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoScorableCompounds))
}

func TestNewStrategyUnknown(t *testing.T) {
	_, err := NewStrategy("lexicographic", 1, 1)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownRankStrategy))
}

func TestNewStrategyRejectsZeroWeights(t *testing.T) {
	_, err := NewStrategy(StrategyWeightedSum, 0, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestInactiveCompoundNearTop(t *testing.T) {
	// A compound indistinguishable from control on both signature sets
	// scores near zero on both axes and surfaces at the top.
	s, err := NewStrategy(StrategyWeightedSum, 1, 1)
	require.NoError(t, err)
	r := NewRanker(s, nil)

	ranked, err := r.Rank([]screen.CompoundScore{
		score("active-1", 4.2, 0.3),
		score("quiet", 0.02, 0.03),
		score("active-2", 1.8, 2.2),
	})
	require.NoError(t, err)
	assert.Equal(t, "quiet", compounds(ranked)[0])
	assert.Equal(t, 1, ranked[0].Rank)
}
