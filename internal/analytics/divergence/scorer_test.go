package divergence

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MorphoScreen/internal/analytics/cluster"
	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

func defaultScoreParams() Params {
	return Params{HistogramBins: 32, SmoothingFloor: 1e-9, Aggregation: AggregationSum}
}

func tableFrom(t *testing.T, cols []string, rows [][]float64) *profile.Table {
	t.Helper()
	meta := make([][]string, len(rows))
	for i := range meta {
		meta[i] = []string{}
	}
	tbl, err := profile.NewTable(nil, cols, meta, rows)
	require.NoError(t, err)
	return tbl
}

func gaussianRows(rng *rand.Rand, n int, means []float64) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, len(means))
		for j, m := range means {
			row[j] = m + rng.NormFloat64()
		}
		rows[i] = row
	}
	return rows
}

func allRows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestKLSelfDivergenceNearZero(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sample := make([]float64, 300)
	for i := range sample {
		sample[i] = rng.NormFloat64()
	}
	kl, err := klDivergence(sample, sample, 32, 1e-9)
	require.NoError(t, err)
	assert.InDelta(t, 0, kl, 1e-9)
}

func TestKLNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	a := make([]float64, 200)
	b := make([]float64, 200)
	for i := range a {
		a[i] = rng.NormFloat64()
		b[i] = 2 + rng.NormFloat64()
	}
	kl, err := klDivergence(a, b, 32, 1e-9)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, kl, 0.0)
	assert.Greater(t, kl, 0.5)
}

func TestKLFiniteOnDisjointSupport(t *testing.T) {
	// Without smoothing the control assigns zero mass where the
	// treatment lives and the divergence is infinite.
	a := []float64{0, 0.1, 0.2, 0.3}
	b := []float64{10, 10.1, 10.2, 10.3}
	kl, err := klDivergence(a, b, 16, 1e-9)
	require.NoError(t, err)
	assert.False(t, math.IsInf(kl, 0))
	assert.Greater(t, kl, 1.0)
}

func TestKLEmptySample(t *testing.T) {
	_, err := klDivergence(nil, []float64{1, 2}, 16, 1e-9)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDivergenceInput))
}

func TestScoreMaxOverControls(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	cols := []string{"f0"}

	treatment := tableFrom(t, cols, gaussianRows(rng, 150, []float64{5}))
	// Two control sub-states: one matching the treatment, one far away.
	controlRows := append(gaussianRows(rng, 150, []float64{5}), gaussianRows(rng, 150, []float64{-5})...)
	control := tableFrom(t, cols, controlRows)

	tClusters := []cluster.RetainedCluster{{Population: "cmpd", Label: 0, Rows: allRows(150)}}
	cClusters := []cluster.RetainedCluster{
		{Population: "control", Label: 0, Rows: allRows(150)},
		{Population: "control", Label: 1, Rows: offsetRows(150, 150)},
	}

	res, err := NewScorer(nil).Score(context.Background(), treatment, tClusters, control, cClusters, cols, defaultScoreParams())
	require.NoError(t, err)

	// The matching control cluster is close, but the max keeps the
	// distance to the far one.
	require.Len(t, res.PerCluster, 1)
	assert.Equal(t, 1, res.PerCluster[0].WorstControl)
	assert.Greater(t, res.Score, 1.0)
}

func TestScoreIndistinguishableClustersNearZero(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	cols := []string{"f0", "f1"}

	treatment := tableFrom(t, cols, gaussianRows(rng, 400, []float64{0, 0}))
	control := tableFrom(t, cols, gaussianRows(rng, 400, []float64{0, 0}))

	tClusters := []cluster.RetainedCluster{{Label: 0, Rows: allRows(400)}}
	cClusters := []cluster.RetainedCluster{{Label: 0, Rows: allRows(400)}}

	res, err := NewScorer(nil).Score(context.Background(), treatment, tClusters, control, cClusters, cols, defaultScoreParams())
	require.NoError(t, err)
	assert.Less(t, res.Score, 0.5)
}

func TestScoreEmptySubsetIsZero(t *testing.T) {
	cols := []string{"f0"}
	tbl := tableFrom(t, cols, [][]float64{{1}, {2}, {3}})
	clusters := []cluster.RetainedCluster{{Label: 0, Rows: allRows(3)}}

	res, err := NewScorer(nil).Score(context.Background(), tbl, clusters, tbl, clusters, nil, defaultScoreParams())
	require.NoError(t, err)
	assert.Zero(t, res.Score)
}

func TestScoreNoControlClusters(t *testing.T) {
	cols := []string{"f0"}
	tbl := tableFrom(t, cols, [][]float64{{1}, {2}})
	clusters := []cluster.RetainedCluster{{Label: 0, Rows: allRows(2)}}

	_, err := NewScorer(nil).Score(context.Background(), tbl, clusters, tbl, nil, cols, defaultScoreParams())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoControlClusters))
	assert.True(t, errors.IsDegenerate(err))
}

func TestScoreAggregations(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	cols := []string{"f0"}

	// Two treatment clusters at different distances from one control.
	tRows := append(gaussianRows(rng, 100, []float64{3}), gaussianRows(rng, 100, []float64{8})...)
	treatment := tableFrom(t, cols, tRows)
	control := tableFrom(t, cols, gaussianRows(rng, 100, []float64{0}))

	tClusters := []cluster.RetainedCluster{
		{Label: 0, Rows: allRows(100)},
		{Label: 1, Rows: offsetRows(100, 100)},
	}
	cClusters := []cluster.RetainedCluster{{Label: 0, Rows: allRows(100)}}

	scores := map[Aggregation]float64{}
	for _, agg := range []Aggregation{AggregationSum, AggregationMean, AggregationMax} {
		params := defaultScoreParams()
		params.Aggregation = agg
		res, err := NewScorer(nil).Score(context.Background(), treatment, tClusters, control, cClusters, cols, params)
		require.NoError(t, err)
		scores[agg] = res.Score
	}

	assert.InDelta(t, scores[AggregationSum]/2, scores[AggregationMean], 1e-9)
	assert.Less(t, scores[AggregationMax], scores[AggregationSum])
	assert.GreaterOrEqual(t, scores[AggregationSum], scores[AggregationMax])
}

func TestScoreParamsValidation(t *testing.T) {
	cols := []string{"f0"}
	tbl := tableFrom(t, cols, [][]float64{{1}, {2}})
	clusters := []cluster.RetainedCluster{{Label: 0, Rows: allRows(2)}}

	bad := []Params{
		{HistogramBins: 1, SmoothingFloor: 1e-9, Aggregation: AggregationSum},
		{HistogramBins: 32, SmoothingFloor: 0, Aggregation: AggregationSum},
		{HistogramBins: 32, SmoothingFloor: 1e-9, Aggregation: "median"},
	}
	for _, p := range bad {
		_, err := NewScorer(nil).Score(context.Background(), tbl, clusters, tbl, clusters, cols, p)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	}
}

func offsetRows(start, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = start + i
	}
	return out
}
