package screening

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	types "github.com/turtacn/MorphoScreen/pkg/types/common"
)

func pipelineParams() config.PipelineConfig {
	return config.PipelineConfig{
		Alpha:              0.05,
		Weighting:          "tail",
		MinTestSamples:     2,
		ReducedDims:        2,
		Epsilon:            1.0,
		MinSamples:         5,
		MinClusterSize:     20,
		HistogramBins:      32,
		SmoothingFloor:     1e-9,
		ClusterAggregation: "sum",
		RankStrategy:       "weighted_sum",
		OnWeight:           1,
		OffWeight:          1,
		Seed:               42,
	}
}

// screenTable builds a two-feature screen: "disease" reference shifted on
// f0 against the "healthy" control, one compound that restores the healthy
// state, one that does not, and one with too few cells to cluster.
func screenTable(t *testing.T) *profile.Table {
	t.Helper()
	rng := rand.New(rand.NewSource(17))

	var meta [][]string
	var features [][]float64
	addBlob := func(group, compound string, n int, f0, f1 float64) {
		for i := 0; i < n; i++ {
			meta = append(meta, []string{group, compound})
			features = append(features, []float64{
				f0 + rng.NormFloat64(),
				f1 + rng.NormFloat64(),
			})
		}
	}

	addBlob("disease", "", 200, 5, 0)
	addBlob("healthy", "", 200, 0, 0)
	addBlob("treatment", "cmpd-rescue", 200, 0, 0)
	addBlob("treatment", "cmpd-inert", 200, 5, 0)
	addBlob("treatment", "cmpd-sparse", 4, 0, 0)

	tbl, err := profile.NewTable([]string{"group", "compound"}, []string{"f0", "f1"}, meta, features)
	require.NoError(t, err)
	return tbl
}

func request(t *testing.T) Request {
	return Request{
		Profile:        screenTable(t),
		GroupColumn:    "group",
		CompoundColumn: "compound",
		ReferenceGroup: "disease",
		ControlGroup:   "healthy",
		Params:         pipelineParams(),
	}
}

func TestRunEndToEnd(t *testing.T) {
	svc := NewService(nil, WithConcurrency(2))
	res, err := svc.Run(context.Background(), request(t))
	require.NoError(t, err)

	// f0 separates the states, f1 does not.
	assert.Equal(t, []string{"f0"}, res.Signature.On)
	assert.Equal(t, []string{"f1"}, res.Signature.Off)

	require.Len(t, res.Scores, 3)
	assert.Equal(t, types.CompoundID("cmpd-rescue"), res.Scores[0].Compound)
	assert.Equal(t, 1, res.Scores[0].Rank)
	assert.Equal(t, types.CompoundID("cmpd-inert"), res.Scores[1].Compound)
	assert.Greater(t, res.Scores[1].OnScore, res.Scores[0].OnScore)

	// The sparse compound cannot cluster and is excluded, not fatal.
	assert.True(t, res.Scores[2].Excluded)
	assert.Equal(t, types.CompoundID("cmpd-sparse"), res.Scores[2].Compound)
	reason, ok := res.Excluded["cmpd-sparse"]
	assert.True(t, ok)
	assert.NotEmpty(t, reason)
}

func TestRunIsDeterministic(t *testing.T) {
	svc := NewService(nil)
	req := request(t)

	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Signature, second.Signature)
	assert.Equal(t, first.Scores, second.Scores)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	req := request(t)
	req.Params.Alpha = 1.5

	_, err := NewService(nil).Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestRunUnknownGroup(t *testing.T) {
	req := request(t)
	req.ControlGroup = "mock"

	_, err := NewService(nil).Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeGroupNotFound))
}

func TestRunUnknownRankStrategy(t *testing.T) {
	req := request(t)
	req.Params.RankStrategy = "lexicographic"

	_, err := NewService(nil).Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestRunDegenerateControlIsFatal(t *testing.T) {
	req := request(t)
	req.Params.Epsilon = 0.001 // nothing can form a cluster

	_, err := NewService(nil).Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoControlClusters))
}
