package signature

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

func defaultParams() Params {
	return Params{Alpha: 0.05, Weighting: WeightingTail, MinSamples: 2}
}

// oneFeatureTable builds a single-feature table from raw values.
func oneFeatureTable(t *testing.T, name string, values []float64) *profile.Table {
	t.Helper()
	features := make([][]float64, len(values))
	meta := make([][]string, len(values))
	for i, v := range values {
		features[i] = []float64{v}
		meta[i] = []string{}
	}
	tbl, err := profile.NewTable(nil, []string{name}, meta, features)
	require.NoError(t, err)
	return tbl
}

func gaussian(rng *rand.Rand, n int, mean, sd float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + sd*rng.NormFloat64()
	}
	return out
}

func TestPartitionIdenticalDistributionsGoOff(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ref := oneFeatureTable(t, "Nuclei_Area", gaussian(rng, 200, 10, 2))
	ctl := oneFeatureTable(t, "Nuclei_Area", gaussian(rng, 200, 10, 2))

	sig, err := NewPartitioner(logging.NewNopLogger()).Partition(context.Background(), ref, ctl, defaultParams())
	require.NoError(t, err)

	assert.Empty(t, sig.On)
	assert.Equal(t, []string{"Nuclei_Area"}, sig.Off)
	assert.Greater(t, sig.Stats["Nuclei_Area"].PValue, 0.05)
}

func TestPartitionShiftedDistributionGoesOn(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ref := oneFeatureTable(t, "Cells_Intensity", gaussian(rng, 200, 10, 2))
	ctl := oneFeatureTable(t, "Cells_Intensity", gaussian(rng, 200, 20, 2)) // 5 sd shift

	sig, err := NewPartitioner(nil).Partition(context.Background(), ref, ctl, defaultParams())
	require.NoError(t, err)

	assert.Equal(t, []string{"Cells_Intensity"}, sig.On)
	assert.Empty(t, sig.Off)
	st := sig.Stats["Cells_Intensity"]
	assert.Less(t, st.PValue, 0.05)
	assert.Greater(t, st.KSStat, 0.8)
}

func TestPartitionAlphaBoundaryIsOff(t *testing.T) {
	// A p-value exactly equal to alpha must classify the feature as off.
	rng := rand.New(rand.NewSource(11))
	ref := oneFeatureTable(t, "f", gaussian(rng, 80, 0, 1))
	ctl := oneFeatureTable(t, "f", gaussian(rng, 80, 0.4, 1))

	p := NewPartitioner(nil)
	sig, err := p.Partition(context.Background(), ref, ctl, defaultParams())
	require.NoError(t, err)
	observed := sig.Stats["f"].PValue

	boundary := defaultParams()
	boundary.Alpha = observed
	sig, err = p.Partition(context.Background(), ref, ctl, boundary)
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, sig.Off)
	assert.Empty(t, sig.On)
}

func TestPartitionZeroVarianceIsDegenerate(t *testing.T) {
	ref := oneFeatureTable(t, "f", []float64{3, 3, 3, 3})
	rng := rand.New(rand.NewSource(1))
	ctl := oneFeatureTable(t, "f", gaussian(rng, 4, 0, 1))

	_, err := NewPartitioner(nil).Partition(context.Background(), ref, ctl, defaultParams())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDegenerateFeature))
	assert.True(t, errors.IsDegenerate(err))
}

func TestPartitionInsufficientSamples(t *testing.T) {
	ref := oneFeatureTable(t, "f", []float64{1, math.NaN(), math.NaN(), math.NaN()})
	ctl := oneFeatureTable(t, "f", []float64{1, 2, 3, 4})

	_, err := NewPartitioner(nil).Partition(context.Background(), ref, ctl, defaultParams())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientSamples))
}

func TestPartitionFeatureSpaceMismatch(t *testing.T) {
	ref := oneFeatureTable(t, "a", []float64{1, 2, 3})
	ctl := oneFeatureTable(t, "b", []float64{1, 2, 3})

	_, err := NewPartitioner(nil).Partition(context.Background(), ref, ctl, defaultParams())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureSpaceMismatch))
}

func TestPartitionUnknownWeighting(t *testing.T) {
	ref := oneFeatureTable(t, "f", []float64{1, 2, 3})
	ctl := oneFeatureTable(t, "f", []float64{1, 2, 3})

	params := defaultParams()
	params.Weighting = "quantile"
	_, err := NewPartitioner(nil).Partition(context.Background(), ref, ctl, params)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownWeighting))
}

func TestPartitionDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ref := oneFeatureTable(t, "f", gaussian(rng, 100, 5, 1))
	ctl := oneFeatureTable(t, "f", gaussian(rng, 100, 5.5, 1))

	p := NewPartitioner(nil)
	first, err := p.Partition(context.Background(), ref, ctl, defaultParams())
	require.NoError(t, err)
	second, err := p.Partition(context.Background(), ref, ctl, defaultParams())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestKolmogorovQBounds(t *testing.T) {
	assert.Equal(t, 1.0, kolmogorovQ(0))
	assert.InDelta(t, 0.2700, kolmogorovQ(1.0), 1e-3)
	assert.Less(t, kolmogorovQ(2.0), 0.001)
}

func TestKSDistanceDisjointSamplesIsOne(t *testing.T) {
	uniform := func(float64) float64 { return 1 }
	_, ca, cb := weightedCDFs([]float64{1, 2, 3}, []float64{10, 11, 12}, uniform)
	assert.InDelta(t, 1.0, ksDistance(ca, cb), 1e-12)
}

func TestTailWeightingUpweightsExtremes(t *testing.T) {
	f, err := weightFunc(WeightingTail)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, f(0), 1e-12)
	assert.InDelta(t, 1.0, f(0.5), 1e-12)
	assert.InDelta(t, 2.0, f(1), 1e-12)
}
