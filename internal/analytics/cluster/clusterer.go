// Package cluster discovers phenotypic sub-populations inside a single
// cell population by reducing profiles to a few principal components and
// density-clustering the projection. Cells in no dense region are noise.
package cluster

import (
	"context"
	"math"
	"sort"

	mstats "github.com/montanaflynn/stats"

	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// Params controls projection and density clustering.
type Params struct {
	// ReducedDims is the number of principal components kept before
	// clustering.
	ReducedDims int
	// Epsilon is the DBSCAN neighborhood radius in projected space.
	Epsilon float64
	// MinSamples is the DBSCAN density threshold, neighborhood inclusive.
	MinSamples int
	// Seed fixes the power-iteration start vectors.
	Seed int64
}

// Validate checks parameter bounds.
func (p Params) Validate() error {
	if p.ReducedDims < 1 {
		return errors.Newf(errors.ErrCodeClusterParams, "reduced dims must be at least 1, got %d", p.ReducedDims)
	}
	if p.Epsilon <= 0 {
		return errors.Newf(errors.ErrCodeClusterParams, "epsilon must be positive, got %v", p.Epsilon)
	}
	if p.MinSamples < 1 {
		return errors.Newf(errors.ErrCodeClusterParams, "min samples must be at least 1, got %d", p.MinSamples)
	}
	return nil
}

// Assignment is the clustering result for one population. Labels is
// parallel to the population's rows; Clusters maps each non-noise label to
// its member row indices, in ascending row order.
type Assignment struct {
	Population common.PopulationID
	Labels     []int
	Clusters   map[int][]int
	Noise      int
}

// Clusterer assigns every cell of a population to a sub-population.
type Clusterer struct {
	logger logging.Logger
}

// NewClusterer creates a Clusterer.
func NewClusterer(logger logging.Logger) *Clusterer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Clusterer{logger: logger}
}

// Cluster projects the population's feature matrix and density-clusters
// the projection. Every row receives exactly one label. A population where
// every cell lands in noise returns ErrCodeNoClustersFound.
func (c *Clusterer) Cluster(ctx context.Context, pop profile.Population, params Params) (*Assignment, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := pop.Cells.NumRows()
	if n == 0 {
		return nil, errors.Newf(errors.ErrCodeNoClustersFound, "population %q has no cells", pop.ID)
	}

	dims := params.ReducedDims
	if d := pop.Cells.NumFeatures(); dims > d {
		dims = d
	}

	data := imputeColumnMeans(pop.Cells.FeatureMatrix())
	projected, err := pcaProject(data, dims, params.Seed)
	if err != nil {
		return nil, err
	}

	labels := dbscan(projected, params.Epsilon, params.MinSamples)

	clusters := make(map[int][]int)
	noise := 0
	for row, label := range labels {
		if label == NoiseLabel {
			noise++
			continue
		}
		clusters[label] = append(clusters[label], row)
	}
	if len(clusters) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoClustersFound,
			"population %q: all %d cells classified as noise", pop.ID, n)
	}

	c.logger.Debug("population clustered",
		logging.String("population", string(pop.ID)),
		logging.Int("cells", n),
		logging.Int("clusters", len(clusters)),
		logging.Int("noise", noise),
	)
	return &Assignment{
		Population: pop.ID,
		Labels:     labels,
		Clusters:   clusters,
		Noise:      noise,
	}, nil
}

// SortedLabels returns the non-noise labels in ascending order.
func (a *Assignment) SortedLabels() []int {
	out := make([]int, 0, len(a.Clusters))
	for label := range a.Clusters {
		out = append(out, label)
	}
	sort.Ints(out)
	return out
}

// imputeColumnMeans copies the matrix, replacing missing entries with the
// column mean over present values. All-missing columns impute to zero.
func imputeColumnMeans(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return nil
	}
	n, d := len(data), len(data[0])
	means := make([]float64, d)
	for j := 0; j < d; j++ {
		present := make([]float64, 0, n)
		for i := range data {
			if v := data[i][j]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				present = append(present, v)
			}
		}
		if len(present) > 0 {
			means[j], _ = mstats.Mean(present)
		}
	}
	out := make([][]float64, n)
	for i, row := range data {
		r := make([]float64, d)
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				r[j] = means[j]
			} else {
				r[j] = v
			}
		}
		out[i] = r
	}
	return out
}
