package cluster

import (
	"math"

	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// RefineParams controls the minimum-size filter applied after clustering.
// A cluster survives when its cell count reaches MinClusterSize and, if
// MinClusterFrac is positive, at least that fraction of the population.
type RefineParams struct {
	MinClusterSize int
	MinClusterFrac float64
}

// Validate checks parameter bounds.
func (p RefineParams) Validate() error {
	if p.MinClusterSize < 1 {
		return errors.Newf(errors.ErrCodeClusterParams, "min cluster size must be at least 1, got %d", p.MinClusterSize)
	}
	if p.MinClusterFrac < 0 || p.MinClusterFrac >= 1 {
		return errors.Newf(errors.ErrCodeClusterParams, "min cluster fraction must be in [0,1), got %v", p.MinClusterFrac)
	}
	return nil
}

// RetainedCluster is one cluster that survived refinement. Rows index into
// the population the assignment was computed from.
type RetainedCluster struct {
	Population common.PopulationID
	Label      int
	Rows       []int
}

// Refine drops clusters below the size thresholds. Noise is never
// retained. When no cluster survives it returns ErrCodeEmptyRetainedSet
// so the caller can exclude the compound instead of scoring nothing.
func Refine(a *Assignment, total int, params RefineParams) ([]RetainedCluster, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	minSize := params.MinClusterSize
	if params.MinClusterFrac > 0 {
		// A cluster holding 1.05 cells' worth of the fraction needs 2 cells.
		if byFrac := int(math.Ceil(params.MinClusterFrac * float64(total))); byFrac > minSize {
			minSize = byFrac
		}
	}

	var retained []RetainedCluster
	for _, label := range a.SortedLabels() {
		rows := a.Clusters[label]
		if len(rows) < minSize {
			continue
		}
		retained = append(retained, RetainedCluster{
			Population: a.Population,
			Label:      label,
			Rows:       rows,
		})
	}
	if len(retained) == 0 {
		return nil, errors.Newf(errors.ErrCodeEmptyRetainedSet,
			"population %q: no cluster reaches %d cells", a.Population, minSize)
	}
	return retained, nil
}
