package divergence

import (
	"context"
	"math"

	"github.com/turtacn/MorphoScreen/internal/analytics/cluster"
	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// Aggregation names the rule that folds per-cluster maxima into one scalar
// per compound.
type Aggregation string

const (
	AggregationSum  Aggregation = "sum"
	AggregationMean Aggregation = "mean"
	AggregationMax  Aggregation = "max"
)

// Params controls divergence scoring.
type Params struct {
	// HistogramBins is the number of equal-width bins per feature.
	HistogramBins int
	// SmoothingFloor is the pseudo-count added to every bin.
	SmoothingFloor float64
	Aggregation    Aggregation
}

// Validate checks parameter bounds.
func (p Params) Validate() error {
	if p.HistogramBins < 2 {
		return errors.Newf(errors.ErrCodeValidation, "histogram bins must be at least 2, got %d", p.HistogramBins)
	}
	if p.SmoothingFloor <= 0 {
		return errors.Newf(errors.ErrCodeValidation, "smoothing floor must be positive, got %v", p.SmoothingFloor)
	}
	switch p.Aggregation {
	case AggregationSum, AggregationMean, AggregationMax:
		return nil
	default:
		return errors.Newf(errors.ErrCodeValidation, "unknown aggregation %q", p.Aggregation)
	}
}

// ClusterScore is the worst-case distance of one treatment cluster to the
// control sub-states.
type ClusterScore struct {
	Label         int     `json:"label"`
	MaxDivergence float64 `json:"max_divergence"`
	WorstControl  int     `json:"worst_control"`
}

// Result is the scalar score for one compound under one signature subset.
type Result struct {
	Score       float64        `json:"score"`
	PerCluster  []ClusterScore `json:"per_cluster"`
	FeatureUsed int            `json:"features_used"`
}

// Scorer computes compound activity scores.
type Scorer struct {
	logger logging.Logger
}

// NewScorer creates a Scorer.
func NewScorer(logger logging.Logger) *Scorer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Scorer{logger: logger}
}

// Score computes the compound's activity under one signature subset. For
// every treatment cluster it takes the per-feature-averaged divergence
// against each control cluster, keeps the maximum across controls, then
// folds the per-cluster maxima with the configured aggregation. An empty
// subset scores zero; calling with no control clusters is an error.
func (s *Scorer) Score(
	ctx context.Context,
	treatment *profile.Table, treatmentClusters []cluster.RetainedCluster,
	control *profile.Table, controlClusters []cluster.RetainedCluster,
	subset []string,
	params Params,
) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(controlClusters) == 0 {
		return nil, errors.New(errors.ErrCodeNoControlClusters, "no control clusters to score against")
	}
	if len(treatmentClusters) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyRetainedSet, "no treatment clusters to score")
	}
	if len(subset) == 0 {
		return &Result{Score: 0}, nil
	}

	controlCells := make([]*profile.Table, len(controlClusters))
	for i, cc := range controlClusters {
		controlCells[i] = control.SelectRows(cc.Rows)
	}

	result := &Result{FeatureUsed: len(subset)}
	for _, tc := range treatmentClusters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tCells := treatment.SelectRows(tc.Rows)

		maxDiv := math.Inf(-1)
		worst := controlClusters[0].Label
		for i, cCells := range controlCells {
			d, err := s.clusterDivergence(tCells, cCells, subset, params)
			if err != nil {
				return nil, err
			}
			if d > maxDiv {
				maxDiv = d
				worst = controlClusters[i].Label
			}
		}
		result.PerCluster = append(result.PerCluster, ClusterScore{
			Label:         tc.Label,
			MaxDivergence: maxDiv,
			WorstControl:  worst,
		})
	}

	var agg float64
	for i, cs := range result.PerCluster {
		switch params.Aggregation {
		case AggregationMax:
			if i == 0 || cs.MaxDivergence > agg {
				agg = cs.MaxDivergence
			}
		default:
			agg += cs.MaxDivergence
		}
	}
	if params.Aggregation == AggregationMean {
		agg /= float64(len(result.PerCluster))
	}
	result.Score = agg
	return result, nil
}

// clusterDivergence averages the per-feature KL divergence of the
// treatment cells from the control cells over the subset.
func (s *Scorer) clusterDivergence(treatment, control *profile.Table, subset []string, params Params) (float64, error) {
	var sum float64
	for _, feature := range subset {
		p, err := treatment.FeatureColumn(feature)
		if err != nil {
			return 0, err
		}
		q, err := control.FeatureColumn(feature)
		if err != nil {
			return 0, err
		}
		kl, err := klDivergence(p, q, params.HistogramBins, params.SmoothingFloor)
		if err != nil {
			return 0, err
		}
		sum += kl
	}
	return sum / float64(len(subset)), nil
}
