// Package signature splits morphological features into "on" and "off"
// signature sets by comparing reference and control cell populations with
// a weighted two-sample distribution test.
package signature

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// Weighting names an observation-weighting scheme for the distribution test.
type Weighting string

const (
	// WeightingUniform gives every observation the same weight.
	WeightingUniform Weighting = "uniform"
	// WeightingTail up-weights observations in the pooled distribution
	// tails, where state-specific effects concentrate.
	WeightingTail Weighting = "tail"
)

// Params controls the signature partition.
type Params struct {
	// Alpha is the significance threshold. A feature with p < Alpha joins
	// the on-signature; p >= Alpha (including p == Alpha exactly) joins
	// the off-signature.
	Alpha float64

	Weighting Weighting

	// MinSamples is the minimum number of non-missing observations
	// required in each group, at least 2.
	MinSamples int
}

// FeatureStat is the per-feature test result.
type FeatureStat struct {
	Feature     string  `json:"feature"`
	KSStat      float64 `json:"ks_stat"`
	PValue      float64 `json:"p_value"`
	OnSignature bool    `json:"on_signature"`
}

// Signature is the partition of the feature space.
type Signature struct {
	On    []string               `json:"on"`
	Off   []string               `json:"off"`
	Stats map[string]FeatureStat `json:"stats"`
}

// Partitioner computes signatures from paired cell populations.
type Partitioner struct {
	logger logging.Logger
}

// NewPartitioner creates a Partitioner.
func NewPartitioner(logger logging.Logger) *Partitioner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Partitioner{logger: logger}
}

// Partition tests every feature column of reference against control and
// assigns it to the on or off signature. Both tables must share the exact
// same feature space. Features are processed independently and in parallel.
// A degenerate feature (zero variance or too few observations in either
// group) fails the partition with a typed error.
func (p *Partitioner) Partition(ctx context.Context, reference, control *profile.Table, params Params) (*Signature, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if !reference.SameFeatureSpace(control) {
		return nil, errors.New(errors.ErrCodeFeatureSpaceMismatch,
			"reference and control tables have different feature columns")
	}

	weightFor, err := weightFunc(params.Weighting)
	if err != nil {
		return nil, err
	}

	features := reference.FeatureColumns()
	stats := make([]FeatureStat, len(features))

	g, gctx := errgroup.WithContext(ctx)
	for i, feature := range features {
		i, feature := i, feature
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			refCol, err := reference.FeatureColumn(feature)
			if err != nil {
				return err
			}
			ctlCol, err := control.FeatureColumn(feature)
			if err != nil {
				return err
			}
			st, err := p.testFeature(feature, refCol, ctlCol, params, weightFor)
			if err != nil {
				return err
			}
			stats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sig := &Signature{Stats: make(map[string]FeatureStat, len(stats))}
	for _, st := range stats {
		sig.Stats[st.Feature] = st
		if st.OnSignature {
			sig.On = append(sig.On, st.Feature)
		} else {
			sig.Off = append(sig.Off, st.Feature)
		}
	}
	sort.Strings(sig.On)
	sort.Strings(sig.Off)

	p.logger.Info("signature partition complete",
		logging.Int("on", len(sig.On)),
		logging.Int("off", len(sig.Off)),
		logging.Float64("alpha", params.Alpha),
	)
	return sig, nil
}

func (p *Partitioner) testFeature(feature string, ref, ctl []float64, params Params, weightFor func(float64) float64) (FeatureStat, error) {
	ref = dropMissing(ref)
	ctl = dropMissing(ctl)

	if len(ref) < params.MinSamples || len(ctl) < params.MinSamples {
		return FeatureStat{}, errors.Newf(errors.ErrCodeInsufficientSamples,
			"feature %q has %d reference and %d control observations, need %d",
			feature, len(ref), len(ctl), params.MinSamples)
	}
	if isConstant(ref) || isConstant(ctl) {
		return FeatureStat{}, errors.Newf(errors.ErrCodeDegenerateFeature,
			"feature %q has zero variance in one group", feature)
	}

	_, cdfRef, cdfCtl := weightedCDFs(ref, ctl, weightFor)
	ks := ksDistance(cdfRef, cdfCtl)
	pv := ksPValue(ks, len(ref), len(ctl))
	if math.IsNaN(pv) {
		return FeatureStat{}, errors.Newf(errors.ErrCodeDegenerateFeature,
			"feature %q produced an undefined test statistic", feature)
	}

	return FeatureStat{
		Feature:     feature,
		KSStat:      ks,
		PValue:      pv,
		OnSignature: pv < params.Alpha,
	}, nil
}

func validateParams(params Params) error {
	if params.Alpha < 0 || params.Alpha > 1 {
		return errors.Newf(errors.ErrCodeValidation, "alpha must be in [0,1], got %v", params.Alpha)
	}
	if params.MinSamples < 2 {
		return errors.Newf(errors.ErrCodeValidation, "min samples must be at least 2, got %d", params.MinSamples)
	}
	return nil
}

// weightFunc maps a pooled-rank position u in [0,1] to an observation
// weight. Tail weighting grows linearly from 1 at the median to 2 at
// either extreme.
func weightFunc(w Weighting) (func(u float64) float64, error) {
	switch w {
	case WeightingUniform, "":
		return func(float64) float64 { return 1 }, nil
	case WeightingTail:
		return func(u float64) float64 { return 1 + math.Abs(2*u-1) }, nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownWeighting, "unknown weighting %q", w)
	}
}

func dropMissing(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

func isConstant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
