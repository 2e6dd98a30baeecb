// Package screening orchestrates the full prioritization pipeline over a
// profile table: signature partition, per-population clustering and
// refinement, divergence scoring and ranking.
package screening

import (
	"context"
	"time"

	"github.com/turtacn/MorphoScreen/internal/analytics/cluster"
	"github.com/turtacn/MorphoScreen/internal/analytics/common"
	"github.com/turtacn/MorphoScreen/internal/analytics/divergence"
	"github.com/turtacn/MorphoScreen/internal/analytics/ranking"
	"github.com/turtacn/MorphoScreen/internal/analytics/signature"
	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/metrics"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	types "github.com/turtacn/MorphoScreen/pkg/types/common"
)

// Request describes one pipeline execution over an in-memory profile.
type Request struct {
	Profile *profile.Table

	// GroupColumn holds the population group of every row; CompoundColumn
	// identifies the compound applied to treatment rows.
	GroupColumn    string
	CompoundColumn string

	// ReferenceGroup is the unperturbed disease-state population,
	// ControlGroup the healthy-control population. Every other group
	// value marks treatment rows.
	ReferenceGroup string
	ControlGroup   string

	Params config.PipelineConfig
}

// Result is the pipeline output for one run.
type Result struct {
	Signature *signature.Signature
	Scores    []screen.CompoundScore
	Excluded  map[types.CompoundID]string
	Elapsed   time.Duration
}

// Ranking wraps the ordered scores into the terminal artifact.
func (r *Result) Ranking(runID types.ID, strategy string) *screen.Ranking {
	return &screen.Ranking{RunID: runID, Strategy: strategy, Entries: r.Scores}
}

// Service runs screening pipelines.
type Service struct {
	partitioner *signature.Partitioner
	clusterer   *cluster.Clusterer
	scorer      *divergence.Scorer
	logger      logging.Logger
	metrics     *metrics.Metrics
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency bounds the per-compound fan-out.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMetrics attaches a metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a screening Service.
func NewService(logger logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Service{
		partitioner: signature.NewPartitioner(logger.Named("signature")),
		clusterer:   cluster.NewClusterer(logger.Named("cluster")),
		scorer:      divergence.NewScorer(logger.Named("divergence")),
		logger:      logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run executes the pipeline. Configuration errors abort before any
// computation. Degenerate-input failures of a single compound exclude
// that compound with a recorded reason while the rest proceed; degenerate
// reference or control populations abort the run since nothing can be
// scored without them.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := req.Params.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid pipeline parameters")
	}
	strategy, err := ranking.NewStrategy(req.Params.RankStrategy, req.Params.OnWeight, req.Params.OffWeight)
	if err != nil {
		return nil, err
	}

	reference, err := s.group(req, req.ReferenceGroup)
	if err != nil {
		return nil, err
	}
	control, err := s.group(req, req.ControlGroup)
	if err != nil {
		return nil, err
	}

	sig, err := s.partition(ctx, reference, control, req.Params)
	if err != nil {
		return nil, err
	}
	if len(sig.On) == 0 && len(sig.Off) == 0 {
		return nil, errors.New(errors.ErrCodeEmptySignature, "no feature fell into either signature set")
	}

	controlClusters, err := s.clusterAndRefine(ctx, profile.Population{ID: "control", Cells: control}, req.Params)
	if err != nil {
		if errors.IsDegenerate(err) {
			return nil, errors.Wrap(err, errors.ErrCodeNoControlClusters,
				"control population yielded no retained clusters")
		}
		return nil, err
	}

	populations, err := s.treatmentPopulations(req)
	if err != nil {
		return nil, err
	}

	scores, excluded, err := s.scoreCompounds(ctx, req, sig, control, controlClusters, populations)
	if err != nil {
		return nil, err
	}

	ranked, err := ranking.NewRanker(strategy, s.logger.Named("ranking")).Rank(scores)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	s.logger.Info("screening run complete",
		logging.Int("compounds", len(populations)),
		logging.Int("excluded", len(excluded)),
		logging.Duration("elapsed", elapsed),
	)
	return &Result{
		Signature: sig,
		Scores:    ranked,
		Excluded:  excluded,
		Elapsed:   elapsed,
	}, nil
}

func (s *Service) group(req Request, value string) (*profile.Table, error) {
	sub, err := req.Profile.SelectByMeta(req.GroupColumn, value)
	if err != nil {
		return nil, err
	}
	if sub.NumRows() == 0 {
		return nil, errors.Newf(errors.ErrCodeGroupNotFound,
			"group %q has no rows in column %q", value, req.GroupColumn)
	}
	return sub, nil
}

func (s *Service) partition(ctx context.Context, reference, control *profile.Table, p config.PipelineConfig) (*signature.Signature, error) {
	stageStart := time.Now()
	sig, err := s.partitioner.Partition(ctx, reference, control, signature.Params{
		Alpha:      p.Alpha,
		Weighting:  signature.Weighting(p.Weighting),
		MinSamples: p.MinTestSamples,
	})
	s.observeStage("partition", stageStart, err)
	return sig, err
}

func (s *Service) clusterAndRefine(ctx context.Context, pop profile.Population, p config.PipelineConfig) ([]cluster.RetainedCluster, error) {
	assignment, err := s.clusterer.Cluster(ctx, pop, cluster.Params{
		ReducedDims: p.ReducedDims,
		Epsilon:     p.Epsilon,
		MinSamples:  p.MinSamples,
		Seed:        p.Seed,
	})
	if err != nil {
		return nil, err
	}
	return cluster.Refine(assignment, pop.Cells.NumRows(), cluster.RefineParams{
		MinClusterSize: p.MinClusterSize,
		MinClusterFrac: p.MinClusterFrac,
	})
}

// treatmentPopulations splits the treatment rows by compound, preserving
// first-appearance order.
func (s *Service) treatmentPopulations(req Request) ([]profile.Population, error) {
	n := req.Profile.NumRows()
	rowsByCompound := make(map[string][]int)
	var order []string
	for i := 0; i < n; i++ {
		group, err := req.Profile.Meta(i, req.GroupColumn)
		if err != nil {
			return nil, err
		}
		if group == req.ReferenceGroup || group == req.ControlGroup {
			continue
		}
		compound, err := req.Profile.Meta(i, req.CompoundColumn)
		if err != nil {
			return nil, err
		}
		if compound == "" {
			continue
		}
		if _, seen := rowsByCompound[compound]; !seen {
			order = append(order, compound)
		}
		rowsByCompound[compound] = append(rowsByCompound[compound], i)
	}

	pops := make([]profile.Population, 0, len(order))
	for _, compound := range order {
		pops = append(pops, profile.Population{
			ID:    types.PopulationID(compound),
			Cells: req.Profile.SelectRows(rowsByCompound[compound]),
		})
	}
	return pops, nil
}

func (s *Service) scoreCompounds(
	ctx context.Context,
	req Request,
	sig *signature.Signature,
	control *profile.Table,
	controlClusters []cluster.RetainedCluster,
	populations []profile.Population,
) ([]screen.CompoundScore, map[types.CompoundID]string, error) {
	stageStart := time.Now()
	pool := common.NewBatchProcessor[profile.Population, screen.CompoundScore](
		common.WithMaxConcurrency(s.concurrency),
		common.WithBatchLogger(s.logger.Named("batch")),
	)

	batch, err := pool.Process(ctx, populations, func(ctx context.Context, pop profile.Population) (screen.CompoundScore, error) {
		return s.scoreCompound(ctx, req, sig, control, controlClusters, pop)
	})
	if err != nil {
		s.observeStage("score", stageStart, err)
		return nil, nil, err
	}

	scores := make([]screen.CompoundScore, 0, len(batch.Results))
	excluded := make(map[types.CompoundID]string)
	for _, item := range batch.Results {
		if item.Error == nil {
			scores = append(scores, item.Result)
			continue
		}
		if !errors.IsDegenerate(item.Error) {
			s.observeStage("score", stageStart, item.Error)
			return nil, nil, item.Error
		}
		compound := types.CompoundID(populations[item.Index].ID)
		reason := errors.DefaultMessageForCode(errors.GetCode(item.Error))
		if app := errors.AsAppError(item.Error); app != nil && app.Message != "" {
			reason = app.Message
		}
		excluded[compound] = reason
		scores = append(scores, screen.CompoundScore{
			Compound: compound,
			Excluded: true,
			Reason:   reason,
		})
		s.metricExcluded(string(errors.GetCode(item.Error)))
		s.logger.Warn("compound excluded",
			logging.String("compound", string(compound)),
			logging.String("reason", reason),
		)
	}
	s.observeStage("score", stageStart, nil)
	return scores, excluded, nil
}

func (s *Service) scoreCompound(
	ctx context.Context,
	req Request,
	sig *signature.Signature,
	control *profile.Table,
	controlClusters []cluster.RetainedCluster,
	pop profile.Population,
) (screen.CompoundScore, error) {
	treatmentClusters, err := s.clusterAndRefine(ctx, pop, req.Params)
	if err != nil {
		return screen.CompoundScore{}, err
	}

	params := divergence.Params{
		HistogramBins:  req.Params.HistogramBins,
		SmoothingFloor: req.Params.SmoothingFloor,
		Aggregation:    divergence.Aggregation(req.Params.ClusterAggregation),
	}
	on, err := s.scorer.Score(ctx, pop.Cells, treatmentClusters, control, controlClusters, sig.On, params)
	if err != nil {
		return screen.CompoundScore{}, err
	}
	off, err := s.scorer.Score(ctx, pop.Cells, treatmentClusters, control, controlClusters, sig.Off, params)
	if err != nil {
		return screen.CompoundScore{}, err
	}

	return screen.CompoundScore{
		Compound:          types.CompoundID(pop.ID),
		OnScore:           on.Score,
		OffScore:          off.Score,
		TreatmentClusters: clusterRefs(pop.ID, treatmentClusters),
		ControlClusters:   clusterRefs("control", controlClusters),
	}, nil
}

func clusterRefs(pop types.PopulationID, clusters []cluster.RetainedCluster) []screen.ClusterRef {
	refs := make([]screen.ClusterRef, len(clusters))
	for i, c := range clusters {
		refs[i] = screen.ClusterRef{Population: pop, Label: c.Label, Cells: len(c.Rows)}
	}
	return refs
}

func (s *Service) observeStage(stage string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveStageDuration(stage, time.Since(start), err == nil)
}

func (s *Service) metricExcluded(code string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncCompoundExcluded(code)
}
