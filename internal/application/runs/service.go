// Package runs manages the lifecycle of screening runs: submission,
// asynchronous execution, and retrieval of the resulting rankings.
package runs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/turtacn/MorphoScreen/internal/application/screening"
	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/database/redis"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/metrics"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// EventPublisher publishes run lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key, eventType string, payload interface{}) error
}

// ProfileFetcher loads a feature profile from object storage.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, object string, metaColumns []string) (*profile.Table, error)
}

// Dependencies carries everything a Service needs. Runs, Scores, Profiles
// and Events are required; Cache and Leaderboard are optional read-path
// accelerators.
type Dependencies struct {
	Runs        screen.RunRepository
	Scores      screen.ScoreRepository
	Profiles    ProfileFetcher
	Events      EventPublisher
	Cache       *redis.Cache
	Leaderboard *redis.Leaderboard
	Pipeline    *screening.Service
	Defaults    config.PipelineConfig
	Logger      logging.Logger
	Metrics     *metrics.Metrics
}

// Service coordinates run submission on the API side and run execution on
// the worker side.
type Service struct {
	deps Dependencies
	log  logging.Logger
}

// NewService creates a run Service.
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	return &Service{deps: deps, log: deps.Logger}
}

// SubmitRequest describes a run submission. Params, when nil, falls back
// to the server-side pipeline defaults; a snapshot of the effective
// parameters is stored with the run either way.
type SubmitRequest struct {
	Screen        string                 `json:"screen"`
	ProfileObject string                 `json:"profile_object"`
	GroupColumn   string                 `json:"group_column"`
	CompoundCol   string                 `json:"compound_column"`
	Reference     string                 `json:"reference_group"`
	Control       string                 `json:"control_group"`
	Params        *config.PipelineConfig `json:"params,omitempty"`
}

func (r *SubmitRequest) validate() error {
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"screen", r.Screen},
		{"profile_object", r.ProfileObject},
		{"group_column", r.GroupColumn},
		{"compound_column", r.CompoundCol},
		{"reference_group", r.Reference},
		{"control_group", r.Control},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.ErrCodeValidation, "missing required fields: %s", strings.Join(missing, ", "))
	}
	if r.Reference == r.Control {
		return errors.New(errors.ErrCodeValidation, "reference_group and control_group must differ")
	}
	return nil
}

// Submit persists a pending run and enqueues it for a worker. The stored
// parameter snapshot makes re-execution exact even if server defaults
// change later.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*screen.Run, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	params := s.deps.Defaults
	if req.Params != nil {
		params = *req.Params
	}
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid pipeline parameters")
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode pipeline parameters")
	}

	now := time.Now().UTC()
	run := &screen.Run{
		ID:             common.NewID(),
		Screen:         req.Screen,
		ProfileObject:  req.ProfileObject,
		GroupColumn:    req.GroupColumn,
		CompoundColumn: req.CompoundCol,
		ReferenceGroup: req.Reference,
		ControlGroup:   req.Control,
		ParamsJSON:     raw,
		Status:         screen.RunStatusPending,
		CreatedAt:      now,
	}
	if err := s.deps.Runs.Create(ctx, run); err != nil {
		return nil, err
	}

	payload := kafka.RunRequestedPayload{
		RunID:         run.ID,
		Screen:        run.Screen,
		ProfileObject: run.ProfileObject,
		RequestedAt:   now,
	}
	if err := s.deps.Events.Publish(ctx, kafka.TopicRunRequested, string(run.ID), kafka.TopicRunRequested, payload); err != nil {
		s.failRun(ctx, run, errors.Wrap(err, errors.ErrCodeMessageQueueError, "enqueue run"))
		return nil, err
	}
	s.log.Info("run submitted",
		logging.String("run_id", string(run.ID)),
		logging.String("screen", run.Screen),
		logging.String("profile", run.ProfileObject),
	)
	return run, nil
}

// Get returns one run by ID.
func (s *Service) Get(ctx context.Context, id common.ID) (*screen.Run, error) {
	return s.deps.Runs.GetByID(ctx, id)
}

// List returns runs for a screen, newest first. An empty screen matches
// all runs.
func (s *Service) List(ctx context.Context, screenName string, p common.Pagination) ([]*screen.Run, int64, error) {
	return s.deps.Runs.List(ctx, screenName, p.Normalize())
}

// Ranking returns the stored ranking of a completed run, read through the
// cache when one is configured.
func (s *Service) Ranking(ctx context.Context, id common.ID) (*screen.Ranking, error) {
	run, err := s.deps.Runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != screen.RunStatusCompleted {
		return nil, errors.Newf(errors.ErrCodeRunStateInvalid, "run %s is %s; ranking exists only for completed runs", id, run.Status)
	}
	if s.deps.Cache == nil {
		return s.deps.Scores.GetRanking(ctx, id)
	}
	var ranking screen.Ranking
	err = s.deps.Cache.GetOrSet(ctx, rankingCacheKey(id), &ranking, func(ctx context.Context) (interface{}, error) {
		return s.deps.Scores.GetRanking(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &ranking, nil
}

// Hits returns the top n ranked compounds of a completed run.
func (s *Service) Hits(ctx context.Context, id common.ID, n int) ([]screen.CompoundScore, error) {
	ranking, err := s.Ranking(ctx, id)
	if err != nil {
		return nil, err
	}
	return ranking.Hits(n), nil
}

// CompoundRank returns the 1-based rank of a compound within a completed
// run, served from the leaderboard when one is configured.
func (s *Service) CompoundRank(ctx context.Context, id common.ID, compound common.CompoundID) (int, error) {
	if s.deps.Leaderboard != nil {
		rank, err := s.deps.Leaderboard.Rank(ctx, id, compound)
		if err == nil {
			return rank, nil
		}
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return 0, err
		}
		s.log.Warn("leaderboard lookup failed, falling back to store",
			logging.String("run_id", string(id)), logging.Err(err))
	}
	ranking, err := s.Ranking(ctx, id)
	if err != nil {
		return 0, err
	}
	for _, e := range ranking.Entries {
		if e.Compound == compound && !e.Excluded {
			return e.Rank, nil
		}
	}
	return 0, errors.Newf(errors.ErrCodeNotFound, "compound %s is not ranked in run %s", compound, id)
}

// Execute runs one queued screening run to completion. Pipeline and
// profile errors mark the run failed and return nil so a redelivered
// message is not retried forever; only errors hit before the run record
// could be claimed propagate for redelivery.
func (s *Service) Execute(ctx context.Context, id common.ID) error {
	run, err := s.deps.Runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		s.log.Warn("run already terminal, skipping",
			logging.String("run_id", string(id)),
			logging.String("status", string(run.Status)),
		)
		return nil
	}
	if run.Status == screen.RunStatusRunning {
		s.log.Warn("run already claimed by another worker, skipping",
			logging.String("run_id", string(id)))
		return nil
	}
	now := time.Now().UTC()
	if err := run.Transition(screen.RunStatusRunning, now); err != nil {
		return err
	}
	if err := s.deps.Runs.UpdateStatus(ctx, run); err != nil {
		return err
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RunStarted()
	}

	result, err := s.execute(ctx, run)
	if err != nil {
		s.failRun(ctx, run, err)
		return nil
	}

	ranking := result.Ranking(run.ID, s.strategyFor(run))
	if err := s.deps.Scores.SaveRanking(ctx, ranking); err != nil {
		s.failRun(ctx, run, err)
		return nil
	}
	if s.deps.Leaderboard != nil {
		if err := s.deps.Leaderboard.Publish(ctx, ranking); err != nil {
			s.log.Warn("leaderboard publish failed",
				logging.String("run_id", string(run.ID)), logging.Err(err))
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Delete(ctx, rankingCacheKey(run.ID)); err != nil {
			s.log.Warn("ranking cache invalidation failed",
				logging.String("run_id", string(run.ID)), logging.Err(err))
		}
	}

	if err := run.Transition(screen.RunStatusCompleted, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.deps.Runs.UpdateStatus(ctx, run); err != nil {
		return err
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RunFinished(string(screen.RunStatusCompleted))
		s.deps.Metrics.AddCompoundsRanked(len(ranking.Entries) - len(result.Excluded))
	}

	s.publishEvent(ctx, kafka.TopicRunCompleted, run, kafka.RunCompletedPayload{
		RunID:       run.ID,
		Screen:      run.Screen,
		Compounds:   len(ranking.Entries),
		Excluded:    len(result.Excluded),
		ElapsedMs:   result.Elapsed.Milliseconds(),
		CompletedAt: run.EndedAt,
	})
	s.log.Info("run completed",
		logging.String("run_id", string(run.ID)),
		logging.Int("compounds", len(ranking.Entries)),
		logging.Int("excluded", len(result.Excluded)),
		logging.Duration("elapsed", result.Elapsed),
	)
	return nil
}

func (s *Service) execute(ctx context.Context, run *screen.Run) (*screening.Result, error) {
	params, err := s.paramsFor(run)
	if err != nil {
		return nil, err
	}
	table, err := s.deps.Profiles.FetchProfile(ctx, run.ProfileObject, []string{run.GroupColumn, run.CompoundColumn})
	if err != nil {
		return nil, err
	}
	return s.deps.Pipeline.Run(ctx, screening.Request{
		Profile:        table,
		GroupColumn:    run.GroupColumn,
		CompoundColumn: run.CompoundColumn,
		ReferenceGroup: run.ReferenceGroup,
		ControlGroup:   run.ControlGroup,
		Params:         params,
	})
}

func (s *Service) paramsFor(run *screen.Run) (config.PipelineConfig, error) {
	params := s.deps.Defaults
	if len(run.ParamsJSON) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(run.ParamsJSON, &params); err != nil {
		return params, errors.Wrap(err, errors.ErrCodeSerialization, "decode stored pipeline parameters")
	}
	return params, nil
}

func (s *Service) strategyFor(run *screen.Run) string {
	params, err := s.paramsFor(run)
	if err != nil {
		return s.deps.Defaults.RankStrategy
	}
	return params.RankStrategy
}

// failRun records the failure on the run and announces it. Failures here
// are logged rather than returned since the run's own error is what the
// caller needs to surface.
func (s *Service) failRun(ctx context.Context, run *screen.Run, cause error) {
	code := errors.GetCode(cause)
	run.Error = cause.Error()
	if err := run.Transition(screen.RunStatusFailed, time.Now().UTC()); err != nil {
		s.log.Error("run failure transition rejected",
			logging.String("run_id", string(run.ID)), logging.Err(err))
		return
	}
	if err := s.deps.Runs.UpdateStatus(ctx, run); err != nil {
		s.log.Error("persisting run failure failed",
			logging.String("run_id", string(run.ID)), logging.Err(err))
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RunFinished(string(screen.RunStatusFailed))
	}
	s.publishEvent(ctx, kafka.TopicRunFailed, run, kafka.RunFailedPayload{
		RunID:    run.ID,
		Screen:   run.Screen,
		Code:     code.String(),
		Error:    cause.Error(),
		FailedAt: run.EndedAt,
	})
	s.log.Error("run failed",
		logging.String("run_id", string(run.ID)),
		logging.String("code", code.String()),
		logging.Err(cause),
	)
}

func (s *Service) publishEvent(ctx context.Context, topic string, run *screen.Run, payload interface{}) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(ctx, topic, string(run.ID), topic, payload); err != nil {
		s.log.Warn("run event publish failed",
			logging.String("run_id", string(run.ID)),
			logging.String("topic", topic),
			logging.Err(err),
		)
	}
}

func rankingCacheKey(id common.ID) string {
	return "ranking:" + string(id)
}
