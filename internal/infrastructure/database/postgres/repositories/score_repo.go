package repositories

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// ScoreRepository is the PostgreSQL implementation of screen.ScoreRepository.
type ScoreRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewScoreRepository constructs a ScoreRepository.
func NewScoreRepository(pool *pgxpool.Pool, logger logging.Logger) *ScoreRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ScoreRepository{pool: pool, logger: logger}
}

var _ screen.ScoreRepository = (*ScoreRepository)(nil)

// SaveRanking replaces the run's score records in one transaction, bulk
// inserting via the COPY protocol.
func (r *ScoreRepository) SaveRanking(ctx context.Context, ranking *screen.Ranking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "begin ranking transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM compound_scores WHERE run_id = $1`, ranking.RunID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "clear previous ranking")
	}

	columns := []string{
		"run_id", "compound", "on_score", "off_score",
		"treatment_clusters", "control_clusters", "excluded", "reason", "rank", "strategy",
	}
	rows := make([][]interface{}, 0, len(ranking.Entries))
	for _, e := range ranking.Entries {
		tcJSON, _ := json.Marshal(e.TreatmentClusters)
		ccJSON, _ := json.Marshal(e.ControlClusters)
		rows = append(rows, []interface{}{
			ranking.RunID, string(e.Compound), e.OnScore, e.OffScore,
			tcJSON, ccJSON, e.Excluded, e.Reason, e.Rank, ranking.Strategy,
		})
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"compound_scores"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "copy compound scores")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "commit ranking")
	}

	r.logger.Debug("ranking saved",
		logging.String("run_id", string(ranking.RunID)),
		logging.Int64("scores", n),
	)
	return nil
}

// GetRanking loads the run's records, ranked block first.
func (r *ScoreRepository) GetRanking(ctx context.Context, runID common.ID) (*screen.Ranking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT compound, on_score, off_score, treatment_clusters, control_clusters,
		       excluded, reason, rank, strategy
		FROM compound_scores
		WHERE run_id = $1
		ORDER BY excluded, CASE WHEN rank = 0 THEN NULL ELSE rank END, compound`, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query ranking")
	}
	defer rows.Close()

	ranking := &screen.Ranking{RunID: runID}
	for rows.Next() {
		var (
			e              screen.CompoundScore
			compound       string
			tcJSON, ccJSON []byte
		)
		if err := rows.Scan(&compound, &e.OnScore, &e.OffScore, &tcJSON, &ccJSON,
			&e.Excluded, &e.Reason, &e.Rank, &ranking.Strategy); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan compound score")
		}
		e.RunID = runID
		e.Compound = common.CompoundID(compound)
		if err := json.Unmarshal(tcJSON, &e.TreatmentClusters); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode treatment clusters")
		}
		if err := json.Unmarshal(ccJSON, &e.ControlClusters); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode control clusters")
		}
		ranking.Entries = append(ranking.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate ranking")
	}
	if len(ranking.Entries) == 0 {
		return nil, errors.Newf(errors.ErrCodeRunNotFound, "no ranking stored for run %s", runID)
	}
	return ranking, nil
}
