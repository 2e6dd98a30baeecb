// Package repositories holds the PostgreSQL implementations of the
// screen domain repository interfaces.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// RunRepository is the PostgreSQL implementation of screen.RunRepository.
type RunRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewRunRepository constructs a RunRepository.
func NewRunRepository(pool *pgxpool.Pool, logger logging.Logger) *RunRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RunRepository{pool: pool, logger: logger}
}

var _ screen.RunRepository = (*RunRepository)(nil)

// Create inserts a new run.
func (r *RunRepository) Create(ctx context.Context, run *screen.Run) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO screen_runs (
			id, screen, profile_object, group_column, compound_column,
			reference_group, control_group, params, status, error, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		run.ID, run.Screen, run.ProfileObject, run.GroupColumn, run.CompoundColumn,
		run.ReferenceGroup, run.ControlGroup, paramsOrEmpty(run.ParamsJSON),
		run.Status, run.Error, run.CreatedAt,
	)
	if err != nil {
		r.logger.Error("insert run failed", logging.String("run_id", string(run.ID)), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "insert run")
	}
	return nil
}

// GetByID loads one run.
func (r *RunRepository) GetByID(ctx context.Context, id common.ID) (*screen.Run, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, screen, profile_object, group_column, compound_column,
		       reference_group, control_group, params, status, error,
		       created_at, started_at, ended_at
		FROM screen_runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "load run")
	}
	return run, nil
}

// UpdateStatus persists the run's lifecycle fields.
func (r *RunRepository) UpdateStatus(ctx context.Context, run *screen.Run) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE screen_runs
		SET status = $2, error = $3, started_at = $4, ended_at = $5
		WHERE id = $1`,
		run.ID, run.Status, run.Error, nullTime(run.StartedAt), nullTime(run.EndedAt),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "update run status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", run.ID)
	}
	return nil
}

// List pages the runs of one screen, newest first. An empty screen name
// matches all runs.
func (r *RunRepository) List(ctx context.Context, screenName string, p common.Pagination) ([]*screen.Run, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM screen_runs WHERE ($1 = '' OR screen = $1)`, screenName,
	).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "count runs")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, screen, profile_object, group_column, compound_column,
		       reference_group, control_group, params, status, error,
		       created_at, started_at, ended_at
		FROM screen_runs
		WHERE ($1 = '' OR screen = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		screenName, p.Limit(), p.Offset(),
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "list runs")
	}
	defer rows.Close()

	var runs []*screen.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate runs")
	}
	return runs, total, nil
}

func scanRun(row pgx.Row) (*screen.Run, error) {
	var (
		run       screen.Run
		started   sql.NullTime
		ended     sql.NullTime
		paramsRaw []byte
	)
	err := row.Scan(
		&run.ID, &run.Screen, &run.ProfileObject, &run.GroupColumn, &run.CompoundColumn,
		&run.ReferenceGroup, &run.ControlGroup, &paramsRaw, &run.Status, &run.Error,
		&run.CreatedAt, &started, &ended,
	)
	if err != nil {
		return nil, err
	}
	run.ParamsJSON = paramsRaw
	if started.Valid {
		run.StartedAt = started.Time
	}
	if ended.Valid {
		run.EndedAt = ended.Time
	}
	return &run, nil
}

func paramsOrEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
