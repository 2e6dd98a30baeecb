package screen

import (
	"context"

	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// RunRepository persists screening runs.
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id common.ID) (*Run, error)
	UpdateStatus(ctx context.Context, run *Run) error
	List(ctx context.Context, screen string, p common.Pagination) ([]*Run, int64, error)
}

// ScoreRepository persists per-compound score records and rankings.
type ScoreRepository interface {
	SaveRanking(ctx context.Context, ranking *Ranking) error
	GetRanking(ctx context.Context, runID common.ID) (*Ranking, error)
}
