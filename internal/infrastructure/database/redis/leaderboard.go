package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

// Leaderboard mirrors a run's ranking into a sorted set so hit lists can
// be served without touching PostgreSQL. Members are compound IDs scored
// by rank, so ZRANGE returns compounds best-first.
type Leaderboard struct {
	client *Client
}

// NewLeaderboard creates a Leaderboard.
func NewLeaderboard(client *Client) *Leaderboard {
	return &Leaderboard{client: client}
}

func (l *Leaderboard) runKey(runID common.ID) string {
	return l.client.key("leaderboard", string(runID))
}

// Publish replaces the run's leaderboard with the ranking's ranked block.
// Excluded compounds are not published.
func (l *Leaderboard) Publish(ctx context.Context, ranking *screen.Ranking) error {
	members := make([]goredis.Z, 0, len(ranking.Entries))
	for _, e := range ranking.Entries {
		if e.Excluded {
			continue
		}
		members = append(members, goredis.Z{
			Score:  float64(e.Rank),
			Member: string(e.Compound),
		})
	}
	if len(members) == 0 {
		return nil
	}

	key := l.runKey(ranking.RunID)
	pipe := l.client.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZAdd(ctx, key, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "publish leaderboard")
	}
	return nil
}

// TopHits returns the best n compounds of a run, best-first.
func (l *Leaderboard) TopHits(ctx context.Context, runID common.ID, n int) ([]common.CompoundID, error) {
	ids, err := l.client.rdb.ZRange(ctx, l.runKey(runID), 0, int64(n)-1).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "read leaderboard")
	}
	out := make([]common.CompoundID, len(ids))
	for i, id := range ids {
		out[i] = common.CompoundID(id)
	}
	return out, nil
}

// Rank returns a compound's 1-based rank in a run, or ErrCodeNotFound if
// the compound was excluded or never scored.
func (l *Leaderboard) Rank(ctx context.Context, runID common.ID, compound common.CompoundID) (int, error) {
	score, err := l.client.rdb.ZScore(ctx, l.runKey(runID), string(compound)).Result()
	if err == goredis.Nil {
		return 0, errors.Newf(errors.ErrCodeNotFound, "compound %s not on leaderboard", compound)
	}
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "read compound rank")
	}
	return int(score), nil
}
