package common

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MorphoScreen/pkg/errors"
)

func TestBatchProcessorOrdersResultsByIndex(t *testing.T) {
	bp := NewBatchProcessor[int, int](WithMaxConcurrency(4))

	items := []int{5, 4, 3, 2, 1}
	br, err := bp.Process(context.Background(), items, func(ctx context.Context, x int) (int, error) {
		time.Sleep(time.Duration(x) * time.Millisecond)
		return x * 10, nil
	})
	require.NoError(t, err)
	require.Equal(t, 5, br.TotalCount)
	assert.Equal(t, 5, br.SuccessCount)
	for i, want := range []int{50, 40, 30, 20, 10} {
		assert.Equal(t, i, br.Results[i].Index)
		assert.Equal(t, want, br.Results[i].Result)
	}
}

func TestBatchProcessorConcurrencyLimit(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	bp := NewBatchProcessor[int, struct{}](WithMaxConcurrency(2))

	items := make([]int, 20)
	_, err := bp.Process(context.Background(), items, func(ctx context.Context, _ int) (struct{}, error) {
		cur := inFlight.Add(1)
		for {
			prev := maxSeen.Load()
			if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestBatchProcessorRecordsItemFailures(t *testing.T) {
	bp := NewBatchProcessor[int, int]()

	br, err := bp.Process(context.Background(), []int{1, 2, 3}, func(ctx context.Context, x int) (int, error) {
		if x == 2 {
			return 0, errors.New(errors.ErrCodeDegenerateFeature, "zero variance")
		}
		return x, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, br.SuccessCount)
	assert.Equal(t, 1, br.FailureCount)
	assert.Equal(t, ItemStatusFailed, br.Results[1].Status)
	assert.True(t, errors.IsCode(br.Results[1].Error, errors.ErrCodeDegenerateFeature))
}

func TestBatchProcessorContextCancellation(t *testing.T) {
	bp := NewBatchProcessor[int, int](WithMaxConcurrency(1))
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	br, err := bp.Process(ctx, []int{1, 2, 3, 4}, func(ctx context.Context, x int) (int, error) {
		if x == 1 {
			close(started)
		}
		select {
		case <-time.After(50 * time.Millisecond):
			return x, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	require.NoError(t, err)
	assert.Positive(t, br.FailureCount)
}

func TestBatchProcessorNilFunc(t *testing.T) {
	bp := NewBatchProcessor[int, int]()
	_, err := bp.Process(context.Background(), []int{1}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestBatchProcessorEmptyInput(t *testing.T) {
	bp := NewBatchProcessor[int, int]()
	br, err := bp.Process(context.Background(), nil, func(ctx context.Context, x int) (int, error) {
		return x, nil
	})
	require.NoError(t, err)
	assert.Zero(t, br.TotalCount)
}
