// Package common holds shared analytics plumbing: the bounded-concurrency
// batch processor used for per-compound fan-out and small numeric helpers.
package common

import (
	"context"
	stdliberrors "errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// ItemStatus is the outcome of a single batch item.
type ItemStatus int

const (
	ItemStatusSuccess ItemStatus = iota
	ItemStatusFailed
	ItemStatusCancelled
)

// String returns the human-readable representation of an ItemStatus.
func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// ProcessFunc processes a single item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult holds the outcome of processing one item.
type ItemResult[R any] struct {
	Index      int
	Result     R
	Error      error
	Status     ItemStatus
	DurationMs float64
}

// BatchResult aggregates an entire batch run. Results are ordered by the
// original item index regardless of completion order.
type BatchResult[R any] struct {
	Results         []*ItemResult[R]
	TotalCount      int
	SuccessCount    int
	FailureCount    int
	TotalDurationMs float64
}

type batchConfig struct {
	maxConcurrency int
	itemTimeout    time.Duration
	logger         logging.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*batchConfig)

// WithMaxConcurrency sets the maximum number of items processed concurrently.
func WithMaxConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout sets the per-item processing timeout. Zero disables it.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) { c.itemTimeout = d }
}

// WithBatchLogger injects a logger.
func WithBatchLogger(l logging.Logger) BatchOption {
	return func(c *batchConfig) { c.logger = l }
}

// BatchProcessor runs a ProcessFunc over a slice of items with bounded
// concurrency. It is stateless between calls and safe for concurrent use.
type BatchProcessor[T, R any] struct {
	cfg batchConfig
}

// NewBatchProcessor creates a BatchProcessor with the supplied options.
func NewBatchProcessor[T, R any](opts ...BatchOption) *BatchProcessor[T, R] {
	cfg := batchConfig{
		maxConcurrency: runtime.NumCPU(),
		logger:         logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &BatchProcessor[T, R]{cfg: cfg}
}

// Process executes fn for every item, at most maxConcurrency at a time.
// Item failures are recorded per item, not returned; the error return is
// reserved for invalid arguments.
func (bp *BatchProcessor[T, R]) Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.InvalidParam("process function must not be nil")
	}
	n := len(items)
	if n == 0 {
		return &BatchResult[R]{Results: []*ItemResult[R]{}}, nil
	}

	batchStart := time.Now()
	resultCh := make(chan *ItemResult[R], n)
	sem := make(chan struct{}, bp.cfg.maxConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultCh <- &ItemResult[R]{Index: idx, Error: ctx.Err(), Status: ItemStatusCancelled}
				return
			}
			resultCh <- bp.processOne(ctx, idx, item, fn)
		}(i, items[i])
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]*ItemResult[R], 0, n)
	for ir := range resultCh {
		results = append(results, ir)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	br := &BatchResult[R]{
		Results:         results,
		TotalCount:      len(results),
		TotalDurationMs: float64(time.Since(batchStart).Microseconds()) / 1000.0,
	}
	for _, r := range results {
		if r.Status == ItemStatusSuccess {
			br.SuccessCount++
		} else {
			br.FailureCount++
		}
	}
	return br, nil
}

func (bp *BatchProcessor[T, R]) processOne(ctx context.Context, idx int, item T, fn ProcessFunc[T, R]) *ItemResult[R] {
	itemStart := time.Now()

	itemCtx := ctx
	if bp.cfg.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, bp.cfg.itemTimeout)
		defer cancel()
	}

	result, err := fn(itemCtx, item)
	durMs := float64(time.Since(itemStart).Microseconds()) / 1000.0

	if err == nil {
		return &ItemResult[R]{Index: idx, Result: result, Status: ItemStatusSuccess, DurationMs: durMs}
	}

	status := ItemStatusFailed
	if stdliberrors.Is(err, context.Canceled) || stdliberrors.Is(err, context.DeadlineExceeded) {
		status = ItemStatusCancelled
	}
	bp.cfg.logger.Debug("batch item failed",
		logging.Int("index", idx),
		logging.Err(err),
	)
	return &ItemResult[R]{Index: idx, Error: err, Status: status, DurationMs: durMs}
}
