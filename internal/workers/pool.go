// Package workers runs independent index-addressed jobs on a bounded set of
// goroutines and collects their results in input order.
package workers

import (
	"context"
	"sync"
)

// WorkerPool manages a pool of worker goroutines for parallel reductions
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 10 // Default to 10 workers
	}
	return &WorkerPool{
		numWorkers: numWorkers,
	}
}

// Size returns the number of workers.
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// Map evaluates fn for every index in [0, n) in parallel.
//
// Results are returned in index order. The first error cancels the context
// handed to the remaining jobs and is returned.
func Map[T any](ctx context.Context, wp *WorkerPool, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if n == 0 {
		return []T{}, nil
	}
	if wp == nil {
		wp = NewWorkerPool(1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Create channels for work distribution and result collection
	jobs := make(chan int, n)
	results := make(chan resultItem[T], n)

	// Start workers
	var wg sync.WaitGroup
	numActualWorkers := wp.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n // Don't spawn more workers than jobs
	}

	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, results, fn)
		}()
	}

	// Send jobs to workers
	for idx := 0; idx < n; idx++ {
		jobs <- idx
	}
	close(jobs)

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	out := make([]T, n)
	var firstErr error
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
				cancel()
			}
			continue
		}
		out[result.index] = result.value
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// resultItem represents the result of one job
type resultItem[T any] struct {
	index int
	value T
	err   error
}

// worker processes jobs until the channel is drained or ctx is cancelled
func worker[T any](
	ctx context.Context,
	jobs <-chan int,
	results chan<- resultItem[T],
	fn func(ctx context.Context, i int) (T, error),
) {
	for idx := range jobs {
		if err := ctx.Err(); err != nil {
			results <- resultItem[T]{index: idx, err: err}
			continue
		}
		value, err := fn(ctx, idx)
		results <- resultItem[T]{index: idx, value: value, err: err}
	}
}
