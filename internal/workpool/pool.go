// Package workpool runs small batches of independent calls on a bounded set
// of goroutines.
package workpool

import (
	"context"
	"sync"
)

// DefaultWorkers bounds concurrent calls against a user database
const DefaultWorkers = 4

// Result is the outcome of one item. Results keep the order of their inputs.
type Result[R any] struct {
	Index int
	Data  R
	Err   error
}

// Pool executes functions with at most workers in flight
type Pool struct {
	workers int
}

// New creates a pool. A non-positive worker count falls back to DefaultWorkers.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Pool{workers: workers}
}

// Workers returns the concurrency bound
func (p *Pool) Workers() int {
	return p.workers
}

type task[T any] struct {
	index int
	item  T
}

// Map applies fn to every item and returns one Result per item, in input
// order. Items not started before ctx is cancelled carry ctx.Err().
func Map[T, R any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}

	for i := range results {
		results[i].Index = i
	}

	workers := p.workers
	if workers > len(items) {
		workers = len(items)
	}

	taskChan := make(chan task[T])

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for t := range taskChan {
				data, err := fn(ctx, t.item)
				results[t.index].Data = data
				results[t.index].Err = err
			}
		}()
	}

	sent := 0

send:
	for i, item := range items {
		select {
		case taskChan <- task[T]{index: i, item: item}:
			sent++
		case <-ctx.Done():
			break send
		}
	}

	close(taskChan)
	wg.Wait()

	for i := sent; i < len(items); i++ {
		results[i].Err = ctx.Err()
	}

	return results
}
