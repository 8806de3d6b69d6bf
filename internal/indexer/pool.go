package indexer

import (
	"context"
	"sync"
)

// runPool feeds items through a bounded task channel to workers goroutines
// and drains their output from a results channel. Items not yet handed out
// when ctx is cancelled are dropped.
func runPool[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R) []R {
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}
	tasks := make(chan T)
	results := make(chan R, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				results <- fn(ctx, item)
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, item := range items {
			select {
			case tasks <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]R, 0, len(items))
	for r := range results {
		out = append(out, r)
	}
	return out
}
