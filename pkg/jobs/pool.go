package jobs

import (
	"context"
	"sort"
	"sync"
)

// Task is one unit of work handed to RunAll.
type Task func(ctx context.Context)

// RunAll executes tasks on at most workers goroutines and blocks until every
// started task has returned. Once ctx is done no further tasks are started;
// the indexes of tasks that never ran are returned in ascending order.
func RunAll(ctx context.Context, workers int, tasks []Task) []int {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var (
		mu      sync.Mutex
		skipped []int
		wg      sync.WaitGroup
	)
	skip := func(idx int) {
		mu.Lock()
		skipped = append(skipped, idx)
		mu.Unlock()
	}

	next := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range next {
				if ctx.Err() != nil {
					skip(idx)
					continue
				}
				tasks[idx](ctx)
			}
		}()
	}

	for idx := range tasks {
		if ctx.Err() != nil {
			skip(idx)
			continue
		}
		select {
		case next <- idx:
		case <-ctx.Done():
			skip(idx)
		}
	}
	close(next)
	wg.Wait()

	sort.Ints(skipped)
	return skipped
}
