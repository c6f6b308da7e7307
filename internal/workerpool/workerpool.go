// Package workerpool runs independent per-time-step work on a bounded
// goroutine pool and joins on completion.
package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// ForEach calls fn(i) for every i in [0, n) using at most workers goroutines
// and waits for all calls to return. fn must only write to state owned by
// index i. The first error returned by fn, or a recovered panic, is returned
// once every submitted call has finished. A cancelled context stops further
// submissions.
func ForEach(ctx context.Context, n, workers int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	if workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("error creating worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	record := func(err error) {
		once.Do(func() { firstErr = err })
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			record(err)
			break
		}

		i := i
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("step %d panicked: %v", i, r))
				}
			}()
			if err := fn(i); err != nil {
				record(err)
			}
		})
		if err != nil {
			wg.Done()
			record(fmt.Errorf("error submitting step %d: %w", i, err))
			break
		}
	}

	wg.Wait()
	return firstErr
}
