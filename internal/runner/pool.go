package runner

import (
	"context"
	"sync"
)

type Job func(ctx context.Context) error

// RunPool executes jobs with at most maxWorkers concurrently. errs[i] is the
// result of jobs[i]. Once ctx is done no further jobs start; each job left
// unstarted gets ctx.Err().
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var wg sync.WaitGroup
	errs := make([]error, len(jobs))
	sem := make(chan struct{}, maxWorkers)

	for i, job := range jobs {
		if !acquire(ctx, sem) {
			for j := i; j < len(jobs); j++ {
				errs[j] = ctx.Err()
			}
			break
		}
		wg.Add(1)
		go func(i int, j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = j(ctx)
		}(i, job)
	}
	wg.Wait()
	return errs
}

func acquire(ctx context.Context, sem chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case sem <- struct{}{}:
		if ctx.Err() != nil {
			<-sem
			return false
		}
		return true
	case <-ctx.Done():
		return false
	}
}

// Failed returns the non-nil errors in order.
func Failed(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
