package testutil

import (
	"sync"
	"sync/atomic"

	dErrors "attest/pkg/domain-errors"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes   int32
	QuotaDenied int32
	NotFounds   int32
	Errors      int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.QuotaDenied + r.NotFounds + r.Errors
}

// RunConcurrent executes fn in parallel goroutines and collects results.
// Errors are categorized by domain code into success, quota-denied,
// not-found, or generic error. This helper replaces the common pattern of
// WaitGroup + atomic counters in tests.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, denied, notFounds, errs atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeQuotaExceeded):
				denied.Add(1)
			case dErrors.HasCode(err, dErrors.CodeNotFound):
				notFounds.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		QuotaDenied: denied.Load(),
		NotFounds:   notFounds.Load(),
		Errors:      errs.Load(),
	}
}
