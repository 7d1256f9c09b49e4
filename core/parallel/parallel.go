// Package parallel splits index ranges across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Workers resolves a scikit-learn style n_jobs value to a worker count.
// -1 means all CPUs, -2 all but one, and so on. 0 is treated as 1.
func Workers(nJobs int) int {
	switch {
	case nJobs > 0:
		return nJobs
	case nJobs == 0:
		return 1
	default:
		n := runtime.NumCPU() + 1 + nJobs
		if n < 1 {
			n = 1
		}
		return n
	}
}

// ParallelizeN splits [0, items) into at most numWorkers contiguous ranges
// and runs fn on each range in its own goroutine. It returns when every
// range is done.
func ParallelizeN(items, numWorkers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > items {
		numWorkers = items // No need for more workers than items
	}
	if numWorkers == 1 {
		fn(0, items)
		return
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
