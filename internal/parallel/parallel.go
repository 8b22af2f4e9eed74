// Package parallel splits index ranges across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Options controls how Range splits work.
type Options struct {
	Workers  int // Upper bound on goroutines. Values < 2 run inline.
	MinChunk int // Ranges shorter than this run inline.
}

// DefaultOptions uses one worker per CPU.
func DefaultOptions() Options {
	return Options{Workers: runtime.NumCPU(), MinChunk: 64}
}

// Range calls f(i) for every i in [0, n) and returns when all calls are done.
// Calls for different i may run concurrently, so f must only write state
// owned by index i.
func Range(n int, opts Options, f func(i int)) {
	if opts.Workers < 2 || n < opts.MinChunk || n < 2 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunk := max((n+opts.Workers-1)/opts.Workers, opts.MinChunk, 1)
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				f(i)
			}
		}()
	}
	wg.Wait()
}
