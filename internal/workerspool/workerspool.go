// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs tasks in goroutines, with a soft limit on how many run at the same time.
//
// The compiler uses it to invoke implementation factories in parallel.
package workerspool

import (
	"context"
	"runtime"
	"sync"
)

// Pool limits the number of tasks running in parallel.
type Pool struct {
	// maxParallelism is the limit of tasks running in parallel. 0 disables parallelism, and a negative
	// value means unlimited.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
}

// New returns a new Pool with the default parallelism, runtime.NumCPU().
func New() *Pool {
	w := &Pool{maxParallelism: runtime.NumCPU()}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsEnabled returns whether parallelism is enabled (maxParallelism != 0).
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0).
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism returns the limit of tasks running in parallel.
// 0 means parallelism is disabled, and -1 that it is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism. It should only be changed while no tasks are running.
func (w *Pool) SetMaxParallelism(maxParallelism int) *Pool {
	w.maxParallelism = maxParallelism
	return w
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available and runs task in a new goroutine.
//
// If parallelism is disabled, it runs task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.IsUnlimited() {
		go task()
		return
	} else if w.maxParallelism == 0 {
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// Run calls task(i) for i in [0, numTasks), in parallel as allowed by the pool, and waits for all
// started tasks to finish.
//
// It returns the first error returned by a task. After an error, or once ctx is done, no new tasks are
// started, and the error (or ctx.Err()) is returned.
func (w *Pool) Run(ctx context.Context, numTasks int, task func(i int) error) error {
	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	failed := func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return firstErr != nil
	}
	setErr := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for i := range numTasks {
		if err := ctx.Err(); err != nil {
			setErr(err)
		}
		if failed() {
			break
		}
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			if err := task(i); err != nil {
				setErr(err)
			}
		})
	}
	wg.Wait()
	return firstErr
}
