// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Run(t *testing.T) {
	const numTasks = 100
	for _, parallelism := range []int{-1, 0, 1, 4} {
		pool := New().SetMaxParallelism(parallelism)
		var mu sync.Mutex
		seen := make(map[int]bool, numTasks)
		var running, maxRunning atomic.Int32
		err := pool.Run(context.Background(), numTasks, func(i int) error {
			current := running.Add(1)
			defer running.Add(-1)
			for {
				previous := maxRunning.Load()
				if current <= previous || maxRunning.CompareAndSwap(previous, current) {
					break
				}
			}
			time.Sleep(time.Microsecond)
			mu.Lock()
			seen[i] = true
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, seen, numTasks, "parallelism=%d", parallelism)
		if parallelism > 0 {
			assert.LessOrEqual(t, int(maxRunning.Load()), parallelism)
		}
		if parallelism == 0 {
			assert.Equal(t, int32(1), maxRunning.Load())
		}
	}
}

func TestPool_RunError(t *testing.T) {
	pool := New().SetMaxParallelism(1)
	var count atomic.Int32
	wantErr := errors.New("task 3 failed")
	err := pool.Run(context.Background(), 100, func(i int) error {
		count.Add(1)
		if i == 3 {
			return wantErr
		}
		return nil
	})
	require.ErrorIs(t, err, wantErr)
	// With a parallelism of 1, at most one more task may have started after the failure.
	assert.LessOrEqual(t, int(count.Load()), 5)
}

func TestPool_RunCancelled(t *testing.T) {
	pool := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var count atomic.Int32
	err := pool.Run(ctx, 10, func(int) error {
		count.Add(1)
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), count.Load())
}

func TestPool_Settings(t *testing.T) {
	pool := New()
	assert.True(t, pool.IsEnabled())
	assert.False(t, pool.IsUnlimited())
	pool.SetMaxParallelism(0)
	assert.False(t, pool.IsEnabled())
	assert.Equal(t, 0, pool.MaxParallelism())
	pool.SetMaxParallelism(-1)
	assert.True(t, pool.IsUnlimited())
}
