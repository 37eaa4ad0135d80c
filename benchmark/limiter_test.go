package benchmark

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketUnlimited(t *testing.T) {
	ctx := context.Background()
	for _, b := range []*TokenBucket{nil, NewTokenBucket(0), NewTokenBucket(-1)} {
		start := time.Now()
		for i := 0; i < 1000; i++ {
			require.NoError(t, b.Acquire(ctx, 1<<40))
		}
		assert.Less(t, time.Since(start), 100*time.Millisecond)
		assert.Zero(t, b.Rate())
		assert.Zero(t, b.Waited())
	}
}

func TestTokenBucketStartsFull(t *testing.T) {
	b := NewTokenBucket(1 << 20)

	start := time.Now()
	require.NoError(t, b.Acquire(context.Background(), 1<<20))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestTokenBucketTiming(t *testing.T) {
	const rate = 4 << 20
	b := NewTokenBucket(rate)
	ctx := context.Background()

	// drain the initial burst, then 2 MiB more must take ~0.5s
	require.NoError(t, b.Acquire(ctx, rate))
	start := time.Now()
	for i := 0; i < 8; i++ {
		require.NoError(t, b.Acquire(ctx, 256<<10))
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond)
	assert.Greater(t, b.Waited(), time.Duration(0))
}

func TestTokenBucketRequestAboveCapacity(t *testing.T) {
	const rate = 4 << 20
	b := NewTokenBucket(rate)

	start := time.Now()
	require.NoError(t, b.Acquire(context.Background(), rate+rate/2))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond)
}

func TestTokenBucketNeverOverReleases(t *testing.T) {
	const (
		rate  = 1 << 20
		chunk = 64 << 10
	)
	b := NewTokenBucket(rate)
	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()

	var released atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b.Acquire(ctx, chunk) == nil {
				released.Add(chunk)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// capacity up front plus refill over the elapsed time
	ceiling := int64(rate + rate*elapsed.Seconds())
	assert.LessOrEqual(t, released.Load(), ceiling)
	assert.GreaterOrEqual(t, released.Load(), int64(rate))
}

func TestTokenBucketContextCancel(t *testing.T) {
	b := NewTokenBucket(1024)
	require.NoError(t, b.Acquire(context.Background(), 1024))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.Acquire(ctx, 1024)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTokenBucketRateAccessor(t *testing.T) {
	assert.Equal(t, 1234.5, NewTokenBucket(1234.5).Rate())
}
