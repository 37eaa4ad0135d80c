package benchmark

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket bounds a byte stream to a fixed number of bytes per second.
// Capacity equals one second of budget and the bucket starts full. A nil
// bucket, or one built with a non-positive rate, never blocks.
type TokenBucket struct {
	limiter *rate.Limiter
	rate    float64
	burst   int64
	waited  atomic.Int64 // nanoseconds spent sleeping in Acquire
}

// NewTokenBucket returns a bucket refilling at bytesPerSec.
func NewTokenBucket(bytesPerSec float64) *TokenBucket {
	if bytesPerSec <= 0 || math.IsInf(bytesPerSec, 1) || math.IsNaN(bytesPerSec) {
		return &TokenBucket{}
	}
	burst := int64(bytesPerSec)
	if burst < 1 {
		burst = 1
	}
	if burst > math.MaxInt32 {
		burst = math.MaxInt32
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), int(burst)),
		rate:    bytesPerSec,
		burst:   burst,
	}
}

// Rate returns the configured bytes per second, 0 when unlimited.
func (b *TokenBucket) Rate() float64 {
	if b == nil {
		return 0
	}
	return b.rate
}

// Waited returns the total time callers spent blocked in Acquire.
func (b *TokenBucket) Waited() time.Duration {
	if b == nil {
		return 0
	}
	return time.Duration(b.waited.Load())
}

// Acquire blocks until n bytes of budget are available and debits them.
// Requests above capacity are debited in capacity-sized slices. The sleep
// happens outside the limiter's lock, so concurrent callers keep refilling
// and draining the bucket while one of them waits.
func (b *TokenBucket) Acquire(ctx context.Context, n int64) error {
	if b == nil || b.limiter == nil || n <= 0 {
		return ctx.Err()
	}
	for n > 0 {
		take := min(n, b.burst)
		if err := b.acquire(ctx, int(take)); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

func (b *TokenBucket) acquire(ctx context.Context, n int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := time.Now()
		if b.limiter.AllowN(now, n) {
			return nil
		}
		shortfall := float64(n) - b.limiter.TokensAt(now)
		wait := time.Duration(shortfall / b.rate * float64(time.Second))
		if wait <= 0 {
			wait = time.Millisecond
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
		b.waited.Add(int64(wait))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
