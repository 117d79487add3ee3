package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsBurstWithinWindow(t *testing.T) {
	limiter := New(Limit{MaxCalls: 3, Window: time.Second})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.NoError(t, limiter.Acquire(ctx, "example.com"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"calls within the budget must not block")
	assert.Equal(t, 3, limiter.Pending("example.com"))
}

func TestLimiter_SlidingWindowSpacing(t *testing.T) {
	const maxCalls = 2
	window := 150 * time.Millisecond
	limiter := New(Limit{MaxCalls: maxCalls, Window: window})
	ctx := context.Background()

	// Fire more calls than one window holds, concurrently, and record when
	// each one was admitted
	const total = 6
	timestamps := make([]time.Time, total)
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, limiter.Acquire(ctx, "example.com"))
			timestamps[i] = time.Now()
		}(i)
	}
	wg.Wait()

	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	// Any window-sized span may contain at most maxCalls admissions, so the
	// call maxCalls positions later must start at least one window after
	for i := 0; i+maxCalls < total; i++ {
		gap := timestamps[i+maxCalls].Sub(timestamps[i])
		assert.GreaterOrEqual(t, gap, window-5*time.Millisecond,
			"admissions %d and %d violate the window", i, i+maxCalls)
	}
}

func TestLimiter_DomainsAreIndependent(t *testing.T) {
	limiter := New(Limit{MaxCalls: 1, Window: time.Minute})
	ctx := context.Background()

	assert.NoError(t, limiter.Acquire(ctx, "a.com"))

	// b.com has its own budget and must not block
	start := time.Now()
	assert.NoError(t, limiter.Acquire(ctx, "b.com"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_PerDomainOverride(t *testing.T) {
	limiter := New(Limit{MaxCalls: 1, Window: time.Minute})
	limiter.SetLimit("fast.com", Limit{MaxCalls: 10, Window: time.Second})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		assert.NoError(t, limiter.Acquire(ctx, "fast.com"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_AcquireAbortsOnContextCancel(t *testing.T) {
	limiter := New(Limit{MaxCalls: 1, Window: time.Minute})
	assert.NoError(t, limiter.Acquire(context.Background(), "example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Acquire(ctx, "example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second,
		"the wait must end with the context, not the window")
}

func TestLimiter_PendingDropsExpired(t *testing.T) {
	limiter := New(Limit{MaxCalls: 5, Window: 50 * time.Millisecond})
	ctx := context.Background()

	assert.NoError(t, limiter.Acquire(ctx, "example.com"))
	assert.Equal(t, 1, limiter.Pending("example.com"))

	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, 0, limiter.Pending("example.com"))
}
