package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock records sleeps. Time moves on sleep and advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFixedDelay_Wait(t *testing.T) {
	tests := []struct {
		name     string
		callTime time.Duration
	}{
		{name: "instant calls", callTime: 0},
		{name: "calls shorter than the delay", callTime: 10 * time.Second},
		{name: "calls longer than the delay", callTime: 20 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a 15s fixed delay and calls that take callTime each
			clock := newFakeClock()
			limiter := NewFixedDelay(15*time.Second, WithSleeper(clock.Sleep))

			// When five calls run in sequence
			for range 5 {
				require.NoError(t, limiter.Wait(context.Background()))
				clock.advance(tt.callTime)
			}

			// Then the first call is immediate and each later call pauses the full 15s
			assert.Equal(t, []time.Duration{
				15 * time.Second, 15 * time.Second, 15 * time.Second, 15 * time.Second,
			}, clock.sleeps)
		})
	}
}

func TestFixedDelay_Cancellation(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		clock := newFakeClock()
		limiter := NewFixedDelay(time.Minute, WithSleeper(clock.Sleep))
		require.NoError(t, limiter.Wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := limiter.Wait(ctx)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, clock.sleeps)
	})

	t.Run("cancelled first call keeps the free slot", func(t *testing.T) {
		clock := newFakeClock()
		limiter := NewFixedDelay(time.Minute, WithSleeper(clock.Sleep))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.Error(t, limiter.Wait(ctx))
		require.NoError(t, limiter.Wait(context.Background()))

		assert.Empty(t, clock.sleeps)
	})

	t.Run("real timer honours context", func(t *testing.T) {
		limiter := NewFixedDelay(time.Hour)
		require.NoError(t, limiter.Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := limiter.Wait(ctx)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestFixedDelayFactory(t *testing.T) {
	t.Run("fresh limiter per run", func(t *testing.T) {
		clock := newFakeClock()
		factory := FixedDelayFactory(time.Second, WithSleeper(clock.Sleep))

		a := factory()
		b := factory()
		require.NoError(t, a.Wait(context.Background()))
		require.NoError(t, b.Wait(context.Background()))

		// Each run's first call is immediate.
		assert.Empty(t, clock.sleeps)
	})

	t.Run("zero interval disables pacing", func(t *testing.T) {
		limiter := FixedDelayFactory(0)()

		assert.IsType(t, NoDelay{}, limiter)
		assert.NoError(t, limiter.Wait(context.Background()))
	})
}
