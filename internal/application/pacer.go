package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-verity/internal/ports"
)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// FixedDelay pauses the full interval before every call except the first,
// however long the previous call took. N calls observe N-1 pauses.
type FixedDelay struct {
	interval time.Duration
	sleep    Sleeper

	mu      sync.Mutex
	started bool
}

var _ ports.RateLimiter = (*FixedDelay)(nil)

// FixedDelayOption configures a FixedDelay.
type FixedDelayOption func(*FixedDelay)

// WithSleeper replaces the timer-based pause.
func WithSleeper(sleep Sleeper) FixedDelayOption {
	return func(f *FixedDelay) {
		f.sleep = sleep
	}
}

// NewFixedDelay creates a limiter that pauses interval between calls.
func NewFixedDelay(interval time.Duration, opts ...FixedDelayOption) *FixedDelay {
	f := &FixedDelay{
		interval: interval,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Wait blocks until the next call may start. A cancelled first call does
// not use up the free slot.
func (f *FixedDelay) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		f.started = true
		return nil
	}
	if err := f.sleep(ctx, f.interval); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// NoDelay admits every call immediately.
type NoDelay struct{}

// Wait returns ctx.Err().
func (NoDelay) Wait(ctx context.Context) error { return ctx.Err() }

// LimiterFactory produces a fresh limiter for each run so concurrent runs
// never share pacing.
type LimiterFactory func() ports.RateLimiter

// FixedDelayFactory returns a factory for FixedDelay limiters. A
// non-positive interval yields NoDelay.
func FixedDelayFactory(interval time.Duration, opts ...FixedDelayOption) LimiterFactory {
	if interval <= 0 {
		return func() ports.RateLimiter { return NoDelay{} }
	}
	return func() ports.RateLimiter { return NewFixedDelay(interval, opts...) }
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
