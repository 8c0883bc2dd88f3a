package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBreakerMetrics struct {
	mu        sync.Mutex
	states    []CircuitBreakerState
	trips     int
	successes int
	failures  int
}

func (m *recordingBreakerMetrics) RecordState(s CircuitBreakerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *recordingBreakerMetrics) RecordTrip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips++
}

func (m *recordingBreakerMetrics) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
}

func (m *recordingBreakerMetrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given a breaker that opens after two failures
	cb := NewCircuitBreaker(2, time.Minute)
	failure := errors.New("upstream down")

	// When two calls fail
	require.ErrorIs(t, cb.Call(func() error { return failure }), failure)
	assert.Equal(t, StateClosed, cb.GetState())
	require.ErrorIs(t, cb.Call(func() error { return failure }), failure)

	// Then the circuit opens and rejects without calling fn
	assert.Equal(t, StateOpen, cb.GetState())
	called := false
	err := cb.Call(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(1, 10*time.Second)
	cb.now = func() time.Time { return now }

	require.Error(t, cb.Call(func() error { return errors.New("fail") }))
	require.Equal(t, StateOpen, cb.GetState())

	t.Run("rejects during cooldown", func(t *testing.T) {
		now = now.Add(5 * time.Second)
		assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
	})

	t.Run("failed trial call reopens", func(t *testing.T) {
		now = now.Add(10 * time.Second)
		require.Error(t, cb.Call(func() error { return errors.New("still down") }))
		assert.Equal(t, StateOpen, cb.GetState())
	})

	t.Run("successful trial call closes", func(t *testing.T) {
		now = now.Add(11 * time.Second)
		require.NoError(t, cb.Call(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.GetState())
	})
}

func TestCircuitBreaker_IgnoresClientErrors(t *testing.T) {
	// Given a breaker with threshold one
	cb := NewCircuitBreaker(1, time.Minute)

	// When the provider rejects the request content
	for _, errType := range []ErrorType{ErrorTypeBadRequest, ErrorTypeContentPolicy, ErrorTypeNotFound} {
		_ = cb.Call(func() error { return NewProviderError("google", errType, 400, "", nil) })
	}
	_ = cb.Call(func() error { return context.Canceled })

	// Then the circuit stays closed
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	failure := errors.New("fail")

	_ = cb.Call(func() error { return failure })
	_ = cb.Call(func() error { return nil })
	_ = cb.Call(func() error { return failure })

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerMiddleware_WithMetrics(t *testing.T) {
	// Given a failing mock behind a breaker with metrics
	metrics := &recordingBreakerMetrics{}
	mock := NewMockCoreLLM()
	mock.Error = NewProviderError("openai", ErrorTypeServerError, 500, "", nil)
	wrapped := CircuitBreakerMiddlewareWithMetrics(1, time.Minute, metrics)(mock)

	// When two requests are made
	_, _, _, err1 := wrapped.DoRequest(context.Background(), "p", nil)
	_, _, _, err2 := wrapped.DoRequest(context.Background(), "p", nil)

	// Then the second is short-circuited
	require.Error(t, err1)
	require.ErrorIs(t, err2, ErrCircuitOpen)
	assert.Equal(t, 1, mock.GetCallCount())
	assert.Equal(t, 1, metrics.failures)
	assert.Equal(t, 1, metrics.trips)
	assert.Equal(t, []CircuitBreakerState{StateOpen, StateOpen}, metrics.states)
}

func TestCircuitBreakerMiddleware_ConcurrentRequests(t *testing.T) {
	// Given a core that only returns once all callers are inside it
	const callers = 5
	core := &barrierLLM{MockCoreLLM: NewMockCoreLLM(), release: make(chan struct{}), want: callers}
	wrapped := CircuitBreakerMiddleware(3, time.Minute)(core)

	// When the callers run concurrently
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Then a closed breaker let them all in at once
	assert.Equal(t, callers, core.GetCallCount())
}

// barrierLLM blocks each call until want calls are in flight.
type barrierLLM struct {
	*MockCoreLLM
	mu      sync.Mutex
	entered int
	want    int
	release chan struct{}
}

func (b *barrierLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	b.mu.Lock()
	b.entered++
	if b.entered == b.want {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(2 * time.Second):
		return "", 0, 0, errors.New("calls were serialized")
	}
	return b.MockCoreLLM.DoRequest(ctx, prompt, opts)
}

func TestCircuitBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}
