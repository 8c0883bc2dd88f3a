package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-verity/internal/domain"
)

// concurrencyRunner tracks the peak number of simultaneous runs.
type concurrencyRunner struct {
	active  atomic.Int32
	peak    atomic.Int32
	mu      sync.Mutex
	seen    []string
	failIDs map[string]error
	// partialIDs fail after filling in part of the summary.
	partialIDs map[string]bool
}

func (r *concurrencyRunner) Run(_ context.Context, id string, _ RunOptions) (domain.RunSummary, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	r.mu.Lock()
	r.seen = append(r.seen, id)
	r.mu.Unlock()

	if err := r.failIDs[id]; err != nil {
		if r.partialIDs[id] {
			return domain.RunSummary{ValidationID: id, Provider: domain.ProviderGrounded, TotalRequirements: 4}, err
		}
		return domain.RunSummary{}, err
	}
	return domain.RunSummary{ValidationID: id, Status: domain.StatusCompleted}, nil
}

func TestBatchRunner_RunAll(t *testing.T) {
	t.Run("bounded concurrency and input order", func(t *testing.T) {
		// Given six independent validations and a limit of two
		runner := &concurrencyRunner{}
		batch := NewBatchRunner(runner, 2, nil)
		ids := []string{"a", "b", "c", "d", "e", "f"}

		// When they run as a batch
		summaries := batch.RunAll(context.Background(), ids, RunOptions{})

		// Then at most two ran at once and summaries follow input order
		require.Len(t, summaries, len(ids))
		for i, id := range ids {
			assert.Equal(t, id, summaries[i].ValidationID)
		}
		assert.LessOrEqual(t, runner.peak.Load(), int32(2))
		assert.Len(t, runner.seen, 6)
	})

	t.Run("a run error does not stop the batch", func(t *testing.T) {
		runner := &concurrencyRunner{failIDs: map[string]error{"b": errors.New("configuration error: provider")}}
		batch := NewBatchRunner(runner, 0, nil)

		summaries := batch.RunAll(context.Background(), []string{"a", "b", "c"}, RunOptions{})

		assert.Equal(t, domain.StatusCompleted, summaries[0].Status)
		assert.Equal(t, domain.StatusFailed, summaries[1].Status)
		assert.Equal(t, "configuration error: provider", summaries[1].ErrorMessage)
		assert.Equal(t, domain.StatusCompleted, summaries[2].Status)
		assert.Equal(t, int32(1), runner.peak.Load())
	})

	t.Run("a failed run keeps the summary the runner filled in", func(t *testing.T) {
		// Given a run that fails after loading its requirements
		runner := &concurrencyRunner{
			failIDs:    map[string]error{"a": errors.New("fetch requirements: timeout")},
			partialIDs: map[string]bool{"a": true},
		}
		batch := NewBatchRunner(runner, 1, nil)

		// When the batch runs
		summaries := batch.RunAll(context.Background(), []string{"a"}, RunOptions{})

		// Then the failed summary keeps the provider and totals
		require.Len(t, summaries, 1)
		assert.Equal(t, domain.StatusFailed, summaries[0].Status)
		assert.Equal(t, domain.ProviderGrounded, summaries[0].Provider)
		assert.Equal(t, 4, summaries[0].TotalRequirements)
		assert.Equal(t, "fetch requirements: timeout", summaries[0].ErrorMessage)
	})

	t.Run("empty batch", func(t *testing.T) {
		batch := NewBatchRunner(&concurrencyRunner{}, 4, nil)

		assert.Empty(t, batch.RunAll(context.Background(), nil, RunOptions{}))
	})
}
