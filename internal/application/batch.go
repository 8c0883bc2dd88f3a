package application

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-verity/internal/domain"
)

// Runner executes a single validation run.
type Runner interface {
	Run(ctx context.Context, validationID string, opts RunOptions) (domain.RunSummary, error)
}

// BatchRunner executes independent runs concurrently. Each run remains a
// sequential stream with its own limiter.
type BatchRunner struct {
	runner Runner
	limit  int
	logger *slog.Logger
}

// NewBatchRunner creates a runner allowing at most limit concurrent runs.
// A non-positive limit means one run at a time.
func NewBatchRunner(runner Runner, limit int, logger *slog.Logger) *BatchRunner {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{runner: runner, limit: limit, logger: logger}
}

// RunAll runs every id and returns the summaries in input order. A run
// that returns an error yields a failed summary carrying the message and
// whatever the runner filled in; it never stops the other runs.
func (b *BatchRunner) RunAll(ctx context.Context, ids []string, opts RunOptions) []domain.RunSummary {
	summaries := make([]domain.RunSummary, len(ids))

	var g errgroup.Group
	g.SetLimit(b.limit)

	for i, id := range ids {
		g.Go(func() error {
			summary, err := b.runner.Run(ctx, id, opts)
			if err != nil {
				b.logger.ErrorContext(ctx, "validation run could not start", "validation_id", id, "error", err)
				if summary.ValidationID == "" {
					summary = domain.RunSummary{ValidationID: id}
				}
				summary.Status = domain.StatusFailed
				summary.ErrorMessage = err.Error()
			}
			summaries[i] = summary
			return nil
		})
	}

	// Workers never return errors.
	_ = g.Wait()
	return summaries
}
