package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// ResultStore appends result rows and advances run progress.
type ResultStore struct {
	results    ports.ResultRepository
	validation ports.ValidationRepository
	now        func() time.Time
	newID      func() string
}

// NewResultStore creates a store over the given repositories.
func NewResultStore(results ports.ResultRepository, validation ports.ValidationRepository) *ResultStore {
	return &ResultStore{
		results:    results,
		validation: validation,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Store appends one row for result. ID and CreatedAt are assigned when
// empty. Failures are returned as *domain.StoreError.
func (s *ResultStore) Store(ctx context.Context, validationID string, result domain.ValidationResult) error {
	result.ValidationID = validationID
	if result.ID == "" {
		result.ID = s.newID()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = s.now().UTC()
	}

	if err := s.results.InsertResult(ctx, result); err != nil {
		return &domain.StoreError{
			Operation:    "insert_result",
			ValidationID: validationID,
			Err:          fmt.Errorf("requirement %s: %w", result.RequirementNumber, err),
		}
	}
	return nil
}

// AdvanceProgress records count of total requirements as attempted.
func (s *ResultStore) AdvanceProgress(ctx context.Context, validationID string, count, total int) error {
	if count < 0 || count > total {
		return &domain.StoreError{
			Operation:    "update_progress",
			ValidationID: validationID,
			Err:          fmt.Errorf("%w: %d of %d", domain.ErrProgressOverflow, count, total),
		}
	}

	if err := s.validation.UpdateProgress(ctx, validationID, count, total); err != nil {
		return &domain.StoreError{Operation: "update_progress", ValidationID: validationID, Err: err}
	}
	return nil
}
