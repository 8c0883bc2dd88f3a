package application

import (
	"context"
	"fmt"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// RequirementFetcher loads the requirement catalog for a unit.
type RequirementFetcher struct {
	repo ports.RequirementRepository
}

// NewRequirementFetcher creates a fetcher over repo.
func NewRequirementFetcher(repo ports.RequirementRepository) *RequirementFetcher {
	return &RequirementFetcher{repo: repo}
}

// Fetch returns the requirements for unitCode in catalog order. An empty
// list is returned as a *domain.NoRequirementsError.
func (f *RequirementFetcher) Fetch(ctx context.Context, unitCode, category, unitLink string) ([]domain.Requirement, error) {
	reqs, err := f.repo.ListRequirements(ctx, unitCode, category, unitLink)
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements for unit %s: %w", unitCode, err)
	}
	if len(reqs) == 0 {
		return nil, &domain.NoRequirementsError{UnitCode: unitCode, Category: category}
	}
	return reqs, nil
}
