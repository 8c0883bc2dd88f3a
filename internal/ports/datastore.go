package ports

import (
	"context"

	"github.com/ahrav/go-verity/internal/domain"
)

// ValidationRepository reads and advances ValidationRequest rows.
type ValidationRepository interface {
	// GetValidation loads a request. A missing row returns an error wrapping
	// domain.ErrNotFound.
	GetValidation(ctx context.Context, id string) (domain.ValidationRequest, error)

	// UpdateStatus sets the lifecycle status and optional error message.
	UpdateStatus(ctx context.Context, id string, status domain.RunStatus, message string) error

	// UpdateProgress sets count, total and percentage.
	UpdateProgress(ctx context.Context, id string, count, total int) error
}

// DocumentRepository reads source documents and stores their extraction.
type DocumentRepository interface {
	// ListDocuments returns the documents for a request in upload order.
	ListDocuments(ctx context.Context, validationID string) ([]domain.SourceDocument, error)

	// GetExtraction re-reads cached extraction for one document. A document
	// without cached text returns an error wrapping domain.ErrNotFound.
	GetExtraction(ctx context.Context, documentID string) (domain.Extraction, error)

	// SaveExtraction writes extracted text and fragments. Writes are
	// idempotent and last-write-wins.
	SaveExtraction(ctx context.Context, documentID string, extraction domain.Extraction) error
}

// RequirementRepository reads the requirement catalog.
type RequirementRepository interface {
	// ListRequirements returns requirements for a unit in catalog order.
	// An empty category matches every category. unitLink, when set, must
	// match the requirement's source link.
	ListRequirements(ctx context.Context, unitCode, category, unitLink string) ([]domain.Requirement, error)
}

// ResultRepository appends ValidationResult rows.
type ResultRepository interface {
	InsertResult(ctx context.Context, result domain.ValidationResult) error
}

// Datastore groups every repository the pipeline consumes.
type Datastore interface {
	ValidationRepository
	DocumentRepository
	RequirementRepository
	ResultRepository
}
