package ports

import (
	"context"

	"github.com/ahrav/go-verity/internal/domain"
)

// InferenceRequest carries everything a provider needs to judge one
// requirement.
type InferenceRequest struct {
	ValidationID string
	UnitCode     string
	Category     string
	DocumentType domain.DocumentType
	Requirement  domain.Requirement

	// Content is the text selected for this requirement.
	Content string

	// IndexedDocuments are provider-side handles for pre-indexed stores.
	IndexedDocuments []string

	// System and Prompt are the rendered instructions for the model.
	System string
	Prompt string
}

// RawResponse is the unparsed provider output.
type RawResponse struct {
	Text      string
	Citations []domain.Citation
	Model     string
	TokensIn  int
	TokensOut int
}

// Validator is the inference capability selected once per run.
type Validator interface {
	// Name identifies the provider in summaries, logs and metrics.
	Name() domain.ProviderName

	// ValidateRequirement judges one requirement against the given content.
	ValidateRequirement(ctx context.Context, req InferenceRequest) (RawResponse, error)

	// ExtractDocument converts file bytes into text and fragments.
	ExtractDocument(ctx context.Context, filename string, data []byte) (domain.Extraction, error)
}

// DocumentIntelligence converts file bytes into text plus page fragments.
type DocumentIntelligence interface {
	Analyze(ctx context.Context, filename string, data []byte) (domain.Extraction, error)
}

// RateLimiter paces inference calls within one run.
type RateLimiter interface {
	// Wait blocks until the next call may proceed or ctx is done.
	Wait(ctx context.Context) error
}

// DelegationPayload is handed to an external workflow engine.
type DelegationPayload struct {
	ValidationID string               `json:"validation_id"`
	Operation    string               `json:"operation"`
	UnitCode     string               `json:"unit_code"`
	Category     string               `json:"category,omitempty"`
	DocumentType domain.DocumentType  `json:"document_type"`
	Provider     domain.ProviderName  `json:"provider"`
	Documents    []DocumentReference  `json:"documents"`
	Requirements []domain.Requirement `json:"requirements"`
}

// DocumentReference points at a document without carrying its bytes.
type DocumentReference struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
	IndexedName string `json:"indexed_name,omitempty"`
}

// WorkflowDispatcher sends a delegation payload. Delivery is
// fire-and-forget once the call returns nil.
type WorkflowDispatcher interface {
	Dispatch(ctx context.Context, payload DelegationPayload) error
}
