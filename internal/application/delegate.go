package application

import (
	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// OperationValidate is the only operation handed to a workflow engine.
const OperationValidate = "validate"

// BuildDelegationPayload packages a run for an external workflow engine.
// Documents are passed by reference; their bytes stay in object storage.
func BuildDelegationPayload(
	req domain.ValidationRequest,
	docs []domain.SourceDocument,
	requirements []domain.Requirement,
	provider domain.ProviderName,
) ports.DelegationPayload {
	refs := make([]ports.DocumentReference, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, ports.DocumentReference{
			ID:          d.ID,
			Filename:    d.Filename,
			StoragePath: d.StoragePath,
			IndexedName: d.IndexedName,
		})
	}

	return ports.DelegationPayload{
		ValidationID: req.ID,
		Operation:    OperationValidate,
		UnitCode:     req.UnitCode,
		Category:     req.Category,
		DocumentType: req.DocumentType,
		Provider:     provider,
		Documents:    refs,
		Requirements: requirements,
	}
}
