package domain

import (
	"time"
)

// DocumentType tells the inference step what kind of material the uploaded
// documents are, which changes how requirements are phrased to the model.
type DocumentType string

const (
	// DocumentTypeUnit marks assessment material written for a unit of competency.
	DocumentTypeUnit DocumentType = "unit"
	// DocumentTypeLearnerGuide marks learner-facing training material.
	DocumentTypeLearnerGuide DocumentType = "learner_guide"
)

// Valid reports whether the document type is one of the known values.
func (d DocumentType) Valid() bool {
	return d == DocumentTypeUnit || d == DocumentTypeLearnerGuide
}

// ValidationRequest is one unit-of-competency validation job.
// It is created by the upload workflow and mutated only by the Orchestrator.
type ValidationRequest struct {
	// ID uniquely identifies the request in the datastore.
	ID string `json:"id"`

	// SummaryID references the parent validation summary.
	SummaryID string `json:"summary_id"`

	// UnitCode is the unit of competency being validated, e.g. TLIF0025.
	UnitCode string `json:"unit_code"`

	// OrganizationCode identifies the registered training organization.
	OrganizationCode string `json:"organization_code"`

	// UnitLink is the catalog link used to locate the unit's requirements.
	UnitLink string `json:"unit_link,omitempty"`

	// Category narrows the requirement catalog (e.g. knowledge_evidence).
	// An empty category selects every requirement for the unit.
	Category string `json:"category,omitempty"`

	// DocumentType selects the prompt framing for inference.
	DocumentType DocumentType `json:"document_type"`

	// Status is the lifecycle status of the run.
	Status RunStatus `json:"status"`

	// Progress counters for the current run.
	Count      int     `json:"count"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`

	// ErrorMessage holds the human-readable reason for a failed run.
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fragment is one (text, page) unit produced by document extraction.
type Fragment struct {
	Text string `json:"text"`
	Page int    `json:"page"`
	// Source is the filename the fragment was extracted from.
	Source string `json:"source,omitempty"`
}

// SourceDocument is one uploaded file belonging to a ValidationRequest.
// Once ExtractedText is set it is treated as authoritative.
type SourceDocument struct {
	ID           string `json:"id"`
	ValidationID string `json:"validation_id"`
	Filename     string `json:"filename"`

	// StoragePath locates the binary in object storage.
	StoragePath string `json:"storage_path"`

	// IndexedName is the provider-side handle for pre-indexed document stores.
	IndexedName string `json:"indexed_name,omitempty"`

	ExtractedText string     `json:"extracted_text,omitempty"`
	Fragments     []Fragment `json:"fragments,omitempty"`
}

// Extraction is the text and fragments produced for one document.
type Extraction struct {
	Text      string     `json:"text"`
	Fragments []Fragment `json:"fragments,omitempty"`
}

// HasCachedText reports whether extraction already ran for this document.
func (d SourceDocument) HasCachedText() bool {
	return d.ExtractedText != ""
}

// Requirement is one compliance rule to check. It is read-only for this module.
type Requirement struct {
	ID string `json:"id"`

	// Number is the stable catalog identifier, e.g. "1.2" or "KE3".
	Number string `json:"number"`

	// Type tags the requirement family, e.g. knowledge_evidence,
	// performance_evidence, foundation_skill, element_criteria.
	Type string `json:"type"`

	Text     string `json:"text"`
	UnitCode string `json:"unit_code"`

	// UnitLink is the catalog link of the unit the requirement came from.
	UnitLink string `json:"unit_link,omitempty"`
}

// ResultStatus is the per-requirement judgement.
type ResultStatus string

const (
	ResultCompliant    ResultStatus = "compliant"
	ResultNonCompliant ResultStatus = "non_compliant"
	ResultNeedsReview  ResultStatus = "needs_review"
	ResultError        ResultStatus = "error"
)

// Valid reports whether the status is one of the known judgements.
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultCompliant, ResultNonCompliant, ResultNeedsReview, ResultError:
		return true
	default:
		return false
	}
}

// Citation points from a judgement back to the supporting passage.
type Citation struct {
	DocumentName string  `json:"document_name,omitempty"`
	Page         int     `json:"page,omitempty"`
	Text         string  `json:"text,omitempty"`
	URI          string  `json:"uri,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// ValidationResult is the outcome for one (ValidationRequest, Requirement)
// pair. Rows are append-only: a re-run writes a fresh set.
type ValidationResult struct {
	ID                string       `json:"id"`
	ValidationID      string       `json:"validation_id"`
	RequirementID     string       `json:"requirement_id"`
	RequirementNumber string       `json:"requirement_number"`
	RequirementType   string       `json:"requirement_type"`
	Status            ResultStatus `json:"status"`
	Reasoning         string       `json:"reasoning"`
	MappedContent     string       `json:"mapped_content,omitempty"`
	Citations         []Citation   `json:"citations,omitempty"`
	Questions         []string     `json:"questions,omitempty"`
	BenchmarkAnswer   string       `json:"benchmark_answer,omitempty"`
	Recommendations   []string     `json:"recommendations,omitempty"`

	// ParseMode records whether the structured or fallback parser produced
	// the judgement.
	ParseMode ParseMode `json:"parse_mode"`

	CreatedAt time.Time `json:"created_at"`
}

// ParseMode tags how a provider response was interpreted.
type ParseMode string

const (
	ParsePrimary  ParseMode = "primary"
	ParseFallback ParseMode = "fallback"
	// ParseNone marks an error row for a requirement that got no response.
	ParseNone ParseMode = "none"
)

// RunSummary is returned to the trigger caller after a run.
type RunSummary struct {
	ValidationID          string               `json:"validation_id"`
	Provider              ProviderName         `json:"provider"`
	Mode                  OrchestrationMode    `json:"orchestration_mode"`
	Status                RunStatus            `json:"status"`
	TotalRequirements     int                  `json:"total_requirements"`
	SuccessfulValidations int                  `json:"successful_validations"`
	FailedValidations     int                  `json:"failed_validations"`
	StatusDistribution    map[ResultStatus]int `json:"status_distribution"`
	ParseFallbacks        int                  `json:"parse_fallbacks"`
	FailedDocuments       []string             `json:"failed_documents,omitempty"`
	ErrorMessage          string               `json:"error_message,omitempty"`
	Elapsed               time.Duration        `json:"elapsed_ns"`
}
