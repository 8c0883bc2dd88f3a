package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during a validation run.
var (
	// ErrNotFound indicates that a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyCorpus indicates that every document failed extraction or
	// produced no text.
	ErrEmptyCorpus = errors.New("extracted corpus is empty")

	// ErrInvalidTransition indicates an illegal run status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrProgressOverflow indicates a progress update with count above total.
	ErrProgressOverflow = errors.New("progress count exceeds total")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmptyResponse indicates that a provider returned nothing to parse.
	ErrEmptyResponse = errors.New("empty provider response")
)

// ConfigurationError is fatal and raised before any I/O.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(": field=%s", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a ConfigurationError for the given field.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason, Err: ErrInvalidConfiguration}
}

// NoRequirementsError is fatal: there is nothing to validate against.
type NoRequirementsError struct {
	UnitCode string
	Category string
}

func (e *NoRequirementsError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("no requirements found for unit %s (category %s)", e.UnitCode, e.Category)
	}
	return fmt.Sprintf("no requirements found for unit %s", e.UnitCode)
}

// ExtractionError is recoverable per document and fatal only when it
// empties the combined corpus.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error: file=%s, err=%v", e.Filename, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExtractionError) Unwrap() error { return e.Err }

// ProviderError is recoverable per requirement. Message is the provider's
// message, preserved verbatim.
type ProviderError struct {
	Provider          ProviderName
	RequirementNumber string
	Message           string
	Err               error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider error: provider=%s", e.Provider)
	if e.RequirementNumber != "" {
		msg += fmt.Sprintf(", requirement=%s", e.RequirementNumber)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError is recoverable per requirement. It is only counted as a
// failure after the fallback parser also gave up.
type ParseError struct {
	RequirementNumber string
	Err               error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: requirement=%s, err=%v", e.RequirementNumber, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// StoreError is recoverable per requirement but risks silent data loss.
type StoreError struct {
	Operation    string
	ValidationID string
	Err          error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, validation=%s, err=%v", e.Operation, e.ValidationID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort a run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var cfgErr *ConfigurationError
	var noReq *NoRequirementsError
	if errors.As(err, &cfgErr) || errors.As(err, &noReq) {
		return true
	}
	return errors.Is(err, ErrEmptyCorpus)
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
