// Package memory provides in-process implementations of the datastore and
// object storage ports. They back tests and the CLI demo mode.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

var _ ports.Datastore = (*Store)(nil)

// ProgressUpdate is one recorded UpdateProgress call.
type ProgressUpdate struct {
	Count int
	Total int
}

// Store is a concurrency-safe in-memory Datastore.
type Store struct {
	mu sync.RWMutex

	validations  map[string]domain.ValidationRequest
	documents    map[string][]domain.SourceDocument
	requirements []domain.Requirement
	results      []domain.ValidationResult

	progress map[string][]ProgressUpdate
	statuses map[string][]domain.RunStatus

	// InsertHook, when set, runs before each insert; a non-nil error
	// rejects the row.
	InsertHook func(domain.ValidationResult) error

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		validations: make(map[string]domain.ValidationRequest),
		documents:   make(map[string][]domain.SourceDocument),
		progress:    make(map[string][]ProgressUpdate),
		statuses:    make(map[string][]domain.RunStatus),
		now:         time.Now,
	}
}

// PutValidation adds or replaces a request.
func (s *Store) PutValidation(v domain.ValidationRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Status == "" {
		v.Status = domain.StatusPending
	}
	s.validations[v.ID] = v
}

// PutDocument appends a document to its request.
func (s *Store) PutDocument(d domain.SourceDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ValidationID] = append(s.documents[d.ValidationID], d)
}

// PutRequirements appends catalog entries.
func (s *Store) PutRequirements(reqs ...domain.Requirement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requirements = append(s.requirements, reqs...)
}

// GetValidation implements ports.ValidationRepository.
func (s *Store) GetValidation(_ context.Context, id string) (domain.ValidationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.validations[id]
	if !ok {
		return domain.ValidationRequest{}, fmt.Errorf("validation %s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

// UpdateStatus implements ports.ValidationRepository.
func (s *Store) UpdateStatus(_ context.Context, id string, status domain.RunStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validations[id]
	if !ok {
		return fmt.Errorf("validation %s: %w", id, domain.ErrNotFound)
	}
	v.Status = status
	v.ErrorMessage = message
	v.UpdatedAt = s.now().UTC()
	s.validations[id] = v
	s.statuses[id] = append(s.statuses[id], status)
	return nil
}

// UpdateProgress implements ports.ValidationRepository.
func (s *Store) UpdateProgress(_ context.Context, id string, count, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validations[id]
	if !ok {
		return fmt.Errorf("validation %s: %w", id, domain.ErrNotFound)
	}
	v.Count = count
	v.Total = total
	v.Percentage = domain.Percentage(count, total)
	v.UpdatedAt = s.now().UTC()
	s.validations[id] = v
	s.progress[id] = append(s.progress[id], ProgressUpdate{Count: count, Total: total})
	return nil
}

// ListDocuments implements ports.DocumentRepository.
func (s *Store) ListDocuments(_ context.Context, validationID string) ([]domain.SourceDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.documents[validationID]), nil
}

// GetExtraction implements ports.DocumentRepository.
func (s *Store) GetExtraction(_ context.Context, documentID string) (domain.Extraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, docs := range s.documents {
		for _, d := range docs {
			if d.ID == documentID && d.ExtractedText != "" {
				return domain.Extraction{Text: d.ExtractedText, Fragments: slices.Clone(d.Fragments)}, nil
			}
		}
	}
	return domain.Extraction{}, fmt.Errorf("extraction for document %s: %w", documentID, domain.ErrNotFound)
}

// SaveExtraction implements ports.DocumentRepository.
func (s *Store) SaveExtraction(_ context.Context, documentID string, extraction domain.Extraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for vid, docs := range s.documents {
		for i, d := range docs {
			if d.ID == documentID {
				d.ExtractedText = extraction.Text
				d.Fragments = slices.Clone(extraction.Fragments)
				s.documents[vid][i] = d
				return nil
			}
		}
	}
	return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
}

// ListRequirements implements ports.RequirementRepository. Category matches
// the requirement type.
func (s *Store) ListRequirements(_ context.Context, unitCode, category, unitLink string) ([]domain.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Requirement
	for _, r := range s.requirements {
		if r.UnitCode != unitCode {
			continue
		}
		if category != "" && r.Type != category {
			continue
		}
		if unitLink != "" && r.UnitLink != unitLink {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// InsertResult implements ports.ResultRepository.
func (s *Store) InsertResult(_ context.Context, result domain.ValidationResult) error {
	if s.InsertHook != nil {
		if err := s.InsertHook(result); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Results returns the rows stored for a request in insertion order.
func (s *Store) Results(validationID string) []domain.ValidationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ValidationResult
	for _, r := range s.results {
		if r.ValidationID == validationID {
			out = append(out, r)
		}
	}
	return out
}

// Progress returns every progress update recorded for a request.
func (s *Store) Progress(validationID string) []ProgressUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.progress[validationID])
}

// Statuses returns every status written for a request.
func (s *Store) Statuses(validationID string) []domain.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.statuses[validationID])
}

// Document returns the stored copy of a document.
func (s *Store) Document(documentID string) (domain.SourceDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, docs := range s.documents {
		for _, d := range docs {
			if d.ID == documentID {
				return d, true
			}
		}
	}
	return domain.SourceDocument{}, false
}
