// Package postgres is the system of record for validation requests, source
// documents, the requirement catalog and result rows.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

//go:embed schema.sql
var schema string

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ports.Datastore on Postgres.
type Store struct {
	db DB
}

// New wraps an open pool or connection.
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool for url and checks it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const getValidationSQL = `
SELECT id, summary_id, unit_code, organization_code, unit_link, category, document_type,
       status, count, total, percentage, error_message, created_at, updated_at
FROM validation_requests
WHERE id = $1`

// GetValidation implements ports.ValidationRepository.
func (s *Store) GetValidation(ctx context.Context, id string) (domain.ValidationRequest, error) {
	var (
		v       domain.ValidationRequest
		docType string
		status  string
	)
	err := s.db.QueryRow(ctx, getValidationSQL, id).Scan(
		&v.ID, &v.SummaryID, &v.UnitCode, &v.OrganizationCode, &v.UnitLink, &v.Category, &docType,
		&status, &v.Count, &v.Total, &v.Percentage, &v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ValidationRequest{}, fmt.Errorf("validation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ValidationRequest{}, fmt.Errorf("get validation %s: %w", id, err)
	}
	v.DocumentType = domain.DocumentType(docType)
	v.Status = domain.RunStatus(status)
	return v, nil
}

// UpdateStatus implements ports.ValidationRepository.
func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.RunStatus, message string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE validation_requests SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		id, string(status), message)
	return affectedOne(tag, err, "update status", "validation", id)
}

// UpdateProgress implements ports.ValidationRepository.
func (s *Store) UpdateProgress(ctx context.Context, id string, count, total int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE validation_requests SET count = $2, total = $3, percentage = $4, updated_at = now() WHERE id = $1`,
		id, count, total, domain.Percentage(count, total))
	return affectedOne(tag, err, "update progress", "validation", id)
}

const listDocumentsSQL = `
SELECT id, validation_id, filename, storage_path, indexed_name,
       COALESCE(extracted_text, ''), fragments
FROM source_documents
WHERE validation_id = $1
ORDER BY uploaded_at, id`

// ListDocuments implements ports.DocumentRepository.
func (s *Store) ListDocuments(ctx context.Context, validationID string) ([]domain.SourceDocument, error) {
	rows, err := s.db.Query(ctx, listDocumentsSQL, validationID)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", validationID, err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SourceDocument, error) {
		var (
			d         domain.SourceDocument
			fragments []byte
		)
		if err := row.Scan(&d.ID, &d.ValidationID, &d.Filename, &d.StoragePath, &d.IndexedName,
			&d.ExtractedText, &fragments); err != nil {
			return d, err
		}
		var err error
		d.Fragments, err = decodeFragments(fragments)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", validationID, err)
	}
	return docs, nil
}

// GetExtraction implements ports.DocumentRepository.
func (s *Store) GetExtraction(ctx context.Context, documentID string) (domain.Extraction, error) {
	var (
		ext       domain.Extraction
		fragments []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(extracted_text, ''), fragments FROM source_documents WHERE id = $1`,
		documentID).Scan(&ext.Text, &fragments)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && ext.Text == "") {
		return domain.Extraction{}, fmt.Errorf("extraction for document %s: %w", documentID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("get extraction %s: %w", documentID, err)
	}
	if ext.Fragments, err = decodeFragments(fragments); err != nil {
		return domain.Extraction{}, fmt.Errorf("get extraction %s: %w", documentID, err)
	}
	return ext, nil
}

// SaveExtraction implements ports.DocumentRepository. The update is
// idempotent; concurrent writers leave the last value.
func (s *Store) SaveExtraction(ctx context.Context, documentID string, extraction domain.Extraction) error {
	fragments, err := json.Marshal(extraction.Fragments)
	if err != nil {
		return fmt.Errorf("encode fragments: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE source_documents SET extracted_text = $2, fragments = $3 WHERE id = $1`,
		documentID, extraction.Text, fragments)
	return affectedOne(tag, err, "save extraction", "document", documentID)
}

const listRequirementsSQL = `
SELECT id, number, type, text, unit_code, unit_link
FROM requirements
WHERE unit_code = $1
  AND ($2 = '' OR type = $2)
  AND ($3 = '' OR unit_link = $3)
ORDER BY position, number`

// ListRequirements implements ports.RequirementRepository.
func (s *Store) ListRequirements(ctx context.Context, unitCode, category, unitLink string) ([]domain.Requirement, error) {
	rows, err := s.db.Query(ctx, listRequirementsSQL, unitCode, category, unitLink)
	if err != nil {
		return nil, fmt.Errorf("list requirements for %s: %w", unitCode, err)
	}
	reqs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Requirement, error) {
		var r domain.Requirement
		err := row.Scan(&r.ID, &r.Number, &r.Type, &r.Text, &r.UnitCode, &r.UnitLink)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("list requirements for %s: %w", unitCode, err)
	}
	return reqs, nil
}

const insertResultSQL = `
INSERT INTO validation_results (
    id, validation_id, requirement_id, requirement_number, requirement_type, status, reasoning,
    mapped_content, citations, questions, benchmark_answer, recommendations, parse_mode, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// InsertResult implements ports.ResultRepository.
func (s *Store) InsertResult(ctx context.Context, r domain.ValidationResult) error {
	citations, err := jsonArray(r.Citations)
	if err != nil {
		return fmt.Errorf("encode citations: %w", err)
	}
	questions, err := jsonArray(r.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	recommendations, err := jsonArray(r.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}

	_, err = s.db.Exec(ctx, insertResultSQL,
		r.ID, r.ValidationID, r.RequirementID, r.RequirementNumber, r.RequirementType,
		string(r.Status), r.Reasoning, r.MappedContent, citations, questions,
		r.BenchmarkAnswer, recommendations, string(r.ParseMode), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert result for %s: %w", r.RequirementNumber, err)
	}
	return nil
}

func affectedOne(tag pgconn.CommandTag, err error, op, kind, id string) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %s %w", op, id, kind, domain.ErrNotFound)
	}
	return nil
}

func decodeFragments(data []byte) ([]domain.Fragment, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var fragments []domain.Fragment
	if err := json.Unmarshal(data, &fragments); err != nil {
		return nil, fmt.Errorf("decode fragments: %w", err)
	}
	return fragments, nil
}

// jsonArray encodes nil slices as [] so NOT NULL columns accept them.
func jsonArray[T any](v []T) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

var _ ports.Datastore = (*Store)(nil)
