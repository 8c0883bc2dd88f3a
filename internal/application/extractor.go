package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// ExtractionBackend converts file bytes into text and fragments.
// ports.Validator satisfies it.
type ExtractionBackend interface {
	ExtractDocument(ctx context.Context, filename string, data []byte) (domain.Extraction, error)
}

// Corpus is the combined extraction of every document in a run.
type Corpus struct {
	// Text holds each document's text under a "=== filename ===" header.
	Text string
	// Fragments are tagged with their source filename.
	Fragments []domain.Fragment
	// Extracted counts documents that contributed text.
	Extracted int
	// FailedDocuments lists filenames whose extraction failed.
	FailedDocuments []string
}

// DocumentExtractor resolves the text of source documents, consulting the
// cached copies before downloading and running the extraction backend.
//
// Lookup order: text already on the document row, the lookaside cache,
// the repository, then download + backend. A backend result is written to
// the repository and the cache; both writes are idempotent.
type DocumentExtractor struct {
	backend  ExtractionBackend
	docs     ports.DocumentRepository
	objects  ports.ObjectStore
	cache    ports.ExtractionCache
	observer ports.RunObserver
	logger   *slog.Logger
}

// ExtractorOption configures a DocumentExtractor.
type ExtractorOption func(*DocumentExtractor)

// WithExtractionCache adds a lookaside cache in front of the repository.
func WithExtractionCache(cache ports.ExtractionCache) ExtractorOption {
	return func(e *DocumentExtractor) {
		e.cache = cache
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *DocumentExtractor) {
		e.logger = logger
	}
}

// WithExtractorObserver reports each extraction to observer.
func WithExtractorObserver(observer ports.RunObserver) ExtractorOption {
	return func(e *DocumentExtractor) {
		e.observer = observer
	}
}

// NewDocumentExtractor creates an extractor for one run's backend.
func NewDocumentExtractor(
	backend ExtractionBackend,
	docs ports.DocumentRepository,
	objects ports.ObjectStore,
	opts ...ExtractorOption,
) *DocumentExtractor {
	e := &DocumentExtractor{
		backend:  backend,
		docs:     docs,
		objects:  objects,
		observer: ports.NopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the document's text and fragments. Existing cached text
// is authoritative: the backend is never invoked for a document that
// already has it.
func (e *DocumentExtractor) Extract(ctx context.Context, doc domain.SourceDocument) (domain.Extraction, error) {
	extraction, source, err := e.extract(ctx, doc)
	e.observer.DocumentExtracted(ctx, ports.ExtractionOutcome{Filename: doc.Filename, Source: source, Err: err})
	if err != nil {
		return domain.Extraction{}, err
	}
	return tagFragments(extraction, doc.Filename), nil
}

func (e *DocumentExtractor) extract(ctx context.Context, doc domain.SourceDocument) (domain.Extraction, string, error) {
	if doc.HasCachedText() {
		e.logger.DebugContext(ctx, "extraction cache hit", "document", doc.Filename, "source", "document")
		return domain.Extraction{Text: doc.ExtractedText, Fragments: doc.Fragments}, "document", nil
	}

	key := cacheKey(doc)
	if e.cache != nil {
		cached, err := e.cache.Get(ctx, key)
		switch {
		case err == nil && cached.Text != "":
			e.logger.DebugContext(ctx, "extraction cache hit", "document", doc.Filename, "source", "cache")
			return cached, "cache", nil
		case err != nil && !errors.Is(err, ports.ErrCacheMiss):
			e.logger.WarnContext(ctx, "extraction cache read failed", "document", doc.Filename, "error", err)
		}
	}

	stored, err := e.docs.GetExtraction(ctx, doc.ID)
	switch {
	case err == nil && stored.Text != "":
		e.logger.DebugContext(ctx, "extraction cache hit", "document", doc.Filename, "source", "repository")
		e.fillCache(ctx, key, stored)
		return stored, "repository", nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		e.logger.WarnContext(ctx, "extraction lookup failed", "document", doc.Filename, "error", err)
	}

	e.logger.InfoContext(ctx, "extraction cache miss", "document", doc.Filename)

	data, err := e.objects.Download(ctx, doc.StoragePath)
	if err != nil {
		return domain.Extraction{}, "backend", &domain.ExtractionError{Filename: doc.Filename, Err: err}
	}

	extraction, err := e.backend.ExtractDocument(ctx, doc.Filename, data)
	if err != nil {
		return domain.Extraction{}, "backend", &domain.ExtractionError{Filename: doc.Filename, Err: err}
	}
	if strings.TrimSpace(extraction.Text) == "" {
		return domain.Extraction{}, "backend", &domain.ExtractionError{
			Filename: doc.Filename,
			Err:      errors.New("backend returned no text"),
		}
	}

	extraction = tagFragments(extraction, doc.Filename)
	if err := e.docs.SaveExtraction(ctx, doc.ID, extraction); err != nil {
		// The text is still usable for this run; the next run re-extracts.
		e.logger.WarnContext(ctx, "failed to persist extraction", "document", doc.Filename, "error", err)
	}
	e.fillCache(ctx, key, extraction)

	return extraction, "backend", nil
}

func (e *DocumentExtractor) fillCache(ctx context.Context, key string, extraction domain.Extraction) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, extraction); err != nil {
		e.logger.WarnContext(ctx, "extraction cache write failed", "key", key, "error", err)
	}
}

// ExtractAll extracts every document. A failing document is logged and
// skipped; only an empty combined corpus is an error, reported as an
// *domain.ExtractionError wrapping domain.ErrEmptyCorpus.
func (e *DocumentExtractor) ExtractAll(ctx context.Context, docs []domain.SourceDocument) (Corpus, error) {
	var (
		corpus Corpus
		text   strings.Builder
	)

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return corpus, err
		}

		extraction, err := e.Extract(ctx, doc)
		if err != nil {
			e.logger.WarnContext(ctx, "document extraction failed, continuing with remaining documents",
				"document", doc.Filename, "error", err)
			corpus.FailedDocuments = append(corpus.FailedDocuments, doc.Filename)
			continue
		}

		fmt.Fprintf(&text, "=== %s ===\n%s\n\n", doc.Filename, strings.TrimSpace(extraction.Text))
		corpus.Fragments = append(corpus.Fragments, extraction.Fragments...)
		corpus.Extracted++
	}

	corpus.Text = strings.TrimSpace(text.String())
	if corpus.Extracted == 0 {
		return corpus, &domain.ExtractionError{Err: domain.ErrEmptyCorpus}
	}
	return corpus, nil
}

func cacheKey(doc domain.SourceDocument) string {
	if doc.StoragePath != "" {
		return "extraction:" + doc.StoragePath
	}
	return "extraction:doc:" + doc.ID
}

func tagFragments(extraction domain.Extraction, filename string) domain.Extraction {
	if len(extraction.Fragments) == 0 {
		return extraction
	}
	tagged := make([]domain.Fragment, len(extraction.Fragments))
	for i, f := range extraction.Fragments {
		if f.Source == "" {
			f.Source = filename
		}
		tagged[i] = f
	}
	extraction.Fragments = tagged
	return extraction
}
