// Package inference provides the two Validator capabilities a run can be
// configured with: a grounded Gemini model that searches a Vertex AI Search
// datastore, and a completion pair that extracts text with document
// intelligence and judges it with a chat model.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/ahrav/go-verity/infrastructure/llm"
	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

const maxCitationText = 500

// ContentGenerator is the part of genai.Models the grounded validator uses.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GroundedValidator judges requirements with Gemini on Vertex AI. The model
// retrieves evidence from the configured datastore itself, so the selected
// content is optional context and citations come from grounding metadata.
type GroundedValidator struct {
	models     ContentGenerator
	settings   domain.GroundedSettings
	extractor  ports.DocumentIntelligence
	classifier *llm.ErrorClassifier
	logger     *slog.Logger
}

// NewGroundedValidator creates a Vertex AI client for settings.Project and
// settings.Location using application default credentials.
func NewGroundedValidator(
	ctx context.Context,
	settings domain.GroundedSettings,
	extractor ports.DocumentIntelligence,
	opts ...Option,
) (*GroundedValidator, error) {
	o := newOptions(opts)

	models := o.generator
	if models == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  settings.Project,
			Location: settings.Location,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
		}
		models = client.Models
	}

	return newGroundedValidator(models, settings, extractor, o.logger)
}

func newGroundedValidator(
	models ContentGenerator,
	settings domain.GroundedSettings,
	extractor ports.DocumentIntelligence,
	logger *slog.Logger,
) (*GroundedValidator, error) {
	if settings.Project == "" {
		return nil, fmt.Errorf("project is required")
	}
	if settings.Datastore == "" {
		return nil, fmt.Errorf("datastore is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if settings.Model == "" {
		settings.Model = llm.GoogleDefaultModel
	}

	return &GroundedValidator{
		models:     models,
		settings:   settings,
		extractor:  extractor,
		classifier: &llm.ErrorClassifier{Provider: string(domain.ProviderGrounded)},
		logger:     logger,
	}, nil
}

// Name implements ports.Validator.
func (v *GroundedValidator) Name() domain.ProviderName { return domain.ProviderGrounded }

// ValidateRequirement implements ports.Validator.
func (v *GroundedValidator) ValidateRequirement(ctx context.Context, req ports.InferenceRequest) (ports.RawResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return ports.RawResponse{}, fmt.Errorf("requirement %s: empty prompt", req.Requirement.Number)
	}

	zero := 0.0
	config := llm.BuildGenerationConfig(llm.RequestOptions{
		Model:       v.settings.Model,
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: &zero,
		System:      req.System,
	})
	config.Tools = []*genai.Tool{{
		Retrieval: &genai.Retrieval{
			VertexAISearch: &genai.VertexAISearch{Datastore: v.settings.Datastore},
		},
	}}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := v.models.GenerateContent(ctx, v.settings.Model, contents, config)
	if err != nil {
		return ports.RawResponse{}, llm.ClassifyGoogleError(v.classifier, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return ports.RawResponse{}, llm.ErrEmptyResponse
	}

	out := ports.RawResponse{Text: text, Model: v.settings.Model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		out.Citations = groundingCitations(resp.Candidates[0].GroundingMetadata)
	}

	v.logger.DebugContext(ctx, "grounded judgement received",
		"requirement", req.Requirement.Number,
		"citations", len(out.Citations),
		"tokens_in", out.TokensIn,
		"tokens_out", out.TokensOut)

	return out, nil
}

// ExtractDocument implements ports.Validator. Documents are indexed in the
// datastore out of band; local extraction feeds the content selector.
func (v *GroundedValidator) ExtractDocument(ctx context.Context, filename string, data []byte) (domain.Extraction, error) {
	return v.extractor.Analyze(ctx, filename, data)
}

// groundingCitations turns retrieved chunks into citations. A chunk's
// confidence is the highest score of any support that references it.
// Chunks without a document or web source are skipped.
func groundingCitations(meta *genai.GroundingMetadata) []domain.Citation {
	if meta == nil || len(meta.GroundingChunks) == 0 {
		return nil
	}

	confidence := make(map[int]float64)
	for _, support := range meta.GroundingSupports {
		if support == nil {
			continue
		}
		for i, idx := range support.GroundingChunkIndices {
			if i >= len(support.ConfidenceScores) {
				break
			}
			if score := float64(support.ConfidenceScores[i]); score > confidence[int(idx)] {
				confidence[int(idx)] = score
			}
		}
	}

	citations := make([]domain.Citation, 0, len(meta.GroundingChunks))
	seen := make(map[string]bool)
	for i, chunk := range meta.GroundingChunks {
		if chunk == nil {
			continue
		}

		var c domain.Citation
		switch {
		case chunk.RetrievedContext != nil:
			rc := chunk.RetrievedContext
			c = domain.Citation{
				DocumentName: firstNonEmpty(rc.Title, rc.DocumentName),
				URI:          rc.URI,
				Text:         truncate(rc.Text, maxCitationText),
			}
			if rc.RAGChunk != nil && rc.RAGChunk.PageSpan != nil {
				c.Page = int(rc.RAGChunk.PageSpan.FirstPage)
			}
		case chunk.Web != nil:
			c = domain.Citation{DocumentName: firstNonEmpty(chunk.Web.Title, chunk.Web.Domain), URI: chunk.Web.URI}
		default:
			continue
		}
		c.Confidence = confidence[i]

		key := c.DocumentName + "\x00" + c.URI + "\x00" + c.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, c)
	}

	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].Confidence > citations[j].Confidence
	})
	return citations
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
