package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-verity/infrastructure/llm"
	"github.com/ahrav/go-verity/internal/domain"
)

const (
	// AzureAPIVersion is the Document Intelligence REST version used.
	AzureAPIVersion = "2024-11-30"
	// AzureDefaultModel is the layout model, which returns paragraphs
	// with page regions.
	AzureDefaultModel = "prebuilt-layout"

	defaultPollInterval = 2 * time.Second
	// DefaultAnalyzeTimeout bounds one Analyze call, submit and polling
	// included.
	DefaultAnalyzeTimeout = 5 * time.Minute
	maxErrorBody          = 4096
)

// ErrAnalysisFailed is returned when the service reports a failed analysis.
var ErrAnalysisFailed = errors.New("document analysis failed")

// AzureClient calls the Azure AI Document Intelligence analyze API and
// polls the returned operation until it finishes.
type AzureClient struct {
	endpoint     string
	apiKey       string
	model        string
	httpClient   *http.Client
	pollInterval time.Duration
	timeout      time.Duration
	breaker      *llm.CircuitBreaker
	classifier   *llm.ErrorClassifier
	logger       *slog.Logger
}

// AzureOption configures an AzureClient.
type AzureOption func(*AzureClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) AzureOption {
	return func(a *AzureClient) { a.httpClient = c }
}

// WithPollInterval sets the wait between operation status checks.
func WithPollInterval(d time.Duration) AzureOption {
	return func(a *AzureClient) { a.pollInterval = d }
}

// WithAnalyzeTimeout bounds each Analyze call. Non-positive values keep
// the default.
func WithAnalyzeTimeout(d time.Duration) AzureOption {
	return func(a *AzureClient) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithCircuitBreaker guards the analyze call with cb.
func WithCircuitBreaker(cb *llm.CircuitBreaker) AzureOption {
	return func(a *AzureClient) { a.breaker = cb }
}

// WithAzureLogger sets the logger.
func WithAzureLogger(l *slog.Logger) AzureOption {
	return func(a *AzureClient) { a.logger = l }
}

// NewAzureClient creates a Document Intelligence client. An empty model
// uses AzureDefaultModel.
func NewAzureClient(endpoint, apiKey, model string, opts ...AzureOption) (*AzureClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("document intelligence endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid document intelligence endpoint: %w", err)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("document intelligence key is required")
	}
	if model == "" {
		model = AzureDefaultModel
	}

	a := &AzureClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		model:        model,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: defaultPollInterval,
		timeout:      DefaultAnalyzeTimeout,
		classifier:   &llm.ErrorClassifier{Provider: "azure_docintel"},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze implements ports.DocumentIntelligence. An analysis still running
// when the timeout expires fails with a timeout ProviderError.
func (a *AzureClient) Analyze(ctx context.Context, filename string, data []byte) (domain.Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var operation string
	submit := func() error {
		var err error
		operation, err = a.submit(ctx, data)
		return err
	}

	var err error
	if a.breaker != nil {
		err = a.breaker.Call(submit)
	} else {
		err = submit()
	}
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("analyze %s: %w", filename, err)
	}

	a.logger.DebugContext(ctx, "document analysis submitted", "filename", filename, "model", a.model)

	result, err := a.poll(ctx, operation)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("analyze %s: %w", filename, err)
	}
	return result.extraction(), nil
}

func (a *AzureClient) submit(ctx context.Context, data []byte) (string, error) {
	target := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		a.endpoint, url.PathEscape(a.model), AzureAPIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", a.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", a.classifier.ClassifyHTTPResponse(resp, readErrorBody(resp.Body))
	}

	operation := resp.Header.Get("Operation-Location")
	if operation == "" {
		return "", fmt.Errorf("analyze response has no Operation-Location header")
	}
	return operation, nil
}

func (a *AzureClient) poll(ctx context.Context, operation string) (*analyzeResult, error) {
	limiter := rate.NewLimiter(rate.Every(a.pollInterval), 1)

	for {
		// Wait fails early when the next poll would land past the deadline.
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, a.classifier.ClassifyContextError(ctxErr)
			}
			return nil, a.classifier.ClassifyContextError(context.DeadlineExceeded)
		}

		op, err := a.status(ctx, operation)
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(op.Status) {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return nil, fmt.Errorf("operation succeeded without a result")
			}
			return op.AnalyzeResult, nil
		case "failed", "canceled":
			msg := op.Status
			if op.Error != nil && op.Error.Message != "" {
				msg = op.Error.Message
			}
			return nil, fmt.Errorf("%w: %s", ErrAnalysisFailed, msg)
		}
	}
}

func (a *AzureClient) status(ctx context.Context, operation string) (*analyzeOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operation, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, a.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.classifier.ClassifyHTTPResponse(resp, readErrorBody(resp.Body))
	}

	var op analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("decode analyze operation: %w", err)
	}
	return &op, nil
}

func (a *AzureClient) transportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return a.classifier.ClassifyContextError(err)
	}
	return llm.NewProviderError(a.classifier.Provider, llm.ErrorTypeNetwork, 0, "", err)
}

func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}

type analyzeOperation struct {
	Status        string         `json:"status"`
	AnalyzeResult *analyzeResult `json:"analyzeResult"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type analyzeResult struct {
	Content string `json:"content"`
	Pages   []struct {
		PageNumber int `json:"pageNumber"`
		Lines      []struct {
			Content string `json:"content"`
		} `json:"lines"`
	} `json:"pages"`
	Paragraphs []struct {
		Content         string `json:"content"`
		Role            string `json:"role"`
		BoundingRegions []struct {
			PageNumber int `json:"pageNumber"`
		} `json:"boundingRegions"`
	} `json:"paragraphs"`
}

// extraction prefers paragraphs and falls back to page lines when the
// model returns none. Page headers and footers are dropped.
func (r *analyzeResult) extraction() domain.Extraction {
	var fragments []domain.Fragment
	for _, p := range r.Paragraphs {
		text := strings.TrimSpace(p.Content)
		if text == "" || p.Role == "pageHeader" || p.Role == "pageFooter" || p.Role == "pageNumber" {
			continue
		}
		page := 0
		if len(p.BoundingRegions) > 0 {
			page = p.BoundingRegions[0].PageNumber
		}
		fragments = append(fragments, domain.Fragment{Text: text, Page: page})
	}

	if len(fragments) == 0 {
		for _, pg := range r.Pages {
			lines := make([]string, 0, len(pg.Lines))
			for _, l := range pg.Lines {
				if s := strings.TrimSpace(l.Content); s != "" {
					lines = append(lines, s)
				}
			}
			if len(lines) > 0 {
				fragments = append(fragments, domain.Fragment{Text: strings.Join(lines, "\n"), Page: pg.PageNumber})
			}
		}
		sort.SliceStable(fragments, func(i, j int) bool { return fragments[i].Page < fragments[j].Page })
	}

	text := strings.TrimSpace(r.Content)
	if text == "" {
		parts := make([]string, len(fragments))
		for i, f := range fragments {
			parts[i] = f.Text
		}
		text = strings.Join(parts, "\n\n")
	}
	return domain.Extraction{Text: text, Fragments: fragments}
}
