// Package dispatch hands delegation payloads to an external workflow
// engine over an HTTP webhook or a Kafka topic.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ahrav/go-verity/internal/ports"
)

const maxResponseBody = 4096

// Webhook posts each payload as JSON to a fixed URL. Any 2xx response is
// an accepted hand-off.
type Webhook struct {
	url        string
	httpClient *http.Client
	headers    http.Header
	logger     *slog.Logger
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.httpClient = c }
}

// WithHeader adds a header to every request, e.g. an auth token.
func WithHeader(key, value string) WebhookOption {
	return func(w *Webhook) { w.headers.Set(key, value) }
}

// WithWebhookLogger sets the logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook dispatcher for target.
func NewWebhook(target string, opts ...WebhookOption) (*Webhook, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook URL %q", target)
	}
	w := &Webhook{
		url:        target,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers:    make(http.Header),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dispatch implements ports.WorkflowDispatcher. The validation id is sent
// as the idempotency key so the engine can drop duplicate hand-offs.
func (w *Webhook) Dispatch(ctx context.Context, payload ports.DelegationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &ports.DispatchError{Target: w.url, Err: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &ports.DispatchError{Target: w.url, Err: err}
	}
	for k, v := range w.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payload.ValidationID)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return &ports.DispatchError{Target: w.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return &ports.DispatchError{
			Target:     w.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ports.ErrDispatchRejected, strings.TrimSpace(string(msg))),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	w.logger.InfoContext(ctx, "delegation dispatched",
		"validation_id", payload.ValidationID,
		"target", w.url,
		"requirements", len(payload.Requirements),
		"status_code", resp.StatusCode)
	return nil
}

var _ ports.WorkflowDispatcher = (*Webhook)(nil)
