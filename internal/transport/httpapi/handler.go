// Package httpapi exposes validation runs over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-verity/internal/application"
	"github.com/ahrav/go-verity/internal/domain"
)

// MaxBatchSize caps the ids accepted by one batch trigger.
const MaxBatchSize = 100

// Handler wires the trigger endpoints to a Runner.
type Handler struct {
	runner     application.Runner
	batch      *application.BatchRunner
	batchLimit int
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithGatherer serves metrics from g instead of the global registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// WithBatchLimit caps how many runs of one batch execute at once.
func WithBatchLimit(n int) Option {
	return func(h *Handler) { h.batchLimit = n }
}

// New constructs a Handler around runner.
func New(runner application.Runner, opts ...Option) *Handler {
	h := &Handler{
		runner:   runner,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.batch = application.NewBatchRunner(runner, h.batchLimit, h.logger)
	return h
}

// Routes returns the router with every endpoint mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Post("/validations/{id}/run", h.HandleRun)
	r.Post("/validations/run", h.HandleBatch)
	return r
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRun handles POST /validations/{id}/run. The run executes within the
// request; a client disconnect cancels it and the request still reaches a
// terminal status.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	provider := r.URL.Query().Get("provider")
	start := time.Now()

	summary, err := h.runner.Run(ctx, id, application.RunOptions{ProviderOverride: provider})
	if err != nil {
		h.logger.ErrorContext(ctx, "validation trigger failed",
			"request_id", middleware.GetReqID(ctx),
			"validation_id", id,
			"provider", provider,
			"error", err)
		writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "validation trigger handled",
		"request_id", middleware.GetReqID(ctx),
		"validation_id", id,
		"status", summary.Status,
		"duration_ms", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, summary)
}

// BatchRequest is the body of POST /validations/run.
type BatchRequest struct {
	IDs      []string `json:"ids"`
	Provider string   `json:"provider,omitempty"`
}

// HandleBatch handles POST /validations/run. Runs execute concurrently up
// to the batch limit and the response lists summaries in request order. A
// run that cannot start appears as a failed summary.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body"})
		return
	}
	if len(req.IDs) == 0 || len(req.IDs) > MaxBatchSize {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "ids must contain between 1 and 100 entries"})
		return
	}

	summaries := h.batch.RunAll(r.Context(), req.IDs, application.RunOptions{ProviderOverride: req.Provider})
	writeJSON(w, http.StatusOK, summaries)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError maps run errors onto status codes. Internal errors omit the
// message.
func writeError(w http.ResponseWriter, err error) {
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "configuration_error", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
