package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// ValidatorFactory builds the inference capability selected for a run.
type ValidatorFactory func(ctx context.Context, cfg domain.ProviderConfig) (ports.Validator, error)

// DispatcherFactory builds the hand-off target for delegated runs.
type DispatcherFactory func(ctx context.Context, cfg domain.DelegationSettings) (ports.WorkflowDispatcher, error)

// RunOptions adjusts a single run.
type RunOptions struct {
	// ProviderOverride replaces the configured provider when non-empty.
	ProviderOverride string
}

// Orchestrator drives one validation request from pending to a terminal
// status. Requirements within a run are processed sequentially; separate
// runs share nothing but the datastore.
type Orchestrator struct {
	cfg         *Config
	store       ports.Datastore
	objects     ports.ObjectStore
	validators  ValidatorFactory
	dispatchers DispatcherFactory
	limiters    LimiterFactory
	cache       ports.ExtractionCache
	observer    ports.RunObserver
	logger      *slog.Logger
	prompts     *PromptBuilder
	parser      *ResponseParser
	now         func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger used by the Orchestrator and the components
// it creates.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithObserver reports run lifecycle events to observer.
func WithObserver(observer ports.RunObserver) OrchestratorOption {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// WithCache adds a lookaside extraction cache.
func WithCache(cache ports.ExtractionCache) OrchestratorOption {
	return func(o *Orchestrator) {
		o.cache = cache
	}
}

// WithLimiterFactory replaces the configured fixed delay.
func WithLimiterFactory(factory LimiterFactory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.limiters = factory
	}
}

// WithDispatcherFactory enables delegated mode.
func WithDispatcherFactory(factory DispatcherFactory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.dispatchers = factory
	}
}

// NewOrchestrator validates its dependencies and returns an Orchestrator.
func NewOrchestrator(
	cfg *Config,
	store ports.Datastore,
	objects ports.ObjectStore,
	validators ValidatorFactory,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("datastore is required")
	}
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if validators == nil {
		return nil, fmt.Errorf("validator factory is required")
	}

	prompts, err := NewPromptBuilder()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		objects:    objects,
		validators: validators,
		observer:   ports.NopObserver{},
		logger:     slog.Default(),
		prompts:    prompts,
		parser:     NewResponseParser(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run holds the mutable state of one Run call.
type run struct {
	id       string
	cfg      domain.ProviderConfig
	state    *domain.RunState
	started  time.Time
	summary  domain.RunSummary
	request  domain.ValidationRequest
	validate ports.Validator
}

// Run processes one validation request. It returns an error only for a
// *domain.ConfigurationError or when the request cannot be loaded; every
// other outcome, including failure, is reported in the RunSummary. A
// delegated request stays processing until the external workflow engine
// records its terminal status.
func (o *Orchestrator) Run(ctx context.Context, validationID string, opts RunOptions) (domain.RunSummary, error) {
	cfg, err := Resolve(o.cfg, opts.ProviderOverride)
	if err != nil {
		return domain.RunSummary{}, err
	}

	r := &run{
		id:      validationID,
		cfg:     cfg,
		state:   domain.NewRunState(),
		started: o.now(),
		summary: domain.RunSummary{
			ValidationID:       validationID,
			Provider:           cfg.Provider,
			Mode:               cfg.Mode,
			Status:             domain.StatusPending,
			StatusDistribution: make(map[domain.ResultStatus]int),
		},
	}

	if cfg.Mode == domain.ModeDirect {
		r.validate, err = o.validators(ctx, cfg)
		if err != nil {
			return domain.RunSummary{}, configurationFailure("provider", err)
		}
	}

	ctx = o.observer.RunStarted(ctx, validationID, cfg)
	logger := o.logger.With("validation_id", validationID)
	logger.InfoContext(ctx, "validation run started", "provider", cfg.Provider, "mode", cfg.Mode)

	r.request, err = o.store.GetValidation(ctx, validationID)
	if err != nil {
		err = fmt.Errorf("failed to load validation %s: %w", validationID, err)
		r.summary.Status = domain.StatusFailed
		r.summary.ErrorMessage = err.Error()
		o.observer.RunFinished(ctx, r.summary)
		return r.summary, err
	}

	reqs, err := NewRequirementFetcher(o.store).Fetch(ctx, r.request.UnitCode, r.request.Category, r.request.UnitLink)
	if err != nil {
		return o.fail(ctx, logger, r, err), nil
	}
	r.summary.TotalRequirements = len(reqs)

	if err := r.state.Transition(domain.StatusProcessing); err != nil {
		return o.fail(ctx, logger, r, err), nil
	}
	o.updateStatus(ctx, logger, validationID, domain.StatusProcessing, "")
	if err := o.store.UpdateProgress(ctx, validationID, 0, len(reqs)); err != nil {
		logger.ErrorContext(ctx, "failed to reset progress", "error", err)
	}

	docs, err := o.store.ListDocuments(ctx, validationID)
	if err != nil {
		return o.fail(ctx, logger, r, fmt.Errorf("failed to list documents: %w", err)), nil
	}

	if cfg.Mode == domain.ModeDelegated {
		return o.delegate(ctx, logger, r, docs, reqs), nil
	}

	extractorOpts := []ExtractorOption{
		WithExtractorLogger(logger),
		WithExtractorObserver(o.observer),
	}
	if o.cache != nil {
		extractorOpts = append(extractorOpts, WithExtractionCache(o.cache))
	}
	extractor := NewDocumentExtractor(r.validate, o.store, o.objects, extractorOpts...)

	corpus, err := extractor.ExtractAll(ctx, docs)
	r.summary.FailedDocuments = corpus.FailedDocuments
	if err != nil {
		return o.fail(ctx, logger, r, err), nil
	}

	o.processRequirements(ctx, logger, r, reqs, docs, corpus)
	return o.finish(ctx, logger, r), nil
}

func (o *Orchestrator) processRequirements(
	ctx context.Context,
	logger *slog.Logger,
	r *run,
	reqs []domain.Requirement,
	docs []domain.SourceDocument,
	corpus Corpus,
) {
	limiter := o.newLimiter(r.cfg)
	invoker := NewInferenceInvoker(r.validate, limiter, r.cfg.CallTimeout, WithInvokerLogger(logger))
	selector := NewContentSelector(r.cfg.Selector)
	results := NewResultStore(o.store, o.store)

	var indexed []string
	for _, d := range docs {
		if d.IndexedName != "" {
			indexed = append(indexed, d.IndexedName)
		}
	}

	total := len(reqs)
	for i, req := range reqs {
		if ctx.Err() != nil {
			logger.WarnContext(ctx, "run cancelled, remaining requirements not attempted",
				"attempted", i, "total", total)
			r.summary.FailedValidations += total - i
			r.summary.StatusDistribution[domain.ResultError] += total - i
			break
		}

		start := o.now()
		outcome := o.processRequirement(ctx, logger, r, invoker, selector, results, req, indexed, corpus)
		outcome.Elapsed = o.now().Sub(start)
		o.observer.RequirementFinished(ctx, outcome)

		if outcome.Err != nil {
			r.summary.FailedValidations++
		} else {
			r.summary.SuccessfulValidations++
		}

		if err := results.AdvanceProgress(ctx, r.id, i+1, total); err != nil {
			logger.ErrorContext(ctx, "failed to advance progress", "count", i+1, "total", total, "error", err)
		}
	}
}

// processRequirement runs select, invoke, parse and store for one
// requirement. It never returns early without an outcome.
func (o *Orchestrator) processRequirement(
	ctx context.Context,
	logger *slog.Logger,
	r *run,
	invoker *InferenceInvoker,
	selector *ContentSelector,
	results *ResultStore,
	req domain.Requirement,
	indexed []string,
	corpus Corpus,
) ports.RequirementOutcome {
	outcome := ports.RequirementOutcome{Number: req.Number}
	logger = logger.With("requirement", req.Number)

	selection := selector.Select(req, corpus.Fragments, corpus.Text)
	if selection.UsedFallback {
		logger.DebugContext(ctx, "no fragment matched, using corpus prefix")
	}

	prompt, err := o.prompts.Build(PromptData{
		UnitCode:     r.request.UnitCode,
		Category:     r.request.Category,
		DocumentType: r.request.DocumentType,
		Requirement:  req,
		Content:      selection.Content,
	})
	if err != nil {
		logger.ErrorContext(ctx, "requirement failed", "stage", "prompt", "error", err)
		return o.recordFailure(ctx, logger, r, results, req, outcome, err)
	}

	resp, err := invoker.Invoke(ctx, ports.InferenceRequest{
		ValidationID:     r.id,
		UnitCode:         r.request.UnitCode,
		Category:         r.request.Category,
		DocumentType:     r.request.DocumentType,
		Requirement:      req,
		Content:          selection.Content,
		IndexedDocuments: indexed,
		System:           SystemInstruction,
		Prompt:           prompt,
	})
	if err != nil {
		logger.ErrorContext(ctx, "requirement failed", "stage", "inference", "error", err)
		return o.recordFailure(ctx, logger, r, results, req, outcome, err)
	}

	result := domain.ValidationResult{
		RequirementID:     req.ID,
		RequirementNumber: req.Number,
		RequirementType:   req.Type,
	}

	parsed, parseErr := o.parser.Parse(resp.Text, r.request.Category, r.request.UnitCode, []domain.Requirement{req})
	if parseErr != nil {
		// Nothing usable came back: keep an error row so the requirement is
		// visibly unanswered.
		logger.ErrorContext(ctx, "requirement failed", "stage", "parse", "error", parseErr)
		result.Status = domain.ResultError
		result.Reasoning = parseErr.Error()
		result.ParseMode = domain.ParseFallback
		outcome.Err = parseErr
	} else {
		if parsed.Mode == domain.ParseFallback {
			r.summary.ParseFallbacks++
			logger.WarnContext(ctx, "structured parse failed, used fallback parser", "error", parsed.PrimaryErr)
		}
		judgement, _ := parsed.Judgement(req.Number)
		result.Status = judgement.Status
		result.Reasoning = judgement.Reasoning
		result.MappedContent = judgement.MappedContent
		result.Citations = append(judgement.Citations, resp.Citations...)
		result.Questions = judgement.Questions
		result.BenchmarkAnswer = judgement.BenchmarkAnswer
		result.Recommendations = judgement.Recommendations
		result.ParseMode = parsed.Mode
	}
	outcome.Status = result.Status
	outcome.ParseMode = result.ParseMode

	if err := results.Store(ctx, r.id, result); err != nil {
		logger.ErrorContext(ctx, "failed to store result", "error", err, "data_loss_risk", true)
		outcome.Err = err
		outcome.Status = domain.ResultError
		r.summary.StatusDistribution[domain.ResultError]++
		return outcome
	}
	r.summary.StatusDistribution[result.Status]++

	return outcome
}

// recordFailure stores an error row for a requirement that produced no
// response, so every attempted requirement has exactly one row.
func (o *Orchestrator) recordFailure(
	ctx context.Context,
	logger *slog.Logger,
	r *run,
	results *ResultStore,
	req domain.Requirement,
	outcome ports.RequirementOutcome,
	cause error,
) ports.RequirementOutcome {
	outcome.Err = cause
	outcome.Status = domain.ResultError
	outcome.ParseMode = domain.ParseNone
	r.summary.StatusDistribution[domain.ResultError]++

	result := domain.ValidationResult{
		RequirementID:     req.ID,
		RequirementNumber: req.Number,
		RequirementType:   req.Type,
		Status:            domain.ResultError,
		Reasoning:         failureReason(cause),
		ParseMode:         domain.ParseNone,
	}
	// A call cut short by cancellation still leaves its row.
	if err := results.Store(context.WithoutCancel(ctx), r.id, result); err != nil {
		logger.ErrorContext(ctx, "failed to store result", "error", err, "data_loss_risk", true)
	}
	return outcome
}

// failureReason prefers the provider's own message.
func failureReason(err error) string {
	var perr *domain.ProviderError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return err.Error()
}

func (o *Orchestrator) delegate(
	ctx context.Context,
	logger *slog.Logger,
	r *run,
	docs []domain.SourceDocument,
	reqs []domain.Requirement,
) domain.RunSummary {
	if o.dispatchers == nil {
		return o.fail(ctx, logger, r, domain.NewConfigurationError("delegation", "no dispatcher configured"))
	}

	dispatcher, err := o.dispatchers(ctx, r.cfg.Delegation)
	if err != nil {
		return o.fail(ctx, logger, r, fmt.Errorf("failed to create dispatcher: %w", err))
	}

	payload := BuildDelegationPayload(r.request, docs, reqs, r.cfg.Provider)
	if err := dispatcher.Dispatch(ctx, payload); err != nil {
		return o.fail(ctx, logger, r, err)
	}

	if err := r.state.Transition(domain.StatusDelegated); err != nil {
		return o.fail(ctx, logger, r, err)
	}

	r.summary.Status = domain.StatusDelegated
	r.summary.Elapsed = o.now().Sub(r.started)
	logger.InfoContext(ctx, "validation delegated",
		"kind", r.cfg.Delegation.Kind,
		"requirements", len(reqs),
		"documents", len(docs))
	o.observer.RunFinished(ctx, r.summary)
	return r.summary
}

// fail moves the run to failed and records cause as the error message.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, r *run, cause error) domain.RunSummary {
	if err := r.state.Transition(domain.StatusFailed); err != nil {
		logger.ErrorContext(ctx, "unexpected status transition", "error", err)
	}

	r.summary.Status = domain.StatusFailed
	r.summary.ErrorMessage = cause.Error()
	r.summary.Elapsed = o.now().Sub(r.started)

	logger.ErrorContext(ctx, "validation run failed", "error", cause, "fatal", domain.IsFatal(cause))
	o.updateStatus(ctx, logger, r.id, domain.StatusFailed, r.summary.ErrorMessage)
	o.observer.RunFinished(ctx, r.summary)
	return r.summary
}

// finish derives the terminal status from the requirement counts.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, r *run) domain.RunSummary {
	status := domain.Outcome(r.summary.SuccessfulValidations, r.summary.FailedValidations)
	if err := r.state.Transition(status); err != nil {
		logger.ErrorContext(ctx, "unexpected status transition", "error", err)
	}

	message := ""
	switch status {
	case domain.StatusPartial:
		message = fmt.Sprintf("%d of %d requirements failed", r.summary.FailedValidations, r.summary.TotalRequirements)
	case domain.StatusFailed:
		message = fmt.Sprintf("all %d requirements failed for unit %s", r.summary.TotalRequirements, r.request.UnitCode)
	}

	r.summary.Status = status
	r.summary.ErrorMessage = message
	r.summary.Elapsed = o.now().Sub(r.started)

	o.updateStatus(ctx, logger, r.id, status, message)
	logger.InfoContext(ctx, "validation run finished",
		"status", status,
		"total", r.summary.TotalRequirements,
		"succeeded", r.summary.SuccessfulValidations,
		"failed", r.summary.FailedValidations,
		"parse_fallbacks", r.summary.ParseFallbacks,
		"elapsed", r.summary.Elapsed)
	o.observer.RunFinished(ctx, r.summary)
	return r.summary
}

// updateStatus writes through cancellation so a run never stays in
// processing after Run returns.
func (o *Orchestrator) updateStatus(ctx context.Context, logger *slog.Logger, id string, status domain.RunStatus, message string) {
	if err := o.store.UpdateStatus(context.WithoutCancel(ctx), id, status, message); err != nil {
		logger.ErrorContext(ctx, "failed to update run status", "status", status, "error", err)
	}
}

func (o *Orchestrator) newLimiter(cfg domain.ProviderConfig) ports.RateLimiter {
	if o.limiters != nil {
		return o.limiters()
	}
	return FixedDelayFactory(cfg.RateDelay)()
}

func configurationFailure(field string, err error) error {
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &domain.ConfigurationError{Field: field, Reason: "provider could not be initialized", Err: err}
}
