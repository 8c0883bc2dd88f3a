package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// mockValidator implements ports.Validator with scripted replies.
type mockValidator struct {
	mu sync.Mutex

	name domain.ProviderName

	// responses maps a requirement number to the raw reply text.
	responses map[string]string
	// failures maps a requirement number to the error to return.
	failures map[string]error
	// delay is applied before each ValidateRequirement reply.
	delay time.Duration

	// extractions maps filename to extracted text; extractErr fails all.
	extractions map[string]domain.Extraction
	extractErr  map[string]error
	citations   []domain.Citation

	validateCalls int
	extractCalls  map[string]int
	requests      []ports.InferenceRequest
}

func newMockValidator() *mockValidator {
	return &mockValidator{
		name:         domain.ProviderGrounded,
		responses:    make(map[string]string),
		failures:     make(map[string]error),
		extractions:  make(map[string]domain.Extraction),
		extractErr:   make(map[string]error),
		extractCalls: make(map[string]int),
	}
}

func (m *mockValidator) Name() domain.ProviderName { return m.name }

func (m *mockValidator) ValidateRequirement(ctx context.Context, req ports.InferenceRequest) (ports.RawResponse, error) {
	m.mu.Lock()
	m.validateCalls++
	m.requests = append(m.requests, req)
	delay := m.delay
	failure := m.failures[req.Requirement.Number]
	text, ok := m.responses[req.Requirement.Number]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ports.RawResponse{}, ctx.Err()
		}
	}
	if failure != nil {
		return ports.RawResponse{}, failure
	}
	if !ok {
		text = compliantJSON(req.Requirement.Number)
	}
	return ports.RawResponse{Text: text, Citations: m.citations, Model: "mock-model", TokensIn: 10, TokensOut: 20}, nil
}

func (m *mockValidator) ExtractDocument(_ context.Context, filename string, _ []byte) (domain.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractCalls[filename]++
	if err := m.extractErr[filename]; err != nil {
		return domain.Extraction{}, err
	}
	if e, ok := m.extractions[filename]; ok {
		return e, nil
	}
	return domain.Extraction{Text: "text of " + filename}, nil
}

func (m *mockValidator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateCalls
}

func (m *mockValidator) extracted(filename string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extractCalls[filename]
}

func compliantJSON(number string) string {
	return fmt.Sprintf(`{"validations":[{"requirement_number":%q,"status":"compliant","reasoning":"Covered in task 2.","mapped_content":"Task 2 asks the learner to %s."}]}`,
		number, number)
}

// recordingLimiter counts waits that would have paused.
type recordingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (r *recordingLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits++
	return ctx.Err()
}

// recordingObserver captures lifecycle events.
type recordingObserver struct {
	mu           sync.Mutex
	started      int
	extractions  []ports.ExtractionOutcome
	requirements []ports.RequirementOutcome
	finished     []domain.RunSummary
}

func (r *recordingObserver) RunStarted(ctx context.Context, _ string, _ domain.ProviderConfig) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return ctx
}

func (r *recordingObserver) DocumentExtracted(_ context.Context, o ports.ExtractionOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractions = append(r.extractions, o)
}

func (r *recordingObserver) RequirementFinished(_ context.Context, o ports.RequirementOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requirements = append(r.requirements, o)
}

func (r *recordingObserver) RunFinished(_ context.Context, s domain.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, s)
}

// mapCache is an in-memory ports.ExtractionCache.
type mapCache struct {
	mu     sync.Mutex
	values map[string]domain.Extraction
	sets   int
	getErr error
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string]domain.Extraction)}
}

func (c *mapCache) Get(_ context.Context, key string) (domain.Extraction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.Extraction{}, c.getErr
	}
	v, ok := c.values[key]
	if !ok {
		return domain.Extraction{}, ports.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value domain.Extraction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.sets++
	return nil
}

// mockDispatcher records delegation payloads.
type mockDispatcher struct {
	mu       sync.Mutex
	payloads []ports.DelegationPayload
	err      error
}

func (d *mockDispatcher) Dispatch(_ context.Context, payload ports.DelegationPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, payload)
	return d.err
}

var errProviderDown = errors.New("503 Service Unavailable: backend overloaded")
