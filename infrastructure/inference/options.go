package inference

import (
	"log/slog"

	"github.com/ahrav/go-verity/infrastructure/llm"
	"github.com/ahrav/go-verity/internal/ports"
)

type options struct {
	logger     *slog.Logger
	generator  ContentGenerator
	llmClient  ports.LLMClient
	docIntel   ports.DocumentIntelligence
	middleware []llm.Middleware
}

// Option configures the validators and the Factory.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithContentGenerator replaces the Vertex AI client of the grounded
// validator.
func WithContentGenerator(g ContentGenerator) Option {
	return func(o *options) { o.generator = g }
}

// WithLLMClient replaces the chat client of the completion validator.
func WithLLMClient(c ports.LLMClient) Option {
	return func(o *options) { o.llmClient = c }
}

// WithDocumentIntelligence replaces the remote extraction backend of the
// completion validator.
func WithDocumentIntelligence(d ports.DocumentIntelligence) Option {
	return func(o *options) { o.docIntel = d }
}

// WithMiddleware wraps chat clients built from settings. The first entry is
// the outermost.
func WithMiddleware(mw ...llm.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, mw...) }
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
