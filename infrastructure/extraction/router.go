// Package extraction turns uploaded document bytes into text and
// page-tagged fragments. Local backends handle PDF and plain text; the
// Azure client calls Document Intelligence for everything else.
package extraction

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// Router picks an extraction backend by file extension.
type Router struct {
	routes   map[string]ports.DocumentIntelligence
	fallback ports.DocumentIntelligence
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRoute sends files with any of the given extensions to backend.
// Extensions are matched case-insensitively and may omit the dot.
func WithRoute(backend ports.DocumentIntelligence, exts ...string) RouterOption {
	return func(r *Router) {
		for _, ext := range exts {
			r.routes[normalizeExt(ext)] = backend
		}
	}
}

// WithFallback handles every extension without a route.
func WithFallback(backend ports.DocumentIntelligence) RouterOption {
	return func(r *Router) { r.fallback = backend }
}

// NewRouter creates a Router. Without routes or a fallback every file is
// rejected with ports.ErrUnsupportedFormat.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{routes: make(map[string]ports.DocumentIntelligence)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewLocalRouter handles PDF and plain text without any remote service.
func NewLocalRouter() *Router {
	return NewRouter(
		WithRoute(NewPDF(), ".pdf"),
		WithRoute(NewPlaintext(), PlaintextExtensions...),
	)
}

// Analyze implements ports.DocumentIntelligence.
func (r *Router) Analyze(ctx context.Context, filename string, data []byte) (domain.Extraction, error) {
	ext := normalizeExt(filepath.Ext(filename))
	backend, ok := r.routes[ext]
	if !ok {
		backend = r.fallback
	}
	if backend == nil {
		return domain.Extraction{}, fmt.Errorf("%s: %w", filename, ports.ErrUnsupportedFormat)
	}
	return backend.Analyze(ctx, filename, data)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
