package extraction

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/ahrav/go-verity/internal/domain"
)

// PlaintextExtensions are the extensions NewLocalRouter sends to Plaintext.
var PlaintextExtensions = []string{".txt", ".text", ".md", ".csv"}

// Plaintext extracts text files. Form feeds separate pages. Bytes that are
// not valid UTF-8 are decoded as Windows-1252, the usual encoding of text
// exported from office tools.
type Plaintext struct{}

// NewPlaintext creates a Plaintext extractor.
func NewPlaintext() Plaintext { return Plaintext{} }

// Analyze implements ports.DocumentIntelligence.
func (Plaintext) Analyze(ctx context.Context, _ string, data []byte) (domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Extraction{}, err
	}

	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return domain.Extraction{}, err
		}
		data = decoded
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	var (
		fragments []domain.Fragment
		pages     []string
	)
	for i, page := range strings.Split(text, "\f") {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		pages = append(pages, page)
		fragments = append(fragments, paragraphFragments(page, i+1)...)
	}

	return domain.Extraction{Text: strings.Join(pages, "\n\n"), Fragments: fragments}, nil
}

// paragraphFragments splits a page on blank lines.
func paragraphFragments(page string, number int) []domain.Fragment {
	var out []domain.Fragment
	for _, para := range strings.Split(page, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			out = append(out, domain.Fragment{Text: para, Page: number})
		}
	}
	return out
}
