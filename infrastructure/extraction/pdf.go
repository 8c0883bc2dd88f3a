package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ahrav/go-verity/internal/domain"
)

// PDF extracts the text layer of a PDF page by page. Scanned pages without
// a text layer produce nothing; those documents need Document Intelligence.
type PDF struct{}

// NewPDF creates a PDF extractor.
func NewPDF() PDF { return PDF{} }

// Analyze implements ports.DocumentIntelligence.
func (PDF) Analyze(ctx context.Context, filename string, data []byte) (ext domain.Extraction, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			ext = domain.Extraction{}
			err = fmt.Errorf("malformed pdf %s: %v", filename, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("open pdf %s: %w", filename, err)
	}

	var pages []string
	for num := 1; num <= reader.NumPage(); num++ {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}

		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("read page %d of %s: %w", num, filename, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, text)
		ext.Fragments = append(ext.Fragments, paragraphFragments(text, num)...)
	}

	ext.Text = strings.Join(pages, "\n\n")
	return ext, nil
}
