package application

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/ahrav/go-verity/internal/domain"
)

// SystemInstruction frames every inference call.
const SystemInstruction = "You are an assessment validator for vocational training material. " +
	"Judge only against the supplied requirement and evidence. " +
	"Respond with a single JSON object and no other text."

// PromptData is the template input for one requirement.
type PromptData struct {
	UnitCode     string
	Category     string
	DocumentType domain.DocumentType
	Requirement  domain.Requirement
	// Content is empty when the provider retrieves evidence itself.
	Content string
}

const responseFormat = `Respond with JSON in exactly this shape:
{"validations": [{
  "requirement_number": "{{.Requirement.Number}}",
  "status": "compliant" | "non_compliant" | "needs_review",
  "reasoning": "why the evidence does or does not satisfy the requirement",
  "mapped_content": "the passages that address the requirement, with page references",
  "citations": [{"document_name": "", "page": 0, "text": ""}],
  "questions": ["assessment questions that would close any gap"],
  "benchmark_answer": "a model answer for the questions",
  "recommendations": ["concrete changes to the material"]
}]}`

const unitTemplate = `Unit of competency: {{upper .UnitCode}}
{{- if .Category}}
Requirement category: {{.Category}}{{end}}
The documents are assessment tools (tasks, checklists, marking guides) written for this unit.

Requirement {{.Requirement.Number}}{{if .Requirement.Type}} ({{.Requirement.Type}}){{end}}:
{{trim .Requirement.Text}}

Decide whether the assessment tools collect sufficient evidence that a learner meets this requirement.
{{if .Content}}
Evidence extracted from the documents:
{{.Content}}
{{else}}
Search the indexed documents for evidence addressing this requirement.
{{end}}
` + responseFormat

const learnerGuideTemplate = `Unit of competency: {{upper .UnitCode}}
{{- if .Category}}
Requirement category: {{.Category}}{{end}}
The documents are a learner guide: training content a learner studies before assessment.

Requirement {{.Requirement.Number}}{{if .Requirement.Type}} ({{.Requirement.Type}}){{end}}:
{{trim .Requirement.Text}}

Decide whether the learner guide teaches the knowledge or skill this requirement describes.
Questions should check understanding of the guide's content.
{{if .Content}}
Content extracted from the guide:
{{.Content}}
{{else}}
Search the indexed documents for content addressing this requirement.
{{end}}
` + responseFormat

// PromptBuilder renders per-requirement prompts. Templates are parsed once
// and safe for concurrent use.
type PromptBuilder struct {
	templates map[domain.DocumentType]*template.Template
}

// NewPromptBuilder parses the built-in templates.
func NewPromptBuilder() (*PromptBuilder, error) {
	sources := map[domain.DocumentType]string{
		domain.DocumentTypeUnit:         unitTemplate,
		domain.DocumentTypeLearnerGuide: learnerGuideTemplate,
	}

	b := &PromptBuilder{templates: make(map[domain.DocumentType]*template.Template, len(sources))}
	for docType, src := range sources {
		tmpl, err := template.New(string(docType)).Funcs(TemplateFuncMap()).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt template: %w", docType, err)
		}
		b.templates[docType] = tmpl
	}
	return b, nil
}

// Build renders the prompt for data. An unknown document type uses the
// unit template.
func (b *PromptBuilder) Build(data PromptData) (string, error) {
	tmpl, ok := b.templates[data.DocumentType]
	if !ok {
		tmpl = b.templates[domain.DocumentTypeUnit]
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt for requirement %s: %w", data.Requirement.Number, err)
	}
	return buf.String(), nil
}

// TemplateFuncMap returns the functions available to prompt templates.
//
// Template usage:
//
//	{{upper .UnitCode}} {{truncate .Content 500}} {{join .Questions "; "}}
func TemplateFuncMap() template.FuncMap {
	return template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},

		"contains": func(s, substr string) bool {
			return strings.Contains(s, substr)
		},

		// truncate cuts on a rune boundary and appends "..." when it cuts.
		"truncate": func(s string, length int) string {
			if length <= 0 {
				return ""
			}
			if len([]rune(s)) <= length {
				return s
			}
			if length > 3 {
				return truncateRunes(s, length-3) + "..."
			}
			return truncateRunes(s, length)
		},

		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"trim":  strings.TrimSpace,

		"join": func(elems []string, sep string) string {
			return strings.Join(elems, sep)
		},
	}
}
