package application

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/go-verity/internal/domain"
)

// maxFallbackReasoning bounds the raw text kept as reasoning when no
// structured reasoning can be salvaged.
const maxFallbackReasoning = 2000

// maxVerdictDistance is the largest edit distance accepted between a word
// and a verdict keyword.
const maxVerdictDistance = 2

// RequirementJudgement is one normalized verdict.
type RequirementJudgement struct {
	RequirementNumber string
	Status            domain.ResultStatus
	Reasoning         string
	MappedContent     string
	Citations         []domain.Citation
	Questions         []string
	BenchmarkAnswer   string
	Recommendations   []string
}

// ValidationResponse holds the judgements parsed from one provider reply.
type ValidationResponse struct {
	Results []RequirementJudgement
}

// ParseOutcome tags a response with the parser stage that produced it.
type ParseOutcome struct {
	Mode     domain.ParseMode
	Response ValidationResponse
	// PrimaryErr explains why the structured parse was abandoned. It is nil
	// when Mode is ParsePrimary.
	PrimaryErr error
}

// Judgement returns the verdict for number, if any.
func (o ParseOutcome) Judgement(number string) (RequirementJudgement, bool) {
	for _, j := range o.Response.Results {
		if j.RequirementNumber == number {
			return j, true
		}
	}
	return RequirementJudgement{}, false
}

// rawJudgement mirrors the JSON the prompt asks for.
type rawJudgement struct {
	RequirementNumber string        `json:"requirement_number"`
	Status            string        `json:"status" validate:"required,resultstatus"`
	Reasoning         string        `json:"reasoning" validate:"required"`
	MappedContent     string        `json:"mapped_content"`
	Citations         []rawCitation `json:"citations" validate:"dive"`
	Questions         []string      `json:"questions"`
	BenchmarkAnswer   string        `json:"benchmark_answer"`
	Recommendations   []string      `json:"recommendations"`
}

type rawCitation struct {
	DocumentName string   `json:"document_name"`
	Page         flexPage `json:"page" validate:"min=0"`
	Text         string   `json:"text"`
}

// flexPage accepts a page given as a number or a numeric string.
type flexPage int

func (p *flexPage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("page %s is not numeric", data)
	}
	*p = flexPage(f)
	return nil
}

// ResponseParser converts provider text into judgements. The structured
// stage runs first; the heuristic stage only runs when it fails.
type ResponseParser struct{}

// NewResponseParser creates a parser.
func NewResponseParser() *ResponseParser { return &ResponseParser{} }

// Parse interprets raw for the given requirements. It fails only when raw
// holds nothing to salvage or no requirements were given.
func (p *ResponseParser) Parse(raw, category, unitCode string, requirements []domain.Requirement) (ParseOutcome, error) {
	number := ""
	if len(requirements) > 0 {
		number = requirements[0].Number
	}

	if strings.TrimSpace(raw) == "" {
		return ParseOutcome{}, &domain.ParseError{RequirementNumber: number, Err: domain.ErrEmptyResponse}
	}
	if len(requirements) == 0 {
		return ParseOutcome{}, &domain.ParseError{Err: fmt.Errorf("no requirements to match for unit %s", unitCode)}
	}

	resp, err := p.parsePrimary(raw, requirements)
	if err == nil {
		return ParseOutcome{Mode: domain.ParsePrimary, Response: resp}, nil
	}

	return ParseOutcome{
		Mode:       domain.ParseFallback,
		Response:   p.parseFallback(raw, requirements),
		PrimaryErr: &domain.ParseError{RequirementNumber: number, Err: err},
	}, nil
}

func (p *ResponseParser) parsePrimary(raw string, requirements []domain.Requirement) (ValidationResponse, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return ValidationResponse{}, errors.New("no JSON object in response")
	}

	judgements, err := decodeJudgements(payload)
	if err != nil {
		return ValidationResponse{}, err
	}
	if len(judgements) == 0 {
		return ValidationResponse{}, errors.New("response contains no validations")
	}

	for i := range judgements {
		if err := configValidator.Struct(judgements[i]); err != nil {
			return ValidationResponse{}, fmt.Errorf("validation %d failed schema check: %w", i, err)
		}
	}

	results := bindJudgements(judgements, requirements)
	if len(results) == 0 {
		return ValidationResponse{}, errors.New("no validation matches a requested requirement")
	}
	return ValidationResponse{Results: results}, nil
}

func decodeJudgements(payload string) ([]rawJudgement, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	for _, key := range []string{"validations", "results"} {
		list, ok := envelope[key]
		if !ok {
			continue
		}
		var judgements []rawJudgement
		if err := json.Unmarshal(list, &judgements); err != nil {
			return nil, fmt.Errorf("invalid %s list: %w", key, err)
		}
		return judgements, nil
	}

	var single rawJudgement
	if err := json.Unmarshal([]byte(payload), &single); err != nil {
		return nil, fmt.Errorf("invalid validation object: %w", err)
	}
	return []rawJudgement{single}, nil
}

// bindJudgements matches judgements to requirements by number. A single
// judgement for a single requirement is bound regardless of the number the
// model echoed back. Judgements for unknown requirements are dropped.
func bindJudgements(judgements []rawJudgement, requirements []domain.Requirement) []RequirementJudgement {
	if len(judgements) == 1 && len(requirements) == 1 {
		return []RequirementJudgement{normalizeJudgement(judgements[0], requirements[0].Number)}
	}

	byNumber := make(map[string]string, len(requirements))
	for _, r := range requirements {
		byNumber[canonicalNumber(r.Number)] = r.Number
	}

	seen := make(map[string]bool, len(requirements))
	var results []RequirementJudgement
	for _, j := range judgements {
		number, ok := byNumber[canonicalNumber(j.RequirementNumber)]
		if !ok || seen[number] {
			continue
		}
		seen[number] = true
		results = append(results, normalizeJudgement(j, number))
	}
	return results
}

func normalizeJudgement(j rawJudgement, number string) RequirementJudgement {
	status, _ := normalizeStatus(j.Status)

	var citations []domain.Citation
	for _, c := range j.Citations {
		citations = append(citations, domain.Citation{
			DocumentName: c.DocumentName,
			Page:         int(c.Page),
			Text:         c.Text,
		})
	}

	return RequirementJudgement{
		RequirementNumber: number,
		Status:            status,
		Reasoning:         strings.TrimSpace(j.Reasoning),
		MappedContent:     strings.TrimSpace(j.MappedContent),
		Citations:         citations,
		Questions:         nonEmpty(j.Questions),
		BenchmarkAnswer:   strings.TrimSpace(j.BenchmarkAnswer),
		Recommendations:   nonEmpty(j.Recommendations),
	}
}

func canonicalNumber(n string) string {
	return strings.ToLower(strings.TrimSpace(n))
}

func nonEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var statusAliases = map[string]domain.ResultStatus{
	"compliant":           domain.ResultCompliant,
	"met":                 domain.ResultCompliant,
	"fully_met":           domain.ResultCompliant,
	"satisfied":           domain.ResultCompliant,
	"pass":                domain.ResultCompliant,
	"non_compliant":       domain.ResultNonCompliant,
	"noncompliant":        domain.ResultNonCompliant,
	"not_compliant":       domain.ResultNonCompliant,
	"not_met":             domain.ResultNonCompliant,
	"unmet":               domain.ResultNonCompliant,
	"not_satisfied":       domain.ResultNonCompliant,
	"fail":                domain.ResultNonCompliant,
	"needs_review":        domain.ResultNeedsReview,
	"review":              domain.ResultNeedsReview,
	"partial":             domain.ResultNeedsReview,
	"partially_met":       domain.ResultNeedsReview,
	"partially_compliant": domain.ResultNeedsReview,
	"unclear":             domain.ResultNeedsReview,
	"error":               domain.ResultError,
}

// normalizeStatus maps a verdict spelling onto a ResultStatus. Case,
// surrounding space, hyphens and inner spaces are ignored.
func normalizeStatus(s string) (domain.ResultStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	status, ok := statusAliases[key]
	return status, ok
}

var (
	jsonStatusRe    = regexp.MustCompile(`(?i)"status"\s*:\s*"([^"]*)"`)
	jsonReasoningRe = regexp.MustCompile(`(?is)"reasoning"\s*:\s*"((?:[^"\\]|\\.)*)`)

	// A negation may be separated from its verdict by up to two words, as in
	// "not fully compliant".
	nonCompliantRe = regexp.MustCompile(`(?i)\b(non[\s_-]?compliant` +
		`|(?:not|never|isn't|aren't|wasn't)(?:[\s_-]+\w+){0,2}?[\s_-]+(?:compliant|met|satisfied|addressed)` +
		`|no\s+(?:evidence|mention|coverage)` +
		`|(?:does|do|did)\s*(?:not|n't)\s+(?:\w+\s+)?(?:meet|address|satisfy|cover|demonstrate)` +
		`|fail(?:s|ed)?\s+to\s+(?:\w+\s+)?(?:meet|address|satisfy|cover|demonstrate)` +
		`|unmet|insufficient)\b`)
	reviewRe = regexp.MustCompile(`(?i)\b(needs?[\s_-]+review|partially[\s_-]+(?:compliant|met)|partial|unclear|uncertain|inconclusive` +
		`|(?:unable\s+to|can(?:not|'t)|could\s*(?:not|n't))\s+(?:be\s+)?(?:determined?|assess(?:ed)?|confirm(?:ed)?|verif(?:y|ied)))\b`)
	compliantRe = regexp.MustCompile(`(?i)\b(compliant|fully[\s_-]+met|satisfied)\b`)
)

// parseFallback scans the text near each requirement number for a verdict.
// It always yields one judgement per requirement.
func (p *ResponseParser) parseFallback(raw string, requirements []domain.Requirement) ValidationResponse {
	windows := requirementWindows(raw, requirements)

	results := make([]RequirementJudgement, 0, len(requirements))
	for _, r := range requirements {
		window := windows[r.Number]

		reasoning := ""
		if m := jsonReasoningRe.FindStringSubmatch(window); m != nil {
			reasoning = unescapeJSONFragment(m[1])
		}
		if strings.TrimSpace(reasoning) == "" {
			reasoning = truncateRunes(strings.TrimSpace(window), maxFallbackReasoning)
		}

		results = append(results, RequirementJudgement{
			RequirementNumber: r.Number,
			Status:            scanVerdict(window),
			Reasoning:         strings.TrimSpace(reasoning),
		})
	}
	return ValidationResponse{Results: results}
}

// requirementWindows splits raw into the spans that follow each
// requirement number. A requirement whose number never appears gets the
// whole text when it is the only requirement and an empty window
// otherwise.
func requirementWindows(raw string, requirements []domain.Requirement) map[string]string {
	windows := make(map[string]string, len(requirements))
	if len(requirements) == 1 {
		windows[requirements[0].Number] = raw
		return windows
	}

	type hit struct {
		number string
		at     int
	}
	var hits []hit
	for _, r := range requirements {
		if r.Number == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)(^|[^\w.])` + regexp.QuoteMeta(r.Number) + `($|[^\w.]|\.\s)`)
		if err != nil {
			continue
		}
		if loc := re.FindStringIndex(raw); loc != nil {
			hits = append(hits, hit{number: r.Number, at: loc[0]})
		}
	}

	for _, h := range hits {
		end := len(raw)
		for _, other := range hits {
			if other.at > h.at && other.at < end {
				end = other.at
			}
		}
		windows[h.number] = raw[h.at:end]
	}
	return windows
}

// scanVerdict picks the most conservative verdict stated in text, then
// tries misspelled keywords, and defaults to needs_review.
func scanVerdict(text string) domain.ResultStatus {
	if text == "" {
		return domain.ResultNeedsReview
	}
	if m := jsonStatusRe.FindStringSubmatch(text); m != nil {
		if status, ok := normalizeStatus(m[1]); ok {
			return status
		}
	}

	switch {
	case nonCompliantRe.MatchString(text):
		return domain.ResultNonCompliant
	case reviewRe.MatchString(text):
		return domain.ResultNeedsReview
	case compliantRe.MatchString(text):
		return domain.ResultCompliant
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for i, w := range words {
		if len(w) < 6 || verdictLookalikes[w] {
			continue
		}
		nonDist := levenshtein.ComputeDistance(w, "noncompliant")
		dist := levenshtein.ComputeDistance(w, "compliant")
		switch {
		case nonDist <= maxVerdictDistance && nonDist < dist:
			return domain.ResultNonCompliant
		case dist <= maxVerdictDistance:
			if negatedAt(words, i) {
				return domain.ResultNonCompliant
			}
			return domain.ResultCompliant
		}
	}
	return domain.ResultNeedsReview
}

// verdictLookalikes are real words within edit distance of a verdict
// keyword. They never count as a misspelled verdict.
var verdictLookalikes = map[string]bool{
	"compliance":    true,
	"compliancy":    true,
	"complaint":     true,
	"complaints":    true,
	"complain":      true,
	"complains":     true,
	"compliment":    true,
	"complement":    true,
	"complying":     true,
	"complicit":     true,
	"noncompliance": true,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "without": true, "cannot": true,
	"isn": true, "aren": true, "wasn": true, "doesn": true, "didn": true,
}

// negatedAt reports whether one of the three words before words[i] is a
// negation.
func negatedAt(words []string, i int) bool {
	for j := max(0, i-3); j < i; j++ {
		if negations[words[j]] {
			return true
		}
	}
	return false
}

// unescapeJSONFragment decodes a possibly truncated JSON string body.
func unescapeJSONFragment(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err == nil {
		return out
	}
	// A trailing partial escape sequence cannot be decoded; drop it.
	if i := strings.LastIndexByte(s, '\\'); i >= 0 {
		if err := json.Unmarshal([]byte(`"`+s[:i]+`"`), &out); err == nil {
			return out
		}
	}
	return s
}

// extractJSON returns the first JSON object in response. It prefers a
// ```json fence, then a generic fence whose body starts with "{", then
// brace matching that ignores braces inside strings.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += len("```")
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
