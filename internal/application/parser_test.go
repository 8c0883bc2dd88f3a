package application

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-verity/internal/domain"
)

func reqs(numbers ...string) []domain.Requirement {
	out := make([]domain.Requirement, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, domain.Requirement{ID: "r-" + n, Number: n})
	}
	return out
}

func TestResponseParser_Primary(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		requirements []domain.Requirement
		verify       func(t *testing.T, resp ValidationResponse)
	}{
		{
			name: "validations envelope",
			raw: `{"validations":[{"requirement_number":"KE1","status":"Compliant","reasoning":"Task 3 covers it.",
				"mapped_content":"Task 3","citations":[{"document_name":"tasks.pdf","page":4,"text":"Task 3"}],
				"questions":["What is a hazard?",""],"benchmark_answer":"A source of harm.","recommendations":[]}]}`,
			requirements: reqs("KE1"),
			verify: func(t *testing.T, resp ValidationResponse) {
				require.Len(t, resp.Results, 1)
				j := resp.Results[0]
				assert.Equal(t, "KE1", j.RequirementNumber)
				assert.Equal(t, domain.ResultCompliant, j.Status)
				assert.Equal(t, "Task 3 covers it.", j.Reasoning)
				assert.Equal(t, []domain.Citation{{DocumentName: "tasks.pdf", Page: 4, Text: "Task 3"}}, j.Citations)
				assert.Equal(t, []string{"What is a hazard?"}, j.Questions)
				assert.Nil(t, j.Recommendations)
			},
		},
		{
			name:         "single object inside a json fence",
			raw:          "Here is my assessment:\n```json\n{\"status\": \"not met\", \"reasoning\": \"No task addresses it.\"}\n```\nThanks.",
			requirements: reqs("PC2.3"),
			verify: func(t *testing.T, resp ValidationResponse) {
				require.Len(t, resp.Results, 1)
				assert.Equal(t, "PC2.3", resp.Results[0].RequirementNumber)
				assert.Equal(t, domain.ResultNonCompliant, resp.Results[0].Status)
			},
		},
		{
			name:         "echoed number differs for a single requirement",
			raw:          `{"validations":[{"requirement_number":"Knowledge Evidence 1","status":"needs-review","reasoning":"Ambiguous."}]}`,
			requirements: reqs("KE1"),
			verify: func(t *testing.T, resp ValidationResponse) {
				assert.Equal(t, "KE1", resp.Results[0].RequirementNumber)
				assert.Equal(t, domain.ResultNeedsReview, resp.Results[0].Status)
			},
		},
		{
			name: "multiple requirements matched by number, unknown dropped",
			raw: `{"results":[
				{"requirement_number":"1.2","status":"non_compliant","reasoning":"missing"},
				{"requirement_number":"9.9","status":"compliant","reasoning":"not requested"},
				{"requirement_number":"1.1","status":"compliant","reasoning":"present"}]}`,
			requirements: reqs("1.1", "1.2"),
			verify: func(t *testing.T, resp ValidationResponse) {
				require.Len(t, resp.Results, 2)
				assert.Equal(t, "1.2", resp.Results[0].RequirementNumber)
				assert.Equal(t, "1.1", resp.Results[1].RequirementNumber)
			},
		},
		{
			name:         "page as string and braces inside strings",
			raw:          `prefix {"status":"compliant","reasoning":"uses {placeholders} and \"quotes\"","citations":[{"page":"12"}]} suffix`,
			requirements: reqs("FS1"),
			verify: func(t *testing.T, resp ValidationResponse) {
				assert.Equal(t, `uses {placeholders} and "quotes"`, resp.Results[0].Reasoning)
				assert.Equal(t, 12, resp.Results[0].Citations[0].Page)
			},
		},
	}

	parser := NewResponseParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a well-formed provider reply
			// When it is parsed
			outcome, err := parser.Parse(tt.raw, "knowledge_evidence", "TLIF0025", tt.requirements)

			// Then the structured stage produced the result
			require.NoError(t, err)
			assert.Equal(t, domain.ParsePrimary, outcome.Mode)
			assert.NoError(t, outcome.PrimaryErr)
			tt.verify(t, outcome.Response)
		})
	}
}

func TestResponseParser_Fallback(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		requirements  []domain.Requirement
		wantStatus    map[string]domain.ResultStatus
		wantReasoning string
	}{
		{
			name:          "truncated JSON salvages status and reasoning",
			raw:           `{"validations":[{"requirement_number":"KE1","status":"compliant","reasoning":"Task 4 asks the learner to list hazards`,
			requirements:  reqs("KE1"),
			wantStatus:    map[string]domain.ResultStatus{"KE1": domain.ResultCompliant},
			wantReasoning: "Task 4 asks the learner to list hazards",
		},
		{
			name:         "prose verdict",
			raw:          "After review, requirement KE1 is NOT MET because the tasks never mention load charts.",
			requirements: reqs("KE1"),
			wantStatus:   map[string]domain.ResultStatus{"KE1": domain.ResultNonCompliant},
		},
		{
			name:         "misspelled keyword",
			raw:          "The material looks complient with the requirement.",
			requirements: reqs("PC1.1"),
			wantStatus:   map[string]domain.ResultStatus{"PC1.1": domain.ResultCompliant},
		},
		{
			name:         "negated misspelled keyword",
			raw:          "The material is not really complient with the requirement.",
			requirements: reqs("PC1.1"),
			wantStatus:   map[string]domain.ResultStatus{"PC1.1": domain.ResultNonCompliant},
		},
		{
			name:         "no evidence of compliance",
			raw:          "KE1: There is no evidence of compliance with this requirement in the tool.",
			requirements: reqs("KE1"),
			wantStatus:   map[string]domain.ResultStatus{"KE1": domain.ResultNonCompliant},
		},
		{
			name:         "undetermined compliance",
			raw:          "KE1: Unable to determine compliance.",
			requirements: reqs("KE1"),
			wantStatus:   map[string]domain.ResultStatus{"KE1": domain.ResultNeedsReview},
		},
		{
			name:         "negation separated from the verdict",
			raw:          "KE1: The assessment is not fully compliant, load charts are missing.",
			requirements: reqs("KE1"),
			wantStatus:   map[string]domain.ResultStatus{"KE1": domain.ResultNonCompliant},
		},
		{
			name:         "contracted negation",
			raw:          "KE1: The tool doesn't meet the requirement.",
			requirements: reqs("KE1"),
			wantStatus:   map[string]domain.ResultStatus{"KE1": domain.ResultNonCompliant},
		},
		{
			name:         "dictionary lookalike is not a verdict",
			raw:          "KE1: The learner lodged a complaint about the trainer.",
			requirements: reqs("KE1"),
			wantStatus:   map[string]domain.ResultStatus{"KE1": domain.ResultNeedsReview},
		},
		{
			name:         "misspelled negative keyword",
			raw:          "Verdict: noncomplaint.",
			requirements: reqs("PC1.1"),
			wantStatus:   map[string]domain.ResultStatus{"PC1.1": domain.ResultNonCompliant},
		},
		{
			name:          "no verdict defaults to needs review",
			raw:           "I could not find the documents you mentioned.",
			requirements:  reqs("FS2"),
			wantStatus:    map[string]domain.ResultStatus{"FS2": domain.ResultNeedsReview},
			wantReasoning: "I could not find the documents you mentioned.",
		},
		{
			name: "windows per requirement number",
			raw: "1.1: The guide is compliant, chapter 2 explains it.\n" +
				"1.2: Non-compliant, nothing covers emergency stops.\n" +
				"1.10: partially met.",
			requirements: reqs("1.1", "1.2", "1.10", "2.1"),
			wantStatus: map[string]domain.ResultStatus{
				"1.1":  domain.ResultCompliant,
				"1.2":  domain.ResultNonCompliant,
				"1.10": domain.ResultNeedsReview,
				"2.1":  domain.ResultNeedsReview,
			},
		},
	}

	parser := NewResponseParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a malformed but non-empty reply
			// When it is parsed
			outcome, err := parser.Parse(tt.raw, "", "TLIF0025", tt.requirements)

			// Then a fallback result is returned with one judgement per requirement
			require.NoError(t, err)
			assert.Equal(t, domain.ParseFallback, outcome.Mode)
			var parseErr *domain.ParseError
			assert.ErrorAs(t, outcome.PrimaryErr, &parseErr)
			require.Len(t, outcome.Response.Results, len(tt.requirements))
			for number, want := range tt.wantStatus {
				j, ok := outcome.Judgement(number)
				require.True(t, ok, number)
				assert.Equal(t, want, j.Status, number)
			}
			if tt.wantReasoning != "" {
				assert.Equal(t, tt.wantReasoning, outcome.Response.Results[0].Reasoning)
			}
		})
	}
}

func TestResponseParser_SchemaFailureFallsBack(t *testing.T) {
	parser := NewResponseParser()

	// Valid JSON but an unknown status word fails the schema check.
	outcome, err := parser.Parse(`{"status":"maybe","reasoning":"unsure, possibly compliant"}`, "", "TLIF0025", reqs("KE3"))

	require.NoError(t, err)
	assert.Equal(t, domain.ParseFallback, outcome.Mode)
	assert.Contains(t, outcome.PrimaryErr.Error(), "schema")
	assert.Equal(t, domain.ResultCompliant, outcome.Response.Results[0].Status)
}

func TestResponseParser_Errors(t *testing.T) {
	parser := NewResponseParser()

	t.Run("empty input", func(t *testing.T) {
		_, err := parser.Parse("  \n\t", "", "TLIF0025", reqs("KE1"))

		var parseErr *domain.ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "KE1", parseErr.RequirementNumber)
		assert.ErrorIs(t, err, domain.ErrEmptyResponse)
	})

	t.Run("no requirements", func(t *testing.T) {
		_, err := parser.Parse("compliant", "", "TLIF0025", nil)

		var parseErr *domain.ParseError
		require.ErrorAs(t, err, &parseErr)
	})
}

func TestResponseParser_FallbackReasoningIsBounded(t *testing.T) {
	parser := NewResponseParser()
	raw := strings.Repeat("word ", 1000)

	outcome, err := parser.Parse(raw, "", "TLIF0025", reqs("KE1"))

	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(outcome.Response.Results[0].Reasoning)), maxFallbackReasoning)
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   domain.ResultStatus
		wantOK bool
	}{
		{"compliant", domain.ResultCompliant, true},
		{" COMPLIANT ", domain.ResultCompliant, true},
		{"Non-Compliant", domain.ResultNonCompliant, true},
		{"not compliant", domain.ResultNonCompliant, true},
		{"Needs Review", domain.ResultNeedsReview, true},
		{"partially met", domain.ResultNeedsReview, true},
		{"error", domain.ResultError, true},
		{"maybe", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeStatus(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"generic fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"nested with prose", `result: {"a":{"b":"}"}} done`, `{"a":{"b":"}"}}`},
		{"unterminated", `{"a":`, ""},
		{"no object", "compliant", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}
