package application

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-verity/internal/domain"
)

func TestContentSelector_Keywords(t *testing.T) {
	s := NewContentSelector(domain.SelectorSettings{})

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "first three long words in order",
			text: "Identify hazards, assess workplace risks and implement controls.",
			want: []string{"identify", "hazards", "assess"},
		},
		{
			name: "short words are skipped",
			text: "Use the PPE kit on site to check forklift brakes",
			want: []string{"forklift", "brakes"},
		},
		{
			name: "duplicates collapse case-insensitively",
			text: "Procedures, PROCEDURES and procedures again for emergency response",
			want: []string{"procedures", "emergency", "response"},
		},
		{
			name: "empty text",
			text: "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Keywords(tt.text))
		})
	}
}

func TestContentSelector_Select(t *testing.T) {
	fragments := []domain.Fragment{
		{Text: "Section 4 covers loading procedures for freight.", Page: 7, Source: "guide.pdf"},
		{Text: "Welcome to the course.", Page: 1, Source: "guide.pdf"},
		{Text: "KE2 asks you to describe LOADING limits.", Page: 3, Source: "tasks.pdf"},
		{Text: "Appendix: glossary of terms.", Page: 9, Source: "guide.pdf"},
	}

	t.Run("matches number and keywords ordered by page", func(t *testing.T) {
		// Given a requirement whose number and keyword appear in two fragments
		s := NewContentSelector(domain.SelectorSettings{})
		req := domain.Requirement{Number: "KE2", Text: "Explain loading limits"}

		// When content is selected
		sel := s.Select(req, fragments, "full corpus")

		// Then the fragments are ordered by page with page markers
		assert.False(t, sel.UsedFallback)
		assert.Equal(t, 2, sel.MatchedFragments)
		assert.Equal(t,
			"[Page 3] KE2 asks you to describe LOADING limits.\n\n[Page 7] Section 4 covers loading procedures for freight.",
			sel.Content)
	})

	t.Run("equal pages keep input order", func(t *testing.T) {
		s := NewContentSelector(domain.SelectorSettings{})
		frags := []domain.Fragment{
			{Text: "second hazards", Page: 2},
			{Text: "first hazards", Page: 1},
			{Text: "third hazards", Page: 2},
		}

		sel := s.Select(domain.Requirement{Text: "Report hazards"}, frags, "")

		assert.Equal(t, "[Page 1] first hazards\n\n[Page 2] second hazards\n\n[Page 2] third hazards", sel.Content)
	})

	t.Run("caps fragment count", func(t *testing.T) {
		s := NewContentSelector(domain.SelectorSettings{MaxFragments: 2})
		var frags []domain.Fragment
		for i := 5; i > 0; i-- {
			frags = append(frags, domain.Fragment{Text: fmt.Sprintf("PC1.1 evidence %d", i), Page: i})
		}

		sel := s.Select(domain.Requirement{Number: "PC1.1"}, frags, "")

		assert.Equal(t, 2, sel.MatchedFragments)
		assert.Equal(t, "[Page 1] PC1.1 evidence 1\n\n[Page 2] PC1.1 evidence 2", sel.Content)
	})

	t.Run("falls back to corpus prefix", func(t *testing.T) {
		// Given no fragment mentions the requirement
		s := NewContentSelector(domain.SelectorSettings{FallbackChars: 10})
		req := domain.Requirement{Number: "FS9", Text: "Numeracy calculations"}

		// When content is selected
		sel := s.Select(req, fragments, "0123456789abcdef")

		// Then the first FallbackChars characters of the corpus are used
		assert.True(t, sel.UsedFallback)
		assert.Equal(t, "0123456789", sel.Content)
		assert.Zero(t, sel.MatchedFragments)
	})

	t.Run("fallback cuts on a rune boundary", func(t *testing.T) {
		s := NewContentSelector(domain.SelectorSettings{FallbackChars: 3})

		sel := s.Select(domain.Requirement{Number: "X"}, nil, "héllo wörld")

		assert.Equal(t, "hél", sel.Content)
	})

	t.Run("no fragments and short corpus", func(t *testing.T) {
		s := NewContentSelector(domain.SelectorSettings{})
		corpus := strings.Repeat("a", 100)

		sel := s.Select(domain.Requirement{Number: "1.1"}, nil, corpus)

		require.True(t, sel.UsedFallback)
		assert.Equal(t, corpus, sel.Content)
	})
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "", truncateRunes("abc", 0))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
}
