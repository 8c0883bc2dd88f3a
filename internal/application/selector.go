package application

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-verity/internal/domain"
)

// Selection is the content chosen for one requirement.
type Selection struct {
	Content          string
	MatchedFragments int
	// UsedFallback is set when no fragment matched and Content is a prefix
	// of the full corpus.
	UsedFallback bool
}

// ContentSelector narrows the corpus to the fragments that mention a
// requirement. Matching is a substring heuristic; misses fall back to a
// bounded corpus prefix.
type ContentSelector struct {
	settings domain.SelectorSettings
	fold     cases.Caser
}

// NewContentSelector creates a selector. Zero-valued settings fall back to
// domain.DefaultSelectorSettings.
func NewContentSelector(settings domain.SelectorSettings) *ContentSelector {
	defaults := domain.DefaultSelectorSettings()
	if settings.MaxFragments <= 0 {
		settings.MaxFragments = defaults.MaxFragments
	}
	if settings.FallbackChars <= 0 {
		settings.FallbackChars = defaults.FallbackChars
	}
	if settings.MaxKeywords <= 0 {
		settings.MaxKeywords = defaults.MaxKeywords
	}
	if settings.MinKeywordLen <= 0 {
		settings.MinKeywordLen = defaults.MinKeywordLen
	}
	return &ContentSelector{settings: settings, fold: cases.Fold()}
}

// Select returns the fragments that contain the requirement number or one
// of its keywords, ordered by page and capped at MaxFragments. Each
// fragment is prefixed with a "[Page N]" marker.
func (s *ContentSelector) Select(req domain.Requirement, fragments []domain.Fragment, corpus string) Selection {
	needles := s.needles(req)

	var matched []domain.Fragment
	if len(needles) > 0 {
		for _, f := range fragments {
			text := s.fold.String(f.Text)
			for _, n := range needles {
				if strings.Contains(text, n) {
					matched = append(matched, f)
					break
				}
			}
		}
	}

	if len(matched) == 0 {
		return Selection{Content: truncateRunes(corpus, s.settings.FallbackChars), UsedFallback: true}
	}

	slices.SortStableFunc(matched, func(a, b domain.Fragment) int { return a.Page - b.Page })
	if len(matched) > s.settings.MaxFragments {
		matched = matched[:s.settings.MaxFragments]
	}

	var b strings.Builder
	for i, f := range matched {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Page %d] %s", f.Page, strings.TrimSpace(f.Text))
	}
	return Selection{Content: b.String(), MatchedFragments: len(matched)}
}

// needles returns the case-folded requirement number followed by its
// keywords.
func (s *ContentSelector) needles(req domain.Requirement) []string {
	var needles []string
	if n := strings.TrimSpace(req.Number); n != "" {
		needles = append(needles, s.fold.String(n))
	}
	return append(needles, s.Keywords(req.Text)...)
}

// Keywords returns up to MaxKeywords distinct case-folded words of at least
// MinKeywordLen runes, in order of first appearance.
func (s *ContentSelector) Keywords(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	keywords := make([]string, 0, s.settings.MaxKeywords)
	for _, w := range words {
		if len(keywords) == s.settings.MaxKeywords {
			break
		}
		if len([]rune(w)) < s.settings.MinKeywordLen {
			continue
		}
		folded := s.fold.String(w)
		if !slices.Contains(keywords, folded) {
			keywords = append(keywords, folded)
		}
	}
	return keywords
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
