package scan

import (
	"regexp"
	"strings"
)

// regexMatcher is the only matcher kind the fast path needs: Go's regexp
// package is RE2-derived, so it already gives the linear-time guarantee
// spec.md asks for without a separate RE2 binding.
type regexMatcher struct {
	pattern *regexp.Regexp
}

func (m *regexMatcher) find(text string) (string, int, int, bool) {
	loc := m.pattern.FindStringIndex(text)
	if loc == nil {
		return "", 0, 0, false
	}
	return text[loc[0]:loc[1]], loc[0], loc[1], true
}

// literalMatcher matches an exact substring. Used for the registered test
// credential, which must never be expressed as a regex that could drift.
type literalMatcher struct {
	literal string
}

func (m *literalMatcher) find(text string) (string, int, int, bool) {
	idx := strings.Index(text, m.literal)
	if idx < 0 {
		return "", 0, 0, false
	}
	return m.literal, idx, idx + len(m.literal), true
}

func newRule(id string, class Classification, risk RiskLevel, slug, description, pattern string) Rule {
	return Rule{
		ID:             id,
		Slug:           slug,
		Classification: class,
		RiskLevel:      risk,
		Description:    description,
		matcher:        &regexMatcher{pattern: regexp.MustCompile(pattern)},
	}
}

func newTestCredentialRule(id, slug, literal, description string) Rule {
	return Rule{
		ID:               id,
		Slug:             slug,
		Classification:   ClassCredential,
		RiskLevel:        RiskCritical,
		Description:      description,
		IsTestCredential: true,
		matcher:          &literalMatcher{literal: literal},
	}
}
