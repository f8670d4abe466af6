package nlp

import (
	"github.com/ongarde/ongarde/internal/scan"
)

// Scanner is the slow path named in §4.3. Unlike the fast-path Engine it is
// not a single compiled catalog — each entity recognizer also runs a
// validation predicate (Luhn, SSN area/group/serial) before a match counts.
type Scanner struct {
	lite bool
}

// NewScanner builds a full-mode scanner. Lite mode (regex-only, no NLP) is
// represented by NewLiteScanner, per §4.3's scanner_mode health field.
func NewScanner() *Scanner {
	return &Scanner{}
}

// NewLiteScanner returns a scanner whose Scan always reports no findings,
// used when `scanner.mode: lite` disables the NLP component entirely.
func NewLiteScanner() *Scanner {
	return &Scanner{lite: true}
}

// Mode reports the value surfaced on the health endpoint.
func (s *Scanner) Mode() string {
	if s.lite {
		return "lite"
	}
	return "full"
}

// Scan runs every entity recognizer over text and returns on the first
// validated match, mirroring the fast path's first-match semantics.
func (s *Scanner) Scan(scanID, text string) scan.Result {
	if s.lite {
		return scan.Pass(scanID, scan.SourceNLP)
	}
	for _, r := range recognizers {
		for _, loc := range r.pattern.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if !r.valid(value) {
				continue
			}
			rule := scan.Rule{
				ID:             r.entity.RuleID(),
				Classification: scan.ClassPIINLP,
				RiskLevel:      scan.RiskHigh,
			}
			return scan.Block(scanID, scan.SourceNLP, &rule, redact(text, loc[0], loc[1]))
		}
	}
	return scan.Pass(scanID, scan.SourceNLP)
}

// redact mirrors the fast path's excerpt masking without importing the
// scan package's unexported helper: a slow-path finding needs the same
// never-log-the-secret guarantee.
func redact(text string, start, end int) string {
	const window = 12
	lo := start - window
	if lo < 0 {
		lo = 0
	}
	hi := end + window
	if hi > len(text) {
		hi = len(text)
	}
	value := text[start:end]
	masked := "****"
	if len(value) > 4 {
		masked = value[:2] + "****" + value[len(value)-2:]
	}
	out := text[lo:start] + masked + text[end:hi]
	if lo > 0 {
		out = "…" + out
	}
	if hi < len(text) {
		out += "…"
	}
	return out
}
