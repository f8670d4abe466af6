package scan

// contextWindow is how much text on either side of a match is kept in an
// audited excerpt before the match itself is masked.
const contextWindow = 12

// excerpt builds the redacted excerpt carried on a Result: enough
// surrounding text to make the audit event useful, with the matched value
// itself replaced by asterisks so the secret never reaches a log or an
// audit row.
func excerpt(text string, start, end int) string {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(text) {
		hi = len(text)
	}

	prefix := text[lo:start]
	suffix := text[end:hi]
	masked := maskValue(text[start:end])

	out := prefix + masked + suffix
	if lo > 0 {
		out = "…" + out
	}
	if hi < len(text) {
		out = out + "…"
	}
	return out
}

// maskValue replaces a matched secret with a fixed-width mask. The length
// is deliberately not preserved beyond a cap, so the excerpt can't be used
// to infer the secret's length.
func maskValue(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}
