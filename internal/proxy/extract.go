package proxy

import "encoding/json"

// requestEnvelope is a permissive superset of the OpenAI chat-completions
// and Anthropic messages request shapes — just enough structure to reach
// every field §4.1 step 4 names without requiring either provider's full
// schema.
type requestEnvelope struct {
	System   json.RawMessage `json:"system"`
	Messages []struct {
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

// extractText pulls every user-visible text fragment out of an inbound
// request body: top-level messages[*].content, nested content parts, and
// system (OpenAI string or Anthropic string/block-array). Fragments are
// joined with newlines — the scanner only needs the concatenated text, not
// the original structure. A body that isn't valid JSON, or doesn't match
// either shape, yields an empty string rather than an error: extraction
// failure is not itself a scan failure, it just means nothing was found to
// scan.
func extractText(body []byte) string {
	var env requestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}

	var out []string
	if s := contentText(env.System); s != "" {
		out = append(out, s)
	}
	for _, m := range env.Messages {
		if s := contentText(m.Content); s != "" {
			out = append(out, s)
		}
	}
	return joinNonEmpty(out)
}

// contentText normalizes a `content` field, which may be a bare string or
// an array of typed blocks ({"type":"text","text":"..."} and similar; any
// block without a "text" field — images, tool_use, tool_result — is
// skipped).
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var blocks []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return joinNonEmpty(parts)
	}
	return ""
}

func joinNonEmpty(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	total := len(parts) - 1
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for i, p := range parts {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, p...)
	}
	return string(out)
}
