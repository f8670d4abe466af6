package stream

import (
	"encoding/json"
	"strings"
)

// ExtractText pulls the assistant-visible text out of one SSE "data:"
// line, supporting both OpenAI's `choices[0].delta.content` and
// Anthropic's `content_block_delta.delta.text` shapes (§4.4 step 1).
// Non-data lines (comments, heartbeats) and frames this proxy doesn't
// recognize return "", false so the caller passes them through unscanned.
func ExtractText(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" || payload == "[DONE]" {
		return "", false
	}

	var frame sseFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return "", false
	}

	if frame.Type == "content_block_delta" && frame.Delta.Text != "" {
		return frame.Delta.Text, true
	}
	if len(frame.Choices) > 0 && frame.Choices[0].Delta.Content != "" {
		return frame.Choices[0].Delta.Content, true
	}
	return "", false
}

// sseFrame is a permissive union of the two upstream shapes: fields absent
// in one wire format are simply left zero in the other.
type sseFrame struct {
	// Anthropic content_block_delta
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`

	// OpenAI chat.completion.chunk
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// AbortFrames builds the two SSE frames emitted before a streaming BLOCK
// closes the connection (§6 "Wire: streaming abort").
func AbortFrames(scanID, ruleID, riskLevel string, tokensDelivered int, timestampUnix int64, redactedExcerpt string) string {
	payload, _ := json.Marshal(map[string]any{
		"scan_id":          scanID,
		"rule_id":          ruleID,
		"risk_level":       riskLevel,
		"tokens_delivered": tokensDelivered,
		"timestamp":        timestampUnix,
		"redacted_excerpt": redactedExcerpt,
	})
	var b strings.Builder
	b.WriteString("data: [DONE]\n\n")
	b.WriteString("event: ongarde_block\ndata: ")
	b.Write(payload)
	b.WriteString("\n\n")
	return b.String()
}
