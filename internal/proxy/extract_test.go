package proxy

import "testing"

func TestExtractTextHandlesStringAndBlockContent(t *testing.T) {
	body := []byte(`{"system":"be nice","messages":[{"role":"user","content":"hello"},{"role":"user","content":[{"type":"text","text":"world"},{"type":"image","source":"x"}]}]}`)
	got := extractText(body)
	for _, want := range []string{"be nice", "hello", "world"} {
		if !contains(got, want) {
			t.Fatalf("expected extracted text to contain %q, got %q", want, got)
		}
	}
	if contains(got, "image") {
		t.Fatalf("expected non-text content blocks to be skipped, got %q", got)
	}
}

func TestExtractTextOnMalformedJSONReturnsEmpty(t *testing.T) {
	if got := extractText([]byte("not json")); got != "" {
		t.Fatalf("expected empty extraction on malformed JSON, got %q", got)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
