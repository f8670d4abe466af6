package proxy

import (
	"net/http"
	"strings"
)

// hopByHop headers must never be forwarded by an intermediary (RFC 7230
// §6.1). content-length is included because the upstream client
// recomputes it from the body it is given.
var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"host":                true,
	"content-length":      true,
}

const ongardeKeyHeader = "X-Ongarde-Key"
const ongardeBearerPrefix = "Bearer ong-"

// buildUpstreamHeaders strips OnGarde's own auth headers and every
// hop-by-hop header, forwards everything else unchanged, and injects
// X-OnGarde-Scan-Id for upstream-side tracing correlation. An
// Authorization header carrying the real provider key (anything not
// prefixed ong-) passes through untouched.
func buildUpstreamHeaders(src http.Header, scanID string) http.Header {
	out := make(http.Header, len(src)+1)
	for name, values := range src {
		lower := strings.ToLower(name)
		if lower == strings.ToLower(ongardeKeyHeader) {
			continue
		}
		if lower == "authorization" && len(values) > 0 && strings.HasPrefix(values[0], ongardeBearerPrefix) {
			continue
		}
		if hopByHop[lower] {
			continue
		}
		out[name] = values
	}
	out.Set("X-OnGarde-Scan-Id", scanID)
	return out
}

// buildAgentResponseHeaders strips hop-by-hop headers from an upstream
// response and forwards everything else — including rate-limit headers,
// which agents need for correct backoff — unchanged.
func buildAgentResponseHeaders(src http.Header) http.Header {
	out := make(http.Header, len(src))
	for name, values := range src {
		if hopByHop[strings.ToLower(name)] {
			continue
		}
		out[name] = values
	}
	return out
}

// extractOnGardeKey reads the caller's OnGarde key per §4.1 step 1's
// precedence: the explicit header first, then Authorization: Bearer.
func extractOnGardeKey(r *http.Request) (string, bool) {
	if v := r.Header.Get(ongardeKeyHeader); v != "" {
		return v, true
	}
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimPrefix(v, "Bearer "), true
	}
	return "", false
}
