package proxy

import (
	"net/http"
	"time"

	"github.com/ongarde/ongarde/internal/config"
)

// UpstreamPoolSize bounds the shared client's connection pool to match the
// listener's concurrency cap (§5 "Upstream HTTP uses a bounded connection
// pool of 100, matched to the listener's concurrency limit").
const UpstreamPoolSize = 100

// newUpstreamClient builds the single pooled HTTP client used for every
// upstream dispatch. It is created once at startup and shared across every
// request — never built per request — and never follows redirects, so an
// upstream 3xx passes through to the caller untouched rather than being
// silently followed on the agent's behalf.
func newUpstreamClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        UpstreamPoolSize,
		MaxIdleConnsPerHost: UpstreamPoolSize,
		MaxConnsPerHost:     UpstreamPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   config.DefaultHTTPTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
