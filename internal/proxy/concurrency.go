package proxy

import "net/http"

// ConcurrencyCap is the §5 concurrent-connection limit, matched to the
// upstream pool so a saturated proxy can't itself saturate its upstream
// connections.
const ConcurrencyCap = UpstreamPoolSize

// LimitConcurrency wraps next with a bounded semaphore: once ConcurrencyCap
// requests are in flight, further requests get 503 immediately rather than
// queuing, per §5 "excess connections receive 503".
func LimitConcurrency(limit int, next http.Handler) http.Handler {
	sem := make(chan struct{}, limit)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			writeError(w, http.StatusServiceUnavailable, "concurrency_exceeded", "proxy is at capacity")
		}
	})
}
