// Package dashboard implements the loopback-only operator UI backend
// (§4.9): request/block counters, recent block events, and API key
// CRUD, grounded on original_source/app/dashboard/api.py and the
// localhost-enforcement middleware tested in
// original_source/tests/unit/test_dashboard_localhost_middleware.py.
package dashboard

import (
	"net"
	"net/http"

	"go.uber.org/zap"
)

// RequireLoopback wraps next with the loopback check §4.9 requires: the
// immediate TCP peer address must be 127.0.0.1 or ::1. Proxy-forwarded
// headers (X-Forwarded-For and similar) are never consulted — a peer
// behind a reverse proxy is, by definition, not the loopback interface.
func RequireLoopback(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			if log != nil {
				log.Warn("dashboard access rejected: not loopback", zap.String("remote_addr", r.RemoteAddr))
			}
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": map[string]any{
					"message": "dashboard is only reachable from localhost",
					"code":    "forbidden",
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
