package dashboard

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ongarde/ongarde/internal/allowlist"
	"github.com/ongarde/ongarde/internal/audit"
	"github.com/ongarde/ongarde/internal/auth"
	"github.com/ongarde/ongarde/internal/scan"
)

// systemRuleIDs have no suppression hint — an allowlist entry cannot
// suppress a scanner failure.
var systemRuleIDs = map[string]bool{
	scan.RuleScannerError:       true,
	scan.RuleScannerTimeout:     true,
	scan.RuleQuotaExceeded:      true,
	scan.RuleScannerUnavailable: true,
}

// Server holds everything the dashboard's JSON endpoints read from or
// write to. Constructed once at startup and mounted behind
// RequireLoopback.
type Server struct {
	Audit     *audit.Sink
	Keys      *auth.Store
	Allowlist *allowlist.Loader
	Limiter   *auth.KeyManagementLimiter
	Log       *zap.Logger
}

// rateLimited reports whether r's source IP has exceeded §4.6's
// key-management rate limit, writing the 429 response itself when it has.
func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) bool {
	if s.Limiter == nil {
		return false
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if s.Limiter.Allow(host) {
		return false
	}
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{
			"message": "key management rate limit exceeded, try again shortly",
			"code":    "rate_limited",
		},
	})
	return true
}

// Handler builds the dashboard's API mux. Callers are expected to wrap
// it in RequireLoopback before exposing it on a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/dashboard/api/counters", s.handleCounters)
	mux.HandleFunc("/dashboard/api/events", s.handleEvents)
	mux.HandleFunc("/dashboard/api/keys", s.handleKeys)
	mux.HandleFunc("/dashboard/api/keys/", s.handleKeyByID)
	mux.HandleFunc("/dashboard/api/config-status", s.handleConfigStatus)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleCounters implements §4.9's GET /dashboard/api/counters: today and
// month request/block totals plus today's block risk breakdown.
func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": map[string]any{"message": "method not allowed", "code": "method_not_allowed"}})
		return
	}

	now := time.Now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	todayRequests, _ := s.Audit.CountSince("", "", todayStart)
	monthRequests, _ := s.Audit.CountSince("", "", monthStart)
	todayBlocks, _ := s.Audit.CountSince(audit.ActionBlock, "", todayStart)
	monthBlocks, _ := s.Audit.CountSince(audit.ActionBlock, "", monthStart)

	breakdown := map[string]int{}
	for _, level := range []string{"CRITICAL", "HIGH", "MEDIUM", "LOW"} {
		n, _ := s.Audit.CountSince(audit.ActionBlock, level, todayStart)
		breakdown[level] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests":       map[string]int{"today": todayRequests, "month": monthRequests},
		"blocks":         map[string]int{"today": todayBlocks, "month": monthBlocks},
		"risk_breakdown": breakdown,
	})
}

// handleEvents implements §4.9's GET /dashboard/api/events?limit=N.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": map[string]any{"message": "method not allowed", "code": "method_not_allowed"}})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	includeSuppressed := true
	if raw := r.URL.Query().Get("include_suppressed"); raw != "" {
		includeSuppressed = raw != "false"
	}

	events, err := s.Audit.RecentEvents(limit, includeSuppressed)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]any{"message": "failed to query events", "code": "internal_error"}})
		return
	}

	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"scan_id":          e.ScanID,
			"timestamp":        e.Timestamp.Format(time.RFC3339),
			"action":           e.Action,
			"rule_id":          e.RuleID,
			"risk_level":       e.RiskLevel,
			"direction":        e.Direction,
			"redacted_excerpt": truncate(e.RedactedExcerpt, 100),
			"suppression_hint": suppressionHint(e.RuleID),
			"test":             e.Test,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "total": len(out)})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// suppressionHint builds the allowlist YAML snippet suggestion for a
// rule_id, or nil when the block came from a system failure (no
// allowlist entry can suppress a scanner error).
func suppressionHint(ruleID string) any {
	if ruleID == "" || systemRuleIDs[ruleID] {
		return nil
	}
	return "allowlist:\n  - rule_id: " + ruleID + "\n    note: \"describe why this is a false positive\""
}

// handleConfigStatus implements §4.9's hot-reload status poll.
func (s *Server) handleConfigStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"allowlist_count": len(s.Allowlist.Entries()),
	})
}

// handleKeys implements GET and POST /dashboard/api/keys.
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		keys := s.Keys.List()
		out := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, keySummary(k))
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": out})

	case http.MethodPost:
		if !s.Keys.Empty() {
			// Only the first key may be created without presenting an
			// existing valid key (the bootstrap exception).
			presented := r.Header.Get("X-OnGarde-Key")
			if presented == "" {
				presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if _, ok := s.Keys.Verify(r.Context(), presented); !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"message": "a valid API key is required to create further keys", "code": "auth_failure"}})
				return
			}
		}
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "name is required", "code": "bad_request"}})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		plaintext, rec, err := s.Keys.Create(ctx, req.Name)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": err.Error(), "code": "key_limit_exceeded"}})
			return
		}
		body := keySummary(rec)
		body["key"] = plaintext // plaintext returned exactly once, per §4.6
		writeJSON(w, http.StatusCreated, body)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": map[string]any{"message": "method not allowed", "code": "method_not_allowed"}})
	}
}

// handleKeyByID implements DELETE /dashboard/api/keys/{id}.
func (s *Server) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(w, r) {
		return
	}
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": map[string]any{"message": "method not allowed", "code": "method_not_allowed"}})
		return
	}
	id := r.URL.Path[len("/dashboard/api/keys/"):]
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "key id is required", "code": "bad_request"}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.Keys.Revoke(ctx, id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"message": err.Error(), "code": "not_found"}})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func keySummary(k *auth.ApiKey) map[string]any {
	return map[string]any{
		"id":           k.ID,
		"name":         k.Name,
		"masked":       k.Masked(),
		"created_at":   k.CreatedAt.Format(time.RFC3339),
		"last_used_at": formatOptionalTime(k.LastUsedAt),
		"revoked_at":   formatOptionalTime(k.RevokedAt),
	}
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
