package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/ongarde/ongarde/internal/scan"
)

// writeError writes the generic {"error":{"message","code"}} shape §7
// specifies for every non-block failure. No error body here ever carries
// a filesystem path, an upstream key, or a plaintext API key.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	})
}

// writeBlock writes the §6 "Wire: inbound" block response shape: HTTP
// 400, X-OnGarde-Scan-Id header, and an ongarde sub-object carrying
// rule_id/risk_level/scan_id/test/redacted_excerpt. ScannerError and
// ScannerBlock use this exact same shape — the client cannot tell which
// subsystem produced the block (§7).
func writeBlock(w http.ResponseWriter, scanID string, result scan.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-OnGarde-Scan-Id", scanID)
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": "request blocked by OnGarde security policy",
			"code":    "ongarde_block",
			"ongarde": map[string]any{
				"rule_id":          result.RuleID,
				"risk_level":       result.RiskLevel,
				"scan_id":          scanID,
				"test":             result.Test,
				"redacted_excerpt": result.Excerpt,
			},
		},
	})
}
