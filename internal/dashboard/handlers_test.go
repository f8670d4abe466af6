package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ongarde/ongarde/internal/allowlist"
	"github.com/ongarde/ongarde/internal/audit"
	"github.com/ongarde/ongarde/internal/auth"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	sink, err := audit.Open(filepath.Join(dir, "audit.db"), nil, nil, nil)
	if err != nil {
		t.Fatalf("opening audit sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	store, err := auth.Open(filepath.Join(dir, "keys.db"))
	if err != nil {
		t.Fatalf("opening key store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &Server{Audit: sink, Keys: store, Allowlist: allowlist.New()}
}

func TestRequireLoopbackAllowsLocalPeer(t *testing.T) {
	s := newTestServer(t)
	handler := RequireLoopback(nil, s.Handler())

	req := httptest.NewRequest(http.MethodGet, "/dashboard/api/counters", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for loopback peer, got %d", rr.Code)
	}
}

func TestRequireLoopbackRejectsRemotePeer(t *testing.T) {
	s := newTestServer(t)
	handler := RequireLoopback(nil, s.Handler())

	req := httptest.NewRequest(http.MethodGet, "/dashboard/api/counters", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-loopback peer, got %d", rr.Code)
	}
}

func TestRequireLoopbackIgnoresForwardedHeader(t *testing.T) {
	s := newTestServer(t)
	handler := RequireLoopback(nil, s.Handler())

	req := httptest.NewRequest(http.MethodGet, "/dashboard/api/counters", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected the forwarded header to be ignored and still get 403, got %d", rr.Code)
	}
}

func TestCreateKeyReturnsPlaintextOnce(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/dashboard/api/keys", strings.NewReader(`{"name":"laptop"}`))
	rr := httptest.NewRecorder()
	s.handleKeys(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["key"] == nil || body["key"] == "" {
		t.Fatal("expected the created response to carry the plaintext key")
	}

	listReq := httptest.NewRequest(http.MethodGet, "/dashboard/api/keys", nil)
	listRR := httptest.NewRecorder()
	s.handleKeys(listRR, listReq)
	if strings.Contains(listRR.Body.String(), body["key"].(string)) {
		t.Fatal("expected the listing endpoint to never expose the plaintext key again")
	}
}

func TestDeleteKeyRevokesIt(t *testing.T) {
	s := newTestServer(t)

	createRR := httptest.NewRecorder()
	s.handleKeys(createRR, httptest.NewRequest(http.MethodPost, "/dashboard/api/keys", strings.NewReader(`{"name":"ci"}`)))
	var created map[string]any
	_ = json.Unmarshal(createRR.Body.Bytes(), &created)
	id := created["id"].(string)

	delReq := httptest.NewRequest(http.MethodDelete, "/dashboard/api/keys/"+id, nil)
	delRR := httptest.NewRecorder()
	s.handleKeyByID(delRR, delReq)
	if delRR.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", delRR.Code)
	}

	listRR := httptest.NewRecorder()
	s.handleKeys(listRR, httptest.NewRequest(http.MethodGet, "/dashboard/api/keys", nil))
	var list map[string]any
	_ = json.Unmarshal(listRR.Body.Bytes(), &list)
	keys := list["keys"].([]any)
	for _, k := range keys {
		entry := k.(map[string]any)
		if entry["id"] == id && entry["revoked_at"] == nil {
			t.Fatal("expected the deleted key to be revoked")
		}
	}
}

func TestKeyManagementRateLimitReturns429(t *testing.T) {
	s := newTestServer(t)
	s.Limiter = auth.NewKeyManagementLimiter()
	t.Cleanup(s.Limiter.Stop)

	for i := 0; i < auth.KeyManagementLimit; i++ {
		req := httptest.NewRequest(http.MethodGet, "/dashboard/api/keys", nil)
		req.RemoteAddr = "127.0.0.1:1"
		rr := httptest.NewRecorder()
		s.handleKeys(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 within the limit, got %d", i, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard/api/keys", nil)
	req.RemoteAddr = "127.0.0.1:1"
	rr := httptest.NewRecorder()
	s.handleKeys(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the per-IP limit is exceeded, got %d", rr.Code)
	}

	other := httptest.NewRequest(http.MethodGet, "/dashboard/api/keys", nil)
	other.RemoteAddr = "203.0.113.9:1"
	otherRR := httptest.NewRecorder()
	s.handleKeys(otherRR, other)
	if otherRR.Code != http.StatusOK {
		t.Fatalf("expected a distinct source IP to be unaffected, got %d", otherRR.Code)
	}
}

func TestSuppressionHintIsNilForSystemRuleIDs(t *testing.T) {
	if suppressionHint("SCANNER_ERROR") != nil {
		t.Fatal("expected a nil suppression hint for a system failure rule_id")
	}
	if suppressionHint("CREDENTIAL_DETECTED") == nil {
		t.Fatal("expected a non-nil suppression hint for a policy rule_id")
	}
}

func TestCountersReflectsRecordedEvents(t *testing.T) {
	s := newTestServer(t)
	s.Audit.Enqueue(audit.Event{ScanID: "01H-counter", Timestamp: time.Now(), Action: audit.ActionBlock, RiskLevel: "HIGH"})
	time.Sleep(2 * audit.BatchInterval)

	rr := httptest.NewRecorder()
	s.handleCounters(rr, httptest.NewRequest(http.MethodGet, "/dashboard/api/counters", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	blocks := body["blocks"].(map[string]any)
	if blocks["today"].(float64) < 1 {
		t.Fatalf("expected at least one block counted today, got %v", blocks["today"])
	}
}
