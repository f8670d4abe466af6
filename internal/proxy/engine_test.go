package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ongarde/ongarde/internal/allowlist"
	"github.com/ongarde/ongarde/internal/audit"
	"github.com/ongarde/ongarde/internal/auth"
	"github.com/ongarde/ongarde/internal/config"
	"github.com/ongarde/ongarde/internal/health"
	"github.com/ongarde/ongarde/internal/nlp"
	"github.com/ongarde/ongarde/internal/scan"
)

// aCredential is a synthetic OpenAI-shaped secret that the default rule
// catalog's credential pattern matches, used everywhere a test needs a
// guaranteed request-side BLOCK.
const aCredential = "sk-proj-" + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func newTestEngine(t *testing.T, upstream string) (*Engine, *audit.Sink) {
	t.Helper()
	dir := t.TempDir()

	auditSink, err := audit.Open(filepath.Join(dir, "audit.db"), nil, nil, nil)
	if err != nil {
		t.Fatalf("opening audit sink: %v", err)
	}
	t.Cleanup(func() { auditSink.Close() })

	keys, err := auth.Open(filepath.Join(dir, "keys.db"))
	if err != nil {
		t.Fatalf("opening key store: %v", err)
	}
	t.Cleanup(func() { keys.Close() })

	cfg := config.DefaultConfig()
	cfg.AuthRequired = false
	cfg.Upstream = map[string]string{"openai": upstream, "anthropic": upstream}

	hlth := health.NewState("full", 1)
	hlth.SetReady(nlp.DefaultCalibration())

	e := New(cfg, scan.NewEngine(), nlp.NewLiteScanner(), nlp.DefaultCalibration(),
		allowlist.New(), keys, auditSink, hlth, nil)
	return e, auditSink
}

func TestPassThroughForwardsBodyUnchanged(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}]}`))
	}))
	defer upstream.Close()

	e, _ := newTestEngine(t, upstream.URL)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "hello there") {
		t.Fatalf("expected the upstream body forwarded unchanged, got %s", rr.Body.String())
	}
}

func TestScanRecordsHealthLatencySample(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}]}`))
	}))
	defer upstream.Close()

	e, _ := newTestEngine(t, upstream.URL)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if n := e.hlth.Latency().Count(); n == 0 {
		t.Fatal("expected the request and response scans to have recorded latency samples")
	}
}

func TestRequestBlockNeverDispatchesUpstream(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer upstream.Close()

	e, _ := newTestEngine(t, upstream.URL)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"messages":[{"role":"user","content":"my key is `+aCredential+`"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if called {
		t.Fatal("expected the upstream to never be called on a block")
	}
	if rr.Header().Get("X-OnGarde-Scan-Id") == "" {
		t.Fatal("expected a scan id header on the block response")
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "ongarde_block" {
		t.Fatalf("expected code ongarde_block, got %v", errObj["code"])
	}
	ongarde := errObj["ongarde"].(map[string]any)
	if ongarde["rule_id"] != scan.RuleCredentialDetected {
		t.Fatalf("expected rule_id %s, got %v", scan.RuleCredentialDetected, ongarde["rule_id"])
	}
}

func TestAllowlistDowngradesBlockToAllowSuppressed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	allowPath := filepath.Join(dir, "allowlist.yaml")
	if err := os.WriteFile(allowPath, []byte("- rule_id: "+scan.RuleCredentialDetected+"\n  reason: test fixture key\n"), 0o600); err != nil {
		t.Fatalf("writing allowlist fixture: %v", err)
	}

	e, auditSink := newTestEngine(t, upstream.URL)
	e.allow.Load(allowPath)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"messages":[{"role":"user","content":"key `+aCredential+`"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected the suppressed block to pass through as 200, got %d: %s", rr.Code, rr.Body.String())
	}

	time.Sleep(2 * audit.BatchInterval)
	events, err := auditSink.RecentEvents(10, true)
	if err != nil {
		t.Fatalf("querying events: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.ActionAllowSuppressed {
		t.Fatalf("expected exactly one ALLOW_SUPPRESSED event, got %+v", events)
	}
}

func TestAllowlistTextContainsMatchesRawNotRedactedExcerpt(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	allowPath := filepath.Join(dir, "allowlist.yaml")
	fixture := "- text_contains: \"rm -rf /tmp/build\"\n  reason: known cleanup step\n"
	if err := os.WriteFile(allowPath, []byte(fixture), 0o600); err != nil {
		t.Fatalf("writing allowlist fixture: %v", err)
	}

	e, auditSink := newTestEngine(t, upstream.URL)
	e.allow.Load(allowPath)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"messages":[{"role":"user","content":"our cleanup step is: rm -rf /tmp/build"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected the text_contains match against the raw content to suppress the block, got %d: %s", rr.Code, rr.Body.String())
	}

	time.Sleep(2 * audit.BatchInterval)
	events, err := auditSink.RecentEvents(10, true)
	if err != nil {
		t.Fatalf("querying events: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.ActionAllowSuppressed {
		t.Fatalf("expected exactly one ALLOW_SUPPRESSED event, got %+v", events)
	}
}

func TestBufferedResponseScansFullBodyNotJustKnownFields(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"contact me at jane.doe@example.com or 555-123-4567"}`))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	auditSink, err := audit.Open(filepath.Join(dir, "audit.db"), nil, nil, nil)
	if err != nil {
		t.Fatalf("opening audit sink: %v", err)
	}
	defer auditSink.Close()
	keys, err := auth.Open(filepath.Join(dir, "keys.db"))
	if err != nil {
		t.Fatalf("opening key store: %v", err)
	}
	defer keys.Close()

	cfg := config.DefaultConfig()
	cfg.AuthRequired = false
	cfg.Upstream = map[string]string{"openai": upstream.URL, "anthropic": upstream.URL}

	nlpScanner := nlp.NewScanner()
	calibration := nlp.DefaultCalibration()
	hlth := health.NewState("full", 1)
	hlth.SetReady(calibration)

	e := New(cfg, scan.NewEngine(), nlpScanner, calibration, allowlist.New(), keys, auditSink, hlth, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected the response-side PII to be blocked (400), got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "jane.doe@example.com") {
		t.Fatalf("expected the PII to never reach the client, got %s", rr.Body.String())
	}
}

func TestBodyCapRejectsDeclaredOversizedRequest(t *testing.T) {
	e, _ := newTestEngine(t, "http://unused.invalid")
	big := strings.Repeat("a", MaxRequestBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(big))
	req.Header.Set("Content-Length", strconv.Itoa(len(big)))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 on the declared-length fast path, got %d", rr.Code)
	}
}

func TestAuthFailureReturns401WhenAuthRequired(t *testing.T) {
	e, _ := newTestEngine(t, "http://unused.invalid")
	e.cfg.AuthRequired = true

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestUpstreamConnectivityFailureReturns502(t *testing.T) {
	e, _ := newTestEngine(t, "http://127.0.0.1:1") // nothing listens here
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for a connectivity failure, got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "ongarde_block") {
		t.Fatal("a connectivity failure must never carry the block marker")
	}
}

func TestMissingUpstreamConfigReturns500(t *testing.T) {
	e, _ := newTestEngine(t, "http://unused.invalid")
	e.cfg.Upstream = map[string]string{}
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a missing upstream config, got %d", rr.Code)
	}
}

func TestBodyCapRejectsOversizedChunkedRequest(t *testing.T) {
	e, _ := newTestEngine(t, "http://unused.invalid")
	big := strings.Repeat("a", MaxRequestBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(big))
	// No Content-Length header set, only the req.ContentLength struct field
	// httptest.NewRequest derives from the reader — so this exercises the
	// rolling-count slow path rather than the declared-length fast path.
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 on the chunked slow path, got %d", rr.Code)
	}
}

func TestScanPipelineSkipsNLPWhenScannerUnset(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer upstream.Close()

	e, _ := newTestEngine(t, upstream.URL)
	e.nlp = nil

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"messages":[{"role":"user","content":"nothing suspicious here"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected a clean request to pass with no NLP scanner configured, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpstreamErrorStatusPassesThroughUnchanged(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited upstream"}`))
	}))
	defer upstream.Close()

	e, _ := newTestEngine(t, upstream.URL)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected the upstream's own 429 to pass through, got %d", rr.Code)
	}
}
