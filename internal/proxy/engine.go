// Package proxy implements the admission, scan-gate, and upstream-dispatch
// handler of §4.1: the single HTTP entry point that stands between an
// agent and its configured LLM upstream. It is grounded on
// original_source/app/proxy/engine.py's request/response flow and
// failure-mode separation, reusing the already-built scan, nlp,
// allowlist, auth, audit, and stream packages rather than reimplementing
// any of their policy.
package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ongarde/ongarde/internal/allowlist"
	"github.com/ongarde/ongarde/internal/audit"
	"github.com/ongarde/ongarde/internal/auth"
	"github.com/ongarde/ongarde/internal/config"
	"github.com/ongarde/ongarde/internal/health"
	"github.com/ongarde/ongarde/internal/logging"
	"github.com/ongarde/ongarde/internal/nlp"
	"github.com/ongarde/ongarde/internal/scan"
	"github.com/ongarde/ongarde/internal/ulid"
)

// MaxRequestBodyBytes is the 1 MiB hard cap §4.1 step 2 and §6 name.
const MaxRequestBodyBytes = 1 << 20

// BufferedResponseCap is the §4.1 step 6 threshold above which a response
// always takes the streaming path regardless of content type.
const BufferedResponseCap = 512 * 1024

var errBodyTooLarge = errors.New("request body exceeds the 1 MiB cap")

// Engine is the proxy's single request handler: one instance, constructed
// once at startup, shared across every request.
type Engine struct {
	cfg *config.Config

	scanner     *scan.Engine
	nlp         *nlp.Scanner
	calibration nlp.Calibration

	allow *allowlist.Loader
	keys  *auth.Store
	audit *audit.Sink
	hlth  *health.State

	client *http.Client
	log    *zap.Logger
}

// New builds the proxy engine from the already-constructed components the
// rest of the system wires at startup.
func New(cfg *config.Config, scanner *scan.Engine, nlpScanner *nlp.Scanner, calibration nlp.Calibration,
	allow *allowlist.Loader, keys *auth.Store, auditSink *audit.Sink, hlth *health.State, log *zap.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		scanner:     scanner,
		nlp:         nlpScanner,
		calibration: calibration,
		allow:       allow,
		keys:        keys,
		audit:       auditSink,
		hlth:        hlth,
		client:      newUpstreamClient(),
		log:         log,
	}
}

// ServeHTTP implements §4.1's full admission → scan → dispatch → respond
// pipeline for the two accepted routes.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !isProxyPath(r.URL.Path) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
		return
	}

	scanID := ulid.New()
	reqLog := e.requestLogger(scanID)

	keyID, authErr := e.authenticate(r)
	if authErr != "" {
		writeError(w, http.StatusUnauthorized, "auth_failure", authErr)
		return
	}

	body, err := readCappedBody(r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large. Maximum size: 1MB")
		} else {
			writeError(w, http.StatusBadRequest, "bad_request", "unable to read request body")
		}
		return
	}

	provider := resolveUpstream(r.URL.Path)
	baseURL := e.cfg.Upstream[provider]
	if baseURL == "" {
		writeError(w, http.StatusInternalServerError, "config_invalid", fmt.Sprintf("no upstream configured for provider %q", provider))
		return
	}

	text := extractText(body)
	result, suppressed := e.scanOrBlock(scanID, text, reqLog)
	e.auditScan(scanID, audit.DirectionRequest, result, suppressed, keyID, provider, false)
	if result.IsBlocking() && !suppressed {
		health.RequestsTotal.WithLabelValues("block", string(audit.DirectionRequest)).Inc()
		writeBlock(w, scanID, result)
		return
	}
	health.RequestsTotal.WithLabelValues("allow", string(audit.DirectionRequest)).Inc()

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, baseURL+r.URL.Path, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "config_invalid", "malformed upstream URL")
		return
	}
	upstreamReq.Header = buildUpstreamHeaders(r.Header, scanID)
	upstreamReq.ContentLength = int64(len(body))

	resp, err := e.client.Do(upstreamReq)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_unreachable", "upstream request failed")
		return
	}
	defer resp.Body.Close()

	e.forwardResponse(w, scanID, keyID, provider, resp, reqLog)
}

// requestLogger builds the per-request child logger carrying scan_id,
// passed to the scan gate and the response path (§2). Returns nil when no
// process logger was configured, so every call site must nil-check before
// logging.
func (e *Engine) requestLogger(scanID string) *zap.Logger {
	if e.log == nil {
		return nil
	}
	return logging.WithRequest(e.log, scanID)
}

// authenticate implements §4.1 step 1's precedence and bootstrap
// exception. The bootstrap exception itself (one unauthenticated POST to
// the key-creation endpoint) is enforced in the dashboard package, since
// that endpoint isn't reachable through this engine at all.
func (e *Engine) authenticate(r *http.Request) (keyID string, errMsg string) {
	if !e.cfg.AuthRequired {
		return "", ""
	}
	key, ok := extractOnGardeKey(r)
	if !ok {
		return "", "missing OnGarde API key"
	}
	rec, valid := e.keys.Verify(r.Context(), key)
	if !valid {
		return "", "invalid or revoked API key"
	}
	return rec.ID, ""
}

// isProxyPath reports whether path is one of the two routes §4.1 admits.
func isProxyPath(path string) bool {
	return path == "/v1/chat/completions" || path == "/v1/messages"
}

// resolveUpstream implements §4.1 step 3's path-based provider routing.
func resolveUpstream(path string) string {
	if path == "/v1/messages" {
		return "anthropic"
	}
	return "openai"
}

// readCappedBody enforces the 1 MiB cap via the Content-Length fast path
// when present, and a rolling count on the stream otherwise (§4.1 step
// 2).
func readCappedBody(r *http.Request) ([]byte, error) {
	if cl := r.Header.Get("Content-Length"); cl != "" {
		if declared, err := strconv.ParseInt(cl, 10, 64); err == nil && declared > MaxRequestBodyBytes {
			return nil, errBodyTooLarge
		}
	}
	limited := io.LimitReader(r.Body, MaxRequestBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxRequestBodyBytes {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// auditScan records a request- or response-side scan decision. Plain
// ALLOW is never logged (§4.7's audit sink only carries BLOCK and
// ALLOW_SUPPRESSED events).
func (e *Engine) auditScan(scanID string, direction audit.Direction, result scan.Result, suppressed bool, keyID, upstreamTarget string, streaming bool) {
	if e.audit == nil {
		return
	}
	if result.Decision != scan.DecisionBlock && !suppressed {
		return
	}
	action := audit.ActionBlock
	if suppressed {
		action = audit.ActionAllowSuppressed
	}
	e.audit.Enqueue(audit.Event{
		ScanID:          scanID,
		Timestamp:       time.Now(),
		SourceKeyID:     keyID,
		Action:          action,
		Direction:       direction,
		RuleID:          result.RuleID,
		RiskLevel:       string(result.RiskLevel),
		RedactedExcerpt: result.Excerpt,
		Test:            result.Test,
		TokensDelivered: result.TokensDelivered,
		UpstreamTarget:  upstreamTarget,
		WasStreaming:    streaming,
		Suppressed:      suppressed,
	})
}

// auditAdvisory records a BLOCK-worthy finding from an advisory NLP scan
// that ran too late to gate the response it describes — visibility only,
// never enforcement (§4.4 "advisory... can only emit an audit event").
func (e *Engine) auditAdvisory(scanID string, result scan.Result) {
	if e.audit == nil {
		return
	}
	e.audit.Enqueue(audit.Event{
		ScanID:          scanID,
		Timestamp:       time.Now(),
		Action:          audit.ActionBlock,
		Direction:       audit.DirectionRequest,
		RuleID:          result.RuleID,
		RiskLevel:       string(result.RiskLevel),
		RedactedExcerpt: result.Excerpt,
		Test:            result.Test,
	})
}
