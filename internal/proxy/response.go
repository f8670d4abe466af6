package proxy

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ongarde/ongarde/internal/audit"
	"github.com/ongarde/ongarde/internal/health"
	"github.com/ongarde/ongarde/internal/scan"
	"github.com/ongarde/ongarde/internal/stream"
)

// forwardResponse implements §4.1 step 6's mode selection: streaming when
// the upstream declares SSE or a body that is large or of unknown length,
// buffered otherwise. The decision is made from headers alone, before a
// single response byte is read.
func (e *Engine) forwardResponse(w http.ResponseWriter, scanID, keyID, provider string, resp *http.Response, log *zap.Logger) {
	contentType := resp.Header.Get("Content-Type")
	isSSE := strings.Contains(contentType, "text/event-stream")
	unknownLength := resp.ContentLength < 0
	oversized := resp.ContentLength > BufferedResponseCap

	if isSSE || unknownLength || oversized {
		e.streamResponse(w, scanID, keyID, provider, resp, log)
		return
	}
	e.bufferedResponse(w, scanID, keyID, provider, resp, log)
}

// bufferedResponse reads the entire body and scans it before a single
// byte reaches the client, so a BLOCK can still rewrite the status code
// to 400. The scan covers only the first inputHardCap (8192) characters
// of the body, and NLP runs synchronously only when that text is within
// the calibrated sync threshold; above it the NLP scan is advisory and
// cannot block this response.
func (e *Engine) bufferedResponse(w http.ResponseWriter, scanID, keyID, provider string, resp *http.Response, log *zap.Logger) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_unreachable", "upstream response read failed")
		return
	}

	text := strings.ToValidUTF8(string(body), "�")
	result, suppressed := e.scanOrBlock(scanID, text, log)
	e.auditScan(scanID, audit.DirectionResponse, result, suppressed, keyID, provider, false)
	if result.IsBlocking() && !suppressed {
		health.RequestsTotal.WithLabelValues("block", string(audit.DirectionResponse)).Inc()
		writeBlock(w, scanID, result)
		return
	}
	health.RequestsTotal.WithLabelValues("allow", string(audit.DirectionResponse)).Inc()

	for name, values := range buildAgentResponseHeaders(resp.Header) {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("X-OnGarde-Scan-Id", scanID)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// streamResponse implements §4.4's windowed SSE scan-and-forward loop.
// Headers and status are committed up front — once any byte is
// forwarded, a BLOCK can no longer rewrite the HTTP status, only abort
// the stream with the two-frame sequence §6 specifies.
func (e *Engine) streamResponse(w http.ResponseWriter, scanID, keyID, provider string, resp *http.Response, log *zap.Logger) {
	for name, values := range buildAgentResponseHeaders(resp.Header) {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("X-OnGarde-Scan-Id", scanID)
	w.WriteHeader(resp.StatusCode)
	flusher, canFlush := w.(http.Flusher)

	e.hlth.Streaming().StreamOpened()
	defer e.hlth.Streaming().StreamClosed()

	sc := stream.New(e.scanner, scanID)
	sc.OnWindowScan(func(durationMS float64) {
		e.hlth.Streaming().RecordWindowScan(durationMS)
		health.ScanDuration.WithLabelValues(string(scan.SourceStreaming)).Observe(durationMS / 1000.0)
		if log != nil && durationMS > addedLatencyWarnMS {
			log.Warn("streaming window scan exceeded added-latency budget",
				zap.Float64("duration_ms", durationMS),
				zap.Float64("threshold_ms", addedLatencyWarnMS))
		}
	})
	reader := bufio.NewReader(resp.Body)

	for {
		line, readErr := reader.ReadString('\n')
		if len(line) > 0 {
			_, _ = w.Write([]byte(line))
			if canFlush {
				flusher.Flush()
			}
			if text, ok := stream.ExtractText(line); ok {
				if result := sc.AddContent(text); result.Decision == scan.DecisionBlock {
					e.abortStream(w, scanID, keyID, provider, result)
					return
				}
			}
		}
		if readErr != nil {
			break
		}
	}

	if result := sc.Flush(); result.Decision == scan.DecisionBlock {
		e.abortStream(w, scanID, keyID, provider, result)
		return
	}
	health.RequestsTotal.WithLabelValues("allow", string(audit.DirectionResponse)).Inc()
}

// abortStream emits the §6 two-frame SSE abort sequence and records the
// block. Allowlist suppression does not apply here: once the windowed
// scanner has fired, its internal state is already latched aborted — the
// invariant that "after BLOCK no further bytes are forwarded" leaves no
// point at which an allowlist match could still let the stream continue.
func (e *Engine) abortStream(w http.ResponseWriter, scanID, keyID, provider string, result scan.Result) {
	health.RequestsTotal.WithLabelValues("block", string(audit.DirectionResponse)).Inc()
	e.auditScan(scanID, audit.DirectionResponse, result, false, keyID, provider, true)
	frames := stream.AbortFrames(scanID, result.RuleID, string(result.RiskLevel), result.TokensDelivered, time.Now().Unix(), result.Excerpt)
	_, _ = io.WriteString(w, frames)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
