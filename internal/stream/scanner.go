// Package stream implements the windowed streaming scanner of §4.4: a
// stateful transducer over an outbound SSE byte stream, ported
// field-for-field from the reference implementation's
// `scanner/streaming_scanner.py`.
package stream

import (
	"strings"
	"time"

	"github.com/ongarde/ongarde/internal/scan"
)

// WindowSize and OverlapSize are the scan unit and the boundary-evasion
// carry, both fixed by §4.4.
const (
	WindowSize  = 512
	OverlapSize = 128
)

// Scanner accumulates outbound text into a sliding window with overlap and
// invokes the fast path on each full window. Its state is confined to a
// single stream's task; there is no cross-stream sharing.
type Scanner struct {
	engine *scan.Engine
	scanID string

	windowBuffer strings.Builder
	overlapCarry string

	aborted         bool
	abortResult     scan.Result
	tokensDelivered int
	windowCount     int

	onWindowScan func(durationMS float64)
}

// New builds a streaming scanner bound to one scan_id for the lifetime of
// one response stream.
func New(engine *scan.Engine, scanID string) *Scanner {
	return &Scanner{engine: engine, scanID: scanID}
}

// OnWindowScan registers a callback invoked with each window scan's
// duration in milliseconds, used to feed the §4.8 streaming latency
// rollup. Optional — a Scanner with no callback set just skips the call.
func (s *Scanner) OnWindowScan(fn func(durationMS float64)) {
	s.onWindowScan = fn
}

// Aborted reports whether a BLOCK has already fired on this stream.
func (s *Scanner) Aborted() bool {
	return s.aborted
}

// TokensDelivered approximates tokens forwarded so far. The reference
// implementation's byte→token divisor is 4 (len(content)/4); spec.md
// leaves the exact divisor an explicit open question, resolved here to
// the source's literal value.
func (s *Scanner) TokensDelivered() int {
	return s.tokensDelivered
}

// AddContent appends newly extracted assistant-visible text to the window
// buffer and scans whenever the buffer reaches WindowSize. It returns the
// result of a scan that just fired, or a zero Result if no scan ran this
// call. Once aborted, every further call is a constant-time short-circuit
// returning the cached BLOCK (§4.4 step 4).
func (s *Scanner) AddContent(text string) scan.Result {
	if s.aborted {
		return s.abortResult
	}

	s.tokensDelivered += len(text) / 4
	s.windowBuffer.WriteString(text)

	if s.windowBuffer.Len() < WindowSize {
		return scan.Result{}
	}
	return s.scanWindow()
}

// Flush scans whatever partial window remains at end-of-stream (§4.4 step
// 5). No-op if already aborted or if nothing is buffered.
func (s *Scanner) Flush() scan.Result {
	if s.aborted || s.windowBuffer.Len() == 0 {
		return scan.Result{}
	}
	return s.scanWindow()
}

// scanWindow runs the fast path over overlap_carry||window_buffer, updates
// the overlap carry to the last OverlapSize characters of the window, and
// clears the window. On BLOCK it caches the result so every subsequent
// AddContent call short-circuits.
func (s *Scanner) scanWindow() scan.Result {
	s.windowCount++
	window := s.windowBuffer.String()
	s.windowBuffer.Reset()

	combined := s.overlapCarry + window
	s.overlapCarry = tail(window, OverlapSize)

	t0 := time.Now()
	rule, excerpt, ok := s.engine.Scan(combined)
	if s.onWindowScan != nil {
		s.onWindowScan(float64(time.Since(t0).Microseconds()) / 1000.0)
	}
	if !ok {
		return scan.Result{Decision: scan.DecisionPass, ScanID: s.scanID, Source: scan.SourceStreaming}
	}

	result := scan.Block(s.scanID, scan.SourceStreaming, rule, excerpt)
	result.TokensDelivered = s.tokensDelivered
	s.aborted = true
	s.abortResult = result
	return result
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
