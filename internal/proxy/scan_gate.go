package proxy

import (
	"time"

	"go.uber.org/zap"

	"github.com/ongarde/ongarde/internal/health"
	"github.com/ongarde/ongarde/internal/scan"
)

// inputHardCap truncates scanned text before any pattern runs, ported
// verbatim from the reference pipeline's apply_input_cap step.
const inputHardCap = 8192

// globalScanTimeout is the safety net wrapping the entire scan pipeline
// (fast path plus any synchronous NLP call): nothing may hold the request
// open longer than this before the fail-safe BLOCK fires.
const globalScanTimeout = 60 * time.Millisecond

// advisoryTimeoutMultiplier bounds how long an advisory NLP scan — one
// that can no longer affect the response already in flight — is allowed
// to run before it's abandoned.
const advisoryTimeoutMultiplier = 3

// addedLatencyWarnMS is the sub-50ms total added latency budget §1 sets
// for the proxy as a whole; a single scan crossing it is worth a warning
// even though it is not, by itself, a policy failure.
const addedLatencyWarnMS = 50.0

// scanOrBlock is the only entry point callers use to run the scan
// pipeline. It always returns a Result and never panics: any failure
// inside the pipeline (timeout, panic, scanner bug) folds to a BLOCK with
// rule_id SCANNER_ERROR or SCANNER_TIMEOUT rather than letting content
// through unscanned. The returned bool reports whether an allowlist entry
// downgraded a BLOCK to PASS (audit still fires, as ALLOW_SUPPRESSED).
// log may be nil; a missing process logger just skips the warning.
func (e *Engine) scanOrBlock(scanID, text string, log *zap.Logger) (scan.Result, bool) {
	out := make(chan scan.Result, 1)
	go func() {
		defer func() {
			if recover() != nil {
				out <- scan.ErrorResult(scanID, scan.SourceError, scan.RuleScannerError)
			}
		}()
		out <- e.scanPipeline(scanID, text)
	}()

	start := time.Now()
	var result scan.Result
	select {
	case result = <-out:
	case <-time.After(globalScanTimeout):
		result = scan.ErrorResult(scanID, scan.SourceError, scan.RuleScannerTimeout)
	}
	elapsedMS := float64(time.Since(start).Microseconds()) / 1000.0

	e.hlth.Latency().Record(elapsedMS)
	health.ScanDuration.WithLabelValues(string(result.Source)).Observe(elapsedMS / 1000.0)
	if log != nil && elapsedMS > addedLatencyWarnMS {
		log.Warn("scan exceeded added-latency budget",
			zap.Float64("duration_ms", elapsedMS),
			zap.Float64("threshold_ms", addedLatencyWarnMS),
			zap.String("source", string(result.Source)))
	}

	return e.applyAllowlist(result, text)
}

// scanPipeline runs the fast path synchronously, then routes NLP
// synchronously or advisory by the calibrated threshold (§4.3).
func (e *Engine) scanPipeline(scanID, text string) scan.Result {
	if len(text) > inputHardCap {
		text = text[:inputHardCap]
	}

	if rule, excerpt, ok := e.scanner.Scan(text); ok {
		return scan.Block(scanID, scan.SourceFastPath, rule, excerpt)
	}

	if e.nlp == nil || text == "" {
		return scan.Pass(scanID, scan.SourceFastPath)
	}

	if e.calibration.SyncThreshold > 0 && len(text) <= e.calibration.SyncThreshold {
		return e.nlpSyncScan(scanID, text)
	}

	go e.nlpAdvisoryScan(scanID, text)
	return scan.Pass(scanID, scan.SourceFastPath)
}

// nlpSyncScan runs the NLP scanner synchronously, bounded by the
// calibrated per-call timeout.
func (e *Engine) nlpSyncScan(scanID, text string) scan.Result {
	out := make(chan scan.Result, 1)
	go func() {
		defer func() {
			if recover() != nil {
				out <- scan.ErrorResult(scanID, scan.SourceError, scan.RuleScannerError)
			}
		}()
		out <- e.nlp.Scan(scanID, text)
	}()

	select {
	case result := <-out:
		return result
	case <-time.After(e.calibration.Timeout):
		return scan.ErrorResult(scanID, scan.SourceError, scan.RuleScannerTimeout)
	}
}

// nlpAdvisoryScan runs off the request task entirely. It can never block
// or alter the response already sent; a BLOCK-worthy finding is only
// recorded to the audit trail for visibility, per §5's "NLP on advisory
// runs off the request task on a worker".
func (e *Engine) nlpAdvisoryScan(scanID, text string) {
	defer func() { recover() }()

	out := make(chan scan.Result, 1)
	go func() {
		defer func() {
			if recover() != nil {
				out <- scan.Result{}
			}
		}()
		out <- e.nlp.Scan(scanID, text)
	}()

	select {
	case result := <-out:
		if result.IsBlocking() {
			e.auditAdvisory(scanID, result)
		}
	case <-time.After(e.calibration.Timeout * advisoryTimeoutMultiplier):
	}
}

// applyAllowlist downgrades a policy BLOCK to PASS when an allowlist
// entry matches. A scanner failure is never suppressed by policy (§4.5,
// safe_scan.py's "never for error paths"): ErrorResult carries the
// SCANNER_ERROR / SCANNER_TIMEOUT rule_ids, which Suppresses always
// refuses.
//
// text is the original scanned content, not result.Excerpt: the excerpt
// has the matched value masked out for audit safety, so a text_contains
// or regex entry written against the real secret would never match it.
// matcher.py's apply_allowlist runs its pattern check against the same
// unredacted content it was handed, not a scan result field.
func (e *Engine) applyAllowlist(result scan.Result, text string) (scan.Result, bool) {
	if result.Decision != scan.DecisionBlock || e.allow == nil {
		return result, false
	}
	if _, ok := e.allow.Suppresses(result.RuleID, text); ok {
		result.Decision = scan.DecisionPass
		return result, true
	}
	return result, false
}
