package health

import (
	"encoding/json"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ongarde/ongarde/internal/nlp"
)

// ConnectionPoolSize is the configured upstream connection pool bound
// (§5); reported as the constant it is configured to rather than
// introspected live, since neither net/http's transport nor the spec's
// own pool abstraction exposes a live in-flight count cheaply.
const ConnectionPoolSize = 100

// State is the shared, mutation-safe readiness and metrics surface the
// entrypoint (readiness and calibration) and the proxy (scan latencies)
// write into, and the /health handlers read from. Constructed once at startup and held by
// the entrypoint for the life of the process.
type State struct {
	ready atomic.Bool

	scannerMode string
	calibration nlp.Calibration
	poolWorkers int

	latency   *LatencyTracker
	streaming *StreamingTracker
}

// NewState builds the health state for a scanner running in the given
// mode. poolWorkers is 1 for full mode (the NLP scanner), 0 for lite.
func NewState(scannerMode string, poolWorkers int) *State {
	return &State{
		scannerMode: scannerMode,
		poolWorkers: poolWorkers,
		latency:     NewLatencyTracker(),
		streaming:   NewStreamingTracker(),
	}
}

// SetReady flips the readiness gate both endpoints check. Called once
// startup (regex compile, NLP load if full mode, calibration) completes.
func (s *State) SetReady(calibration nlp.Calibration) {
	s.calibration = calibration
	s.ready.Store(true)
	ScannerReady.Set(1)
}

// Ready reports whether startup has completed.
func (s *State) Ready() bool { return s.ready.Load() }

// Latency returns the full-request scan latency tracker, written to by
// the proxy engine after every scan.
func (s *State) Latency() *LatencyTracker { return s.latency }

// Streaming returns the SSE streaming latency and connection-count
// tracker, written to by the streaming scanner.
func (s *State) Streaming() *StreamingTracker { return s.streaming }

// deploymentMode reports "self-hosted" unless SUPABASE_URL is set,
// matching the reference implementation's managed-vs-self-hosted check.
func deploymentMode() string {
	if os.Getenv("SUPABASE_URL") == "" {
		return "self-hosted"
	}
	return "managed"
}

// Handler builds the mux serving /health, /health/scanner, and /metrics.
func (s *State) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/scanner", s.handleHealthScanner)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleHealth implements §4.8's primary health check: 503 with
// {status: "starting", ...} before the scanner is ready, 200 with the
// full status body after. No filesystem path is ever included in the
// response (§4.8 "No filesystem paths leaked").
func (s *State) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "starting",
			"scanner": "initializing",
			"message": "OnGarde is starting up. Scanner warming up...",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"proxy":                "running",
		"scanner":              "healthy",
		"scanner_mode":         s.scannerMode,
		"connection_pool_size": ConnectionPoolSize,
		"avg_scan_ms":          s.latency.AvgMS(),
		"queue_depth":          0,
		"deployment_mode":      deploymentMode(),
	})
}

// handleHealthScanner implements §4.8's detailed scanner health check.
func (s *State) handleHealthScanner(w http.ResponseWriter, r *http.Request) {
	if !s.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "starting",
			"scanner": "initializing",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scanner":      "healthy",
		"scanner_mode": s.scannerMode,
		"entity_set":   nlp.EntitySet(),
		"avg_scan_ms":  s.latency.AvgMS(),
		"p99_scan_ms":  s.latency.P99MS(),
		"queue_depth":  0,
		"pool_workers": s.poolWorkers,
		"calibration": map[string]any{
			"sync_threshold_chars": s.calibration.SyncThreshold,
			"timeout_ms":           float64(s.calibration.Timeout.Microseconds()) / 1000.0,
		},
		"streaming_active":   s.streaming.ActiveCount(),
		"window_scan_avg_ms": s.streaming.WindowAvgMS(),
		"window_scan_p99_ms": s.streaming.WindowP99MS(),
		"window_scan_count":  s.streaming.WindowCount(),
	})
}
