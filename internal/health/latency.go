// Package health implements the /health and /health/scanner endpoints
// (§4.8): a readiness gate plus rolling scan-latency metrics, grounded on
// the reference implementation's ScanLatencyTracker and
// StreamingMetricsTracker (app/utils/health.py).
package health

import (
	"math"
	"sort"
	"sync"
)

// window is the rolling sample count both trackers retain, matching the
// reference implementation's default of 100.
const window = 100

// minSamplesForP99 is the reference implementation's guard against a
// misleading p99 from a tiny sample set.
const minSamplesForP99 = 10

// LatencyTracker is a fixed-size rolling window of scan durations in
// milliseconds, reporting a rolling average and p99.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	next    int
	filled  bool
}

// NewLatencyTracker returns an empty tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{samples: make([]float64, 0, window)}
}

// Record appends a latency sample, evicting the oldest once the window is
// full.
func (t *LatencyTracker) Record(durationMS float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) < window {
		t.samples = append(t.samples, durationMS)
		return
	}
	t.samples[t.next] = durationMS
	t.next = (t.next + 1) % window
	t.filled = true
}

// AvgMS returns the rolling mean, or 0 when no samples exist.
func (t *LatencyTracker) AvgMS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range t.samples {
		sum += s
	}
	return sum / float64(len(t.samples))
}

// P99MS returns the 99th percentile, or 0 when fewer than
// minSamplesForP99 samples have been recorded.
func (t *LatencyTracker) P99MS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) < minSamplesForP99 {
		return 0
	}
	sorted := make([]float64, len(t.samples))
	copy(sorted, t.samples)
	sort.Float64s(sorted)
	idx := int(math.Max(0, math.Ceil(0.99*float64(len(sorted)))-1))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Count returns the number of samples currently retained.
func (t *LatencyTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// StreamingTracker tracks active SSE streaming connections and per-window
// scan durations, distinct from the full-request LatencyTracker (§4.4).
type StreamingTracker struct {
	mu     sync.Mutex
	active int
	window *LatencyTracker
}

// NewStreamingTracker returns an empty tracker.
func NewStreamingTracker() *StreamingTracker {
	return &StreamingTracker{window: NewLatencyTracker()}
}

// StreamOpened marks a streaming connection as started.
func (s *StreamingTracker) StreamOpened() {
	s.mu.Lock()
	s.active++
	n := s.active
	s.mu.Unlock()
	StreamingActive.Set(float64(n))
}

// StreamClosed marks a streaming connection as ended. Never goes below
// zero, guarding against a double-close race during shutdown.
func (s *StreamingTracker) StreamClosed() {
	s.mu.Lock()
	if s.active > 0 {
		s.active--
	}
	n := s.active
	s.mu.Unlock()
	StreamingActive.Set(float64(n))
}

// RecordWindowScan records one per-window scan duration.
func (s *StreamingTracker) RecordWindowScan(durationMS float64) {
	s.window.Record(durationMS)
}

// ActiveCount returns the current number of open streaming connections.
func (s *StreamingTracker) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// WindowAvgMS returns the rolling average window-scan duration.
func (s *StreamingTracker) WindowAvgMS() float64 { return s.window.AvgMS() }

// WindowP99MS returns the p99 window-scan duration.
func (s *StreamingTracker) WindowP99MS() float64 { return s.window.P99MS() }

// WindowCount returns the number of window-scan samples retained.
func (s *StreamingTracker) WindowCount() int { return s.window.Count() }
