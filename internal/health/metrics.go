package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the proxy, named ongarde_* and grouped the
// way the retrieval pack's metrics packages group theirs (counter per
// outcome, histogram per latency-bearing operation).
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ongarde_requests_total",
			Help: "Total proxied requests by decision.",
		},
		[]string{"decision", "direction"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ongarde_scan_duration_seconds",
			Help:    "Scan duration by source (fast_path, nlp, streaming).",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"source"},
	)

	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ongarde_audit_events_dropped_total",
			Help: "Audit events dropped because the sink channel was full.",
		},
	)

	StreamingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ongarde_streaming_connections_active",
			Help: "Current number of open SSE streaming connections being scanned.",
		},
	)

	ScannerReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ongarde_scanner_ready",
			Help: "1 once the scanner is compiled, calibrated, and serving traffic.",
		},
	)
)
