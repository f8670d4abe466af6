package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ongarde/ongarde/internal/health"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func openTestSink(t *testing.T) *Sink {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path, NewSigner([]byte("test-secret")), nil, nil)
	if err != nil {
		t.Fatalf("opening sink: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func countRows(t *testing.T, s *Sink) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	return n
}

func TestEnqueuePersistsEventOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path, NewSigner([]byte("test-secret")), nil, nil)
	if err != nil {
		t.Fatalf("opening sink: %v", err)
	}
	s.Enqueue(Event{ScanID: "01H1", Timestamp: time.Now(), Action: ActionBlock, Direction: DirectionRequest, RuleID: "CREDENTIAL_DETECTED"})

	// Close flushes any pending batch before returning, then closes the
	// sink's database handle, so the rows are counted through a new one.
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopening audit store: %v", err)
	}
	defer db.Close()
	if n := countRows(t, &Sink{db: db}); n != 1 {
		t.Fatalf("expected 1 persisted event after close, got %d", n)
	}
}

func TestWriteBatchIsIdempotentOnScanID(t *testing.T) {
	s := openTestSink(t)
	e := Event{ScanID: "01H2", Timestamp: time.Now(), Action: ActionBlock}
	if err := s.writeBatch([]Event{e, e}); err != nil {
		t.Fatalf("writeBatch: %v", err)
	}
	if n := countRows(t, s); n != 1 {
		t.Fatalf("expected INSERT OR IGNORE to dedupe on scan_id, got %d rows", n)
	}
}

func TestPruneDeletesOnlyEventsOlderThanRetention(t *testing.T) {
	s := openTestSink(t)
	now := time.Now().UTC()

	recent := Event{ScanID: "01H3", Timestamp: now, Action: ActionBlock}
	old := Event{ScanID: "01H4", Timestamp: now.AddDate(0, 0, -100), Action: ActionBlock}
	if err := s.writeBatch([]Event{recent, old}); err != nil {
		t.Fatalf("writeBatch: %v", err)
	}

	deleted, err := s.Prune(context.Background(), 90)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected exactly one row older than the retention window to be pruned, got %d", deleted)
	}
	if n := countRows(t, s); n != 1 {
		t.Fatalf("expected the recent event to survive pruning, got %d rows", n)
	}
}

func TestEnqueueDroppedEventIncrementsBothCounters(t *testing.T) {
	// Built without Open's writer goroutine, so the channel is never
	// drained and filling it to capacity deterministically forces
	// Enqueue's full-channel drop branch.
	s := &Sink{ch: make(chan Event, ChannelCapacity)}
	for i := 0; i < ChannelCapacity; i++ {
		s.ch <- Event{ScanID: "filler"}
	}

	before := testutil.ToFloat64(health.AuditDropped)
	s.Enqueue(Event{ScanID: "01H6", Timestamp: time.Now(), Action: ActionBlock})

	if s.Dropped() == 0 {
		t.Fatal("expected Sink.Dropped() to have incremented")
	}
	if after := testutil.ToFloat64(health.AuditDropped); after <= before {
		t.Fatalf("expected health.AuditDropped to increment, before=%v after=%v", before, after)
	}
}

func TestEnqueueSignsEventsWhenSignerPresent(t *testing.T) {
	s := openTestSink(t)
	s.Enqueue(Event{ScanID: "01H5", Timestamp: time.Now(), Action: ActionBlock})
	time.Sleep(2 * BatchInterval)

	var sig string
	if err := s.db.QueryRow(`SELECT signature FROM audit_events WHERE scan_id = ?`, "01H5").Scan(&sig); err != nil {
		t.Fatalf("querying signature: %v", err)
	}
	if sig == "" {
		t.Fatal("expected a non-empty signature to be persisted")
	}
}
