package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/ongarde/ongarde/internal/health"
)

// ChannelCapacity is the bounded-channel size §4.7 names ("capacity N,
// e.g. 1024").
const ChannelCapacity = 1024

// BatchSize and BatchInterval bound how long an event may wait in the
// channel before its transaction is flushed.
const (
	BatchSize     = 50
	BatchInterval = 200 * time.Millisecond
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS audit_events (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id           TEXT NOT NULL UNIQUE,
    timestamp         TEXT NOT NULL,
    source_key_id     TEXT NOT NULL DEFAULT '',
    action            TEXT NOT NULL,
    direction         TEXT NOT NULL,
    rule_id           TEXT,
    risk_level        TEXT,
    redacted_excerpt  TEXT,
    test              INTEGER NOT NULL DEFAULT 0,
    tokens_delivered  INTEGER NOT NULL DEFAULT 0,
    upstream_target   TEXT,
    was_streaming     INTEGER NOT NULL DEFAULT 0,
    suppressed        INTEGER NOT NULL DEFAULT 0,
    signature         TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events(action);
`

// AuxSink is the optional best-effort second writer (e.g. Kafka) driven
// off the same channel as the primary SQLite writer.
type AuxSink interface {
	Write(Event)
	Close() error
}

// Sink is the single-writer audit pipeline: Enqueue never blocks the
// request path; a background goroutine drains the channel into batched
// SQLite transactions.
type Sink struct {
	db     *sql.DB
	signer *Signer
	log    *zap.Logger
	aux    AuxSink

	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	dropped   atomic.Int64
}

// Open opens (or creates) the audit database at path and starts the
// writer goroutine.
func Open(path string, signer *Signer, log *zap.Logger, aux AuxSink) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit store %q: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := guardSchemaVersion(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Sink{
		db:     db,
		signer: signer,
		log:    log,
		aux:    aux,
		ch:     make(chan Event, ChannelCapacity),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func guardSchemaVersion(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err := db.Exec(`INSERT INTO schema_meta(version) VALUES(?)`, schemaVersion)
		return err
	}
	var version int
	if err := db.QueryRow(`SELECT version FROM schema_meta LIMIT 1`).Scan(&version); err != nil {
		return err
	}
	if version != schemaVersion {
		return fmt.Errorf("audit store schema version %d does not match expected %d", version, schemaVersion)
	}
	return nil
}

// Enqueue places e on the bounded channel without blocking. A full
// channel drops the event and increments the dropped-event counter
// (§4.7: "Primary drops are counted as a metric, never fail the
// request").
func (s *Sink) Enqueue(e Event) {
	if s.signer != nil {
		e.Signature = s.signer.Sign(e)
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
		health.AuditDropped.Inc()
		if s.log != nil {
			s.log.Warn("audit channel full, dropping event", zap.String("scan_id", e.ScanID))
		}
	}
	if s.aux != nil {
		s.aux.Write(e) // best-effort, never blocks the primary path
	}
}

// Dropped returns the running count of events dropped due to backpressure.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Sink) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(BatchInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.writeBatch(batch); err != nil && s.log != nil {
			s.log.Error("audit batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-s.ch:
			batch = append(batch, e)
			if len(batch) >= BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			flush()
			return
		}
	}
}

func (s *Sink) writeBatch(batch []Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
        INSERT OR IGNORE INTO audit_events
            (scan_id, timestamp, source_key_id, action, direction, rule_id, risk_level,
             redacted_excerpt, test, tokens_delivered, upstream_target, was_streaming, suppressed, signature)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range batch {
		_, err := stmt.Exec(
			e.ScanID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.SourceKeyID, string(e.Action), string(e.Direction),
			e.RuleID, e.RiskLevel, e.RedactedExcerpt, boolToInt(e.Test), e.TokensDelivered,
			e.UpstreamTarget, boolToInt(e.WasStreaming), boolToInt(e.Suppressed), e.Signature,
		)
		if err != nil {
			return fmt.Errorf("insert audit event %s: %w", e.ScanID, err)
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Prune deletes events older than retentionDays, matching the
// sqlite_backend.py boundary: events exactly at the cutoff are kept.
func (s *Sink) Prune(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close stops the writer goroutine after flushing any pending batch and
// closes the database and auxiliary sink. Safe to call more than once.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.aux != nil {
			_ = s.aux.Close()
		}
		err = s.db.Close()
	})
	return err
}
