// Package audit implements the append-only event sink of §4.7: a
// bounded in-memory channel drained by a single writer into an
// embedded SQLite store, with an optional best-effort Kafka auxiliary
// sink, grounded on original_source/app/audit/sqlite_backend.py for
// the schema/retention model and on the teacher's pkg/stream package
// for the Kafka producer shape.
package audit

import "time"

// Direction distinguishes a request-path scan from a response-path
// scan within one HTTP exchange.
type Direction string

const (
	DirectionRequest  Direction = "REQUEST"
	DirectionResponse Direction = "RESPONSE"
)

// Action mirrors the decision recorded against an event; ALLOW_SUPPRESSED
// is the allowlist-downgrade kind §4.5 names.
type Action string

const (
	ActionAllow           Action = "ALLOW"
	ActionBlock           Action = "BLOCK"
	ActionAllowSuppressed Action = "ALLOW_SUPPRESSED"
)

// Event is the append-only record §3 describes as AuditEvent.
type Event struct {
	ScanID          string
	Timestamp       time.Time
	SourceKeyID     string
	Action          Action
	Direction       Direction
	RuleID          string
	RiskLevel       string
	RedactedExcerpt string
	Test            bool
	TokensDelivered int
	UpstreamTarget  string
	WasStreaming    bool
	Suppressed      bool
	Signature       string // HMAC over the canonical fields, set by the writer
}
