package audit

import "time"

// RecentEvents returns up to limit BLOCK (and, if includeSuppressed,
// ALLOW_SUPPRESSED) events, most recent first, for the dashboard events
// table (§4.9). limit is clamped to [1, 50].
func (s *Sink) RecentEvents(limit int, includeSuppressed bool) ([]Event, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}

	query := `
        SELECT scan_id, timestamp, source_key_id, action, direction, rule_id, risk_level,
               redacted_excerpt, test, tokens_delivered, upstream_target, was_streaming, suppressed
        FROM audit_events
        WHERE action = ?`
	args := []any{string(ActionBlock)}
	if includeSuppressed {
		query = `
        SELECT scan_id, timestamp, source_key_id, action, direction, rule_id, risk_level,
               redacted_excerpt, test, tokens_delivered, upstream_target, was_streaming, suppressed
        FROM audit_events
        WHERE action IN (?, ?)`
		args = []any{string(ActionBlock), string(ActionAllowSuppressed)}
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			ts       string
			action   string
			dir      string
			test     int
			streamed int
			supp     int
		)
		if err := rows.Scan(&e.ScanID, &ts, &e.SourceKeyID, &action, &dir, &e.RuleID, &e.RiskLevel,
			&e.RedactedExcerpt, &test, &e.TokensDelivered, &e.UpstreamTarget, &streamed, &supp); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		e.Direction = Direction(dir)
		e.Test = test != 0
		e.WasStreaming = streamed != 0
		e.Suppressed = supp != 0
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountSince counts events matching action (empty matches any) recorded
// at or after since, for the dashboard counters endpoint (§4.9).
func (s *Sink) CountSince(action Action, riskLevel string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM audit_events WHERE timestamp >= ?`
	args := []any{since.UTC().Format(time.RFC3339Nano)}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, string(action))
	}
	if riskLevel != "" {
		query += ` AND risk_level = ?`
		args = append(args, riskLevel)
	}
	var n int
	err := s.db.QueryRow(query, args...).Scan(&n)
	return n, err
}
