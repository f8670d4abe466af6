// Package allowlist implements the hot-reloaded suppression list of §4.5,
// grounded on the reference implementation's `allowlist/loader.py`: a
// mutex-guarded snapshot, parse-errors-keep-prior-set semantics, and a
// never-raises contract so a bad reload can never take the proxy down.
package allowlist

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// systemRuleIDs are never suppressible, even if an operator lists them.
var systemRuleIDs = map[string]bool{
	"SCANNER_ERROR":       true,
	"SCANNER_TIMEOUT":     true,
	"QUOTA_EXCEEDED":      true,
	"SCANNER_UNAVAILABLE": true,
}

// Entry is one suppression rule: exactly one of TextContains, Regex, or
// RuleID is set.
type Entry struct {
	TextContains string `yaml:"text_contains,omitempty"`
	Regex        string `yaml:"regex,omitempty"`
	RuleID       string `yaml:"rule_id,omitempty"`
	Reason       string `yaml:"reason,omitempty"`

	compiled *regexp.Regexp
}

// document is the `{version, allowlist: [...]}` shape; the bare top-level
// list shape is handled separately in parseRaw.
type document struct {
	Version   int     `yaml:"version"`
	Allowlist []Entry `yaml:"allowlist"`
}

// Loader is the mutable singleton holding the current allowlist snapshot.
// Readers on the hot path take a copy-on-write snapshot via Entries(); the
// mutex is only held long enough to swap a pointer.
type Loader struct {
	mu      sync.RWMutex
	entries []Entry

	onReload func(count int)
}

// New returns an empty loader.
func New() *Loader {
	return &Loader{}
}

// OnReload registers a callback invoked after every successful Load, used
// to drive the dashboard's config-status endpoint (§4 supplemented
// feature). At most one callback is kept, matching the reference
// implementation's single dashboard-notify hook.
func (l *Loader) OnReload(fn func(count int)) {
	l.onReload = fn
}

// Entries returns a read-only snapshot of the current allowlist.
func (l *Loader) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Load reads and parses path, replacing the current snapshot. It never
// returns an error to a caller that can't act on one — a missing file is
// treated as an empty allowlist, and a parse error leaves the previous
// snapshot in force. The returned count is the number of entries now in
// force (0 on a missing file, -1 on a parse error with the prior set
// retained), matching the reference implementation's load() contract.
func (l *Loader) Load(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.replace(nil)
			return 0
		}
		return -1
	}

	entries, err := parseRaw(data)
	if err != nil {
		return -1
	}

	l.replace(entries)
	return len(entries)
}

func (l *Loader) replace(entries []Entry) {
	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	if l.onReload != nil {
		l.onReload(len(entries))
	}
}

// parseRaw accepts both YAML shapes the reference loader supports: a bare
// top-level list, or a {version, allowlist: [...]} mapping.
func parseRaw(data []byte) ([]Entry, error) {
	var asList []Entry
	if err := yaml.Unmarshal(data, &asList); err == nil && asList != nil {
		return compileEntries(asList)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing allowlist: %w", err)
	}
	return compileEntries(doc.Allowlist)
}

func compileEntries(raw []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		if e.RuleID != "" && systemRuleIDs[e.RuleID] {
			// System rule_ids are never suppressible; silently drop rather
			// than fail the whole reload.
			continue
		}
		if e.Regex != "" {
			compiled, err := regexp.Compile(e.Regex)
			if err != nil {
				return nil, fmt.Errorf("invalid allowlist regex %q: %w", e.Regex, err)
			}
			e.compiled = compiled
		}
		out = append(out, e)
	}
	return out, nil
}

// Suppresses reports whether any entry downgrades a BLOCK candidate with
// the given rule_id to PASS (§4.5). text is the original scanned content —
// callers must not pass a redacted excerpt, since a text_contains or regex
// entry is written against the real matched value, which a redaction mask
// would hide from it.
func (l *Loader) Suppresses(ruleID, text string) (Entry, bool) {
	if systemRuleIDs[ruleID] {
		return Entry{}, false
	}
	for _, e := range l.Entries() {
		switch {
		case e.TextContains != "" && strings.Contains(text, e.TextContains):
			return e, true
		case e.compiled != nil && e.compiled.MatchString(text):
			return e, true
		case e.RuleID != "" && e.RuleID == ruleID:
			return e, true
		}
	}
	return Entry{}, false
}
