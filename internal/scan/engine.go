package scan

import "sort"

// Engine is the single compiled fast-path scanner: the test-credential
// rules, then every credential, shell, file, and prompt-injection rule,
// each group in a deterministic order.
// Compiled once at startup and never mutated, so concurrent Scan calls need
// no lock (§3 "compiled state is shared and immutable after initialization").
type Engine struct {
	testRules []Rule // evaluated first, per §4's supplemented test-credential rule
	rules     []Rule
}

// NewEngine compiles the default rule catalog.
func NewEngine() *Engine {
	return newEngineFrom(defaultRules())
}

// NewEngineWithRules builds an engine from a caller-supplied rule set,
// mainly for tests that want a small, deterministic catalog.
func NewEngineWithRules(rules []Rule) *Engine {
	return newEngineFrom(rules)
}

func newEngineFrom(rules []Rule) *Engine {
	var test, rest []Rule
	for _, r := range rules {
		if r.IsTestCredential {
			test = append(test, r)
		} else {
			rest = append(rest, r)
		}
	}
	sortRules(test)
	sortRules(rest)
	return &Engine{testRules: test, rules: rest}
}

// sortRules orders the catalog by rule_id, breaking ties on slug so that
// pattern groups sharing a rule_id (e.g. every credential pattern reports
// CREDENTIAL_DETECTED) still evaluate in a fixed, reproducible order.
func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].ID != rules[j].ID {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].Slug < rules[j].Slug
	})
}

// Rules returns the compiled catalog, test credentials first, in evaluation
// order.
func (e *Engine) Rules() []Rule {
	all := make([]Rule, 0, len(e.testRules)+len(e.rules))
	all = append(all, e.testRules...)
	all = append(all, e.rules...)
	return all
}

// Scan runs every rule over text, test credentials first and then the
// catalog in rule_id-lexical order, returning on the first match (§4.2). A
// nil return means no rule fired.
func (e *Engine) Scan(text string) (*Rule, string, bool) {
	if rule, x, ok := scanSet(e.testRules, text); ok {
		return rule, x, true
	}
	return scanSet(e.rules, text)
}

func scanSet(rules []Rule, text string) (*Rule, string, bool) {
	for i := range rules {
		rule := &rules[i]
		_, start, end, ok := rule.Match(text)
		if !ok {
			continue
		}
		return rule, excerpt(text, start, end), true
	}
	return nil, "", false
}
