package scan

// Category-level rule identifiers. Multiple patterns share one rule_id —
// the data model's "stable string" identity is the detection category, not
// the individual regex; `Slug` names a specific pattern and breaks ties in
// evaluation order without widening what rule_id means.
const (
	RuleShellCommandDetected    = "SHELL_COMMAND_DETECTED"
	RuleSensitiveFileReference  = "SENSITIVE_FILE_REFERENCE"
	RulePromptInjectionDetected = "PROMPT_INJECTION_DETECTED"
)

// defaultRules assembles the static rule catalog: credentials, shell
// commands, sensitive file references, prompt-injection markers, and the
// registered test credentials. NLP/PII rules are not part of this catalog —
// they belong to package nlp's slow path (§4.3).
func defaultRules() []Rule {
	var all []Rule
	all = append(all, credentialRules()...)
	all = append(all, shellRules()...)
	all = append(all, fileRules()...)
	all = append(all, promptInjectionRules()...)
	all = append(all, testCredentialRules()...)
	return all
}
