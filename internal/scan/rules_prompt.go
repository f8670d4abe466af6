package scan

// Prompt-injection rules, grounded on `scanner/definitions.py`
// PROMPT_INJECTION_PATTERNS plus the teacher's own PromptInjectionMatcher
// boundary-marker patterns (matchers_injection.go), which the reference
// table does not cover.
func promptInjectionRules() []Rule {
	return []Rule{
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "ignore-previous-instructions",
			"instruction override", `(?i)ignore (all )?(previous|prior|above) instructions`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "disregard-instructions",
			"instruction override", `(?i)disregard (your )?(system prompt|previous instructions|all instructions)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "dan-mode-activation",
			"jailbreak persona activation", `(?i)\bDAN\b.{0,50}(mode|activate|enable)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "do-anything-now",
			"jailbreak persona activation", `(?i)do anything now`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "no-longer-restricted",
			"restriction-removal claim", `(?i)you are no longer (bound by|restricted by|limited to)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "new-instructions-override",
			"instruction override", `(?i)your new (instructions|directive|purpose|role) (are|is)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "act-as-unrestricted",
			"role manipulation", `(?i)act as (an? )?(unrestricted|jailbroken|different) (ai|assistant|model|llm|version)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "forget-instructions",
			"instruction override", `(?i)forget everything (you|i|we) (have been told|have said|have discussed|said|told)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "pretend-no-restrictions",
			"role manipulation", `(?i)pretend (you|that) (are|have) no (restrictions|limits|guidelines)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "override-safety-filters",
			"safety-filter override claim", `(?i)override (your )?(safety|content|ethical) (filters|guidelines|restrictions)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "enable-special-mode",
			"privileged-mode activation", `(?i)enable (developer|god|admin|root|debug|jailbreak) mode`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "jailbreak-label",
			"explicit jailbreak label", `(?i)\bJAILBREAK\s*:`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "system-override-label",
			"explicit override label", `(?i)\bSYSTEM OVERRIDE\s*:`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "sudo-mode-label",
			"explicit override label", `(?i)\bSUDO MODE\s*:`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "prompt-injection-label",
			"explicit prompt-injection label", `(?i)\bPROMPT INJECTION\s*:`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "repeat-system-prompt",
			"system-prompt extraction", `(?i)repeat (the|your) (system|base) prompt (back|verbatim|word for word)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "extract-system-prompt",
			"system-prompt extraction", `(?i)(what (is|was) (your|the)|output (your|the) (raw|full)) (system prompt|instructions)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "injected-instruction-block",
			"boundary-marker injection", `(?i)\[(NEW INSTRUCTIONS|SYSTEM UPDATE|ADMIN OVERRIDE|SYSTEM MESSAGE)\]`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "from-now-on-directive",
			"instruction override", `(?i)from now on (you will|you must|you shall|respond as)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "evil-ai-role-assignment",
			"role manipulation", `(?i)you are (an? )?(evil|malicious|harmful|dangerous|unrestricted) (ai|assistant|bot)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskMedium, "translate-above-prompt",
			"system-prompt extraction via translation", `(?i)translate (the )?above (content|text|prompt) to`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "role-confusion-mode",
			"role manipulation", `(?i)you are now (in )?(DAN|jailbreak|god|unrestricted|developer|admin) mode`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskMedium, "encoded-injection-atob",
			"base64-decode-and-execute pattern", `\batob\s*\(`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskMedium, "start-fresh-no-restrictions",
			"restriction-removal claim", `(?i)(start fresh|start over).{0,30}(no restrictions|without restrictions|ignore)`),
		newRule(RulePromptInjectionDetected, ClassPromptInject, RiskHigh, "boundary-marker-role-token",
			"chat role boundary marker injected mid-content", `\[(system|assistant|user)\]|<\|im_(start|end)\|>`),
	}
}
