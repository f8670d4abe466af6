package scan

// Credential rules. Patterns are carried over from the reference
// implementation's pattern table (`scanner/definitions.py`
// CREDENTIAL_PATTERNS) rather than the teacher's broader multi-service
// matcher set, since the reference table is the authority the data
// model's rule_id (`CREDENTIAL_DETECTED`) is drawn from.
func credentialRules() []Rule {
	return []Rule{
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "openai-api-key-classic",
			"OpenAI API key (classic)", `sk-[a-zA-Z0-9]{20}T3BlbkFJ[a-zA-Z0-9]{20}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "openai-project-key",
			"OpenAI project API key", `sk-proj-[a-zA-Z0-9_-]{50,}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "openai-api-key",
			"OpenAI API key", `sk-[a-zA-Z0-9]{48}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "anthropic-api-key",
			"Anthropic API key", `sk-ant-api03-[a-zA-Z0-9_-]{93}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "aws-access-key-id",
			"AWS access key id", `(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "aws-secret-access-key",
			"AWS secret access key", `(?i)aws.{0,20}secret.{0,20}[=:]\s*[a-zA-Z0-9/+]{40}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "github-access-token",
			"GitHub access token", `gh[pousr]_[a-zA-Z0-9]{36}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "github-fine-grained-pat",
			"GitHub fine-grained PAT", `github_pat_[a-zA-Z0-9]{22}_[a-zA-Z0-9]{59}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "bearer-token",
			"generic bearer token", `Bearer\s+[a-zA-Z0-9._\-+/=]{64,}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "stripe-live-secret-key",
			"Stripe live secret key", `sk_live_[a-zA-Z0-9]{24,}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "stripe-restricted-key",
			"Stripe restricted key", `rk_live_[a-zA-Z0-9]{24,}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "huggingface-token",
			"HuggingFace token", `hf_[a-zA-Z0-9]{34,}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "slack-bot-token",
			"Slack bot token", `xoxb-[0-9]{10,13}-[0-9]{10,13}-[a-zA-Z0-9]{24,}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "slack-app-token",
			"Slack app token", `xapp-[0-9]-[a-zA-Z0-9]{10,}-[0-9]{10,}-[a-zA-Z0-9]{64,}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "twilio-account-sid",
			"Twilio account SID", `AC[a-f0-9]{32}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "google-api-key",
			"Google API key", `AIza[0-9A-Za-z_-]{35}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "sendgrid-api-key",
			"SendGrid API key", `SG\.[a-zA-Z0-9._]{22,}\.[a-zA-Z0-9._]{43,}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "mailgun-private-key",
			"Mailgun private key", `key-[a-z0-9]{32}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "npm-token",
			"npm token", `npm_[a-zA-Z0-9]{36}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "pypi-token",
			"PyPI token", `pypi-[a-zA-Z0-9_-]{50,}`),
		newRule(RuleCredentialDetected, ClassCredential, RiskCritical, "pem-private-key",
			"PEM private key block", `-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
	}
}
