package scan

// Sensitive-file-reference rules: the unauthorized-path-access subset of
// `scanner/definitions.py` DANGEROUS_COMMAND_PATTERNS, split out under its
// own classification and risk level (HIGH, not CRITICAL — a path reference
// is a weaker signal than an executed destructive command).
func fileRules() []Rule {
	return []Rule{
		newRule(RuleSensitiveFileReference, ClassFile, RiskHigh, "ssh-private-key-path",
			"reference to an SSH private key", `\.ssh/id_rsa\b`),
		newRule(RuleSensitiveFileReference, ClassFile, RiskHigh, "ssh-authorized-keys-path",
			"reference to SSH authorized_keys", `\.ssh/authorized_keys\b`),
		newRule(RuleSensitiveFileReference, ClassFile, RiskHigh, "etc-passwd-path",
			"reference to /etc/passwd", `/etc/passwd\b`),
		newRule(RuleSensitiveFileReference, ClassFile, RiskHigh, "etc-shadow-path",
			"reference to /etc/shadow", `/etc/shadow\b`),
		newRule(RuleSensitiveFileReference, ClassFile, RiskHigh, "etc-sudoers-path",
			"reference to /etc/sudoers", `/etc/sudoers\b`),
		newRule(RuleSensitiveFileReference, ClassFile, RiskHigh, "credentials-file-path",
			"reference to a credentials file", `(?i)credentials\.(json|yaml|yml|csv|txt)\b`),
		newRule(RuleSensitiveFileReference, ClassFile, RiskHigh, "dotenv-file-path",
			"reference to a .env file", `(?i)\.env\b`),
		newRule(RuleSensitiveFileReference, ClassFile, RiskHigh, "aws-credentials-path",
			"reference to ~/.aws/credentials", `~/\.aws/credentials\b`),
	}
}
