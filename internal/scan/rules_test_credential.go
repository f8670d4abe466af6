package scan

// TestCredentialLiteral is the registered sentinel used by onboarding and
// by this repository's own tests: a match blocks the request but is
// tagged `test: true` and is never counted against a user's quota.
const TestCredentialLiteral = "sk-ongarde-test-fake-key-12345"

func testCredentialRules() []Rule {
	return []Rule{
		newTestCredentialRule(RuleCredentialDetected, "ongarde-test-key",
			TestCredentialLiteral, "registered OnGarde test credential"),
	}
}
