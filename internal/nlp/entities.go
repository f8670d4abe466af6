// Package nlp implements the slow-path named-entity scanner described in
// §4.3: credit cards, US SSNs, email addresses, phone numbers, and crypto
// wallet addresses. There is no statistical NER model wired in (no pack
// dependency provides one); every entity class here is checksum- or
// pattern-verifiable, so the "pretrained recognizer pipeline" is
// implemented as a second regex-plus-validation engine, grounded on the
// teacher's SSN/credit-card matchers (pkg/scan/matchers_pii.go).
package nlp

import (
	"regexp"
	"strconv"
	"strings"
)

// EntityType is one of the classes the slow path recognizes.
type EntityType string

const (
	EntityCreditCard EntityType = "credit_card"
	EntitySSN        EntityType = "national_id"
	EntityEmail      EntityType = "email"
	EntityPhone      EntityType = "phone"
	EntityCrypto     EntityType = "crypto_wallet"
)

// RuleID is the category-level rule_id surfaced to the client, matching
// the reference implementation's PII_DETECTED_* naming.
func (e EntityType) RuleID() string {
	switch e {
	case EntityCreditCard:
		return "PII_DETECTED_CREDIT_CARD"
	case EntitySSN:
		return "PII_DETECTED_US_SSN"
	case EntityEmail:
		return "PII_DETECTED_EMAIL"
	case EntityPhone:
		return "PII_DETECTED_PHONE_US"
	case EntityCrypto:
		return "PII_DETECTED_CRYPTO"
	default:
		return "PII_DETECTED"
	}
}

type entityRecognizer struct {
	entity  EntityType
	pattern *regexp.Regexp
	valid   func(raw string) bool
}

var recognizers = []entityRecognizer{
	{EntityCreditCard, regexp.MustCompile(`\b(?:\d[-\s]?){13,19}\b`), isValidLuhn},
	{EntitySSN, regexp.MustCompile(`\b\d{3}[-.\s]?\d{2}[-.\s]?\d{4}\b`), isValidSSN},
	{EntityEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), alwaysValid},
	{EntityPhone, regexp.MustCompile(`(?:\+1[-.\s]?)?(?:\([2-9]\d{2}\)|[2-9]\d{2})[-.\s]?[2-9]\d{2}[-.\s]?\d{4}`), alwaysValid},
	{EntityCrypto, regexp.MustCompile(`\b(?:0x[a-fA-F0-9]{40}|bc1[ac-hj-np-z02-9]{6,87}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`), alwaysValid},
}

func alwaysValid(string) bool { return true }

// EntitySet lists the recognized entity classes in catalog order, for the
// /health/scanner entity_set field.
func EntitySet() []string {
	names := make([]string, len(recognizers))
	for i, r := range recognizers {
		names[i] = string(r.entity)
	}
	return names
}

// isValidLuhn implements the Luhn checksum, ported from the teacher's
// CreditCardMatcher.isValidLuhn.
func isValidLuhn(raw string) bool {
	clean := stripSeparators(raw)
	if len(clean) < 13 || len(clean) > 19 {
		return false
	}
	sum := 0
	alternate := false
	for i := len(clean) - 1; i >= 0; i-- {
		d, err := strconv.Atoi(string(clean[i]))
		if err != nil {
			return false
		}
		if alternate {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alternate = !alternate
	}
	return sum%10 == 0
}

// isValidSSN ports the teacher's area/group/serial validation rules
// (pkg/scan/matchers_pii.go SSNMatcher.isValidSSN).
func isValidSSN(raw string) bool {
	clean := stripSeparators(raw)
	if len(clean) != 9 {
		return false
	}
	for _, c := range clean {
		if c < '0' || c > '9' {
			return false
		}
	}
	area, _ := strconv.Atoi(clean[0:3])
	if area == 0 || area == 666 || area >= 900 {
		return false
	}
	group, _ := strconv.Atoi(clean[3:5])
	if group == 0 {
		return false
	}
	serial, _ := strconv.Atoi(clean[5:9])
	if serial == 0 {
		return false
	}
	return true
}

func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ".", "")
	return s
}
