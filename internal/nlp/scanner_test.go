package nlp

import (
	"testing"
	"time"

	"github.com/ongarde/ongarde/internal/scan"
)

func TestScannerDetectsEmail(t *testing.T) {
	s := NewScanner()
	res := s.Scan("scan-1", "contact me at jane.doe@example.com or nothing else")
	if res.Decision != scan.DecisionBlock {
		t.Fatalf("decision = %s, want BLOCK", res.Decision)
	}
	if res.RuleID != EntityEmail.RuleID() {
		t.Errorf("rule_id = %s, want %s", res.RuleID, EntityEmail.RuleID())
	}
}

func TestScannerValidatesLuhnBeforeBlocking(t *testing.T) {
	s := NewScanner()
	res := s.Scan("scan-2", "my number is 4111111111111112") // fails Luhn
	if res.Decision != scan.DecisionPass {
		t.Fatalf("decision = %s, want PASS for an invalid card number", res.Decision)
	}
}

func TestScannerDetectsValidCreditCard(t *testing.T) {
	s := NewScanner()
	res := s.Scan("scan-3", "card 4111111111111111 on file") // valid Luhn test number
	if res.Decision != scan.DecisionBlock {
		t.Fatalf("decision = %s, want BLOCK", res.Decision)
	}
}

func TestLiteScannerNeverBlocks(t *testing.T) {
	s := NewLiteScanner()
	res := s.Scan("scan-4", "contact me at jane.doe@example.com")
	if res.Decision != scan.DecisionPass {
		t.Fatalf("lite scanner decision = %s, want PASS", res.Decision)
	}
	if s.Mode() != "lite" {
		t.Errorf("Mode() = %s, want lite", s.Mode())
	}
}

func TestCalibrateReturnsThresholdWithinBounds(t *testing.T) {
	s := NewScanner()
	cal := Calibrate(s)
	if cal.SyncThreshold < 0 || cal.SyncThreshold > 1000 {
		t.Errorf("sync threshold %d out of expected [0,1000] range", cal.SyncThreshold)
	}
	if cal.Timeout < 20*time.Millisecond || cal.Timeout > 70*time.Millisecond {
		t.Errorf("timeout %s out of expected bound", cal.Timeout)
	}
}

func TestDefaultCalibrationMatchesReferenceConstant(t *testing.T) {
	cal := DefaultCalibration()
	if cal.SyncThreshold != 500 {
		t.Errorf("default sync threshold = %d, want 500", cal.SyncThreshold)
	}
}
