package allowlist

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "allowlist.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadBareListShape(t *testing.T) {
	path := writeTemp(t, `
- text_contains: "rm -rf /tmp/build"
- rule_id: "SOME_RULE"
`)
	l := New()
	if n := l.Load(path); n != 2 {
		t.Fatalf("Load() = %d, want 2", n)
	}
}

func TestLoadVersionedMappingShape(t *testing.T) {
	path := writeTemp(t, `
version: 1
allowlist:
  - regex: "^test-.*$"
`)
	l := New()
	if n := l.Load(path); n != 1 {
		t.Fatalf("Load() = %d, want 1", n)
	}
}

func TestSystemRuleIDsNeverSuppressible(t *testing.T) {
	path := writeTemp(t, `
- rule_id: "SCANNER_ERROR"
`)
	l := New()
	l.Load(path)
	if _, ok := l.Suppresses("SCANNER_ERROR", "anything"); ok {
		t.Fatal("system rule_id must never be suppressible")
	}
}

func TestInvalidYAMLKeepsPriorSet(t *testing.T) {
	path := writeTemp(t, `- text_contains: "ok"`)
	l := New()
	l.Load(path)

	if err := os.WriteFile(path, []byte("not: [valid"), 0o600); err != nil {
		t.Fatal(err)
	}
	if n := l.Load(path); n != -1 {
		t.Fatalf("Load() on bad YAML = %d, want -1", n)
	}
	if _, ok := l.Suppresses("ANY_RULE", "ok"); !ok {
		t.Fatal("expected the prior snapshot to still suppress on text_contains match")
	}
}

func TestMissingFileIsEmptyAllowlist(t *testing.T) {
	l := New()
	if n := l.Load(filepath.Join(t.TempDir(), "missing.yaml")); n != 0 {
		t.Fatalf("Load() on missing file = %d, want 0", n)
	}
}

func TestTextContainsSuppression(t *testing.T) {
	path := writeTemp(t, `- text_contains: "rm -rf /tmp/build"`)
	l := New()
	l.Load(path)
	_, ok := l.Suppresses("SHELL_COMMAND_DETECTED", "our cleanup step is: rm -rf /tmp/build")
	if !ok {
		t.Fatal("expected suppression")
	}
}
