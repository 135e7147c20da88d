package vet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAuditBuildsChain(t *testing.T) {
	t.Setenv("CLAWKIT_HOME", t.TempDir())
	t.Setenv("CLAWKIT_CONFIG", "")

	if err := AppendAudit("vet", map[string]any{"slug": "test-skill", "score": 0}); err != nil {
		t.Fatal(err)
	}
	if err := AppendAudit("install", map[string]any{"slug": "test-skill"}); err != nil {
		t.Fatal(err)
	}

	path, err := AuditPath()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d", len(lines))
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if _, ok := first["prevHash"]; ok {
		t.Fatal("first line must not carry prevHash")
	}
	if second["prevHash"] != first["hash"] {
		t.Fatalf("chain broken: prevHash %v != hash %v", second["prevHash"], first["hash"])
	}

	count, err := VerifyAuditChain(path)
	if err != nil {
		t.Fatalf("chain verification failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("verified %d lines, want 2", count)
	}
}

func TestVerifyAuditChainDetectsTamper(t *testing.T) {
	t.Setenv("CLAWKIT_HOME", t.TempDir())
	t.Setenv("CLAWKIT_CONFIG", "")

	for i := 0; i < 3; i++ {
		if err := AppendAudit("vet", map[string]any{"run": i}); err != nil {
			t.Fatal(err)
		}
	}
	path, err := AuditPath()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"run":1`, `"run":9`, 1)
	if tampered == string(data) {
		t.Fatal("test setup: payload to tamper not found")
	}
	if err := os.WriteFile(path, []byte(tampered), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyAuditChain(path); err == nil {
		t.Fatal("tampered chain must fail verification")
	}
}

func TestVerifyAuditChainDetectsDeletedLine(t *testing.T) {
	t.Setenv("CLAWKIT_HOME", t.TempDir())
	t.Setenv("CLAWKIT_CONFIG", "")

	for i := 0; i < 3; i++ {
		if err := AppendAudit("vet", map[string]any{"run": i}); err != nil {
			t.Fatal(err)
		}
	}
	path, err := AuditPath()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	cut := strings.Join([]string{lines[0], lines[2]}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(cut), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyAuditChain(path); err == nil {
		t.Fatal("chain with a removed line must fail verification")
	}
}

func TestAuditPathUsesStateDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CLAWKIT_HOME", home)
	t.Setenv("CLAWKIT_CONFIG", "")

	path, err := AuditPath()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(home, ".clawkit", AuditFileName)
	if path != want {
		t.Fatalf("audit path = %q, want %q", path, want)
	}
}
