package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commands.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestLoadDocument_FlatList(t *testing.T) {
	path := writeDoc(t, "- echo a\n- echo b\n")
	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Main) != 2 {
		t.Fatalf("got %d main entries, want 2", len(doc.Main))
	}
}

func TestLoadDocument_Structured(t *testing.T) {
	path := writeDoc(t, `
environment:
  FOO: bar
main:
  - echo a
post:
  - echo b
`)
	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Environment["FOO"] != "bar" {
		t.Errorf("got environment %v", doc.Environment)
	}
	if len(doc.Main) != 1 || len(doc.Post) != 1 {
		t.Errorf("got main=%v post=%v", doc.Main, doc.Post)
	}
}

func TestLoadDocument_InvalidTopLevel(t *testing.T) {
	path := writeDoc(t, "42\n")
	if _, err := LoadDocument(path); err == nil {
		t.Fatal("expected an error for a non-list, non-mapping top level")
	}
}

func TestExpandEnvironment(t *testing.T) {
	os.Setenv("SHRUN_TEST_VAR", "value")
	defer os.Unsetenv("SHRUN_TEST_VAR")

	out := expandEnvironment(map[string]string{"X": "$SHRUN_TEST_VAR"})
	if out["X"] != "value" {
		t.Errorf("got %q, want %q", out["X"], "value")
	}
}
