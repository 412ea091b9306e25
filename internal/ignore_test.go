package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func writeIgnore(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, IgnoreFilename), []byte(content), 0644); err != nil {
		t.Fatalf("write ignore file: %v", err)
	}
}

func TestIgnoreMatcherEmpty(t *testing.T) {
	m, err := NewIgnoreMatcher(t.TempDir())
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}

	if m.Match("anything/goes.jpg", false) {
		t.Error("empty ignore should not match anything")
	}
}

func TestIgnoreMatcherGlobPattern(t *testing.T) {
	tmpDir := t.TempDir()
	writeIgnore(t, tmpDir, "*.gif\n")

	m, err := NewIgnoreMatcher(tmpDir)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}

	if !m.Match("memes/cat.gif", false) {
		t.Error("expected '*.gif' to match 'memes/cat.gif'")
	}
	if m.Match("cat.jpg", false) {
		t.Error("expected '*.gif' to not match 'cat.jpg'")
	}
}

func TestIgnoreMatcherDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	writeIgnore(t, tmpDir, "screenshots/\n")

	m, err := NewIgnoreMatcher(tmpDir)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}

	if !m.Match(filepath.Join(tmpDir, "screenshots"), true) {
		t.Error("expected directory pattern to match absolute dir path")
	}
	if m.Match(filepath.Join(tmpDir, "screenshots"), false) {
		t.Error("directory pattern should not match a file")
	}
}

func TestIgnoreMatcherNegation(t *testing.T) {
	tmpDir := t.TempDir()
	writeIgnore(t, tmpDir, "# raw exports\n*.png\n!keep.png\n")

	m, err := NewIgnoreMatcher(tmpDir)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}

	if !m.Match("scan.png", false) {
		t.Error("expected 'scan.png' to be ignored")
	}
	if m.Match("keep.png", false) {
		t.Error("expected negated 'keep.png' to be kept")
	}
	if m.Match("# raw exports", false) {
		t.Error("expected comment not to be a pattern")
	}
}
