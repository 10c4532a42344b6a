// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories, and returns
// path.
func WriteFile(tb testing.TB, path, content string) string {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// CommandTree lays out files, keyed by slash-separated relative path, under a
// fresh temporary directory and returns that directory.
func CommandTree(tb testing.TB, files map[string]string) string {
	tb.Helper()
	root := tb.TempDir()
	for rel, content := range files {
		WriteFile(tb, filepath.Join(root, filepath.FromSlash(rel)), content)
	}
	return root
}
