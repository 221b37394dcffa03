// Package testutil provides utilities for testing the bundle build in
// isolation: throwaway working directories, fixture archives and trees, and
// a logger that remembers what it was told.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env is an isolated working directory with the staging and output
// directories a build expects.
type Env struct {
	Root    string
	Staging string
	Output  string
}

// SetupTestEnv creates isolated test directories for each test.
// This ensures tests never touch a real staging directory holding gigabytes
// of downloaded content, or the user's built bundle.
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	tmpDir := t.TempDir()
	env := Env{
		Root:    tmpDir,
		Staging: filepath.Join(tmpDir, "source"),
		Output:  filepath.Join(tmpDir, "build"),
	}

	// Keep HOME away from the real one; the depot tool caches credentials
	// there.
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	for _, dir := range []string{env.Staging, filepath.Join(tmpDir, "home")} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return env
}
