package digest

import (
	"crypto/md5" //nolint:gosec // test mirrors production algorithm
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
}

func TestAlgorithmFor(t *testing.T) {
	tests := []struct {
		digest  string
		want    Algorithm
		wantErr bool
	}{
		{strings.Repeat("a", 32), MD5, false},
		{strings.Repeat("a", 64), SHA256, false},
		{strings.Repeat("a", 40), "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := AlgorithmFor(tt.digest)
		if (err != nil) != tt.wantErr {
			t.Errorf("AlgorithmFor(len %d) error = %v, wantErr %v", len(tt.digest), err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("AlgorithmFor(len %d) = %q, want %q", len(tt.digest), got, tt.want)
		}
	}
}

func TestFile(t *testing.T) {
	content := "hello, bundle"
	path := filepath.Join(t.TempDir(), "payload")
	writeFile(t, path, content, 0644)

	md5Sum := md5.Sum([]byte(content)) //nolint:gosec // test
	shaSum := sha256.Sum256([]byte(content))

	got, err := File(path, MD5)
	if err != nil {
		t.Fatalf("File(MD5) error = %v", err)
	}
	if got != hex.EncodeToString(md5Sum[:]) {
		t.Errorf("File(MD5) = %s, want %x", got, md5Sum)
	}

	got, err = File(path, SHA256)
	if err != nil {
		t.Fatalf("File(SHA256) error = %v", err)
	}
	if got != hex.EncodeToString(shaSum[:]) {
		t.Errorf("File(SHA256) = %s, want %x", got, shaSum)
	}

	if _, err := File(path, Algorithm("crc32")); err == nil {
		t.Error("File(crc32) expected error")
	}
	if _, err := File(filepath.Join(t.TempDir(), "missing"), MD5); err == nil {
		t.Error("File(missing) expected error")
	}
}

func TestEqual(t *testing.T) {
	if !Equal("ABCDEF", "abcdef") {
		t.Error("Equal should ignore case")
	}
	if !Equal(" abc\n", "abc") {
		t.Error("Equal should ignore surrounding whitespace")
	}
	if Equal("abc", "abd") {
		t.Error("Equal matched different digests")
	}
}

func buildTree(t *testing.T, root string) {
	t.Helper()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha", 0644)
	writeFile(t, filepath.Join(root, "bin", "tool"), "#!/bin/sh\n", 0755)
	writeFile(t, filepath.Join(root, "nested", "deep", "c.dat"), "charlie", 0644)
	if err := os.Symlink("a.txt", filepath.Join(root, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
}

func TestTree_SameContentSameDigest(t *testing.T) {
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")
	buildTree(t, a)
	buildTree(t, b)

	da, err := Tree(a)
	if err != nil {
		t.Fatalf("Tree(a) error = %v", err)
	}
	db, err := Tree(b)
	if err != nil {
		t.Fatalf("Tree(b) error = %v", err)
	}
	if da != db {
		t.Errorf("identical trees hash differently: %s vs %s", da, db)
	}
}

func TestTree_DetectsChanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, root string)
	}{
		{"content", func(t *testing.T, root string) {
			writeFile(t, filepath.Join(root, "a.txt"), "alphA", 0644)
		}},
		{"mode", func(t *testing.T, root string) {
			if err := os.Chmod(filepath.Join(root, "bin", "tool"), 0644); err != nil {
				t.Fatal(err)
			}
		}},
		{"extra file", func(t *testing.T, root string) {
			writeFile(t, filepath.Join(root, "stray"), "", 0644)
		}},
		{"removed file", func(t *testing.T, root string) {
			if err := os.Remove(filepath.Join(root, "nested", "deep", "c.dat")); err != nil {
				t.Fatal(err)
			}
		}},
		{"link target", func(t *testing.T, root string) {
			link := filepath.Join(root, "link")
			if err := os.Remove(link); err != nil {
				t.Fatal(err)
			}
			if err := os.Symlink("bin/tool", link); err != nil {
				t.Fatal(err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "tree")
			buildTree(t, root)
			before, err := Tree(root)
			if err != nil {
				t.Fatalf("Tree() error = %v", err)
			}

			tt.mutate(t, root)

			after, err := Tree(root)
			if err != nil {
				t.Fatalf("Tree() error = %v", err)
			}
			if before == after {
				t.Error("digest did not change")
			}
		})
	}
}

func TestTree_SingleFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "one")
	b := filepath.Join(dir, "two")
	writeFile(t, a, "same", 0644)
	writeFile(t, b, "same", 0644)

	da, err := Tree(a)
	if err != nil {
		t.Fatalf("Tree(a) error = %v", err)
	}
	db, err := Tree(b)
	if err != nil {
		t.Fatalf("Tree(b) error = %v", err)
	}
	if da != db {
		t.Error("identical files at different paths should hash the same")
	}
}

func TestTree_Missing(t *testing.T) {
	if _, err := Tree(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for missing root")
	}
}
