package testutil

import (
	"archive/tar"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Entry is one item of a fixture tree or archive. Exactly one of Content,
// Link or Dir is meaningful.
type Entry struct {
	Name    string
	Content string
	Link    string
	Dir     bool
	// Mode defaults to 0644 for files and 0755 for directories.
	Mode os.FileMode
}

// File returns a regular file entry.
func File(name, content string) Entry {
	return Entry{Name: name, Content: content}
}

// Executable returns a regular file entry with mode 0755.
func Executable(name, content string) Entry {
	return Entry{Name: name, Content: content, Mode: 0o755}
}

// Symlink returns a link entry.
func Symlink(name, target string) Entry {
	return Entry{Name: name, Link: target}
}

// Dir returns a directory entry.
func Dir(name string) Entry {
	return Entry{Name: name, Dir: true}
}

func (e Entry) mode() os.FileMode {
	if e.Mode != 0 {
		return e.Mode
	}
	if e.Dir {
		return 0o755
	}
	return 0o644
}

// WriteTree materializes entries under root.
func WriteTree(t *testing.T, root string, entries ...Entry) {
	t.Helper()

	for _, e := range entries {
		path := filepath.Join(root, filepath.FromSlash(e.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create parent of %s: %v", e.Name, err)
		}
		switch {
		case e.Dir:
			if err := os.MkdirAll(path, e.mode()); err != nil {
				t.Fatalf("create dir %s: %v", e.Name, err)
			}
		case e.Link != "":
			if err := os.Symlink(e.Link, path); err != nil {
				t.Fatalf("create symlink %s: %v", e.Name, err)
			}
		default:
			if err := os.WriteFile(path, []byte(e.Content), e.mode()); err != nil {
				t.Fatalf("write %s: %v", e.Name, err)
			}
			if err := os.Chmod(path, e.mode()); err != nil {
				t.Fatalf("chmod %s: %v", e.Name, err)
			}
		}
	}
}

// WriteZip writes a zip archive at path containing entries.
func WriteZip(t *testing.T, path string, entries ...Entry) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent of %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		body := e.Content
		switch {
		case e.Dir:
			hdr.Name = e.Name + "/"
			hdr.Method = zip.Store
			hdr.SetMode(fs.ModeDir | e.mode())
		case e.Link != "":
			hdr.SetMode(fs.ModeSymlink | 0o777)
			body = e.Link
		default:
			hdr.SetMode(e.mode())
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("zip header %s: %v", e.Name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}

// WriteTarGz writes a gzip-compressed tarball at path containing entries.
func WriteTarGz(t *testing.T, path string, entries ...Entry) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent of %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: int64(e.mode())}
		switch {
		case e.Dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Name = e.Name + "/"
		case e.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Link
			hdr.Mode = 0o777
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Content))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Content)); err != nil {
				t.Fatalf("tar write %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
}

// ReadTree returns every file and link under root keyed by slash-separated
// relative path. Files map to their content, links to "-> target".
// Directories are implied by their children and left out.
func ReadTree(t *testing.T, root string) map[string]string {
	t.Helper()

	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			out[rel] = "-> " + target
		case d.Type().IsRegular():
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			out[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read tree %s: %v", root, err)
	}
	return out
}

// Paths returns the sorted keys of a ReadTree result.
func Paths(tree map[string]string) []string {
	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
