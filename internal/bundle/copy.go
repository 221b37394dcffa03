package bundle

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// copyPath copies src to dst the way cp -R does when dst's parent exists:
// directories are merged, files and links overwritten, links copied as
// links, permission bits preserved.
func copyPath(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch mode := info.Mode(); {
		case mode&fs.ModeSymlink != 0:
			return copySymlink(path, target)
		case mode.IsDir():
			return copyDir(target, mode.Perm())
		case mode.IsRegular():
			return copyFile(path, target, mode.Perm())
		default:
			return fmt.Errorf("unsupported file type %s at %s", mode.Type(), path)
		}
	})
}

func copyDir(target string, perm os.FileMode) error {
	if info, err := os.Lstat(target); err == nil && !info.IsDir() {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace %s with directory: %w", target, err)
		}
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", target, err)
	}
	if err := os.Chmod(target, perm|0700); err != nil {
		return fmt.Errorf("chmod %s: %w", target, err)
	}
	return nil
}

func copySymlink(path, target string) error {
	link, err := os.Readlink(path)
	if err != nil {
		return fmt.Errorf("read link %s: %w", path, err)
	}
	if err := clearForFile(target); err != nil {
		return err
	}
	if err := os.Symlink(link, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}

func copyFile(path, target string, perm os.FileMode) error {
	if err := clearForFile(target); err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0200)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Chmod(target, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", target, err)
	}
	return nil
}

// clearForFile makes sure target's parent exists and that nothing but a
// regular file sits at target.
func clearForFile(target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", target, err)
	}
	info, err := os.Lstat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode().IsRegular() {
		// Opened with O_TRUNC; make sure it is writable.
		return os.Chmod(target, info.Mode().Perm()|0200)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("clear %s: %w", target, err)
	}
	return nil
}
