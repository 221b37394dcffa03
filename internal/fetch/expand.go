package fetch

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/artifact"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
)

const partialSuffix = ".partial"

// Expander turns a staged archive into a staged directory.
type Expander struct {
	runner Runner
	goos   string
	logger config.Logger
}

// NewExpander creates an expander. goos decides whether the macOS
// quarantine flag is cleared from executables.
func NewExpander(runner Runner, goos string, logger config.Logger) *Expander {
	return &Expander{
		runner: runner,
		goos:   goos,
		logger: config.OrNop(logger),
	}
}

// Expand unpacks archivePath into desc.StagingPath and runs the post-steps
// desc asks for. The archive is unpacked next to the staging path first and
// moved into place when complete, so an interrupted expansion never looks
// staged.
func (e *Expander) Expand(ctx context.Context, desc artifact.Descriptor, archivePath string) error {
	partial := desc.StagingPath + partialSuffix
	if err := os.RemoveAll(partial); err != nil {
		return fmt.Errorf("%s: clear partial expansion: %w", desc.ID, err)
	}

	var err error
	switch desc.Unpack {
	case artifact.UnpackZip:
		err = ExtractZip(archivePath, partial)
	case artifact.UnpackTarGz:
		err = ExtractTarGz(archivePath, partial)
	case artifact.UnpackPkg:
		err = e.runner.Run(ctx, Command{
			Path:     "pkgutil",
			Args:     []string{"--expand-full", archivePath, partial},
			Artifact: desc.ID,
		})
	default:
		err = fmt.Errorf("unsupported unpack strategy %s", desc.Unpack)
	}
	if err != nil {
		os.RemoveAll(partial)
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return err
		}
		return fmt.Errorf("%s: expand %s: %w", desc.ID, filepath.Base(archivePath), err)
	}

	if err := os.RemoveAll(desc.StagingPath); err != nil {
		return fmt.Errorf("%s: clear staging path: %w", desc.ID, err)
	}
	if err := os.Rename(partial, desc.StagingPath); err != nil {
		return fmt.Errorf("%s: move expansion into place: %w", desc.ID, err)
	}

	if desc.Executable != "" {
		exe := filepath.Join(desc.StagingPath, desc.Executable)
		if err := SetExecutable(exe); err != nil {
			return fmt.Errorf("%s: %w", desc.ID, err)
		}
		if e.goos == "darwin" {
			e.clearQuarantine(ctx, desc.ID, exe)
		}
	}

	if desc.RemoveSource {
		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%s: remove %s: %w", desc.ID, filepath.Base(archivePath), err)
		}
	}

	e.logger.Info("expanded archive", "artifact", desc.ID, "unpack", desc.Unpack.String(), "path", desc.StagingPath)
	return nil
}

// clearQuarantine strips extended attributes so Gatekeeper does not block a
// downloaded executable. Failure only costs the user a dialog, so it is
// logged and ignored.
func (e *Expander) clearQuarantine(ctx context.Context, id, path string) {
	err := e.runner.Run(ctx, Command{
		Path:     "xattr",
		Args:     []string{"-c", path},
		Artifact: id,
	})
	if err != nil {
		e.logger.Warn("could not clear extended attributes", "artifact", id, "path", path, "error", err)
	}
}

// SetExecutable sets executable permissions on a file
func SetExecutable(path string) error {
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}

// ExtractZip extracts a zip archive to destDir.
func ExtractZip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	for _, f := range reader.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}

		case mode&fs.ModeSymlink != 0:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", f.Name, err)
			}
			linkname, err := io.ReadAll(io.LimitReader(rc, 4096))
			rc.Close()
			if err != nil {
				return fmt.Errorf("read link %s: %w", f.Name, err)
			}
			if err := writeSymlink(destDir, target, string(linkname)); err != nil {
				return err
			}

		default:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", f.Name, err)
			}
			err = writeFile(target, rc, fileMode(mode))
			rc.Close()
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// ExtractTarGz extracts a .tar.gz archive to a destination directory
func ExtractTarGz(archivePath, destDir string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}

		case tar.TypeReg:
			if err := writeFile(target, tarReader, fileMode(os.FileMode(header.Mode))); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := writeSymlink(destDir, target, header.Linkname); err != nil {
				return err
			}

		default:
			// Skip other types (char devices, block devices, etc.)
			continue
		}
	}

	return nil
}

// safeJoin resolves an archive entry name under destDir and rejects names
// that would land outside it.
func safeJoin(destDir, name string) (string, error) {
	cleanDest := filepath.Clean(destDir)
	target := filepath.Join(cleanDest, filepath.FromSlash(name))
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

// writeSymlink creates a link whose target stays inside destDir.
func writeSymlink(destDir, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("illegal symlink %s -> %s", target, linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), linkname)
	cleanDest := filepath.Clean(destDir)
	if resolved != cleanDest && !strings.HasPrefix(resolved, cleanDest+string(os.PathSeparator)) {
		return fmt.Errorf("illegal symlink %s -> %s", target, linkname)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	os.Remove(target)
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err := io.Copy(outFile, r); err != nil {
		outFile.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}

	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return os.Chmod(target, mode)
}

// fileMode keeps the permission bits of an entry, falling back to 0644 for
// archives written without any.
func fileMode(mode os.FileMode) os.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return 0644
	}
	return perm
}
