// Package digest computes file and directory fingerprints.
//
// File digests (md5, sha256) check downloads against the digests published
// by vendors. Tree digests (blake3) fingerprint whole staged or assembled
// directory trees so two trees can be compared without walking them side by
// side.
package digest

import (
	"crypto/md5" //nolint:gosec // vendors publish md5 digests; this is integrity, not authenticity
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a file digest algorithm.
type Algorithm string

const (
	// MD5 is what the Unity and DepotDownloader digests were recorded with.
	MD5 Algorithm = "md5"
	// SHA256 is accepted for vendors that publish it.
	SHA256 Algorithm = "sha256"
)

// AlgorithmFor infers the algorithm from the length of a hex digest.
func AlgorithmFor(hexDigest string) (Algorithm, error) {
	switch len(hexDigest) {
	case md5.Size * 2:
		return MD5, nil
	case sha256.Size * 2:
		return SHA256, nil
	default:
		return "", fmt.Errorf("cannot infer digest algorithm from %d hex characters", len(hexDigest))
	}
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil //nolint:gosec // see import
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", string(a))
	}
}

// File returns the lowercase hex digest of the file at path.
func File(path string, algo Algorithm) (string, error) {
	hasher, err := algo.newHash()
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Tree returns a blake3 fingerprint of the file or directory at root.
//
// The fingerprint covers every entry's path relative to root, its type, its
// permission bits, and its content (or link target for symlinks). Entries
// are visited in lexical order, so two trees with identical content produce
// the same fingerprint regardless of where they live or when they were
// written. Modification times are ignored.
func Tree(root string) (string, error) {
	hasher := blake3.New()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		writeField(hasher, []byte(filepath.ToSlash(rel)))

		mode := info.Mode()
		switch {
		case mode&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read link %s: %w", path, err)
			}
			writeField(hasher, []byte{'l'})
			writeField(hasher, []byte(target))
		case mode.IsDir():
			writeField(hasher, []byte{'d'})
			writeUint(hasher, uint64(mode.Perm()))
		case mode.IsRegular():
			writeField(hasher, []byte{'f'})
			writeUint(hasher, uint64(mode.Perm()))
			writeUint(hasher, uint64(info.Size()))
			if err := copyFile(hasher, path); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported file type %s at %s", mode.Type(), path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hashing tree %s: %w", root, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func copyFile(w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(w, file)
	return err
}

// writeField length-prefixes b so adjacent fields cannot run together.
func writeField(w io.Writer, b []byte) {
	writeUint(w, uint64(len(b)))
	_, _ = w.Write(b)
}

func writeUint(w io.Writer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = w.Write(buf[:])
}
