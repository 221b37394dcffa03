// Package version checks that downloaded game data was built with the same
// engine version as the runtime player it will be bundled with.
package version

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
)

// MinTokenLen is the shortest printable run that counts as a string.
const MinTokenLen = 4

var (
	// ErrVersionMismatch is returned when the data and player versions differ.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrNoToken is returned when a resource contains no printable run.
	ErrNoToken = errors.New("no version string found")
)

// MismatchError names both versions of a failed check.
type MismatchError struct {
	Resource  string
	Found     string
	Supported string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("current assets unity version is %s, but this build is configured to work only with %s; the build configuration must be updated",
		e.Found, e.Supported)
}

func (e *MismatchError) Unwrap() error {
	return ErrVersionMismatch
}

// ExtractToken returns the first run of at least MinTokenLen printable ASCII
// characters in the file at path, trimmed of surrounding spaces.
func ExtractToken(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open version resource: %w", err)
	}
	defer f.Close()

	token, err := ExtractTokenFrom(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return token, nil
}

// ExtractTokenFrom is ExtractToken over a reader.
func ExtractTokenFrom(r io.Reader) (string, error) {
	br := bufio.NewReader(r)
	var run []byte

	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}

		if isPrintable(b) {
			run = append(run, b)
			continue
		}
		if len(run) >= MinTokenLen {
			break
		}
		run = run[:0]
	}

	if len(run) < MinTokenLen {
		return "", ErrNoToken
	}
	return strings.TrimSpace(string(run)), nil
}

// isPrintable matches the byte set strings(1) treats as text.
func isPrintable(b byte) bool {
	return b == '\t' || (b >= 0x20 && b <= 0x7e)
}

// Gate compares a resource's embedded version with the supported one.
type Gate struct {
	allowMismatch bool
	logger        config.Logger
}

// NewGate creates a gate. With allowMismatch a mismatch is logged instead of
// returned.
func NewGate(allowMismatch bool, logger config.Logger) *Gate {
	return &Gate{
		allowMismatch: allowMismatch,
		logger:        config.OrNop(logger),
	}
}

// Check extracts the version from the resource at path and compares it with
// supported. It returns the version found.
func (g *Gate) Check(path, supported string) (string, error) {
	found, err := ExtractToken(path)
	if err != nil {
		return "", err
	}

	if found == supported {
		g.logger.Info("engine version matches", "version", found)
		return found, nil
	}

	mismatch := &MismatchError{Resource: path, Found: found, Supported: supported}
	if g.allowMismatch {
		g.logger.Warn("engine version mismatch allowed by configuration", "found", found, "supported", supported)
		return found, nil
	}
	g.logger.Error("engine version mismatch", "found", found, "supported", supported)
	return found, mismatch
}
