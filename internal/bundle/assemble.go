package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/digest"
)

// ErrDuplicateDiverged is returned when a duplicated subtree does not hash
// the same as its source.
var ErrDuplicateDiverged = errors.New("duplicated subtree differs from its source")

// Result describes an assembled bundle.
type Result struct {
	// Path is the bundle directory.
	Path string
	// Digest is the tree digest of the finished bundle.
	Digest string
	Rules  int
}

// Assembler builds bundles under an output root it owns completely.
type Assembler struct {
	outputRoot string
	logger     config.Logger
}

// NewAssembler creates an assembler writing under outputRoot.
func NewAssembler(outputRoot string, logger config.Logger) *Assembler {
	return &Assembler{
		outputRoot: outputRoot,
		logger:     config.OrNop(logger),
	}
}

// Assemble clears the output root and executes layout's rules in order.
// roots maps artifact IDs to their staged directories. Nothing from a
// previous run survives: the output root is removed first.
func (a *Assembler) Assemble(ctx context.Context, layout Layout, roots map[string]string) (*Result, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	for _, r := range layout.Rules {
		if r.From == "" {
			continue
		}
		if _, ok := roots[r.From]; !ok {
			return nil, fmt.Errorf("rule %q: no staged root for artifact %q", r.Name, r.From)
		}
	}

	if err := a.resetOutput(); err != nil {
		return nil, err
	}

	bundleRoot := filepath.Join(a.outputRoot, layout.Bundle)
	for _, r := range layout.Rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.apply(r, bundleRoot, roots); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		a.logger.Debug("applied copy rule", "rule", r.Name, "mode", r.Mode.String(), "dest", r.Dest)
	}

	sum, err := digest.Tree(bundleRoot)
	if err != nil {
		return nil, err
	}

	a.logger.Info("bundle assembled", "path", bundleRoot, "rules", len(layout.Rules), "digest", sum)
	return &Result{Path: bundleRoot, Digest: sum, Rules: len(layout.Rules)}, nil
}

func (a *Assembler) resetOutput() error {
	clean := filepath.Clean(a.outputRoot)
	if a.outputRoot == "" || clean == "." || clean == string(filepath.Separator) {
		return fmt.Errorf("refusing to clear output root %q", a.outputRoot)
	}
	if err := os.RemoveAll(clean); err != nil {
		return fmt.Errorf("clear output root: %w", err)
	}
	if err := os.MkdirAll(clean, 0755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	return nil
}

func (a *Assembler) apply(r CopyRule, bundleRoot string, roots map[string]string) error {
	srcRoot := bundleRoot
	if r.From != "" {
		srcRoot = roots[r.From]
	}
	src := filepath.Join(srcRoot, r.Path)
	dest := filepath.Join(bundleRoot, r.Dest)

	switch r.Mode {
	case ModeOverwriteFile:
		if r.Path == "" {
			return writeContent(dest, r.Content)
		}
		info, err := os.Lstat(src)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("source %s is a directory", src)
		}
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("clear destination: %w", err)
		}
		return copyPath(src, dest)

	case ModeMergeDirectory:
		if _, err := os.Lstat(src); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		return copyPath(src, dest)

	case ModeDuplicateSubtree:
		if _, err := os.Lstat(src); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("clear destination: %w", err)
		}
		if err := copyPath(src, dest); err != nil {
			return err
		}
		return checkIdentical(src, dest)

	case ModeFlatten:
		entries, err := os.ReadDir(src)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		for _, e := range entries {
			if err := copyPath(filepath.Join(src, e.Name()), filepath.Join(dest, e.Name())); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown mode %s", r.Mode)
	}
}

func checkIdentical(a, b string) error {
	da, err := digest.Tree(a)
	if err != nil {
		return err
	}
	db, err := digest.Tree(b)
	if err != nil {
		return err
	}
	if da != db {
		return fmt.Errorf("%w: %s (%s) vs %s (%s)", ErrDuplicateDiverged, a, da, b, db)
	}
	return nil
}

func writeContent(dest string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", dest, err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("clear %s: %w", dest, err)
	}
	if err := os.WriteFile(dest, content, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}
