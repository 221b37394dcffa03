// Package bundle assembles the application bundle from staged artifacts by
// executing an ordered list of copy rules.
package bundle

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Mode selects what a CopyRule does.
type Mode int

const (
	// ModeOverwriteFile writes Content, or copies one source path, to Dest.
	ModeOverwriteFile Mode = iota + 1
	// ModeMergeDirectory copies a tree into Dest, merging into existing
	// directories and overwriting existing files.
	ModeMergeDirectory
	// ModeDuplicateSubtree replaces Dest with a copy of a subtree already in
	// the bundle and checks both copies are identical.
	ModeDuplicateSubtree
	// ModeFlatten copies the immediate children of a directory into Dest,
	// overwriting.
	ModeFlatten
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeOverwriteFile:
		return "overwrite-file"
	case ModeMergeDirectory:
		return "merge-directory"
	case ModeDuplicateSubtree:
		return "duplicate-subtree"
	case ModeFlatten:
		return "flatten"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// CopyRule is one step of bundle assembly.
type CopyRule struct {
	// Name identifies the rule in logs and errors.
	Name string
	// From is the artifact whose staged tree holds Path. Empty means Path is
	// inside the bundle being assembled.
	From string
	// Path is the source, relative to From's root or the bundle root.
	Path string
	// Dest is relative to the bundle root. Empty means the bundle root.
	Dest string
	Mode Mode
	// Content is written verbatim by ModeOverwriteFile when Path is empty.
	Content []byte
}

// Layout is the ordered rule set producing one bundle.
type Layout struct {
	// Bundle is the bundle directory name inside the output root.
	Bundle string
	Rules  []CopyRule
}

// Validate checks rule names, sources and destinations, and that flatten
// rules only appear at the end. Flattening overwrites whatever it lands on,
// so a copy scheduled after it would silently win.
func (l Layout) Validate() error {
	if l.Bundle == "" || strings.ContainsAny(l.Bundle, `/\`) || l.Bundle == "." || l.Bundle == ".." {
		return fmt.Errorf("bundle name %q must be a single path element", l.Bundle)
	}
	if len(l.Rules) == 0 {
		return fmt.Errorf("layout has no rules")
	}

	names := make(map[string]bool, len(l.Rules))
	flattening := false
	for i, r := range l.Rules {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		names[r.Name] = true

		if err := validateRel(r.Path); err != nil {
			return fmt.Errorf("rule %q: path: %w", r.Name, err)
		}
		if err := validateRel(r.Dest); err != nil {
			return fmt.Errorf("rule %q: dest: %w", r.Name, err)
		}

		switch r.Mode {
		case ModeOverwriteFile:
			if r.Dest == "" {
				return fmt.Errorf("rule %q: overwrite needs a destination file", r.Name)
			}
			if r.Path == "" && r.Content == nil {
				return fmt.Errorf("rule %q: overwrite needs content or a source path", r.Name)
			}
			if r.Path != "" && r.Content != nil {
				return fmt.Errorf("rule %q: overwrite takes content or a source path, not both", r.Name)
			}
		case ModeMergeDirectory:
			if r.From == "" && r.Path == "" {
				return fmt.Errorf("rule %q: merge needs a source", r.Name)
			}
		case ModeDuplicateSubtree:
			if r.From != "" {
				return fmt.Errorf("rule %q: duplicate copies inside the bundle and takes no artifact", r.Name)
			}
			if r.Path == "" || r.Dest == "" {
				return fmt.Errorf("rule %q: duplicate needs a source and a destination", r.Name)
			}
			if within(r.Dest, r.Path) || within(r.Path, r.Dest) {
				return fmt.Errorf("rule %q: duplicate source and destination overlap", r.Name)
			}
		case ModeFlatten:
			if r.From == "" && r.Path == "" {
				return fmt.Errorf("rule %q: flatten needs a source directory", r.Name)
			}
		default:
			return fmt.Errorf("rule %q: unknown mode %s", r.Name, r.Mode)
		}

		if r.Mode == ModeFlatten {
			flattening = true
		} else if flattening {
			return fmt.Errorf("rule %q: %s rule after a flatten rule; flatten rules must come last", r.Name, r.Mode)
		}
	}
	return nil
}

func validateRel(p string) error {
	if p == "" {
		return nil
	}
	if filepath.IsAbs(p) {
		return fmt.Errorf("%q must be relative", p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%q escapes its root", p)
	}
	return nil
}

// within reports whether p is base or below it.
func within(p, base string) bool {
	p, base = filepath.Clean(p), filepath.Clean(base)
	return p == base || strings.HasPrefix(p, base+string(filepath.Separator))
}
