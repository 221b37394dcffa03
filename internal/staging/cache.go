// Package staging tracks which artifacts are already present in the
// staging directory and serializes runs that share it.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/artifact"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/digest"
)

const stampDir = ".stamps"

// Cache answers whether an artifact's staging path is already populated.
//
// By default presence is the only signal: a partially written path counts as
// staged. With stamps enabled the cache records a tree digest after every
// fresh stage and treats a path whose content no longer matches its stamp as
// missing.
type Cache struct {
	root   string
	stamps bool
	logger config.Logger
}

// NewCache creates a cache over the staging root.
func NewCache(root string, verifyStamps bool, logger config.Logger) *Cache {
	return &Cache{
		root:   root,
		stamps: verifyStamps,
		logger: config.OrNop(logger),
	}
}

// IsStaged reports whether d's staging path exists (and, with stamps
// enabled, still matches the recorded stamp). A stale path is removed so the
// caller can fetch into a clean location.
func (c *Cache) IsStaged(d artifact.Descriptor) bool {
	if _, err := os.Lstat(d.StagingPath); err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cannot stat staging path", "artifact", d.ID, "path", d.StagingPath, "error", err)
		}
		return false
	}

	if !c.stamps {
		return true
	}

	want, err := os.ReadFile(c.stampPath(d.ID))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cannot read stamp", "artifact", d.ID, "error", err)
		}
		c.logger.Debug("no stamp recorded, trusting presence", "artifact", d.ID)
		return true
	}

	got, err := digest.Tree(d.StagingPath)
	if err == nil && digest.Equal(string(want), got) {
		return true
	}

	c.logger.Warn("staged content does not match its stamp, discarding",
		"artifact", d.ID, "path", d.StagingPath, "stamp", strings.TrimSpace(string(want)), "actual", got, "error", err)
	if err := c.Discard(d); err != nil {
		c.logger.Error("failed to discard stale artifact", "artifact", d.ID, "error", err)
	}
	return false
}

// Stamp records the current content of d's staging path. It is a no-op when
// stamps are disabled.
func (c *Cache) Stamp(d artifact.Descriptor) error {
	if !c.stamps {
		return nil
	}

	sum, err := digest.Tree(d.StagingPath)
	if err != nil {
		return fmt.Errorf("stamp %s: %w", d.ID, err)
	}

	path := c.stampPath(d.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create stamp directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sum+"\n"), 0644); err != nil {
		return fmt.Errorf("write stamp %s: %w", d.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write stamp %s: %w", d.ID, err)
	}

	c.logger.Debug("stamped artifact", "artifact", d.ID, "digest", sum)
	return nil
}

// Discard removes d's staging path and stamp.
func (c *Cache) Discard(d artifact.Descriptor) error {
	if err := os.RemoveAll(d.StagingPath); err != nil {
		return fmt.Errorf("remove %s: %w", d.StagingPath, err)
	}
	if err := os.Remove(c.stampPath(d.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stamp for %s: %w", d.ID, err)
	}
	return nil
}

func (c *Cache) stampPath(id string) string {
	return filepath.Join(c.root, stampDir, id+".b3")
}
