package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/artifact"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/prompt"
)

// UsernamePrompt is asked before every authenticated download.
const UsernamePrompt = "Steam username: "

// ErrEmptyUsername is returned when the user enters no account name.
var ErrEmptyUsername = errors.New("a Steam username is required")

// Depot downloads content through the depot tool. The tool handles the
// password and any second factor itself on the terminal.
type Depot struct {
	runner Runner
	gate   prompt.Gate
	logger config.Logger
}

// NewDepot creates a depot fetcher.
func NewDepot(runner Runner, gate prompt.Gate, logger config.Logger) *Depot {
	return &Depot{
		runner: runner,
		gate:   gate,
		logger: config.OrNop(logger),
	}
}

// Args returns the depot tool arguments for coordinates and username.
func Args(c artifact.DepotCoordinates, username string) []string {
	args := []string{
		"-app", c.AppID,
		"-depot", c.DepotID,
		"-manifest", c.ManifestID,
	}
	if c.OS != "" {
		args = append(args, "-os", c.OS)
	}
	return append(args, "-username", username)
}

// Fetch asks for a username and runs the tool at toolPath in workDir, which
// must be the directory the tool writes its depots/ tree under. It returns
// once the tool exits and desc's staging path exists.
func (d *Depot) Fetch(ctx context.Context, desc artifact.Descriptor, toolPath, workDir string) error {
	username, err := d.gate.ReadLine(UsernamePrompt)
	if err != nil {
		return fmt.Errorf("%s: read username: %w", desc.ID, err)
	}
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%s: %w", desc.ID, ErrEmptyUsername)
	}

	d.logger.Info("starting depot download",
		"artifact", desc.ID, "app", desc.Depot.AppID, "depot", desc.Depot.DepotID, "manifest", desc.Depot.ManifestID)

	cmd := Command{
		Path:        toolPath,
		Args:        Args(desc.Depot, username),
		Dir:         workDir,
		Interactive: true,
		Artifact:    desc.ID,
	}
	if err := d.runner.Run(ctx, cmd); err != nil {
		return err
	}

	if _, err := os.Stat(desc.StagingPath); err != nil {
		return fmt.Errorf("%s: %s finished but %s is missing: %w", desc.ID, cmd.Tool(), desc.StagingPath, err)
	}
	return nil
}
