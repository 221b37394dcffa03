package config

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config is the full set of identifiers and paths the build runs against.
// It is a plain value: copy it, tweak fields in tests, pass it around.
type Config struct {
	// StagingDir holds every downloaded or expanded artifact. Relative paths
	// are resolved against the working directory.
	StagingDir string
	// OutputDir is cleared on every run and receives exactly one bundle.
	OutputDir string
	// BundleName is the directory name of the application bundle.
	BundleName string

	Game       GameConfig
	Runtime    RuntimeConfig
	DepotTool  DepotToolConfig
	Steamworks SteamworksConfig

	// HTTPTimeout bounds a single HTTP download. Zero means no timeout.
	HTTPTimeout time.Duration
	// DownloadRetries is the number of extra attempts after a failed
	// download. Zero means a failed download fails the run.
	DownloadRetries int
	// VerifyStamps makes the staging cache compare a content stamp instead
	// of trusting path existence alone.
	VerifyStamps bool
	// AllowVersionMismatch downgrades a game/player version mismatch from a
	// fatal error to a warning.
	AllowVersionMismatch bool
}

// GameConfig identifies the Steam content to download.
type GameConfig struct {
	AppID      string
	DepotID    string
	BuildID    string
	ManifestID string
	// OS is the platform passed to the depot tool (the game only ships
	// Windows data).
	OS string
	// DataDir is the Unity data directory inside the depot.
	DataDir string
	// VersionResource is the file inside DataDir whose first string is the
	// Unity version the data was built with.
	VersionResource string
}

// DepotPath returns the depot output directory relative to the staging dir.
func (g GameConfig) DepotPath() string {
	return filepath.Join("depots", g.DepotID, g.BuildID)
}

// RuntimeConfig describes the Unity player package.
type RuntimeConfig struct {
	Version string
	// DownloadHash is the changeset id used in Unity download URLs.
	DownloadHash string
	// Digest is the expected hex digest of the .pkg file.
	Digest string
	// PlayerPath is the UnityPlayer.app location inside the expanded package.
	PlayerPath string
}

// URL returns the installer download URL.
func (r RuntimeConfig) URL() string {
	return fmt.Sprintf("https://download.unity3d.com/download_unity/%s/MacEditorInstaller/Unity-%s.pkg",
		r.DownloadHash, r.Version)
}

// Folder returns the staging directory name of the expanded package.
func (r RuntimeConfig) Folder() string {
	return "Unity-" + r.Version
}

// Package returns the staging file name of the downloaded package.
func (r RuntimeConfig) Package() string {
	return r.Folder() + ".pkg"
}

// DepotToolConfig describes the DepotDownloader release used for Steam downloads.
type DepotToolConfig struct {
	Version string
	// OS and Arch select the release asset. Empty means the host's.
	OS   string
	Arch string
	// Digests maps "<os>-<arch>" to the expected digest of the release zip.
	// Assets without an entry are not verified.
	Digests map[string]string
}

// Asset returns the release asset suffix, e.g. "macos-arm64".
func (d DepotToolConfig) Asset(osName, arch string) string {
	return osName + "-" + arch
}

// URL returns the release zip URL for an OS/arch pair.
func (d DepotToolConfig) URL(osName, arch string) string {
	return fmt.Sprintf("https://github.com/SteamRE/DepotDownloader/releases/download/DepotDownloader_%s/depotdownloader-%s.zip",
		d.Version, d.Asset(osName, arch))
}

// Folder returns the staging directory name for an OS/arch pair.
func (d DepotToolConfig) Folder(osName, arch string) string {
	return fmt.Sprintf("depotdownloader-%s-%s", d.Version, d.Asset(osName, arch))
}

// SteamworksConfig describes the Steamworks.NET vendor archive.
type SteamworksConfig struct {
	URL string
	// PluginPath is the native plugin bundle inside the expanded archive.
	PluginPath string
}

// Default returns the configuration the build was written against.
func Default() Config {
	return Config{
		StagingDir: "source",
		OutputDir:  "build",
		BundleName: "MySummerCar.app",
		Game: GameConfig{
			AppID:           "516750",
			DepotID:         "516751",
			BuildID:         "12922607",
			ManifestID:      "334631432900238181",
			OS:              "windows",
			DataDir:         "mysummercar_Data",
			VersionResource: "level0",
		},
		Runtime: RuntimeConfig{
			Version:      "5.0.0f4",
			DownloadHash: "5b98b70ebeb9",
			Digest:       "586029ed099dac2b84c7b382001ec39c",
			PlayerPath: filepath.Join("Unity.pkg.tmp", "Payload", "Unity", "Unity.app", "Contents",
				"PlaybackEngines", "MacStandaloneSupport", "Variations",
				"macosx64_nondevelopment_mono", "UnityPlayer.app"),
		},
		DepotTool: DepotToolConfig{
			Version: "2.7.1",
			Digests: map[string]string{
				"macos-arm64": "8b938b27a1796baac43a6084c5f0ea15",
			},
		},
		Steamworks: SteamworksConfig{
			URL:        "https://github.com/rlabrecque/Steamworks.NET/releases/download/10.0.0/Steamworks.NET-Standalone_10.0.0.zip",
			PluginPath: filepath.Join("OSX-Linux-x64", "CSteamworks.bundle"),
		},
	}
}

// Validate checks that the configuration can drive a build.
func (c Config) Validate() error {
	if strings.TrimSpace(c.StagingDir) == "" {
		return fmt.Errorf("staging dir is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output dir is required")
	}
	if err := checkDisjoint(c.StagingDir, c.OutputDir); err != nil {
		return err
	}
	if !strings.HasSuffix(c.BundleName, ".app") || strings.ContainsAny(c.BundleName, `/\`) {
		return fmt.Errorf("bundle name %q must be a single path element ending in .app", c.BundleName)
	}

	ids := []struct{ name, value string }{
		{"game app id", c.Game.AppID},
		{"game depot id", c.Game.DepotID},
		{"game build id", c.Game.BuildID},
		{"game manifest id", c.Game.ManifestID},
	}
	for _, id := range ids {
		if !isDigits(id.value) {
			return fmt.Errorf("%s %q must be numeric", id.name, id.value)
		}
	}
	if c.Game.OS == "" || c.Game.DataDir == "" || c.Game.VersionResource == "" {
		return fmt.Errorf("game os, data dir and version resource are required")
	}

	if c.Runtime.Version == "" || c.Runtime.DownloadHash == "" || c.Runtime.PlayerPath == "" {
		return fmt.Errorf("runtime version, download hash and player path are required")
	}
	if err := ValidateDigest(c.Runtime.Digest); err != nil {
		return fmt.Errorf("runtime digest: %w", err)
	}

	if c.DepotTool.Version == "" {
		return fmt.Errorf("depot tool version is required")
	}
	for asset, digest := range c.DepotTool.Digests {
		if err := ValidateDigest(digest); err != nil {
			return fmt.Errorf("depot tool digest for %s: %w", asset, err)
		}
	}

	if !strings.HasPrefix(c.Steamworks.URL, "https://") && !strings.HasPrefix(c.Steamworks.URL, "http://") {
		return fmt.Errorf("steamworks url %q must be http(s)", c.Steamworks.URL)
	}
	if c.Steamworks.PluginPath == "" {
		return fmt.Errorf("steamworks plugin path is required")
	}

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http timeout must not be negative")
	}
	if c.DownloadRetries < 0 {
		return fmt.Errorf("download retries must not be negative")
	}

	return nil
}

// checkDisjoint rejects staging and output dirs that overlap. The output
// dir is wiped before every assembly, so staged artifacts must not live
// inside it, and it must not live inside the staging dir either.
func checkDisjoint(stagingDir, outputDir string) error {
	staging, err := filepath.Abs(stagingDir)
	if err != nil {
		return fmt.Errorf("resolve staging dir: %w", err)
	}
	output, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}

	switch {
	case staging == output:
		return fmt.Errorf("staging dir and output dir must differ")
	case within(staging, output):
		return fmt.Errorf("staging dir %s must not be inside output dir %s", staging, output)
	case within(output, staging):
		return fmt.Errorf("output dir %s must not be inside staging dir %s", output, staging)
	}
	return nil
}

// within reports whether p is below base.
func within(p, base string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidateDigest accepts an empty digest (no verification) or a hex md5 or
// sha256 digest.
func ValidateDigest(digest string) error {
	if digest == "" {
		return nil
	}
	if len(digest) != 32 && len(digest) != 64 {
		return fmt.Errorf("digest %q has %d hex characters, want 32 (md5) or 64 (sha256)", digest, len(digest))
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return fmt.Errorf("digest %q is not hex: %w", digest, err)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
