package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/artifact"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/bundle"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/platform"
)

// Artifact IDs of the default registry.
const (
	IDDepotToolArchive  = "depot-downloader-archive"
	IDDepotTool         = "depot-downloader"
	IDGameData          = "game-data"
	IDPlayerPackage     = "unity-player-package"
	IDPlayer            = "unity-player"
	IDSteamworksArchive = "steamworks-archive"
	IDSteamworks        = "steamworks"
)

const (
	depotToolExecutable = "DepotDownloader"

	gamePrompt = "Download My Summer Car (~900mb) from Steam?"
)

// DepotToolTarget returns the release OS and arch of the depot tool to
// download: the configured values, or the host's native ones.
func DepotToolTarget(cfg config.Config, host platform.Info) (osName, arch string, err error) {
	osName, arch = cfg.DepotTool.OS, cfg.DepotTool.Arch
	if osName != "" && arch != "" {
		return osName, arch, nil
	}

	hostOS, hostArch, err := host.ReleaseTarget()
	if err != nil {
		return "", "", fmt.Errorf("depot tool: %w", err)
	}
	if osName == "" {
		osName = hostOS
	}
	if arch == "" {
		arch = hostArch
	}
	return osName, arch, nil
}

// DefaultRegistry declares the artifacts of a bundle build. cfg's staging
// dir should be absolute; the depot tool runs with it as working directory.
func DefaultRegistry(cfg config.Config, host platform.Info) (*artifact.Registry, error) {
	osName, arch, err := DepotToolTarget(cfg, host)
	if err != nil {
		return nil, err
	}

	root := cfg.StagingDir
	toolFolder := cfg.DepotTool.Folder(osName, arch)
	toolExe := depotToolExecutable
	if osName == "windows" {
		toolExe += ".exe"
	}

	return artifact.NewRegistry(
		artifact.Descriptor{
			ID:             IDDepotToolArchive,
			Kind:           artifact.KindHTTPFetch,
			URL:            cfg.DepotTool.URL(osName, arch),
			ExpectedDigest: cfg.DepotTool.Digests[cfg.DepotTool.Asset(osName, arch)],
			StagingPath:    filepath.Join(root, toolFolder+".zip"),
			Prompt:         fmt.Sprintf("Download (~80MB) and unzip DepotDownloader (%s) to download MSC from Steam?", arch),
			OnDemand:       true,
		},
		artifact.Descriptor{
			ID:           IDDepotTool,
			Kind:         artifact.KindLocalArchive,
			Source:       IDDepotToolArchive,
			StagingPath:  filepath.Join(root, toolFolder),
			Unpack:       artifact.UnpackZip,
			Executable:   toolExe,
			RemoveSource: true,
			OnDemand:     true,
		},
		artifact.Descriptor{
			ID:   IDGameData,
			Kind: artifact.KindAuthenticatedFetch,
			Depot: artifact.DepotCoordinates{
				AppID:      cfg.Game.AppID,
				DepotID:    cfg.Game.DepotID,
				ManifestID: cfg.Game.ManifestID,
				OS:         cfg.Game.OS,
			},
			Tool:        IDDepotTool,
			ToolPath:    toolExe,
			StagingPath: filepath.Join(root, cfg.Game.DepotPath()),
			Prompt:      gamePrompt,
		},
		artifact.Descriptor{
			ID:             IDPlayerPackage,
			Kind:           artifact.KindHTTPFetch,
			URL:            cfg.Runtime.URL(),
			ExpectedDigest: cfg.Runtime.Digest,
			StagingPath:    filepath.Join(root, cfg.Runtime.Package()),
			Prompt:         fmt.Sprintf("Download Unity Player v%s (~1.6gb)?", cfg.Runtime.Version),
			OnDemand:       true,
		},
		artifact.Descriptor{
			ID:          IDPlayer,
			Kind:        artifact.KindLocalArchive,
			Source:      IDPlayerPackage,
			StagingPath: filepath.Join(root, cfg.Runtime.Folder()),
			Unpack:      artifact.UnpackPkg,
		},
		artifact.Descriptor{
			ID:          IDSteamworksArchive,
			Kind:        artifact.KindHTTPFetch,
			URL:         cfg.Steamworks.URL,
			StagingPath: filepath.Join(root, "vendors", "steamworks.zip"),
			OnDemand:    true,
		},
		artifact.Descriptor{
			ID:          IDSteamworks,
			Kind:        artifact.KindLocalArchive,
			Source:      IDSteamworksArchive,
			StagingPath: filepath.Join(root, "vendors", "steamworks"),
			Unpack:      artifact.UnpackZip,
		},
	)
}

// DefaultLayout is the macOS bundle layout: the runtime player as the
// skeleton, game data and the native plugin inside it, plugins duplicated
// where the player looks for them, and the data resources flattened last.
func DefaultLayout(cfg config.Config) bundle.Layout {
	data := filepath.Join("Contents", "Resources", "Data")
	plugins := filepath.Join(data, "Plugins")

	return bundle.Layout{
		Bundle: cfg.BundleName,
		Rules: []bundle.CopyRule{
			{
				Name: "runtime-player",
				From: IDPlayer,
				Path: cfg.Runtime.PlayerPath,
				Mode: bundle.ModeMergeDirectory,
			},
			{
				Name: "game-data",
				From: IDGameData,
				Path: cfg.Game.DataDir,
				Dest: data,
				Mode: bundle.ModeMergeDirectory,
			},
			{
				Name: "steamworks-plugin",
				From: IDSteamworks,
				Path: cfg.Steamworks.PluginPath,
				Dest: filepath.Join(plugins, filepath.Base(cfg.Steamworks.PluginPath)),
				Mode: bundle.ModeMergeDirectory,
			},
			{
				Name:    "steam-appid",
				Dest:    filepath.Join("Contents", "MacOS", "steam_appid.txt"),
				Mode:    bundle.ModeOverwriteFile,
				Content: []byte(cfg.Game.AppID + "\n"),
			},
			{
				Name: "plugins",
				Path: plugins,
				Dest: filepath.Join("Contents", "Plugins"),
				Mode: bundle.ModeDuplicateSubtree,
			},
			{
				Name: "resources",
				Path: filepath.Join(data, "Resources"),
				Dest: filepath.Join("Contents", "Resources"),
				Mode: bundle.ModeFlatten,
			},
		},
	}
}
