// Package artifact declares the artifacts a bundle build needs and keeps
// them in an ordered, immutable registry.
//
// A Descriptor says where an artifact comes from (Kind and Source), where it
// is staged on disk (StagingPath) and what happens after the fetch (Unpack,
// Executable, RemoveSource). Descriptors never change after the registry is
// built.
package artifact

import "fmt"

// Kind selects the acquisition strategy of an artifact.
type Kind int

const (
	// KindAuthenticatedFetch runs an external content-distribution tool that
	// needs a user credential.
	KindAuthenticatedFetch Kind = iota + 1
	// KindHTTPFetch downloads a single file with a GET request.
	KindHTTPFetch
	// KindLocalArchive expands the staged file of another artifact.
	KindLocalArchive
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindAuthenticatedFetch:
		return "authenticated-fetch"
	case KindHTTPFetch:
		return "http-fetch"
	case KindLocalArchive:
		return "local-archive"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Unpack selects how a local archive is expanded.
type Unpack int

const (
	// UnpackNone leaves the staged file as is.
	UnpackNone Unpack = iota
	// UnpackZip expands a zip archive in-process.
	UnpackZip
	// UnpackTarGz expands a gzip-compressed tarball in-process.
	UnpackTarGz
	// UnpackPkg expands a macOS installer package with pkgutil.
	UnpackPkg
)

// String returns the string representation of the unpack strategy
func (u Unpack) String() string {
	switch u {
	case UnpackNone:
		return "none"
	case UnpackZip:
		return "zip"
	case UnpackTarGz:
		return "tar.gz"
	case UnpackPkg:
		return "pkg"
	default:
		return fmt.Sprintf("Unpack(%d)", int(u))
	}
}

// DepotCoordinates identify content served by the depot tool.
type DepotCoordinates struct {
	AppID      string
	DepotID    string
	ManifestID string
	OS         string
}

// Descriptor declares one artifact.
type Descriptor struct {
	// ID is the registry key, e.g. "game-data".
	ID   string
	Kind Kind

	// URL is the download location of an HTTP artifact.
	URL string
	// Depot is the content address of an authenticated fetch.
	Depot DepotCoordinates
	// Source is the ID of the artifact a local archive expands.
	Source string
	// Tool is the ID of the artifact providing the authenticated fetch
	// executable. It is only staged when the fetch actually runs.
	Tool string
	// ToolPath is the executable inside the Tool artifact's staging path.
	ToolPath string

	// ExpectedDigest is a hex md5 or sha256 digest of the fetched file.
	// Empty means the artifact is not verified.
	ExpectedDigest string
	// StagingPath is where the artifact lives once staged. Its existence is
	// what marks the step done.
	StagingPath string
	Unpack      Unpack

	// Prompt is asked before fetching. Empty fetches without asking.
	Prompt string
	// Executable is a path relative to StagingPath made executable after
	// expansion.
	Executable string
	// RemoveSource deletes the expanded archive once expansion succeeds.
	RemoveSource bool
	// OnDemand artifacts are skipped by the main run loop and only staged
	// when another artifact needs them.
	OnDemand bool
}

// String returns "id (kind)".
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.ID, d.Kind)
}
