// Package platform detects the host OS and architecture.
//
// The host decides which build of the depot tool gets downloaded and whether
// macOS-only post-processing (quarantine clearing, pkgutil) is available. The
// detected values are also exposed to the Lua override file as a read-only
// "platform" table.
package platform

import "context"

// Info describes the host a build runs on.
type Info struct {
	OS      string // "linux", "darwin", "windows"
	Arch    string // "amd64", "arm64" (normalized, native to the kernel)
	ArchRaw string // GOARCH the binary was built for
	Host    string // host platform name reported by the OS, may be empty
	Version string // host platform version, may be empty
	// Translated is set when the binary's GOARCH differs from the kernel's
	// architecture, e.g. an amd64 build under Rosetta.
	Translated bool
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsAppleSilicon returns true if running on Apple Silicon (macOS + arm64).
func (i *Info) IsAppleSilicon() bool {
	return i.OS == "darwin" && i.Arch == "arm64"
}

// ReleaseTarget returns the OS and arch tokens of the release asset that
// runs natively on this host.
func (i *Info) ReleaseTarget() (osName, arch string, err error) {
	if osName, err = ReleaseOS(i.OS); err != nil {
		return "", "", err
	}
	if arch, err = ReleaseArch(i.Arch); err != nil {
		return "", "", err
	}
	return osName, arch, nil
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// Static is a Detector that always returns the same Info.
type Static struct {
	Info Info
}

// Detect returns a copy of the configured Info.
func (s Static) Detect(ctx context.Context) (*Info, error) {
	info := s.Info
	return &info, nil
}
