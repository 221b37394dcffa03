package platform

import (
	"fmt"
	"strings"
)

// normalizeArch converts GOARCH values to normalized architecture names.
// Only amd64 and arm64 have depot tool builds.
func normalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s (only amd64 and arm64 are supported)", arch)
	}
}

// normalizePlatform converts platform IDs to lowercase for consistency.
func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// ReleaseOS maps a Go OS name to the OS token used in release asset names
// ("macos", "linux", "windows").
func ReleaseOS(goos string) (string, error) {
	switch goos {
	case "darwin":
		return "macos", nil
	case "linux":
		return "linux", nil
	case "windows":
		return "windows", nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

// ReleaseArch maps a normalized architecture to the token used in release
// asset names ("x64", "arm64").
func ReleaseArch(arch string) (string, error) {
	switch arch {
	case "amd64":
		return "x64", nil
	case "arm64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}
