package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector with runtime values and gopsutil.
type RealDetector struct {
	goos   string
	goarch string
	// hostInfo is host.InfoWithContext outside tests.
	hostInfo func(ctx context.Context) (*host.InfoStat, error)
}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{
		goos:     runtime.GOOS,
		goarch:   runtime.GOARCH,
		hostInfo: host.InfoWithContext,
	}
}

// Detect reports the OS the binary runs on and the kernel's native
// architecture. The architecture falls back to GOARCH when gopsutil cannot
// read the kernel's, and the host name and version are then left empty.
// Only a cancelled context is a hard failure.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("platform detection cancelled: %w", err)
	}

	arch, err := normalizeArch(d.goarch)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info := &Info{
		OS:      d.goos,
		Arch:    arch,
		ArchRaw: d.goarch,
	}

	stat, err := d.hostInfo(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	info.Host = normalizePlatform(stat.Platform)
	info.Version = normalizePlatform(stat.PlatformVersion)
	if kernel, err := normalizeArch(stat.KernelArch); err == nil && kernel != arch {
		info.Arch = kernel
		info.Translated = true
	}

	return info, nil
}
