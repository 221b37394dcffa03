package artifact

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
)

// ErrUnknownArtifact is returned when an ID is not registered.
var ErrUnknownArtifact = errors.New("unknown artifact")

// Registry is an ordered arena of descriptors keyed by ID.
type Registry struct {
	order []string
	byID  map[string]*Descriptor
}

// NewRegistry validates descs and returns a registry preserving their order.
// Descriptors are copied; later changes to the arguments do not leak in.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		byID: make(map[string]*Descriptor, len(descs)),
	}

	staging := make(map[string]string, len(descs))
	for i := range descs {
		d := descs[i]
		if err := validateDescriptor(&d); err != nil {
			return nil, fmt.Errorf("artifact %d: %w", i, err)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate artifact id %q", d.ID)
		}
		clean := filepath.Clean(d.StagingPath)
		if other, dup := staging[clean]; dup {
			return nil, fmt.Errorf("artifacts %q and %q share staging path %s", other, d.ID, clean)
		}
		staging[clean] = d.ID
		r.byID[d.ID] = &d
		r.order = append(r.order, d.ID)
	}

	for _, id := range r.order {
		d := r.byID[id]
		if d.Source != "" {
			src, ok := r.byID[d.Source]
			if !ok {
				return nil, fmt.Errorf("artifact %q: source %q: %w", d.ID, d.Source, ErrUnknownArtifact)
			}
			if src.Kind == KindLocalArchive {
				return nil, fmt.Errorf("artifact %q: source %q must be a fetched file, not an expansion", d.ID, d.Source)
			}
		}
		if d.Tool != "" {
			tool, ok := r.byID[d.Tool]
			if !ok {
				return nil, fmt.Errorf("artifact %q: tool %q: %w", d.ID, d.Tool, ErrUnknownArtifact)
			}
			if tool.Kind == KindAuthenticatedFetch {
				return nil, fmt.Errorf("artifact %q: tool %q cannot itself need a tool", d.ID, d.Tool)
			}
		}
	}

	return r, nil
}

func validateDescriptor(d *Descriptor) error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if d.StagingPath == "" {
		return fmt.Errorf("%s: staging path is required", d.ID)
	}
	if err := config.ValidateDigest(d.ExpectedDigest); err != nil {
		return fmt.Errorf("%s: %w", d.ID, err)
	}
	if d.Executable != "" && (filepath.IsAbs(d.Executable) || strings.HasPrefix(filepath.Clean(d.Executable), "..")) {
		return fmt.Errorf("%s: executable %q must be relative to the staging path", d.ID, d.Executable)
	}

	switch d.Kind {
	case KindHTTPFetch:
		if !strings.HasPrefix(d.URL, "https://") && !strings.HasPrefix(d.URL, "http://") {
			return fmt.Errorf("%s: http artifact needs an http(s) url, got %q", d.ID, d.URL)
		}
		if d.Unpack != UnpackNone {
			return fmt.Errorf("%s: http artifacts are staged as files; expand them with a local-archive artifact", d.ID)
		}
	case KindAuthenticatedFetch:
		if d.Tool == "" || d.ToolPath == "" {
			return fmt.Errorf("%s: authenticated fetch needs a tool artifact and tool path", d.ID)
		}
		if d.Tool == d.ID {
			return fmt.Errorf("%s: artifact cannot be its own tool", d.ID)
		}
		if d.Depot.AppID == "" || d.Depot.DepotID == "" || d.Depot.ManifestID == "" {
			return fmt.Errorf("%s: authenticated fetch needs app, depot and manifest ids", d.ID)
		}
	case KindLocalArchive:
		if d.Source == "" {
			return fmt.Errorf("%s: local archive needs a source artifact", d.ID)
		}
		if d.Source == d.ID {
			return fmt.Errorf("%s: artifact cannot expand itself", d.ID)
		}
		if d.Unpack == UnpackNone {
			return fmt.Errorf("%s: local archive needs an unpack strategy", d.ID)
		}
		if d.ExpectedDigest != "" {
			return fmt.Errorf("%s: digests belong on the fetched source, not the expansion", d.ID)
		}
	default:
		return fmt.Errorf("%s: unknown kind %s", d.ID, d.Kind)
	}

	return nil
}

// Get returns a copy of the descriptor registered under id.
func (r *Registry) Get(id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%q: %w", id, ErrUnknownArtifact)
	}
	return *d, nil
}

// All returns every descriptor in declared order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// Steps returns the descriptors the run loop stages, in declared order.
// On-demand artifacts are left out.
func (r *Registry) Steps() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		if d := r.byID[id]; !d.OnDemand {
			out = append(out, *d)
		}
	}
	return out
}

// Len returns the number of registered artifacts.
func (r *Registry) Len() int {
	return len(r.order)
}
