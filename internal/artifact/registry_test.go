package artifact

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:             "tool-archive",
			Kind:           KindHTTPFetch,
			URL:            "https://example.com/tool.zip",
			ExpectedDigest: "8b938b27a1796baac43a6084c5f0ea15",
			StagingPath:    "/stage/tool.zip",
			OnDemand:       true,
		},
		{
			ID:           "tool",
			Kind:         KindLocalArchive,
			Source:       "tool-archive",
			StagingPath:  "/stage/tool",
			Unpack:       UnpackZip,
			Executable:   "Tool",
			RemoveSource: true,
			OnDemand:     true,
		},
		{
			ID:          "data",
			Kind:        KindAuthenticatedFetch,
			Depot:       DepotCoordinates{AppID: "1", DepotID: "2", ManifestID: "3", OS: "windows"},
			Tool:        "tool",
			ToolPath:    "Tool",
			StagingPath: "/stage/depots/2/9",
			Prompt:      "Download data?",
		},
	}
}

func TestNewRegistry(t *testing.T) {
	descs := sampleDescriptors()
	reg, err := NewRegistry(descs...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}

	var ids []string
	for _, d := range reg.All() {
		ids = append(ids, d.ID)
	}
	if diff := cmp.Diff([]string{"tool-archive", "tool", "data"}, ids); diff != "" {
		t.Errorf("All() order mismatch (-want +got):\n%s", diff)
	}

	steps := reg.Steps()
	if len(steps) != 1 || steps[0].ID != "data" {
		t.Errorf("Steps() = %v, want only data", steps)
	}

	got, err := reg.Get("tool")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(descs[1], got); diff != "" {
		t.Errorf("Get(tool) mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryIsImmutable(t *testing.T) {
	descs := sampleDescriptors()
	reg, err := NewRegistry(descs...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	descs[2].StagingPath = "/elsewhere"
	got, _ := reg.Get("data")
	got.Prompt = "changed"

	again, _ := reg.Get("data")
	if again.StagingPath != "/stage/depots/2/9" || again.Prompt != "Download data?" {
		t.Errorf("registry descriptor was mutated: %+v", again)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg, err := NewRegistry(sampleDescriptors()...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := reg.Get("nope"); !errors.Is(err, ErrUnknownArtifact) {
		t.Errorf("Get(nope) error = %v, want ErrUnknownArtifact", err)
	}
}

func TestNewRegistryErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func([]Descriptor) []Descriptor
		wantErr string
	}{
		{"empty id", func(d []Descriptor) []Descriptor { d[0].ID = " "; return d }, "id is required"},
		{"no staging path", func(d []Descriptor) []Descriptor { d[0].StagingPath = ""; return d }, "staging path"},
		{"duplicate id", func(d []Descriptor) []Descriptor { d[1].ID = "tool-archive"; return d }, "duplicate"},
		{"shared staging", func(d []Descriptor) []Descriptor { d[1].StagingPath = "/stage/tool.zip/"; return d }, "share staging path"},
		{"bad digest", func(d []Descriptor) []Descriptor { d[0].ExpectedDigest = "xyz"; return d }, "digest"},
		{"bad url", func(d []Descriptor) []Descriptor { d[0].URL = "file:///tmp/x"; return d }, "http(s) url"},
		{"http unpack", func(d []Descriptor) []Descriptor { d[0].Unpack = UnpackZip; return d }, "local-archive"},
		{"missing source", func(d []Descriptor) []Descriptor { d[1].Source = "ghost"; return d }, "unknown artifact"},
		{"self source", func(d []Descriptor) []Descriptor { d[1].Source = "tool"; return d }, "expand itself"},
		{"no unpack", func(d []Descriptor) []Descriptor { d[1].Unpack = UnpackNone; return d }, "unpack strategy"},
		{"digest on expansion", func(d []Descriptor) []Descriptor {
			d[1].ExpectedDigest = "8b938b27a1796baac43a6084c5f0ea15"
			return d
		}, "fetched source"},
		{"escaping executable", func(d []Descriptor) []Descriptor { d[1].Executable = "../bin/sh"; return d }, "relative"},
		{"missing tool", func(d []Descriptor) []Descriptor { d[2].Tool = "ghost"; return d }, "unknown artifact"},
		{"no tool path", func(d []Descriptor) []Descriptor { d[2].ToolPath = ""; return d }, "tool path"},
		{"no manifest", func(d []Descriptor) []Descriptor { d[2].Depot.ManifestID = ""; return d }, "manifest"},
		{"unknown kind", func(d []Descriptor) []Descriptor { d[0].Kind = Kind(42); return d }, "unknown kind"},
		{"expansion of expansion", func(d []Descriptor) []Descriptor {
			return append(d, Descriptor{
				ID: "nested", Kind: KindLocalArchive, Source: "tool",
				StagingPath: "/stage/nested", Unpack: UnpackZip,
			})
		}, "fetched file"},
		{"tool needing tool", func(d []Descriptor) []Descriptor {
			return append(d, Descriptor{
				ID: "more", Kind: KindAuthenticatedFetch, Tool: "data", ToolPath: "x",
				Depot:       DepotCoordinates{AppID: "1", DepotID: "2", ManifestID: "3"},
				StagingPath: "/stage/more",
			})
		}, "cannot itself need a tool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.mutate(sampleDescriptors())...)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestKindAndUnpackStrings(t *testing.T) {
	kinds := map[Kind]string{
		KindAuthenticatedFetch: "authenticated-fetch",
		KindHTTPFetch:          "http-fetch",
		KindLocalArchive:       "local-archive",
		Kind(9):                "Kind(9)",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("Kind.String() = %q, want %q", got, want)
		}
	}

	unpacks := map[Unpack]string{
		UnpackNone:  "none",
		UnpackZip:   "zip",
		UnpackTarGz: "tar.gz",
		UnpackPkg:   "pkg",
		Unpack(7):   "Unpack(7)",
	}
	for u, want := range unpacks {
		if got := u.String(); got != want {
			t.Errorf("Unpack.String() = %q, want %q", got, want)
		}
	}
}
