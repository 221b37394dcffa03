package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/platform"
)

func TestParseString_Overrides(t *testing.T) {
	code := `
bundle = {
  staging_dir = "cache",
  output_dir = "out",
  http_timeout = 90,
  download_retries = 2,
  verify_stamps = true,
  game = { manifest_id = "123456789012345678" },
  runtime = { version = "5.0.1f1", digest = "00112233445566778899aabbccddeeff" },
  depot_tool = { os = "macos", arch = "x64", digest = "ffeeddccbbaa99887766554433221100" },
  steamworks = { url = "https://example.com/sw.zip" },
}
`
	cfg, err := NewParser(nil).ParseString(context.Background(), code, Default())
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	if cfg.StagingDir != "cache" || cfg.OutputDir != "out" {
		t.Errorf("dirs = %q, %q", cfg.StagingDir, cfg.OutputDir)
	}
	if cfg.HTTPTimeout != 90*time.Second {
		t.Errorf("HTTPTimeout = %v, want 90s", cfg.HTTPTimeout)
	}
	if cfg.DownloadRetries != 2 || !cfg.VerifyStamps {
		t.Errorf("retries/stamps = %d/%v", cfg.DownloadRetries, cfg.VerifyStamps)
	}
	if cfg.Game.ManifestID != "123456789012345678" {
		t.Errorf("ManifestID = %s", cfg.Game.ManifestID)
	}
	if cfg.Game.AppID != "516750" {
		t.Errorf("AppID should keep its default, got %s", cfg.Game.AppID)
	}
	if cfg.Runtime.Version != "5.0.1f1" || cfg.Runtime.Digest != "00112233445566778899aabbccddeeff" {
		t.Errorf("Runtime = %+v", cfg.Runtime)
	}
	if got := cfg.DepotTool.Digests["macos-x64"]; got != "ffeeddccbbaa99887766554433221100" {
		t.Errorf("macos-x64 digest = %q", got)
	}
	if cfg.Steamworks.URL != "https://example.com/sw.zip" {
		t.Errorf("Steamworks.URL = %s", cfg.Steamworks.URL)
	}
}

func TestParseString_DoesNotMutateBase(t *testing.T) {
	base := Default()
	code := `bundle = { depot_tool = { os = "linux", arch = "x64", digest = "ffeeddccbbaa99887766554433221100" } }`

	if _, err := NewParser(nil).ParseString(context.Background(), code, base); err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if _, ok := base.DepotTool.Digests["linux-x64"]; ok {
		t.Error("override leaked into the base config's digest map")
	}
}

func TestParseString_NoBundleTable(t *testing.T) {
	cfg, err := NewParser(nil).ParseString(context.Background(), `local x = 1`, Default())
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if cfg.StagingDir != Default().StagingDir {
		t.Errorf("StagingDir = %s, want default", cfg.StagingDir)
	}
}

func TestParseString_Errors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
	}{
		{"syntax", `bundle = {`, "Lua syntax error"},
		{"bundle not table", `bundle = "x"`, "invalid 'bundle' table"},
		{"number manifest", `bundle = { game = { manifest_id = 334631432900238181 } }`, "manifest_id"},
		{"bool as string", `bundle = { staging_dir = true }`, "staging_dir"},
		{"string as bool", `bundle = { verify_stamps = "yes" }`, "verify_stamps"},
		{"game not table", `bundle = { game = 1 }`, "game"},
		{"digest without arch", `bundle = { depot_tool = { digest = "ffeeddccbbaa99887766554433221100" } }`, "depot_tool.digest"},
		{"validation", `bundle = { bundle_name = "Broken" }`, "config validation failed"},
		{"sandbox os", `os.execute("true")`, "Lua syntax error"},
		{"sandbox io", `io.open("/etc/passwd")`, "Lua syntax error"},
		{"sandbox require", `require("socket")`, "Lua syntax error"},
		{"sandbox loadstring", `loadstring("return 1")()`, "Lua syntax error"},
		{"sandbox debug", `debug.getinfo(1)`, "Lua syntax error"},
		{"sandbox dofile", `dofile("/etc/hosts")`, "Lua syntax error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).ParseString(context.Background(), tt.code, Default())
			if err == nil {
				t.Fatal("expected error but got none")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error type = %T, want *ParseError", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParseString_PlatformTable(t *testing.T) {
	detector := platform.Static{Info: platform.Info{OS: "darwin", Arch: "amd64", ArchRaw: "amd64"}}
	code := `
bundle = {
  depot_tool = {
    os = "macos",
    arch = platform.pick{ macos = platform.release_arch, default = "x64" },
  },
}
`
	cfg, err := NewParser(detector).ParseString(context.Background(), code, Default())
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if cfg.DepotTool.Arch != "x64" || cfg.DepotTool.OS != "macos" {
		t.Errorf("DepotTool = %s-%s, want macos-x64", cfg.DepotTool.OS, cfg.DepotTool.Arch)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	parser := NewParser(nil)

	t.Run("missing_file", func(t *testing.T) {
		cfg, err := parser.Load(context.Background(), filepath.Join(dir, "absent.lua"), Default())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.BundleName != "MySummerCar.app" {
			t.Errorf("BundleName = %s", cfg.BundleName)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(dir, DefaultFileName)
		if err := os.WriteFile(path, []byte(`bundle = { output_dir = "dist" }`), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cfg, err := parser.Load(context.Background(), path, Default())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.OutputDir != "dist" {
			t.Errorf("OutputDir = %s, want dist", cfg.OutputDir)
		}
	})

	t.Run("too_large", func(t *testing.T) {
		path := filepath.Join(dir, "large.lua")
		if err := os.WriteFile(path, make([]byte, maxConfigSize+1), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := parser.Load(context.Background(), path, Default()); err == nil {
			t.Error("expected error for oversized config")
		}
	})

	t.Run("invalid_base", func(t *testing.T) {
		base := Default()
		base.OutputDir = ""
		if _, err := parser.Load(context.Background(), filepath.Join(dir, "absent.lua"), base); err == nil {
			t.Error("expected validation error for invalid base")
		}
	})
}

func TestFormatError(t *testing.T) {
	err := &ParseError{Message: "Lua syntax error", Detail: "line 1: boom\nstack traceback:\n\t[G]: ?"}

	if got := FormatError(err, false); got != "Lua syntax error: line 1: boom" {
		t.Errorf("FormatError(false) = %q", got)
	}
	if got := FormatError(err, true); !strings.Contains(got, "stack traceback") {
		t.Errorf("FormatError(true) = %q, want raw detail", got)
	}
	if got := FormatError(errors.New("plain"), false); got != "plain" {
		t.Errorf("FormatError(plain) = %q", got)
	}
}
