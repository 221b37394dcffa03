package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// maxConfigSize bounds the override file so a stray large file is rejected
// before the VM sees it.
const maxConfigSize = 1 << 20

// Parser evaluates Lua override files on top of a base Config.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table out of the Lua environment.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// Load applies the override file at path to base. A missing file is not an
// error: base is returned unchanged (after validation).
func (p *Parser) Load(ctx context.Context, path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := base.Validate(); err != nil {
				return Config{}, err
			}
			return base, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if len(data) > maxConfigSize {
		return Config{}, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes, limit is %d", path, len(data), maxConfigSize),
		}
	}
	return p.ParseString(ctx, string(data), base)
}

// ParseString applies Lua override code to base.
// This is useful for testing and in-memory overrides.
func (p *Parser) ParseString(ctx context.Context, luaCode string, base Config) (Config, error) {
	L := newOverrideVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return Config{}, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.ExposeToLua(L, platformInfo); err != nil {
			return Config{}, fmt.Errorf("expose platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		return Config{}, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	cfg, err := applyOverrides(L, base)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return cfg, nil
}

// applyOverrides copies fields from the global "bundle" table over base.
// A script that never defines the table changes nothing.
func applyOverrides(L *lua.LState, base Config) (Config, error) {
	cfg := base
	cfg.DepotTool.Digests = maps.Clone(base.DepotTool.Digests)

	global := L.GetGlobal(luaGlobalBundle)
	if global.Type() == lua.LTNil {
		return cfg, nil
	}
	table, ok := global.(*lua.LTable)
	if !ok {
		return Config{}, &ParseError{
			Message: "invalid 'bundle' table",
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	r := &reader{}
	r.str(table, luaFieldStagingDir, &cfg.StagingDir)
	r.str(table, luaFieldOutputDir, &cfg.OutputDir)
	r.str(table, luaFieldBundleName, &cfg.BundleName)
	r.seconds(table, luaFieldHTTPTimeout, &cfg.HTTPTimeout)
	r.integer(table, luaFieldDownloadRetries, &cfg.DownloadRetries)
	r.boolean(table, luaFieldVerifyStamps, &cfg.VerifyStamps)
	r.boolean(table, luaFieldAllowVersionSkew, &cfg.AllowVersionMismatch)

	if game := r.table(table, luaFieldGame); game != nil {
		r.str(game, luaFieldAppID, &cfg.Game.AppID)
		r.str(game, luaFieldDepotID, &cfg.Game.DepotID)
		r.str(game, luaFieldBuildID, &cfg.Game.BuildID)
		r.str(game, luaFieldManifestID, &cfg.Game.ManifestID)
		r.str(game, luaFieldDepotOS, &cfg.Game.OS)
		r.str(game, luaFieldDataDir, &cfg.Game.DataDir)
		r.str(game, luaFieldVersionResource, &cfg.Game.VersionResource)
	}

	if runtime := r.table(table, luaFieldRuntime); runtime != nil {
		r.str(runtime, luaFieldVersion, &cfg.Runtime.Version)
		r.str(runtime, luaFieldDownloadHash, &cfg.Runtime.DownloadHash)
		r.str(runtime, luaFieldDigest, &cfg.Runtime.Digest)
		r.str(runtime, luaFieldPlayerPath, &cfg.Runtime.PlayerPath)
	}

	if tool := r.table(table, luaFieldDepotTool); tool != nil {
		r.str(tool, luaFieldVersion, &cfg.DepotTool.Version)
		r.str(tool, luaFieldDepotOS, &cfg.DepotTool.OS)
		r.str(tool, luaFieldArch, &cfg.DepotTool.Arch)

		var digest string
		if r.str(tool, luaFieldDigest, &digest) {
			osName, arch := cfg.DepotTool.OS, cfg.DepotTool.Arch
			if osName == "" || arch == "" {
				r.fail(luaFieldDepotTool+"."+luaFieldDigest, "requires explicit os and arch")
			} else {
				if cfg.DepotTool.Digests == nil {
					cfg.DepotTool.Digests = map[string]string{}
				}
				cfg.DepotTool.Digests[cfg.DepotTool.Asset(osName, arch)] = digest
			}
		}
	}

	if vendor := r.table(table, luaFieldSteamworks); vendor != nil {
		r.str(vendor, luaFieldURL, &cfg.Steamworks.URL)
		r.str(vendor, luaFieldPluginPath, &cfg.Steamworks.PluginPath)
	}

	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, nil
}

// reader extracts typed fields and remembers the first type error.
type reader struct {
	err error
}

func (r *reader) fail(field, detail string) {
	if r.err == nil {
		r.err = &ParseError{
			Message: fmt.Sprintf("invalid field '%s'", field),
			Detail:  detail,
		}
	}
}

func (r *reader) str(t *lua.LTable, field string, dst *string) bool {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return false
	case lua.LTString:
		*dst = strings.TrimSpace(v.String())
		return true
	default:
		r.fail(field, fmt.Sprintf("expected string, got %s", v.Type()))
		return false
	}
}

func (r *reader) boolean(t *lua.LTable, field string, dst *bool) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTBool:
		*dst = bool(v.(lua.LBool))
	default:
		r.fail(field, fmt.Sprintf("expected boolean, got %s", v.Type()))
	}
}

func (r *reader) integer(t *lua.LTable, field string, dst *int) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTNumber:
		*dst = int(lua.LVAsNumber(v))
	default:
		r.fail(field, fmt.Sprintf("expected number, got %s", v.Type()))
	}
}

func (r *reader) seconds(t *lua.LTable, field string, dst *time.Duration) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTNumber:
		*dst = time.Duration(float64(lua.LVAsNumber(v)) * float64(time.Second))
	default:
		r.fail(field, fmt.Sprintf("expected number of seconds, got %s", v.Type()))
	}
}

func (r *reader) table(t *lua.LTable, field string) *lua.LTable {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTTable:
		return v.(*lua.LTable)
	default:
		r.fail(field, fmt.Sprintf("expected table, got %s", v.Type()))
		return nil
	}
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
