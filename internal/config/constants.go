package config

// Lua schema field names and globals
const (
	luaGlobalBundle          = "bundle"
	luaFieldStagingDir       = "staging_dir"
	luaFieldOutputDir        = "output_dir"
	luaFieldBundleName       = "bundle_name"
	luaFieldHTTPTimeout      = "http_timeout"
	luaFieldDownloadRetries  = "download_retries"
	luaFieldVerifyStamps     = "verify_stamps"
	luaFieldAllowVersionSkew = "allow_version_mismatch"
	luaFieldGame             = "game"
	luaFieldAppID            = "app_id"
	luaFieldDepotID          = "depot_id"
	luaFieldBuildID          = "build_id"
	luaFieldManifestID       = "manifest_id"
	luaFieldDepotOS          = "os"
	luaFieldDataDir          = "data_dir"
	luaFieldVersionResource  = "version_resource"
	luaFieldRuntime          = "runtime"
	luaFieldVersion          = "version"
	luaFieldDownloadHash     = "download_hash"
	luaFieldDigest           = "digest"
	luaFieldPlayerPath       = "player_path"
	luaFieldDepotTool        = "depot_tool"
	luaFieldArch             = "arch"
	luaFieldSteamworks       = "steamworks"
	luaFieldURL              = "url"
	luaFieldPluginPath       = "plugin_path"
)

// DefaultFileName is the override file looked up in the working directory.
const DefaultFileName = "mscbundle.lua"
