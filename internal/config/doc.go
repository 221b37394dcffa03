// Package config holds the configuration value object for the bundle build.
//
// # Overview
//
// Every identifier the build needs (Steam app, depot and manifest ids, the
// supported Unity player version, expected digests, vendor URLs, staging and
// output directories) lives in a single Config value. Default returns the
// values the build was written against; nothing is taken from command-line
// flags.
//
// # Override file
//
// A maintainer can drop an mscbundle.lua file next to the staging directory
// to point the build at a different player version or manifest:
//
//	bundle = {
//	  staging_dir = "source",
//	  runtime = {
//	    version = "5.0.0f4",
//	    digest  = "586029ed099dac2b84c7b382001ec39c",
//	  },
//	  depot_tool = {
//	    arch = platform.pick{ macos = "arm64", default = platform.release_arch },
//	  },
//	}
//
// The file is evaluated in a gopher-lua VM that only opens the base, table,
// string and math libraries without the code loading functions. A read-only
// "platform" table describing the host is injected before the file runs.
// Only fields present in the file replace their defaults.
//
// Large ids (the manifest id does not fit in a Lua number) must be written
// as strings.
//
// # Logging
//
// Logger is the structured logging interface shared by the build packages.
// NopLogger is used whenever a caller does not supply one.
package config
