package config

import (
	lua "github.com/yuin/gopher-lua"
)

// Limits on an override file's VM. Override files are a few table
// literals; anything deeper is a mistake.
const (
	overrideCallStackSize = 64
	overrideRegistrySize  = 1024 * 8
)

// newOverrideVM returns a VM with only the base, table, string and math
// libraries. Base functions that load code from disk or strings are
// removed, and package, os, io and debug are never opened.
func newOverrideVM() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: overrideCallStackSize,
		RegistrySize:  overrideRegistrySize,
	})

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
