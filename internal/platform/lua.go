package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// ExposeToLua installs a read-only global "platform" table describing info.
//
// Besides the raw fields it carries the release tokens the depot tool is
// published under (release_os, release_arch; empty when the host has no
// build) and pick{...}, which returns the entry keyed by release_os, or the
// "default" entry when there is none.
func ExposeToLua(L *lua.LState, info *Info) error {
	t := L.NewTable()

	releaseOS, _ := ReleaseOS(info.OS)
	releaseArch, _ := ReleaseArch(info.Arch)

	fields := map[string]lua.LValue{
		"os":               lua.LString(info.OS),
		"arch":             lua.LString(info.Arch),
		"host":             lua.LString(info.Host),
		"version":          lua.LString(info.Version),
		"release_os":       lua.LString(releaseOS),
		"release_arch":     lua.LString(releaseArch),
		"is_macos":         lua.LBool(info.IsMacOS()),
		"is_windows":       lua.LBool(info.IsWindows()),
		"is_apple_silicon": lua.LBool(info.IsAppleSilicon()),
		"translated":       lua.LBool(info.Translated),
	}
	for k, v := range fields {
		L.SetField(t, k, v)
	}

	L.SetField(t, "pick", L.NewFunction(func(L *lua.LState) int {
		choices := L.CheckTable(1)
		v := choices.RawGetString(releaseOS)
		if v == lua.LNil {
			v = choices.RawGetString("default")
		}
		L.Push(v)
		return 1
	}))

	L.SetGlobal("platform", freeze(L, t))
	return nil
}

// freeze returns a proxy that reads through to t and rejects writes and
// metatable changes.
func freeze(L *lua.LState, t *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", t)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform is read-only")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("locked"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
