package lua

import (
	"fmt"
	"slices"

	"github.com/tengattack/gluacrypto"
	luaBase64 "github.com/vadv/gopher-lua-libs/base64"
	luaInspect "github.com/vadv/gopher-lua-libs/inspect"
	luaJson "github.com/vadv/gopher-lua-libs/json"
	luaRegexp "github.com/vadv/gopher-lua-libs/regexp"
	luaStrings "github.com/vadv/gopher-lua-libs/strings"
	luaTime "github.com/vadv/gopher-lua-libs/time"
	Lua "github.com/yuin/gopher-lua"
)

// preloaders 可通过 require 加载的模块
var preloaders = map[string]func(L *Lua.LState){
	"strings": luaStrings.Preload,
	"json":    luaJson.Preload,
	"time":    luaTime.Preload,
	"regexp":  luaRegexp.Preload,
	"base64":  luaBase64.Preload,
	"inspect": luaInspect.Preload,
	"crypto":  gluacrypto.Preload,
}

// baseLibs 始终打开的标准库，不包含 io / os / debug
var baseLibs = []struct {
	name string
	fn   Lua.LGFunction
}{
	{Lua.LoadLibName, Lua.OpenPackage},
	{Lua.BaseLibName, Lua.OpenBase},
	{Lua.TabLibName, Lua.OpenTable},
	{Lua.StringLibName, Lua.OpenString},
	{Lua.MathLibName, Lua.OpenMath},
}

// unsafeGlobals 可加载任意代码或文件的基础函数
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring"}

// ModuleNames 返回 Lua 引擎支持的模块
func ModuleNames() []string {
	names := make([]string, 0, len(preloaders))
	for name := range preloaders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func openLibs(L *Lua.LState) error {
	for _, lib := range baseLibs {
		if err := L.CallByParam(Lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, Lua.LString(lib.name)); err != nil {
			return err
		}
	}
	for _, name := range unsafeGlobals {
		L.SetGlobal(name, Lua.LNil)
	}
	lockPackage(L)
	return nil
}

// lockPackage 清空模块搜索路径，只保留 preload 加载器
func lockPackage(L *Lua.LState) {
	pkg, ok := L.GetGlobal(Lua.LoadLibName).(*Lua.LTable)
	if !ok {
		return
	}
	pkg.RawSetString("path", Lua.LString(""))
	pkg.RawSetString("cpath", Lua.LString(""))

	if loaders, ok := pkg.RawGetString("loaders").(*Lua.LTable); ok {
		for i := loaders.Len(); i > 1; i-- {
			loaders.RawSetInt(i, Lua.LNil)
		}
	}
}

// loadModules 预加载并 require 引用的模块
func loadModules(L *Lua.LState, modules []string) (map[string]Lua.LValue, error) {
	for _, name := range modules {
		preload, ok := preloaders[name]
		if !ok {
			return nil, fmt.Errorf("lua module %s: not supported", name)
		}
		preload(L)
	}

	loaded := make(map[string]Lua.LValue, len(modules))
	for _, name := range modules {
		if err := L.CallByParam(Lua.P{
			Fn:      L.GetGlobal("require"),
			NRet:    1,
			Protect: true,
		}, Lua.LString(name)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLuaImportFailed, name, err)
		}
		loaded[name] = L.Get(-1)
		L.Pop(1)
	}
	return loaded, nil
}
