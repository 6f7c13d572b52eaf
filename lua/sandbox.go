package lua

import (
	Lua "github.com/yuin/gopher-lua"
	luar "layeh.com/gopher-luar"

	scriptRunner "github.com/tx7do/go-script-runner"
)

// safeBaseFuncs 脚本可见的基础函数，
// 不包含 require / module / getfenv / setfenv / rawset / collectgarbage 等可越过环境表的函数
var safeBaseFuncs = []string{
	"assert", "error", "ipairs", "next", "pairs", "pcall", "print", "select",
	"tonumber", "tostring", "type", "unpack", "xpcall",
	"rawequal", "rawget", "getmetatable", "setmetatable",
	"_VERSION",
}

// sharedLibs 每次调用复制一份的标准库
var sharedLibs = []string{Lua.StringLibName, Lua.TabLibName, Lua.MathLibName}

// sandbox 调用环境的模板。
// base 只能经由环境表元表的 __index 读取，脚本无法取得其引用。
type sandbox struct {
	base    *Lua.LTable
	meta    *Lua.LTable
	libs    map[string]*Lua.LTable
	modules map[string]Lua.LValue
	imports []string
}

func newSandbox(L *Lua.LState, modules map[string]Lua.LValue, imports []string, caps scriptRunner.Capabilities) *sandbox {
	sb := &sandbox{
		base:    L.NewTable(),
		meta:    L.NewTable(),
		libs:    make(map[string]*Lua.LTable, len(sharedLibs)),
		modules: modules,
		imports: imports,
	}

	for _, name := range safeBaseFuncs {
		if v := L.GetGlobal(name); v != Lua.LNil {
			sb.base.RawSetString(name, v)
		}
	}
	for _, name := range caps.Names() {
		sb.base.RawSetString(name, luar.New(L, caps[name]))
	}
	for _, name := range sharedLibs {
		if tb, ok := L.GetGlobal(name).(*Lua.LTable); ok {
			sb.libs[name] = tb
		}
	}

	sb.meta.RawSetString("__index", sb.base)
	sb.meta.RawSetString("__metatable", Lua.LFalse)

	// 字符串方法经由内置元表访问原始 string 库
	if mt, ok := L.GetMetatable(Lua.LString("")).(*Lua.LTable); ok {
		mt.RawSetString("__metatable", Lua.LFalse)
	}

	return sb
}

// newCallEnv 创建一次调用的环境表。
// 标准库与模块为本次调用的浅拷贝，全局写入和库修改都不会影响后续调用。
func (sb *sandbox) newCallEnv(L *Lua.LState) *Lua.LTable {
	env := L.NewTable()
	for name, lib := range sb.libs {
		env.RawSetString(name, copyTable(L, lib))
	}

	loaded := L.CreateTable(0, len(sb.modules))
	for name, mod := range sb.modules {
		if tb, ok := mod.(*Lua.LTable); ok {
			mod = copyTable(L, tb)
		}
		loaded.RawSetString(name, mod)
	}
	for _, name := range sb.imports {
		env.RawSetString(name, loaded.RawGetString(name))
	}

	env.RawSetString("require", L.NewClosure(sandboxRequire, loaded))
	env.RawSetString("_G", env)
	env.Metatable = sb.meta

	return env
}

// sandboxRequire 只返回已引用的模块，不访问文件系统
func sandboxRequire(L *Lua.LState) int {
	name := L.CheckString(1)
	loaded, _ := L.Get(Lua.UpvalueIndex(1)).(*Lua.LTable)
	if loaded == nil || loaded.RawGetString(name) == Lua.LNil {
		L.RaiseError("module %s not found", name)
		return 0
	}
	L.Push(loaded.RawGetString(name))
	return 1
}

// copyTable 浅拷贝库表。
// string 库同时是字符串的元表，其 __index 指向自身，不复制指回原表的字段。
func copyTable(L *Lua.LState, src *Lua.LTable) *Lua.LTable {
	dst := L.CreateTable(src.Len(), 0)
	src.ForEach(func(k, v Lua.LValue) {
		if v == src || k == Lua.LString("__metatable") {
			return
		}
		dst.RawSet(k, v)
	})
	dst.Metatable = src.Metatable
	return dst
}
