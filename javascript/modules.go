package js

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/buffer"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/url"
	_ "github.com/dop251/goja_nodejs/util"
)

// importers 把模块启用为全局对象
var importers = map[string]func(rt *goja.Runtime){
	"console": console.Enable,
	"buffer":  buffer.Enable,
	"url":     url.Enable,
	"util": func(rt *goja.Runtime) {
		_ = rt.Set("util", require.Require(rt, "util"))
	},
}

// ModuleNames 返回 JavaScript 引擎支持的模块
func ModuleNames() []string {
	names := make([]string, 0, len(importers))
	for name := range importers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// denyFileLoader 禁止从文件系统加载模块
func denyFileLoader(string) ([]byte, error) {
	return nil, require.ModuleFileDoesNotExistError
}

// enableModules 启用 require 与导入的模块，require 仅能加载 modules 中的模块
func enableModules(rt *goja.Runtime, modules, imports []string) {
	if len(modules) == 0 {
		return
	}

	registry := require.NewRegistry(require.WithLoader(denyFileLoader))
	req := registry.Enable(rt)

	for _, name := range imports {
		importers[name](rt)
	}

	_ = rt.Set("require", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if !slices.Contains(modules, strings.TrimPrefix(name, "node:")) {
			panic(rt.NewGoError(fmt.Errorf("%w: %s", ErrJavascriptModuleNotAvailable, name)))
		}
		v, err := req.Require(name)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return v
	})
}
