package script_runner

import (
	"fmt"
	"maps"
	"slices"
	"unicode"
)

type Type string

const (
	// ExprType expr 表达式引擎类型（默认）
	ExprType Type = "expr"

	// LuaType Lua 脚本引擎类型
	LuaType Type = "lua"

	// JavaScriptType JavaScript 脚本引擎类型
	JavaScriptType Type = "javascript"
)

// Capabilities 能力表：名称 -> Go 函数或值。
// 这是脚本代码访问宿主资源的唯一通道。
type Capabilities map[string]any

// Globals 脚本的全局上下文，显式声明其暴露给脚本的能力。
type Globals interface {
	Capabilities() Capabilities
}

// Options 执行选项，在引擎构造时固定，生命周期内不可变。
type Options struct {
	// Modules 脚本可通过限定名引用的能力模块
	Modules []string
	// Imports 无需限定即可使用的模块，必须同时出现在 Modules 中
	Imports []string
}

// Clone 返回选项的深拷贝
func (o Options) Clone() Options {
	return Options{
		Modules: slices.Clone(o.Modules),
		Imports: slices.Clone(o.Imports),
	}
}

// HasModule 判断模块是否被引用
func (o Options) HasModule(name string) bool {
	return slices.Contains(o.Modules, name)
}

// Validate 校验选项
func (o Options) Validate() error {
	seen := make(map[string]struct{}, len(o.Modules))
	for _, m := range o.Modules {
		if !IsIdentifier(m) {
			return fmt.Errorf("%w: invalid module name %q", ErrInvalidOptions, m)
		}
		if _, ok := seen[m]; ok {
			return fmt.Errorf("%w: duplicate module %q", ErrInvalidOptions, m)
		}
		seen[m] = struct{}{}
	}

	imported := make(map[string]struct{}, len(o.Imports))
	for _, i := range o.Imports {
		if _, ok := seen[i]; !ok {
			return fmt.Errorf("%w: import %q is not a referenced module", ErrInvalidOptions, i)
		}
		if _, ok := imported[i]; ok {
			return fmt.Errorf("%w: duplicate import %q", ErrInvalidOptions, i)
		}
		imported[i] = struct{}{}
	}
	return nil
}

// Environment 引擎初始化所需的执行环境
type Environment struct {
	Options      Options
	Capabilities Capabilities
}

// NewEnvironment 基于 globals 创建执行环境，能力表会被拷贝。
func NewEnvironment(opts Options, globals Globals) (*Environment, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var caps Capabilities
	if globals != nil {
		caps = maps.Clone(globals.Capabilities())
	}
	if caps == nil {
		caps = Capabilities{}
	}

	for name, c := range caps {
		if !IsIdentifier(name) {
			return nil, fmt.Errorf("%w: invalid capability name %q", ErrInvalidOptions, name)
		}
		if c == nil {
			return nil, fmt.Errorf("%w: capability %q is nil", ErrInvalidOptions, name)
		}
		if opts.HasModule(name) {
			return nil, fmt.Errorf("%w: capability %q shadows module", ErrInvalidOptions, name)
		}
	}

	return &Environment{
		Options:      opts.Clone(),
		Capabilities: caps,
	}, nil
}

// Names 返回排序后的能力名
func (c Capabilities) Names() []string {
	return slices.Sorted(maps.Keys(c))
}

// IsIdentifier 判断 s 是否为合法标识符
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
