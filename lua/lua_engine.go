package lua

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/yuin/gluamapper"
	Lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	scriptRunner "github.com/tx7do/go-script-runner"
)

const snippetName = "<snippet>"

// maxExactInt 超过该值的 Lua 数字无法精确表示为整数
const maxExactInt = 1 << 53

// cycleText 自引用表在结果中的占位文本
const cycleText = "[...]"

var mapperOption = gluamapper.Option{NameFunc: gluamapper.Id}

func init() {
	_ = scriptRunner.Register(scriptRunner.LuaType, func() (scriptRunner.Engine, error) {
		return newLuaEngine()
	})
}

// program 已编译的 Lua 程序，FunctionProto 可在多个 LState 之间共享
type program struct {
	source string
	proto  *Lua.FunctionProto
}

func (p *program) Type() scriptRunner.Type { return scriptRunner.LuaType }

func (p *program) Source() string { return p.source }

// engine Lua 脚本引擎实现
//
// 锁使用约定：先获取 `mu` 再获取 `execMu`，不要在持有 `execMu` 时获取 `mu`。
type engine struct {
	L           *Lua.LState
	sb          *sandbox
	initialized bool
	lastError   error

	mu          sync.RWMutex // 保护 L, sb, initialized
	execMu      sync.Mutex   // LState 非并发安全
	lastErrorMu sync.RWMutex // 保护 lastError
}

// newLuaEngine 创建 Lua 引擎实例
func newLuaEngine() (*engine, error) {
	return &engine{
		initialized: false,
	}, nil
}

func (e *engine) GetType() scriptRunner.Type {
	return scriptRunner.LuaType
}

// Init 初始化引擎：打开基础库、加载模块、构建调用环境模板
func (e *engine) Init(_ context.Context, env *scriptRunner.Environment) error {
	if env == nil {
		return fmt.Errorf("%w: nil environment", scriptRunner.ErrInvalidOptions)
	}
	for _, name := range env.Options.Modules {
		if _, ok := preloaders[name]; !ok {
			return fmt.Errorf("%w: %s", scriptRunner.ErrUnknownModule, name)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		e.setLastError(ErrLuaEngineAlreadyInitialized)
		return ErrLuaEngineAlreadyInitialized
	}

	L := Lua.NewState(Lua.Options{
		CallStackSize:       4096,
		RegistrySize:        4096,
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	})

	if err := openLibs(L); err != nil {
		L.Close()
		e.setLastError(err)
		return err
	}
	modules, err := loadModules(L, env.Options.Modules)
	if err != nil {
		L.Close()
		e.setLastError(err)
		return err
	}

	e.L = L
	e.sb = newSandbox(L, modules, env.Options.Imports, env.Capabilities)
	e.initialized = true
	e.ClearError()

	return nil
}

// Close 销毁引擎
func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		e.setLastError(ErrLuaEngineNotInitialized)
		return ErrLuaEngineNotInitialized
	}

	e.execMu.Lock()
	defer e.execMu.Unlock()

	e.L.Close()
	e.L = nil
	e.sb = nil
	e.initialized = false
	e.ClearError()

	return nil
}

// IsInitialized 检查是否已初始化
func (e *engine) IsInitialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// Compile 编译脚本。
// 优先按表达式编译（前置 return），使裸表达式得到其值；失败时按语句块编译。
func (e *engine) Compile(_ context.Context, source string) (scriptRunner.Program, error) {
	if !e.IsInitialized() {
		e.setLastError(ErrLuaEngineNotInitialized)
		return nil, ErrLuaEngineNotInitialized
	}

	proto, err := compileChunk("return " + source)
	if err != nil {
		proto, err = compileChunk(source)
	}
	if err != nil {
		cerr := scriptRunner.NewCompileError(err, strings.TrimSpace(err.Error()))
		e.setLastError(cerr)
		return nil, cerr
	}

	e.ClearError()
	return &program{source: source, proto: proto}, nil
}

func compileChunk(source string) (*Lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(source), snippetName)
	if err != nil {
		return nil, err
	}
	return Lua.Compile(chunk, snippetName)
}

// Run 运行已编译的程序，每次调用使用独立的全局环境表
func (e *engine) Run(ctx context.Context, p scriptRunner.Program) (val scriptRunner.Value, err error) {
	compiled, ok := p.(*program)
	if !ok || compiled == nil {
		e.setLastError(scriptRunner.ErrProgramTypeMismatch)
		return scriptRunner.Value{}, scriptRunner.ErrProgramTypeMismatch
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		e.setLastError(ErrLuaEngineNotInitialized)
		return scriptRunner.Value{}, ErrLuaEngineNotInitialized
	}

	e.execMu.Lock()
	defer e.execMu.Unlock()

	L := e.L
	top := L.GetTop()

	L.SetContext(ctx)
	defer func() {
		L.RemoveContext()
		L.SetTop(top)
		if r := recover(); r != nil {
			val = scriptRunner.Value{}
			err = scriptRunner.NewEvaluationError(fmt.Sprint(r), fmt.Errorf("panic in Run: %v", r))
			e.setLastError(err)
		}
	}()

	fn := L.NewFunctionFromProto(compiled.proto)
	fn.Env = e.sb.newCallEnv(L)

	if callErr := L.CallByParam(Lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}); callErr != nil {
		err = scriptRunner.NewEvaluationError(errorMessage(ctx, callErr), callErr)
		e.setLastError(err)
		return scriptRunner.Value{}, err
	}

	ret := L.Get(-1)
	e.ClearError()
	return toValue(ret), nil
}

// ExecuteString 执行字符串脚本
func (e *engine) ExecuteString(ctx context.Context, source string) (scriptRunner.Value, error) {
	p, err := e.Compile(ctx, source)
	if err != nil {
		return scriptRunner.Value{}, err
	}
	return e.Run(ctx, p)
}

// GetLastError 获取最后一个错误
func (e *engine) GetLastError() error {
	e.lastErrorMu.RLock()
	defer e.lastErrorMu.RUnlock()
	return e.lastError
}

func (e *engine) setLastError(err error) {
	e.lastErrorMu.Lock()
	defer e.lastErrorMu.Unlock()
	e.lastError = err
}

// ClearError 清除错误
func (e *engine) ClearError() {
	e.lastErrorMu.Lock()
	defer e.lastErrorMu.Unlock()
	e.lastError = nil
}

// errorMessage 提取 Lua 错误对象的文本，不包含栈信息
func errorMessage(ctx context.Context, err error) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr.Error()
	}
	var apiErr *Lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// toValue 把 Lua 值转换为结果值
func toValue(lv Lua.LValue) scriptRunner.Value {
	switch v := lv.(type) {
	case *Lua.LNilType:
		return scriptRunner.NullValue()
	case Lua.LBool:
		return scriptRunner.BoolValue(bool(v))
	case Lua.LString:
		return scriptRunner.StringValue(string(v))
	case Lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) <= maxExactInt {
			return scriptRunner.IntValue(int64(f))
		}
		return scriptRunner.FloatValue(f)
	case *Lua.LTable:
		if hasCycle(v, make(map[*Lua.LTable]bool)) {
			return scriptRunner.FromGo(tableToGo(v, make(map[*Lua.LTable]struct{})))
		}
		return scriptRunner.FromGo(gluamapper.ToGoValue(v, mapperOption))
	case *Lua.LUserData:
		return scriptRunner.FromGo(v.Value)
	case nil:
		return scriptRunner.NullValue()
	default:
		return scriptRunner.OtherValue(lv.String())
	}
}

// hasCycle 检查表是否经由键或值引用到自身所在的路径。
// onPath 记录当前路径上的表 (true) 与已确认无环的表 (false)。
func hasCycle(tb *Lua.LTable, onPath map[*Lua.LTable]bool) bool {
	if active, seen := onPath[tb]; seen {
		return active
	}
	onPath[tb] = true

	found := false
	visit := func(lv Lua.LValue) {
		if child, ok := lv.(*Lua.LTable); ok && !found {
			found = hasCycle(child, onPath)
		}
	}
	if maxn := tb.MaxN(); maxn > 0 {
		for i := 1; i <= maxn && !found; i++ {
			visit(tb.RawGetInt(i))
		}
	} else {
		tb.ForEach(func(k, v Lua.LValue) {
			visit(k)
			visit(v)
		})
	}

	onPath[tb] = false
	return found
}

// tableToGo 与 gluamapper.ToGoValue 转换规则一致，重复出现在路径上的表替换为占位值
func tableToGo(lv Lua.LValue, path map[*Lua.LTable]struct{}) any {
	tb, ok := lv.(*Lua.LTable)
	if !ok {
		return gluamapper.ToGoValue(lv, mapperOption)
	}
	if _, seen := path[tb]; seen {
		return scriptRunner.OtherValue(cycleText)
	}
	path[tb] = struct{}{}
	defer delete(path, tb)

	if maxn := tb.MaxN(); maxn > 0 {
		ret := make([]any, 0, maxn)
		for i := 1; i <= maxn; i++ {
			ret = append(ret, tableToGo(tb.RawGetInt(i), path))
		}
		return ret
	}

	ret := make(map[any]any)
	tb.ForEach(func(k, v Lua.LValue) {
		ret[fmt.Sprint(tableToGo(k, path))] = tableToGo(v, path)
	})
	return ret
}
