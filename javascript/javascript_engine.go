package js

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"

	scriptRunner "github.com/tx7do/go-script-runner"
)

const snippetName = "<snippet>"

func init() {
	_ = scriptRunner.Register(scriptRunner.JavaScriptType, func() (scriptRunner.Engine, error) {
		return newJavascriptEngine()
	})
}

// program 已编译的 JavaScript 程序，goja.Program 与 Runtime 无关，可复用
type program struct {
	source string
	prog   *goja.Program
}

func (p *program) Type() scriptRunner.Type { return scriptRunner.JavaScriptType }

func (p *program) Source() string { return p.source }

// engine JavaScript 脚本引擎实现
//
// 每次 Run 都创建新的 goja.Runtime 并绑定能力表，
// 片段中声明的全局变量不会泄漏到下一次调用。
type engine struct {
	env *scriptRunner.Environment

	initialized bool
	lastError   error

	mu          sync.RWMutex // 保护 env, initialized
	lastErrorMu sync.RWMutex // 保护 lastError
}

// newJavascriptEngine 创建 JavaScript 引擎实例
func newJavascriptEngine() (*engine, error) {
	return &engine{
		initialized: false,
	}, nil
}

func (e *engine) GetType() scriptRunner.Type {
	return scriptRunner.JavaScriptType
}

// Init 初始化引擎
func (e *engine) Init(_ context.Context, env *scriptRunner.Environment) error {
	if env == nil {
		return fmt.Errorf("%w: nil environment", scriptRunner.ErrInvalidOptions)
	}

	for _, name := range env.Options.Modules {
		if _, ok := importers[name]; !ok {
			return fmt.Errorf("%w: %s", scriptRunner.ErrUnknownModule, name)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		e.setLastError(ErrJavascriptEngineAlreadyInitialized)
		return ErrJavascriptEngineAlreadyInitialized
	}

	e.env = env
	e.initialized = true
	e.ClearError()

	return nil
}

// Close 销毁引擎
func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		e.setLastError(ErrJavascriptEngineNotInitialized)
		return ErrJavascriptEngineNotInitialized
	}

	e.initialized = false
	e.env = nil
	e.ClearError()

	return nil
}

// IsInitialized 检查是否已初始化
func (e *engine) IsInitialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// Compile 解析并编译脚本，收集全部语法诊断
func (e *engine) Compile(_ context.Context, source string) (scriptRunner.Program, error) {
	if !e.IsInitialized() {
		e.setLastError(ErrJavascriptEngineNotInitialized)
		return nil, ErrJavascriptEngineNotInitialized
	}

	ast, err := parser.ParseFile(nil, snippetName, source, 0, parser.WithDisableSourceMaps)
	if err != nil {
		cerr := scriptRunner.NewCompileError(err, parseDiagnostics(err)...)
		e.setLastError(cerr)
		return nil, cerr
	}

	prog, err := goja.CompileAST(ast, false)
	if err != nil {
		cerr := scriptRunner.NewCompileError(err)
		e.setLastError(cerr)
		return nil, cerr
	}

	e.ClearError()
	return &program{source: source, prog: prog}, nil
}

func parseDiagnostics(err error) []string {
	list, ok := err.(parser.ErrorList)
	if !ok || len(list) == 0 {
		return []string{err.Error()}
	}
	diags := make([]string, 0, len(list))
	for _, pe := range list {
		diags = append(diags, pe.Error())
	}
	return diags
}

// newRuntime 创建绑定了能力表与模块的运行时
func (e *engine) newRuntime() (*goja.Runtime, error) {
	e.mu.RLock()
	env := e.env
	e.mu.RUnlock()

	if env == nil {
		return nil, ErrJavascriptEngineNotInitialized
	}

	rt := goja.New()
	enableModules(rt, env.Options.Modules, env.Options.Imports)

	for _, name := range env.Capabilities.Names() {
		if err := rt.Set(name, env.Capabilities[name]); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrJavascriptBindFailed, name, err)
		}
	}
	return rt, nil
}

// Run 运行已编译的程序
func (e *engine) Run(ctx context.Context, p scriptRunner.Program) (val scriptRunner.Value, err error) {
	if !e.IsInitialized() {
		e.setLastError(ErrJavascriptEngineNotInitialized)
		return scriptRunner.Value{}, ErrJavascriptEngineNotInitialized
	}

	compiled, ok := p.(*program)
	if !ok || compiled == nil {
		e.setLastError(scriptRunner.ErrProgramTypeMismatch)
		return scriptRunner.Value{}, scriptRunner.ErrProgramTypeMismatch
	}

	rt, err := e.newRuntime()
	if err != nil {
		e.setLastError(err)
		return scriptRunner.Value{}, err
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			val = scriptRunner.Value{}
			err = scriptRunner.NewEvaluationError(fmt.Sprint(r), fmt.Errorf("panic in Run: %v", r))
			e.setLastError(err)
		}
	}()

	v, runErr := rt.RunProgram(compiled.prog)
	if runErr != nil {
		err = scriptRunner.NewEvaluationError(exceptionMessage(runErr), runErr)
		e.setLastError(err)
		return scriptRunner.Value{}, err
	}

	e.ClearError()
	return toValue(v), nil
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

// exceptionMessage 提取异常文本，例如 "ReferenceError: x is not defined"
func exceptionMessage(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprint(interrupted.Value())
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		if inner := ex.Unwrap(); inner != nil {
			return inner.Error()
		}
		if v := ex.Value(); v != nil {
			return v.String()
		}
	}
	return err.Error()
}

// toValue 把 goja 值转换为结果值
func toValue(v goja.Value) scriptRunner.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return scriptRunner.NullValue()
	}
	if _, ok := goja.AssertFunction(v); ok {
		return scriptRunner.OtherValue(v.String())
	}
	return scriptRunner.FromGo(v.Export())
}
