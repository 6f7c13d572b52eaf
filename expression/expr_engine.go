package expression

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/file"
	"github.com/expr-lang/expr/vm"

	scriptRunner "github.com/tx7do/go-script-runner"
)

func init() {
	_ = scriptRunner.Register(scriptRunner.ExprType, func() (scriptRunner.Engine, error) {
		return newExprEngine()
	})
}

// program expr 编译结果，vm.Program 可被多个 goroutine 同时执行
type program struct {
	source string
	prog   *vm.Program
}

func (p *program) Type() scriptRunner.Type { return scriptRunner.ExprType }

func (p *program) Source() string { return p.source }

// engine expr 表达式引擎实现
//
// 能力表、模块与导入在 Init 时合并为一个固定的 env，
// 编译时对 env 做类型检查，未知标识符在编译阶段即报错。
type engine struct {
	env     map[string]any
	options []expr.Option

	initialized bool
	lastError   error

	mu          sync.RWMutex // 保护 env, options, initialized
	lastErrorMu sync.RWMutex // 保护 lastError
}

// newExprEngine 创建 expr 引擎实例
func newExprEngine() (*engine, error) {
	return &engine{}, nil
}

func (e *engine) GetType() scriptRunner.Type {
	return scriptRunner.ExprType
}

// Init 初始化引擎
func (e *engine) Init(_ context.Context, env *scriptRunner.Environment) error {
	if env == nil {
		return fmt.Errorf("%w: nil environment", scriptRunner.ErrInvalidOptions)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		e.setLastError(ErrExprEngineAlreadyInitialized)
		return ErrExprEngineAlreadyInitialized
	}

	vars, err := buildEnv(env)
	if err != nil {
		e.setLastError(err)
		return err
	}

	e.env = vars
	e.options = []expr.Option{expr.Env(vars)}
	e.initialized = true
	e.ClearError()

	return nil
}

// buildEnv 合并能力、模块和导入成员
func buildEnv(env *scriptRunner.Environment) (map[string]any, error) {
	vars := make(map[string]any, len(env.Capabilities)+len(env.Options.Modules))
	for name, c := range env.Capabilities {
		vars[name] = c
	}

	for _, name := range env.Options.Modules {
		mod, ok := modules[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", scriptRunner.ErrUnknownModule, name)
		}
		vars[name] = map[string]any(mod)
	}

	for _, name := range env.Options.Imports {
		for member, v := range modules[name] {
			if _, exists := vars[member]; exists {
				return nil, fmt.Errorf("%w: %s.%s", ErrExprNameConflict, name, member)
			}
			vars[member] = v
		}
	}

	return vars, nil
}

// Close 销毁引擎
func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		e.setLastError(ErrExprEngineNotInitialized)
		return ErrExprEngineNotInitialized
	}

	e.initialized = false
	e.env = nil
	e.options = nil
	e.ClearError()

	return nil
}

// IsInitialized 检查是否已初始化
func (e *engine) IsInitialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// Compile 编译表达式
func (e *engine) Compile(_ context.Context, source string) (scriptRunner.Program, error) {
	e.mu.RLock()
	initialized, options := e.initialized, e.options
	e.mu.RUnlock()

	if !initialized {
		e.setLastError(ErrExprEngineNotInitialized)
		return nil, ErrExprEngineNotInitialized
	}

	prog, err := expr.Compile(source, options...)
	if err != nil {
		cerr := scriptRunner.NewCompileError(err, diagnostics(err)...)
		e.setLastError(cerr)
		return nil, cerr
	}

	e.ClearError()
	return &program{source: source, prog: prog}, nil
}

// Run 执行已编译的表达式
func (e *engine) Run(ctx context.Context, p scriptRunner.Program) (scriptRunner.Value, error) {
	e.mu.RLock()
	initialized, vars := e.initialized, e.env
	e.mu.RUnlock()

	if !initialized {
		e.setLastError(ErrExprEngineNotInitialized)
		return scriptRunner.Value{}, ErrExprEngineNotInitialized
	}

	compiled, ok := p.(*program)
	if !ok || compiled == nil {
		e.setLastError(scriptRunner.ErrProgramTypeMismatch)
		return scriptRunner.Value{}, scriptRunner.ErrProgramTypeMismatch
	}

	type result struct {
		value any
		err   error
	}

	done := make(chan result, 1)

	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res = result{err: fmt.Errorf("%v", r)}
			}
			done <- res
		}()
		res.value, res.err = expr.Run(compiled.prog, vars)
	}()

	select {
	case <-ctx.Done():
		err := scriptRunner.NewEvaluationError(ctx.Err().Error(), ctx.Err())
		e.setLastError(err)
		return scriptRunner.Value{}, err
	case res := <-done:
		if res.err != nil {
			err := scriptRunner.NewEvaluationError(runtimeMessage(res.err), res.err)
			e.setLastError(err)
			return scriptRunner.Value{}, err
		}
		e.ClearError()
		return scriptRunner.FromGo(res.value), nil
	}
}

// ExecuteString 编译并执行表达式
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

// diagnostics 编译诊断，格式为 (行,列): error: 消息
func diagnostics(err error) []string {
	var fe *file.Error
	if errors.As(err, &fe) {
		return []string{fmt.Sprintf("(%d,%d): error: %s", fe.Line, fe.Column+1, fe.Message)}
	}
	return []string{err.Error()}
}

// runtimeMessage 执行期错误只保留消息本身
func runtimeMessage(err error) string {
	var fe *file.Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}
