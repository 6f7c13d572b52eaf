package script_runner

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
)

const fakeType Type = "fake"

var fakeCompiles atomic.Int64

func init() {
	_ = Register(fakeType, func() (Engine, error) {
		return &fakeEngine{}, nil
	})
}

type fakeProgram struct {
	source string
}

func (p *fakeProgram) Type() Type { return fakeType }

func (p *fakeProgram) Source() string { return p.source }

// fakeEngine 测试引擎：
//   - "!a;b" 编译失败，诊断为 a、b
//   - "call:Name:arg" 调用能力 Name(arg)
//   - "panic:msg" 执行期 panic
//   - "err:msg" 执行期错误
//   - "block" 阻塞直到 ctx 结束
//   - 其余按字面值解析
type fakeEngine struct {
	env         *Environment
	initialized bool
	lastError   error
}

func (e *fakeEngine) GetType() Type { return fakeType }

func (e *fakeEngine) Init(_ context.Context, env *Environment) error {
	if e.initialized {
		return ErrEngineAlreadyInitialized
	}
	for _, m := range env.Options.Modules {
		if m != "text" {
			return ErrUnknownModule
		}
	}
	e.env = env
	e.initialized = true
	return nil
}

func (e *fakeEngine) Close() error {
	if !e.initialized {
		return ErrEngineNotInitialized
	}
	e.initialized = false
	return nil
}

func (e *fakeEngine) IsInitialized() bool { return e.initialized }

func (e *fakeEngine) Compile(_ context.Context, source string) (Program, error) {
	fakeCompiles.Add(1)
	if !e.initialized {
		return nil, ErrEngineNotInitialized
	}
	if strings.HasPrefix(source, "!") {
		err := NewCompileError(nil, strings.Split(source[1:], ";")...)
		e.lastError = err
		return nil, err
	}
	if strings.HasPrefix(source, "call:") {
		name := strings.SplitN(source, ":", 3)[1]
		if _, ok := e.env.Capabilities[name]; !ok {
			err := NewCompileError(nil, "unknown name "+name)
			e.lastError = err
			return nil, err
		}
	}
	return &fakeProgram{source: source}, nil
}

func (e *fakeEngine) Run(ctx context.Context, p Program) (Value, error) {
	src := p.Source()
	switch {
	case strings.HasPrefix(src, "call:"):
		parts := strings.SplitN(src, ":", 3)
		fn := e.env.Capabilities[parts[1]].(func(string) string)
		return StringValue(fn(parts[2])), nil
	case strings.HasPrefix(src, "panic:"):
		panic(strings.TrimPrefix(src, "panic:"))
	case strings.HasPrefix(src, "err:"):
		return Value{}, errors.New(strings.TrimPrefix(src, "err:"))
	case src == "block":
		<-ctx.Done()
		return Value{}, ctx.Err()
	case src == "null":
		return NullValue(), nil
	case src == "true":
		return BoolValue(true), nil
	case src == "false":
		return BoolValue(false), nil
	case src == "list":
		return FromGo([]any{1, "two", nil, false}), nil
	case src == "empty":
		return FromGo([]int{}), nil
	default:
		return StringValue(src), nil
	}
}

func (e *fakeEngine) ExecuteString(ctx context.Context, source string) (Value, error) {
	p, err := e.Compile(ctx, source)
	if err != nil {
		return Value{}, err
	}
	return e.Run(ctx, p)
}

func (e *fakeEngine) GetLastError() error { return e.lastError }

func (e *fakeEngine) ClearError() { e.lastError = nil }

type echoGlobals struct {
	prefix string
}

func (g *echoGlobals) Capabilities() Capabilities {
	return Capabilities{
		"Echo": func(s string) string { return g.prefix + s },
	}
}
