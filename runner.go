package script_runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/rs/xid"
)

// ScriptRunner 脚本运行器。
//
// 构造时固定执行选项与 globals，之后每次 RunScript 独立完成
// 编译 -> 执行 -> 归一化，任何失败都转换为文本返回。
// globals 的能力在并发调用下是否安全由调用方保证，运行器不额外加锁。
type ScriptRunner[T Globals] struct {
	typ     Type
	env     *Environment
	globals T
	pool    enginePool
	cache   *programCache
	log     *log.Helper
}

// NewScriptRunner 创建运行器，对应类型的引擎需已注册（通过空导入引擎包）。
func NewScriptRunner[T Globals](globals T, opts ...Option) (*ScriptRunner[T], error) {
	o := defaultRunnerOptions()
	for _, opt := range opts {
		opt(&o)
	}

	env, err := NewEnvironment(o.options, globals)
	if err != nil {
		return nil, err
	}

	var pool enginePool
	if o.poolInitial == o.poolMax {
		pool, err = NewEnginePool(o.poolMax, o.typ, env)
	} else {
		pool, err = NewAutoGrowEnginePool(o.poolInitial, o.poolMax, o.typ, env)
	}
	if err != nil {
		return nil, err
	}

	cache, err := newProgramCache(o.cacheSize)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}

	return &ScriptRunner[T]{
		typ:     o.typ,
		env:     env,
		globals: globals,
		pool:    pool,
		cache:   cache,
		log:     log.NewHelper(log.With(o.logger, "module", "script_runner/"+string(o.typ))),
	}, nil
}

func (r *ScriptRunner[T]) Type() Type {
	return r.typ
}

// Globals 返回绑定的全局上下文
func (r *ScriptRunner[T]) Globals() T {
	return r.globals
}

// Options 返回执行选项的拷贝
func (r *ScriptRunner[T]) Options() Options {
	return r.env.Options.Clone()
}

// Close 释放引擎池
func (r *ScriptRunner[T]) Close() error {
	return r.pool.Close()
}

// Run 编译并执行代码，返回结构化结果。
// 编译失败返回 *CompileError，其余失败返回 *EvaluationError。
func (r *ScriptRunner[T]) Run(ctx context.Context, code string) (val Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			val = Value{}
			err = NewEvaluationError(fmt.Sprint(p), fmt.Errorf("panic: %v", p))
		}
	}()

	program, err := r.compile(ctx, code)
	if err != nil {
		return Value{}, err
	}

	val, err = r.pool.Run(ctx, program)
	if err != nil {
		return Value{}, asEvaluationError(err)
	}
	return val, nil
}

// RunScript 执行代码并返回归一化文本，永不 panic，也不返回 error。
func (r *ScriptRunner[T]) RunScript(ctx context.Context, code string) (output string) {
	runID := xid.New().String()

	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("run %s: panic: %v", runID, p)
			output = fmt.Sprint(p)
		}
	}()

	val, err := r.Run(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCompilation) {
			r.log.Debugf("run %s: compile failed: %v", runID, err)
		} else {
			r.log.Debugf("run %s: evaluation failed: %v", runID, err)
		}
		return ErrorText(err)
	}

	output = val.String()
	r.log.Debugf("run %s: result kind=%s", runID, val.Kind())
	return output
}

func (r *ScriptRunner[T]) compile(ctx context.Context, code string) (Program, error) {
	if program, ok := r.cache.Get(code); ok {
		return program, nil
	}

	program, err := r.pool.Compile(ctx, code)
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, asEvaluationError(err)
	}

	r.cache.Add(program)
	return program, nil
}

func asEvaluationError(err error) error {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee
	}
	return NewEvaluationError(ErrorText(err), err)
}
