package script_runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// enginePool 运行器使用的引擎池抽象
type enginePool interface {
	Acquire(ctx context.Context) (Engine, error)
	Release(e Engine)
	Compile(ctx context.Context, source string) (Program, error)
	Run(ctx context.Context, program Program) (Value, error)
	Close() error
}

// newInitializedEngine 创建并以 env 初始化一个引擎
func newInitializedEngine(ctx context.Context, typ Type, env *Environment) (Engine, error) {
	eng, err := NewScriptEngine(typ)
	if err != nil {
		return nil, fmt.Errorf("factory failed: %w", err)
	}
	if err = eng.Init(ctx, env); err != nil {
		_ = eng.Close()
		return nil, fmt.Errorf("init failed: %w", err)
	}
	return eng, nil
}

// EnginePool 管理多个独立 Engine 实例以支持并发执行。
// 所有实例共享同一个 Environment。
type EnginePool struct {
	pool   chan Engine
	size   int
	typ    Type
	mu     sync.Mutex
	closed bool
}

// NewEnginePool 创建并初始化一个包含 size 个 Engine 的池。
func NewEnginePool(size int, typ Type, env *Environment) (*EnginePool, error) {
	if size < 1 {
		return nil, errors.New("pool size must be >= 1")
	}
	if env == nil {
		return nil, fmt.Errorf("%w: nil environment", ErrInvalidOptions)
	}

	p := &EnginePool{
		pool: make(chan Engine, size),
		size: size,
		typ:  typ,
	}

	// 创建并初始化子 engine
	created := make([]Engine, 0, size)
	for i := 0; i < size; i++ {
		eng, err := newInitializedEngine(context.Background(), typ, env)
		if err != nil {
			// 清理已创建的 engines
			for _, e := range created {
				_ = e.Close()
			}
			return nil, err
		}
		created = append(created, eng)
	}

	for _, e := range created {
		p.pool <- e
	}

	return p, nil
}

// Size 返回池容量
func (p *EnginePool) Size() int {
	return p.size
}

// Acquire 从池中获取一个 Engine（会阻塞直到有可用的或 ctx 结束）。
func (p *EnginePool) Acquire(ctx context.Context) (Engine, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrEnginePoolClosed
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case eng, ok := <-p.pool:
		if !ok {
			return nil, ErrEnginePoolClosed
		}
		return eng, nil
	}
}

// Release 将 Engine 放回池中；若池已关闭则关闭该 Engine。
func (p *EnginePool) Release(e Engine) {
	if e == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		_ = e.Close()
		return
	}

	// 捕获并发 Close 导致的 send-on-closed panic
	defer func() {
		if r := recover(); r != nil {
			_ = e.Close()
		}
	}()

	e.ClearError()

	select {
	case p.pool <- e:
	default:
		_ = e.Close()
	}
}

// Close 关闭池并销毁所有子 Engine。
func (p *EnginePool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.pool)
	p.mu.Unlock()

	var lastErr error
	for eng := range p.pool {
		if err := eng.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// IsClosed 返回池是否已关闭。
func (p *EnginePool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// 以下为包装方法：自动 acquire -> 调用 -> release。

func (p *EnginePool) Compile(ctx context.Context, source string) (Program, error) {
	eng, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(eng)
	return eng.Compile(ctx, source)
}

func (p *EnginePool) Run(ctx context.Context, program Program) (Value, error) {
	eng, err := p.Acquire(ctx)
	if err != nil {
		return Value{}, err
	}
	defer p.Release(eng)
	return eng.Run(ctx, program)
}

func (p *EnginePool) ExecuteString(ctx context.Context, source string) (Value, error) {
	eng, err := p.Acquire(ctx)
	if err != nil {
		return Value{}, err
	}
	defer p.Release(eng)
	return eng.ExecuteString(ctx, source)
}
