package script_runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// AutoGrowEnginePool 是可按需扩展但有上限的引擎池。
type AutoGrowEnginePool struct {
	pool chan Engine
	typ  Type
	env  *Environment

	mu     sync.Mutex
	total  int // 当前已创建的实例数
	max    int
	closed bool
}

// NewAutoGrowEnginePool 创建一个可自增长的池。
// initialSize: 初始创建数量（>=0）
// maxSize: 池允许的最大实例数（必须 >= initialSize && >=1）
func NewAutoGrowEnginePool(initialSize, maxSize int, typ Type, env *Environment) (*AutoGrowEnginePool, error) {
	if maxSize < 1 || initialSize < 0 || initialSize > maxSize {
		return nil, fmt.Errorf("invalid sizes: initial=%d max=%d", initialSize, maxSize)
	}
	if typ == "" {
		return nil, errors.New("engine type cannot be empty")
	}
	if env == nil {
		return nil, fmt.Errorf("%w: nil environment", ErrInvalidOptions)
	}
	if _, ok := GetFactory(typ); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngineType, typ)
	}

	p := &AutoGrowEnginePool{
		pool: make(chan Engine, maxSize), // 通道容量设为 maxSize
		typ:  typ,
		env:  env,
		max:  maxSize,
	}

	// 预创建 initialSize 个实例
	for i := 0; i < initialSize; i++ {
		eng, err := newInitializedEngine(context.Background(), typ, env)
		if err != nil {
			// 清理已创建的
		Drain:
			for {
				select {
				case e := <-p.pool:
					_ = e.Close()
				default:
					break Drain
				}
			}
			return nil, fmt.Errorf("script engine: %w", err)
		}
		p.pool <- eng
		p.total++
	}

	return p, nil
}

// Total 返回当前已创建的实例数
func (p *AutoGrowEnginePool) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Acquire 获取一个 Engine：优先立即取空闲实例；若无且未到 max，则创建并返回新实例；否则阻塞等待。
func (p *AutoGrowEnginePool) Acquire(ctx context.Context) (Engine, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrEnginePoolClosed
	}
	p.mu.Unlock()

	// 尝试立即取一个空闲实例
	select {
	case eng, ok := <-p.pool:
		if !ok {
			return nil, ErrEnginePoolClosed
		}
		return eng, nil
	default:
	}

	// 无空闲实例，尝试按需创建新实例（如果未到上限）
	p.mu.Lock()
	if p.total < p.max {
		p.total++
		p.mu.Unlock()
		eng, err := newInitializedEngine(ctx, p.typ, p.env)
		if err != nil {
			// 创建失败，回退计数
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return nil, err
		}
		return eng, nil
	}
	// 已到上限，必须阻塞等待空闲实例
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

// Release 归还 Engine；若池已关闭或通道已满则关闭该实例。
func (p *AutoGrowEnginePool) Release(e Engine) {
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

	// 捕获 send-on-closed 的 panic，发生时安全关闭并尝试调整计数
	defer func() {
		if r := recover(); r != nil {
			_ = e.Close()
			p.mu.Lock()
			if p.total > 0 {
				p.total--
			}
			p.mu.Unlock()
		}
	}()

	e.ClearError()

	select {
	case p.pool <- e:
	default:
		_ = e.Close()
		p.mu.Lock()
		if p.total > 0 {
			p.total--
		}
		p.mu.Unlock()
	}
}

// Close 关闭池并销毁所有空闲实例。已借出的实例归还后会被关闭。
func (p *AutoGrowEnginePool) Close() error {
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

func (p *AutoGrowEnginePool) Compile(ctx context.Context, source string) (Program, error) {
	eng, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(eng)
	return eng.Compile(ctx, source)
}

func (p *AutoGrowEnginePool) Run(ctx context.Context, program Program) (Value, error) {
	eng, err := p.Acquire(ctx)
	if err != nil {
		return Value{}, err
	}
	defer p.Release(eng)
	return eng.Run(ctx, program)
}

func (p *AutoGrowEnginePool) ExecuteString(ctx context.Context, source string) (Value, error) {
	eng, err := p.Acquire(ctx)
	if err != nil {
		return Value{}, err
	}
	defer p.Release(eng)
	return eng.ExecuteString(ctx, source)
}
