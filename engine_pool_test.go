package script_runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeEnv(t *testing.T) *Environment {
	t.Helper()
	env, err := NewEnvironment(Options{}, &echoGlobals{prefix: ">"})
	require.NoError(t, err)
	return env
}

func TestEnginePool_AcquireRelease(t *testing.T) {
	pool, err := NewEnginePool(2, fakeType, newFakeEnv(t))
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, 2, pool.Size())

	ctx := context.Background()
	e1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	e2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, e1.IsInitialized())
	assert.True(t, e2.IsInitialized())

	// 池已耗尽，等待至超时
	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(timeoutCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Release(e1)
	e3, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, e1, e3)

	pool.Release(e2)
	pool.Release(e3)
}

func TestEnginePool_ReleaseClearsError(t *testing.T) {
	pool, err := NewEnginePool(1, fakeType, newFakeEnv(t))
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	eng, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = eng.Compile(ctx, "!broken")
	require.Error(t, err)
	assert.Error(t, eng.GetLastError())

	pool.Release(eng)
	eng, err = pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NoError(t, eng.GetLastError())
	pool.Release(eng)
}

func TestEnginePool_Wrappers(t *testing.T) {
	pool, err := NewEnginePool(1, fakeType, newFakeEnv(t))
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	p, err := pool.Compile(ctx, "call:Echo:a")
	require.NoError(t, err)
	v, err := pool.Run(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, ">a", v.String())

	v, err = pool.ExecuteString(ctx, "call:Echo:b")
	require.NoError(t, err)
	assert.Equal(t, ">b", v.String())
}

func TestEnginePool_Close(t *testing.T) {
	pool, err := NewEnginePool(2, fakeType, newFakeEnv(t))
	require.NoError(t, err)

	eng, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	assert.True(t, pool.IsClosed())
	assert.NoError(t, pool.Close())

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrEnginePoolClosed)

	// 关闭后归还的引擎被销毁
	pool.Release(eng)
	assert.False(t, eng.IsInitialized())
}

func TestEnginePool_InvalidArgs(t *testing.T) {
	env := newFakeEnv(t)

	_, err := NewEnginePool(0, fakeType, env)
	assert.Error(t, err)

	_, err = NewEnginePool(1, fakeType, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewEnginePool(1, "missing", env)
	assert.ErrorIs(t, err, ErrUnknownEngineType)
}

func TestAutoGrowEnginePool_Grow(t *testing.T) {
	pool, err := NewAutoGrowEnginePool(0, 3, fakeType, newFakeEnv(t))
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, 0, pool.Total())

	ctx := context.Background()
	var engines []Engine
	for i := 0; i < 3; i++ {
		eng, err := pool.Acquire(ctx)
		require.NoError(t, err)
		assert.True(t, eng.IsInitialized())
		engines = append(engines, eng)
	}
	assert.Equal(t, 3, pool.Total())

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(timeoutCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, pool.Total())

	for _, eng := range engines {
		pool.Release(eng)
	}

	eng, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Total())
	pool.Release(eng)
}

func TestAutoGrowEnginePool_Concurrent(t *testing.T) {
	pool, err := NewAutoGrowEnginePool(1, 4, fakeType, newFakeEnv(t))
	require.NoError(t, err)
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := pool.ExecuteString(context.Background(), "call:Echo:x")
			assert.NoError(t, err)
			assert.Equal(t, ">x", v.String())
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, pool.Total(), 4)
	assert.GreaterOrEqual(t, pool.Total(), 1)
}

func TestAutoGrowEnginePool_InvalidArgs(t *testing.T) {
	env := newFakeEnv(t)

	_, err := NewAutoGrowEnginePool(2, 1, fakeType, env)
	assert.Error(t, err)

	_, err = NewAutoGrowEnginePool(0, 1, "", env)
	assert.Error(t, err)

	_, err = NewAutoGrowEnginePool(0, 1, fakeType, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewAutoGrowEnginePool(0, 1, "missing", env)
	assert.ErrorIs(t, err, ErrUnknownEngineType)
}

func TestAutoGrowEnginePool_Close(t *testing.T) {
	pool, err := NewAutoGrowEnginePool(1, 2, fakeType, newFakeEnv(t))
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrEnginePoolClosed)
}
