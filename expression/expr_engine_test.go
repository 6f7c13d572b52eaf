package expression

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scriptRunner "github.com/tx7do/go-script-runner"
	"github.com/tx7do/go-script-runner/internal/weather"
)

type testGlobals struct {
	release chan struct{}
}

func (g *testGlobals) Capabilities() scriptRunner.Capabilities {
	return scriptRunner.Capabilities{
		"GetWeather": func(location string) string {
			return "The weather in " + location + " is 24 degrees and sunny."
		},
		"Fail": func() (string, error) {
			return "", errors.New("boom")
		},
		"Panic": func() string {
			panic("kaboom")
		},
		"Nothing": func() any {
			return nil
		},
		"Wait": func() string {
			<-g.release
			return "released"
		},
		"Answer": 42,
	}
}

func newRunner(t *testing.T, opts ...scriptRunner.Option) *scriptRunner.ScriptRunner[*testGlobals] {
	t.Helper()
	g := &testGlobals{release: make(chan struct{})}
	t.Cleanup(func() { close(g.release) })

	opts = append([]scriptRunner.Option{scriptRunner.WithType(scriptRunner.ExprType)}, opts...)
	r, err := scriptRunner.NewScriptRunner(g, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestExprEngine_Normalization(t *testing.T) {
	r := newRunner(t)
	ctx := context.Background()

	cases := []struct {
		code string
		want string
	}{
		{`"hello"`, "hello"},
		{`1 + 2`, "3"},
		{`10 / 4`, "2.5"},
		{`true`, "True"},
		{`1 > 2`, "False"},
		{`nil`, "null"},
		{`Nothing()`, "null"},
		{`[1, 2, 3]`, "1, 2, 3"},
		{`[]`, ""},
		{`["a", nil, true, 1.5]`, "a, null, True, 1.5"},
		{`[1, [2, 3]]`, "1, [2, 3]"},
		{`{"b": 2, "a": 1}`, "[a, 1], [b, 2]"},
		{`Answer * 2`, "84"},
		{`GetWeather("Dublin")`, "The weather in Dublin is 24 degrees and sunny."},
	}

	for _, c := range cases {
		t.Run(c.code, func(t *testing.T) {
			assert.Equal(t, c.want, r.RunScript(ctx, c.code))
		})
	}
}

func TestExprEngine_Idempotent(t *testing.T) {
	r := newRunner(t)
	ctx := context.Background()

	first := r.RunScript(ctx, `"x" + "y"`)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, r.RunScript(ctx, `"x" + "y"`))
	}
	assert.Equal(t, "xy", first)
}

func TestExprEngine_CompileErrors(t *testing.T) {
	r := newRunner(t)
	ctx := context.Background()

	out := r.RunScript(ctx, `(1 + `)
	assert.True(t, strings.HasPrefix(out, "Compilation failed:\n"), out)
	assert.Contains(t, out, "error:")

	out = r.RunScript(ctx, `Missing()`)
	assert.True(t, strings.HasPrefix(out, "Compilation failed:\n"), out)
	assert.Contains(t, out, "Missing")

	// 类型检查在编译阶段完成
	out = r.RunScript(ctx, `GetWeather(1)`)
	assert.True(t, strings.HasPrefix(out, "Compilation failed:\n"), out)

	_, err := r.Run(ctx, `Missing()`)
	var ce *scriptRunner.CompileError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Diagnostics, 1)
	assert.Regexp(t, `^\(\d+,\d+\): error: `, ce.Diagnostics[0])
}

func TestExprEngine_EvaluationErrors(t *testing.T) {
	r := newRunner(t)
	ctx := context.Background()

	assert.Contains(t, r.RunScript(ctx, `Fail()`), "boom")
	assert.Contains(t, r.RunScript(ctx, `Panic()`), "kaboom")

	_, err := r.Run(ctx, `Fail()`)
	assert.ErrorIs(t, err, scriptRunner.ErrEvaluation)
	assert.NotErrorIs(t, err, scriptRunner.ErrCompilation)

	// 失败后引擎仍可用
	assert.Equal(t, "3", r.RunScript(ctx, `1 + 2`))
}

func TestExprEngine_Timeout(t *testing.T) {
	r := newRunner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := r.RunScript(ctx, `Wait()`)
	assert.Equal(t, context.DeadlineExceeded.Error(), out)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExprEngine_Modules(t *testing.T) {
	r := newRunner(t, scriptRunner.WithModules("strings", "math"))
	ctx := context.Background()

	assert.Equal(t, "ABC", r.RunScript(ctx, `strings.ToUpper("abc")`))
	assert.Equal(t, "True", r.RunScript(ctx, `strings.HasPrefix("abc", "ab")`))
	assert.Equal(t, "a, b, c", r.RunScript(ctx, `strings.Split("a,b,c", ",")`))
	assert.Equal(t, "a-b", r.RunScript(ctx, `strings.Join(["a", "b"], "-")`))
	assert.Equal(t, "xxx", r.RunScript(ctx, `strings.Repeat("x", 3)`))
	assert.Equal(t, "4", r.RunScript(ctx, `math.Sqrt(16)`))
	assert.Equal(t, "9", r.RunScript(ctx, `math.Max(1, 9, 3)`))
	assert.Equal(t, "3.14", r.RunScript(ctx, `math.Round(math.Pi * 100) / 100`))

	// 未导入时不能直接使用成员
	out := r.RunScript(ctx, `ToUpper("abc")`)
	assert.True(t, strings.HasPrefix(out, "Compilation failed:\n"), out)

	assert.Contains(t, r.RunScript(ctx, `strings.Repeat("x", 1.5)`), "bad argument")
}

func TestExprEngine_Imports(t *testing.T) {
	r := newRunner(t,
		scriptRunner.WithModules("strings", "math"),
		scriptRunner.WithImports("strings"),
	)
	ctx := context.Background()

	assert.Equal(t, "ABC", r.RunScript(ctx, `ToUpper("abc")`))
	assert.Equal(t, "ABC", r.RunScript(ctx, `strings.ToUpper("abc")`))
	assert.Equal(t, "HELLO DUBLIN", r.RunScript(ctx, `ToUpper(ReplaceAll("hello x", "x", "Dublin"))`))

	out := r.RunScript(ctx, `Sqrt(4)`)
	assert.True(t, strings.HasPrefix(out, "Compilation failed:\n"), out)
}

func TestExprEngine_ModulesNotReferenced(t *testing.T) {
	r := newRunner(t)

	out := r.RunScript(context.Background(), `strings.ToUpper("abc")`)
	assert.True(t, strings.HasPrefix(out, "Compilation failed:\n"), out)
}

func TestExprEngine_InvalidOptions(t *testing.T) {
	g := &testGlobals{}

	_, err := scriptRunner.NewScriptRunner(g, scriptRunner.WithModules("nope"))
	assert.ErrorIs(t, err, scriptRunner.ErrUnknownModule)

	_, err = scriptRunner.NewScriptRunner(g, scriptRunner.WithImports("strings"))
	assert.ErrorIs(t, err, scriptRunner.ErrInvalidOptions)

	conflict := mapGlobals{"ToUpper": func(s string) string { return s }}
	_, err = scriptRunner.NewScriptRunner(conflict,
		scriptRunner.WithModules("strings"),
		scriptRunner.WithImports("strings"),
	)
	assert.ErrorIs(t, err, ErrExprNameConflict)
}

type mapGlobals scriptRunner.Capabilities

func (g mapGlobals) Capabilities() scriptRunner.Capabilities { return scriptRunner.Capabilities(g) }

func TestExprEngine_Weather(t *testing.T) {
	newGlobals := func() *weather.Globals {
		g, err := weather.NewGlobals(weather.WithRand(rand.New(rand.NewPCG(1, 2))))
		require.NoError(t, err)
		return g
	}

	r, err := scriptRunner.NewScriptRunner(newGlobals())
	require.NoError(t, err)
	defer r.Close()

	want := newGlobals().GetWeather("Dublin")
	assert.Equal(t, want, r.RunScript(context.Background(), `GetWeather("Dublin")`))
}

func TestExprEngine_Concurrent(t *testing.T) {
	r := newRunner(t, scriptRunner.WithPoolSize(2, 4))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := r.RunScript(context.Background(), fmt.Sprintf(`%d * 2`, i))
			assert.Equal(t, fmt.Sprint(i*2), out)
		}(i)
	}
	wg.Wait()
}

func TestExprEngine_Lifecycle(t *testing.T) {
	eng, err := newExprEngine()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.Compile(ctx, `1`)
	assert.ErrorIs(t, err, ErrExprEngineNotInitialized)
	assert.ErrorIs(t, eng.GetLastError(), ErrExprEngineNotInitialized)

	env, err := scriptRunner.NewEnvironment(scriptRunner.Options{}, &testGlobals{})
	require.NoError(t, err)
	require.NoError(t, eng.Init(ctx, env))
	assert.True(t, eng.IsInitialized())
	assert.NoError(t, eng.GetLastError())
	assert.ErrorIs(t, eng.Init(ctx, env), ErrExprEngineAlreadyInitialized)
	assert.ErrorIs(t, eng.Init(ctx, env), scriptRunner.ErrEngineAlreadyInitialized)

	v, err := eng.ExecuteString(ctx, `Answer + 1`)
	require.NoError(t, err)
	assert.Equal(t, scriptRunner.KindInt, v.Kind())
	assert.Equal(t, "43", v.String())

	_, err = eng.Run(ctx, &foreignProgram{})
	assert.ErrorIs(t, err, scriptRunner.ErrProgramTypeMismatch)

	require.NoError(t, eng.Close())
	assert.False(t, eng.IsInitialized())
	assert.ErrorIs(t, eng.Close(), ErrExprEngineNotInitialized)
	assert.ErrorIs(t, eng.Close(), scriptRunner.ErrEngineNotInitialized)
}

type foreignProgram struct{}

func (foreignProgram) Type() scriptRunner.Type { return scriptRunner.LuaType }

func (foreignProgram) Source() string { return "1" }

func TestModuleNames(t *testing.T) {
	assert.Equal(t, []string{"math", "strings"}, ModuleNames())
	for _, name := range ModuleNames() {
		assert.Contains(t, modules, name)
	}
}
