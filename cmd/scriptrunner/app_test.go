package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tx7do/go-script-runner/internal/conf"
	"github.com/tx7do/go-script-runner/internal/weather"
)

func intPtr(v int) *int { return &v }

func newTestApp(t *testing.T) *app {
	t.Helper()
	bc := &conf.Bootstrap{
		Timeout: "5s",
		Default: "expr",
		Weather: conf.Weather{MinTemp: intPtr(20), MaxTemp: intPtr(20), Conditions: []string{"sunny"}},
		Runners: []conf.Runner{
			{Name: "expr", Type: "expr", Modules: []string{"strings"}, Imports: []string{"strings"}},
			{Name: "lua", Type: "lua", PoolInitial: 1, PoolMax: 1},
			{Name: "javascript", Type: "javascript"},
		},
	}
	require.NoError(t, bc.Validate())

	a, err := newApp(bc, log.NewFilter(log.DefaultLogger, log.FilterLevel(log.LevelError)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_Call(t *testing.T) {
	a := newTestApp(t)

	want := "The weather in Dublin is 20 degrees and sunny."
	assert.Equal(t, want, a.Call("", `GetWeather("Dublin")`))
	assert.Equal(t, want, a.Call("lua", `GetWeather("Dublin")`))
	assert.Equal(t, want, a.Call("javascript", `GetWeather("Dublin")`))
	assert.Equal(t, "ABC", a.Call("expr", `ToUpper("abc")`))
	assert.Equal(t, "runner ruby not found", a.Call("ruby", `1`))
}

func TestWeatherOptions(t *testing.T) {
	newGlobals := func(wc conf.Weather) string {
		g, err := weather.NewGlobals(weatherOptions(wc)...)
		require.NoError(t, err)
		return g.GetWeather("Dublin")
	}

	// 显式配置的 0..0 区间生效
	zero := conf.Weather{MinTemp: intPtr(0), MaxTemp: intPtr(0), Conditions: []string{"foggy"}}
	assert.Equal(t, "The weather in Dublin is 0 degrees and foggy.", newGlobals(zero))

	// 只配置一端时另一端使用默认值
	_, err := weather.NewGlobals(weatherOptions(conf.Weather{MinTemp: intPtr(weather.DefaultMaxTemp + 1)})...)
	assert.Error(t, err)
	onlyMax := conf.Weather{MaxTemp: intPtr(weather.DefaultMinTemp), Conditions: []string{"sunny"}}
	assert.Equal(t, fmt.Sprintf("The weather in Dublin is %d degrees and sunny.", weather.DefaultMinTemp), newGlobals(onlyMax))
}

func TestApp_Repl(t *testing.T) {
	a := newTestApp(t)

	in := strings.NewReader(strings.Join([]string{
		`1 + 2`,
		``,
		`:runners`,
		`:use lua`,
		`{1, 2, 3}`,
		`:use ruby`,
		`x = = 1`,
		`:quit`,
		`"never"`,
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, a.Repl(in, &out))

	text := out.String()
	assert.True(t, strings.HasPrefix(text, prompt+"3\n"), text)
	assert.Contains(t, text, "expr, javascript, lua\n")
	assert.Contains(t, text, "1, 2, 3\n")
	assert.Contains(t, text, "runner ruby not found\n")
	assert.Contains(t, text, "Compilation failed:\n")
	assert.NotContains(t, text, "never")
}

func TestNewApp_Errors(t *testing.T) {
	logger := log.NewFilter(log.DefaultLogger, log.FilterLevel(log.LevelError))

	_, err := newApp(&conf.Bootstrap{
		Runners: []conf.Runner{{Name: "x", Type: "cobol"}},
	}, logger)
	assert.Error(t, err)

	_, err = newApp(&conf.Bootstrap{
		Weather: conf.Weather{MinTemp: intPtr(5), MaxTemp: intPtr(1)},
		Runners: []conf.Runner{{Name: "x"}},
	}, logger)
	assert.Error(t, err)

	_, err = newApp(&conf.Bootstrap{
		Runners: []conf.Runner{{Name: "x"}},
		Default: "y",
	}, logger)
	assert.Error(t, err)
}
