package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	scriptRunner "github.com/tx7do/go-script-runner"
	"github.com/tx7do/go-script-runner/internal/conf"
	"github.com/tx7do/go-script-runner/internal/weather"
)

const prompt = "> "

// app 宿主：按配置创建运行器，并在调用边界施加超时
type app struct {
	manager *scriptRunner.Manager
	timeout time.Duration
	current string
	log     *log.Helper
}

func newApp(bc *conf.Bootstrap, logger log.Logger) (*app, error) {
	timeout, err := bc.CallTimeout()
	if err != nil {
		return nil, err
	}

	globals, err := weather.NewGlobals(weatherOptions(bc.Weather)...)
	if err != nil {
		return nil, err
	}

	m := scriptRunner.NewManager()
	for _, rc := range bc.Runners {
		r, err := scriptRunner.NewScriptRunner(globals, runnerOptions(rc, logger)...)
		if err != nil {
			_ = m.CloseAll()
			return nil, fmt.Errorf("runner %s: %w", rc.Name, err)
		}
		if err = m.Register(rc.Name, r); err != nil {
			_ = r.Close()
			_ = m.CloseAll()
			return nil, fmt.Errorf("runner %s: %w", rc.Name, err)
		}
	}
	if bc.Default != "" {
		if err = m.SetDefault(bc.Default); err != nil {
			_ = m.CloseAll()
			return nil, err
		}
	}

	return &app{
		manager: m,
		timeout: timeout,
		current: m.DefaultName(),
		log:     log.NewHelper(log.With(logger, "module", "app")),
	}, nil
}

func weatherOptions(wc conf.Weather) []weather.Option {
	var opts []weather.Option
	if wc.MinTemp != nil || wc.MaxTemp != nil {
		minTemp, maxTemp := weather.DefaultMinTemp, weather.DefaultMaxTemp
		if wc.MinTemp != nil {
			minTemp = *wc.MinTemp
		}
		if wc.MaxTemp != nil {
			maxTemp = *wc.MaxTemp
		}
		opts = append(opts, weather.WithTempRange(minTemp, maxTemp))
	}
	return append(opts, weather.WithConditions(wc.Conditions...))
}

func runnerOptions(rc conf.Runner, logger log.Logger) []scriptRunner.Option {
	opts := []scriptRunner.Option{
		scriptRunner.WithLogger(logger),
		scriptRunner.WithModules(rc.Modules...),
		scriptRunner.WithImports(rc.Imports...),
	}
	if rc.Type != "" {
		opts = append(opts, scriptRunner.WithType(scriptRunner.Type(rc.Type)))
	}
	if rc.PoolMax > 0 {
		opts = append(opts, scriptRunner.WithPoolSize(rc.PoolInitial, rc.PoolMax))
	}
	if rc.CacheSize != 0 {
		opts = append(opts, scriptRunner.WithCacheSize(rc.CacheSize))
	}
	return opts
}

// Call 以宿主的超时执行一次代码
func (a *app) Call(runner, code string) string {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.manager.RunScript(ctx, runner, code)
}

// Repl 逐行读取代码并输出结果。
// :use <name> 切换运行器，:runners 列出运行器，:quit 退出。
func (a *app) Repl(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	_, _ = fmt.Fprint(out, prompt)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
		case line == ":quit":
			return nil
		case line == ":runners":
			_, _ = fmt.Fprintln(out, strings.Join(a.manager.Names(), ", "))
		case strings.HasPrefix(line, ":use "):
			name := strings.TrimSpace(strings.TrimPrefix(line, ":use "))
			if _, ok := a.manager.Get(name); !ok {
				_, _ = fmt.Fprintf(out, "runner %s not found\n", name)
				break
			}
			a.current = name
			a.log.Debugf("switched to runner %s", name)
		default:
			_, _ = fmt.Fprintln(out, a.Call(a.current, line))
		}

		_, _ = fmt.Fprint(out, prompt)
	}
	return scanner.Err()
}

func (a *app) Close() error {
	return a.manager.CloseAll()
}
