package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/tx7do/go-script-runner/internal/conf"

	_ "github.com/tx7do/go-script-runner/expression"
	_ "github.com/tx7do/go-script-runner/javascript"
	_ "github.com/tx7do/go-script-runner/lua"
)

var (
	// flagconf is the config flag.
	flagconf string
	// flagcode runs a single snippet instead of the REPL.
	flagcode string
	// flagrunner selects the runner, empty means the configured default.
	flagrunner string
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
	flag.StringVar(&flagcode, "e", "", "snippet to run, eg: -e 'GetWeather(\"Dublin\")'")
	flag.StringVar(&flagrunner, "runner", "", "runner name, eg: -runner lua")
}

func main() {
	flag.Parse()

	logger := log.With(log.NewStdLogger(os.Stderr),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
	)

	bc, err := conf.Load(flagconf)
	if err != nil {
		log.NewHelper(logger).Errorf("load config: %v", err)
		os.Exit(1)
	}

	logger = log.NewFilter(logger, log.FilterLevel(log.ParseLevel(bc.Log.Level)))

	a, err := newApp(bc, logger)
	if err != nil {
		log.NewHelper(logger).Errorf("create app: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	if flagcode != "" {
		fmt.Println(a.Call(flagrunner, flagcode))
		return
	}

	if err = a.Repl(os.Stdin, os.Stdout); err != nil {
		log.NewHelper(logger).Errorf("repl: %v", err)
		os.Exit(1)
	}
}
