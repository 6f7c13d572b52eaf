package js

import (
	"errors"
	"fmt"

	scriptRunner "github.com/tx7do/go-script-runner"
)

var (
	// ErrJavascriptEngineNotInitialized JavaScript 引擎未初始化错误
	ErrJavascriptEngineNotInitialized = fmt.Errorf("javascript: %w", scriptRunner.ErrEngineNotInitialized)

	// ErrJavascriptEngineAlreadyInitialized JavaScript 引擎已初始化错误
	ErrJavascriptEngineAlreadyInitialized = fmt.Errorf("javascript: %w", scriptRunner.ErrEngineAlreadyInitialized)

	ErrJavascriptBindFailed = errors.New("javascript bind capability failed")

	ErrJavascriptModuleNotAvailable = errors.New("javascript module not available")
)
