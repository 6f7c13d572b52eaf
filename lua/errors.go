package lua

import (
	"errors"
	"fmt"

	scriptRunner "github.com/tx7do/go-script-runner"
)

var (
	// ErrLuaEngineNotInitialized Lua 引擎未初始化错误
	ErrLuaEngineNotInitialized = fmt.Errorf("lua: %w", scriptRunner.ErrEngineNotInitialized)

	// ErrLuaEngineAlreadyInitialized Lua 引擎已初始化错误
	ErrLuaEngineAlreadyInitialized = fmt.Errorf("lua: %w", scriptRunner.ErrEngineAlreadyInitialized)

	// ErrLuaImportFailed 导入模块失败
	ErrLuaImportFailed = errors.New("lua import failed")
)
