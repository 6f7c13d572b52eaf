package expression

import (
	"errors"
	"fmt"

	scriptRunner "github.com/tx7do/go-script-runner"
)

var (
	// ErrExprEngineNotInitialized expr 引擎未初始化错误
	ErrExprEngineNotInitialized = fmt.Errorf("expr: %w", scriptRunner.ErrEngineNotInitialized)

	// ErrExprEngineAlreadyInitialized expr 引擎已初始化错误
	ErrExprEngineAlreadyInitialized = fmt.Errorf("expr: %w", scriptRunner.ErrEngineAlreadyInitialized)

	// ErrExprNameConflict 导入的模块成员与能力或其他成员重名
	ErrExprNameConflict = errors.New("expr name conflict")

	// ErrExprBadArgument 模块函数参数错误
	ErrExprBadArgument = errors.New("bad argument")
)
