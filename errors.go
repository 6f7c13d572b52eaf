package script_runner

import (
	"errors"
	"strings"
)

var (
	// ErrCompilation 编译失败
	ErrCompilation = errors.New("compilation failed")

	// ErrEvaluation 执行失败
	ErrEvaluation = errors.New("evaluation failed")

	// ErrInvalidOptions 执行选项或能力表非法
	ErrInvalidOptions = errors.New("invalid options")

	// ErrUnknownModule 引擎不支持的模块
	ErrUnknownModule = errors.New("unknown module")

	// ErrUnknownEngineType 未注册的引擎类型
	ErrUnknownEngineType = errors.New("unknown script engine type")

	// ErrEngineNotInitialized 引擎未初始化
	ErrEngineNotInitialized = errors.New("script engine not initialized")

	// ErrEngineAlreadyInitialized 引擎已初始化
	ErrEngineAlreadyInitialized = errors.New("script engine already initialized")

	// ErrEnginePoolClosed 引擎池已关闭
	ErrEnginePoolClosed = errors.New("script engine: engine pool closed")

	// ErrProgramTypeMismatch 程序与引擎类型不匹配
	ErrProgramTypeMismatch = errors.New("program was compiled by another engine type")
)

// CompileError 编译错误，携带全部诊断信息。
type CompileError struct {
	Diagnostics []string
	Err         error
}

func (e *CompileError) Error() string {
	return "Compilation failed:\n" + strings.Join(e.Diagnostics, "\n")
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func (e *CompileError) Is(target error) bool {
	return target == ErrCompilation
}

// EvaluationError 执行期错误，Message 为展示给调用方的文本。
type EvaluationError struct {
	Message string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// NewCompileError 创建编译错误，空诊断会被替换为 err 的文本。
func NewCompileError(err error, diagnostics ...string) *CompileError {
	if len(diagnostics) == 0 && err != nil {
		diagnostics = []string{err.Error()}
	}
	return &CompileError{Diagnostics: diagnostics, Err: err}
}

// NewEvaluationError 创建执行错误
func NewEvaluationError(message string, err error) *EvaluationError {
	return &EvaluationError{Message: message, Err: err}
}

// ErrorText 把任意错误归一化为返回给调用方的文本
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
