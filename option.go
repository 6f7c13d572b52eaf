package script_runner

import (
	"slices"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultPoolInitial = 1
	defaultPoolMax     = 8
	defaultCacheSize   = 128
)

type runnerOptions struct {
	typ         Type
	options     Options
	logger      log.Logger
	poolInitial int
	poolMax     int
	cacheSize   int
}

func defaultRunnerOptions() runnerOptions {
	return runnerOptions{
		typ:         ExprType,
		logger:      log.DefaultLogger,
		poolInitial: defaultPoolInitial,
		poolMax:     defaultPoolMax,
		cacheSize:   defaultCacheSize,
	}
}

// Option 运行器选项
type Option func(o *runnerOptions)

// WithType 选择脚本引擎类型，默认 ExprType
func WithType(typ Type) Option {
	return func(o *runnerOptions) {
		o.typ = typ
	}
}

// WithModules 设置脚本可引用的能力模块
func WithModules(modules ...string) Option {
	return func(o *runnerOptions) {
		o.options.Modules = slices.Clone(modules)
	}
}

// WithImports 设置隐式导入的模块
func WithImports(imports ...string) Option {
	return func(o *runnerOptions) {
		o.options.Imports = slices.Clone(imports)
	}
}

// WithOptions 一次性设置执行选项
func WithOptions(opts Options) Option {
	return func(o *runnerOptions) {
		o.options = opts.Clone()
	}
}

// WithLogger 设置日志
func WithLogger(logger log.Logger) Option {
	return func(o *runnerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPoolSize 设置引擎池大小，initial == max 时使用固定大小的池
func WithPoolSize(initial, maxSize int) Option {
	return func(o *runnerOptions) {
		o.poolInitial = initial
		o.poolMax = maxSize
	}
}

// WithCacheSize 设置已编译程序缓存的容量，<= 0 关闭缓存
func WithCacheSize(size int) Option {
	return func(o *runnerOptions) {
		o.cacheSize = size
	}
}
