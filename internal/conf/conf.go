// Package conf 宿主程序的配置。
package conf

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
)

type Bootstrap struct {
	Log     Log      `json:"log"`
	Weather Weather  `json:"weather"`
	Runners []Runner `json:"runners"`
	// Default 默认使用的运行器名
	Default string `json:"default"`
	// Timeout 单次调用的超时，由宿主在调用边界施加，空表示不限制
	Timeout string `json:"timeout"`
}

type Log struct {
	Level string `json:"level"`
}

// Weather 未配置的温度边界使用默认值
type Weather struct {
	MinTemp    *int     `json:"min_temp"`
	MaxTemp    *int     `json:"max_temp"`
	Conditions []string `json:"conditions"`
}

type Runner struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Modules     []string `json:"modules"`
	Imports     []string `json:"imports"`
	PoolInitial int      `json:"pool_initial"`
	PoolMax     int      `json:"pool_max"`
	CacheSize   int      `json:"cache_size"`
}

// Load 从文件加载配置
func Load(path string) (*Bootstrap, error) {
	c := config.New(
		config.WithSource(
			file.NewSource(path),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		return nil, err
	}

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		return nil, err
	}
	if err := bc.Validate(); err != nil {
		return nil, err
	}
	return &bc, nil
}

// Validate 校验配置
func (b *Bootstrap) Validate() error {
	if len(b.Runners) == 0 {
		return errors.New("conf: at least one runner is required")
	}
	seen := make(map[string]struct{}, len(b.Runners))
	for _, r := range b.Runners {
		if r.Name == "" {
			return errors.New("conf: runner name is required")
		}
		if _, ok := seen[r.Name]; ok {
			return fmt.Errorf("conf: duplicate runner %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	if b.Default != "" {
		if _, ok := seen[b.Default]; !ok {
			return fmt.Errorf("conf: default runner %q is not configured", b.Default)
		}
	}
	if _, err := b.CallTimeout(); err != nil {
		return err
	}
	return nil
}

// CallTimeout 解析调用超时
func (b *Bootstrap) CallTimeout() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 0, fmt.Errorf("conf: invalid timeout %q: %w", b.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("conf: negative timeout %q", b.Timeout)
	}
	return d, nil
}
