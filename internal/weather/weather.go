// Package weather 示例能力：随机天气查询。
package weather

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	scriptRunner "github.com/tx7do/go-script-runner"
)

const (
	DefaultMinTemp = -5
	DefaultMaxTemp = 30
)

// DefaultConditions 天气状况的固定集合
var DefaultConditions = []string{"sunny", "cloudy", "rainy", "windy", "snowy"}

// Globals 暴露给脚本的全局上下文，仅包含 GetWeather 能力。
// 可被多个运行中的脚本并发调用。
type Globals struct {
	mu         sync.Mutex
	rnd        *rand.Rand
	minTemp    int
	maxTemp    int
	conditions []string
}

type Option func(g *Globals)

// WithRand 注入随机源，便于测试
func WithRand(r *rand.Rand) Option {
	return func(g *Globals) {
		if r != nil {
			g.rnd = r
		}
	}
}

// WithTempRange 设置温度范围（闭区间）
func WithTempRange(minTemp, maxTemp int) Option {
	return func(g *Globals) {
		g.minTemp = minTemp
		g.maxTemp = maxTemp
	}
}

// WithConditions 设置天气状况集合
func WithConditions(conditions ...string) Option {
	return func(g *Globals) {
		if len(conditions) > 0 {
			g.conditions = slices.Clone(conditions)
		}
	}
}

func NewGlobals(opts ...Option) (*Globals, error) {
	seed := uint64(time.Now().UnixNano())
	g := &Globals{
		rnd:        rand.New(rand.NewPCG(seed, seed>>1)),
		minTemp:    DefaultMinTemp,
		maxTemp:    DefaultMaxTemp,
		conditions: slices.Clone(DefaultConditions),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.minTemp > g.maxTemp {
		return nil, fmt.Errorf("invalid temperature range: %d > %d", g.minTemp, g.maxTemp)
	}
	return g, nil
}

// GetWeather 返回 location 的天气描述
func (g *Globals) GetWeather(location string) string {
	g.mu.Lock()
	temp := g.minTemp + g.rnd.IntN(g.maxTemp-g.minTemp+1)
	condition := g.conditions[g.rnd.IntN(len(g.conditions))]
	g.mu.Unlock()

	return fmt.Sprintf("The weather in %s is %d degrees and %s.", location, temp, condition)
}

func (g *Globals) Capabilities() scriptRunner.Capabilities {
	return scriptRunner.Capabilities{
		"GetWeather": g.GetWeather,
	}
}
