package script_runner

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// programCache 按源码缓存已编译程序，仅作性能优化。
// 命中时比较源码，哈希碰撞不会返回错误的程序。
type programCache struct {
	programs *lru.Cache[uint64, Program]
}

func newProgramCache(size int) (*programCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[uint64, Program](size)
	if err != nil {
		return nil, err
	}
	return &programCache{programs: c}, nil
}

func (c *programCache) Get(source string) (Program, bool) {
	if c == nil {
		return nil, false
	}
	p, ok := c.programs.Get(xxhash.Sum64String(source))
	if !ok || p.Source() != source {
		return nil, false
	}
	return p, true
}

func (c *programCache) Add(p Program) {
	if c == nil || p == nil {
		return
	}
	c.programs.Add(xxhash.Sum64String(p.Source()), p)
}

func (c *programCache) Len() int {
	if c == nil {
		return 0
	}
	return c.programs.Len()
}
