package script_runner

import (
	"fmt"
	"slices"
	"sync"
)

type FactoryFunc func() (Engine, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[Type]FactoryFunc)
)

func Register(typ Type, f FactoryFunc) error {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, ok := factories[typ]; ok {
		return fmt.Errorf("script engine factory %s already registered", typ)
	}
	factories[typ] = f
	return nil
}

func GetFactory(typ Type) (FactoryFunc, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[typ]
	return f, ok
}

func ListFactories() []Type {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	res := make([]Type, 0, len(factories))
	for k := range factories {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}

func Unregister(typ Type) bool {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, ok := factories[typ]; ok {
		delete(factories, typ)
		return true
	}
	return false
}

// NewScriptEngine 通过已注册的工厂创建一个未初始化的引擎
func NewScriptEngine(typ Type) (Engine, error) {
	f, ok := GetFactory(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngineType, typ)
	}
	eng, err := f()
	if err != nil {
		return nil, err
	}
	if eng == nil {
		return nil, fmt.Errorf("script engine factory %s returned nil engine", typ)
	}
	return eng, nil
}
