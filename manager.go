package script_runner

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Runner 任意 globals 类型的运行器的公共视图
type Runner interface {
	Type() Type
	RunScript(ctx context.Context, code string) string
	Close() error
}

var _ Runner = (*ScriptRunner[Globals])(nil)

// Manager 管理多个 Runner 实例的生命周期与访问。
// - 适用于宿主需要多个运行器（例如不同引擎或不同能力表）并按 name 获取的场景。
// - 若只需要单个运行器，可不使用 Manager。
type Manager struct {
	mu          sync.RWMutex
	runners     map[string]Runner
	defaultName string
}

// NewManager 创建 Manager。
func NewManager() *Manager {
	return &Manager{
		runners: make(map[string]Runner),
	}
}

// Register 注册一个 Runner。
// 若 name 已存在返回错误；第一个注册的 Runner 成为默认。
func (m *Manager) Register(name string, r Runner) error {
	if name == "" || r == nil {
		return errors.New("invalid name or runner")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runners[name]; ok {
		return errors.New("runner already registered")
	}
	m.runners[name] = r
	if m.defaultName == "" {
		m.defaultName = name
	}
	return nil
}

// Get 返回已注册的 Runner。
func (m *Manager) Get(name string) (Runner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[name]
	return r, ok
}

// Names 返回排序后的名称列表。
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.runners))
	for name := range m.runners {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RunScript 使用指定 Runner 执行代码，name 为空时使用默认 Runner。
func (m *Manager) RunScript(ctx context.Context, name, code string) string {
	if name == "" {
		m.mu.RLock()
		name = m.defaultName
		m.mu.RUnlock()
	}
	r, ok := m.Get(name)
	if !ok {
		return "runner " + name + " not found"
	}
	return r.RunScript(ctx, code)
}

// CloseAll 关闭所有已注册 Runner（返回最后一个错误）。
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	list := make([]Runner, 0, len(m.runners))
	for _, r := range m.runners {
		list = append(list, r)
	}
	// 清空注册表以防重复 Close
	m.runners = make(map[string]Runner)
	m.defaultName = ""
	m.mu.Unlock()

	var lastErr error
	for _, r := range list {
		if err := r.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Remove 注销并可选择关闭该 Runner（若 closeIfExists 为 true）。
func (m *Manager) Remove(name string, closeIfExists bool) {
	m.mu.Lock()
	r, ok := m.runners[name]
	if ok {
		delete(m.runners, name)
		if m.defaultName == name {
			m.defaultName = ""
		}
	}
	m.mu.Unlock()

	if ok && closeIfExists {
		_ = r.Close()
	}
}

// SetDefault 设置默认 Runner 名，便于不指定 name 时使用。
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runners[name]; !ok {
		return errors.New("runner not registered")
	}
	m.defaultName = name
	return nil
}

// GetDefault 获取默认 Runner。
func (m *Manager) GetDefault() (Runner, bool) {
	m.mu.RLock()
	name := m.defaultName
	m.mu.RUnlock()
	return m.Get(name)
}

// DefaultName 返回默认 Runner 名。
func (m *Manager) DefaultName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultName
}
