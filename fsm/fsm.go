// Package fsm 提供通用的有限状态机 (Finite State Machine) 基础设施.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrInvalidTransition 无效的状态转移.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrHandlerFailed 处理器执行失败.
	ErrHandlerFailed = errors.New("fsm handler failed")
	// ErrTerminalState 终止状态不再接受事件.
	ErrTerminalState = errors.New("fsm is in a terminal state")
)

// Handler 定义状态流转时执行的回调函数, 返回错误时状态保持不变.
type Handler[S comparable] func(ctx context.Context, from, to S, args ...any) error

// Machine 封装了有限状态机的核心状态与流转逻辑.
type Machine[S comparable, E comparable] struct {
	transitions map[S]map[E]S
	handlers    map[S]map[S]Handler[S]
	terminal    map[S]bool
	history     []S
	logger      *slog.Logger
	current     S
	mu          sync.RWMutex
}

// NewMachine 创建一个新的状态机.
func NewMachine[S comparable, E comparable](initial S) *Machine[S, E] {
	return &Machine[S, E]{
		current:     initial,
		transitions: make(map[S]map[E]S),
		handlers:    make(map[S]map[S]Handler[S]),
		terminal:    make(map[S]bool),
		history:     []S{initial},
		logger:      slog.Default(),
	}
}

// SetLogger 替换状态转移日志使用的记录器.
func (m *Machine[S, E]) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// AddTransition 添加一条状态转移规则.
func (m *Machine[S, E]) AddTransition(from S, event E, to S) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transitions[from]; !ok {
		m.transitions[from] = make(map[E]S)
	}

	m.transitions[from][event] = to
}

// AddHandler 为特定的状态转移注册回调动作.
func (m *Machine[S, E]) AddHandler(from, to S, handler Handler[S]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.handlers[from]; !ok {
		m.handlers[from] = make(map[S]Handler[S])
	}

	m.handlers[from][to] = handler
}

// MarkTerminal 标记终止状态.
func (m *Machine[S, E]) MarkTerminal(states ...S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range states {
		m.terminal[s] = true
	}
}

// Current 获取状态机当前所处的状态.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current
}

// History 返回经历过的状态序列 (含初始状态).
func (m *Machine[S, E]) History() []S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]S(nil), m.history...)
}

// Trigger 触发一个事件.
func (m *Machine[S, E]) Trigger(ctx context.Context, event E, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if m.terminal[from] {
		return fmt.Errorf("%w: event %v for state %v", ErrTerminalState, event, from)
	}
	to, ok := m.transitions[from][event]
	if !ok {
		return fmt.Errorf("%w: event %v for state %v", ErrInvalidTransition, event, from)
	}

	if handler, okH := m.handlers[from][to]; okH {
		if err := handler(ctx, from, to, args...); err != nil {
			return fmt.Errorf("%w (%v -> %v): %w", ErrHandlerFailed, from, to, err)
		}
	}

	m.current = to
	m.history = append(m.history, to)

	m.logger.DebugContext(ctx, "fsm state transitioned",
		"from", from,
		"to", to,
		"event", event,
	)

	return nil
}
