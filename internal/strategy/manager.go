package strategy

import (
	"sync"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
)

// Manager registers, starts, stops, and broadcasts events to a set of
// strategies, grounded on original_source/include/algorithm/strategy_manager.hpp.
type Manager struct {
	log *logging.Logger

	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewManager constructs an empty Manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{log: log, strategies: make(map[string]Strategy)}
}

// Register adds a strategy under its own name. It is a no-op (logged) if the
// name is already registered.
func (m *Manager) Register(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.strategies[s.Name()]; exists {
		if m.log != nil {
			m.log.Warn("strategy manager: already registered", "name", s.Name())
		}
		return
	}
	m.strategies[s.Name()] = s
}

// Unregister removes a strategy, stopping it first if it is running.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	s, ok := m.strategies[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.strategies, name)
	m.mu.Unlock()

	if s.Status() == domain.StrategyRunning {
		if err := s.Stop(); err != nil && m.log != nil {
			m.log.Error("strategy manager: stop on unregister failed", "name", name, "err", err)
		}
	}
}

// Get returns a registered strategy by name.
func (m *Manager) Get(name string) (Strategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[name]
	return s, ok
}

// Names returns every registered strategy name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.strategies))
	for n := range m.strategies {
		names = append(names, n)
	}
	return names
}

// Status returns the lifecycle status of a registered strategy.
func (m *Manager) Status(name string) (domain.StrategyStatus, bool) {
	m.mu.RLock()
	s, ok := m.strategies[name]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	return s.Status(), true
}

// Start initializes (if needed) and starts a single named strategy.
func (m *Manager) Start(name string) error {
	s, ok := m.Get(name)
	if !ok {
		return domain.ErrNotFound
	}
	if s.Status() == "" {
		if err := s.Initialize(); err != nil {
			return err
		}
	}
	return s.Start()
}

// Stop stops a single named strategy.
func (m *Manager) Stop(name string) error {
	s, ok := m.Get(name)
	if !ok {
		return domain.ErrNotFound
	}
	return s.Stop()
}

// StartAll initializes and starts every registered strategy, logging (not
// propagating) individual failures so one broken strategy does not prevent
// the rest from starting.
func (m *Manager) StartAll() {
	for _, name := range m.Names() {
		if err := m.Start(name); err != nil && m.log != nil {
			m.log.Error("strategy manager: start failed", "name", name, "err", err)
		}
	}
}

// StopAll stops every registered strategy, logging individual failures.
func (m *Manager) StopAll() {
	for _, name := range m.Names() {
		if err := m.Stop(name); err != nil && m.log != nil {
			m.log.Error("strategy manager: stop failed", "name", name, "err", err)
		}
	}
}

// runningSnapshot returns the currently-Running strategies under the read
// lock, then releases it -- hooks are always invoked outside any Manager
// lock.
func (m *Manager) runningSnapshot() []Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Strategy, 0, len(m.strategies))
	for _, s := range m.strategies {
		if s.Status() == domain.StrategyRunning {
			out = append(out, s)
		}
	}
	return out
}

// subscribed reports whether s is subscribed to symbol on exchangeName. An
// empty exchangeName (the source is unknown, or the event predates any
// exchange tagging) matches on symbol alone.
func subscribed(s Strategy, symbol domain.Symbol, exchangeName string) bool {
	for _, sub := range s.Subscriptions() {
		if sub.Symbol != symbol {
			continue
		}
		if exchangeName == "" || sub.Exchange == exchangeName {
			return true
		}
	}
	return false
}

// OnOrderUpdate rebroadcasts an order update to every running strategy
// subscribed to its symbol. Market data does not flow through Manager: it is
// delivered directly to each strategy via the execution core's
// per-(symbol, exchange) callback table, registered in Lifecycle.Start. A
// panicking or erroring hook is recovered/logged and does not stop the
// broadcast to the remaining strategies.
func (m *Manager) OnOrderUpdate(u domain.OrderUpdate) {
	for _, s := range m.runningSnapshot() {
		if !subscribed(s, u.Symbol, u.Source) {
			continue
		}
		m.safeCall(s.Name(), func() error { return s.OnOrderUpdate(u) })
	}
}

// OnTradeUpdate rebroadcasts a trade update to every running strategy
// subscribed to its symbol.
func (m *Manager) OnTradeUpdate(t domain.TradeUpdate) {
	for _, s := range m.runningSnapshot() {
		if !subscribed(s, t.Symbol, t.Source) {
			continue
		}
		m.safeCall(s.Name(), func() error { return s.OnTradeUpdate(t) })
	}
}

func (m *Manager) safeCall(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil && m.log != nil {
			m.log.Error("strategy manager: hook panicked", "name", name, "panic", r)
		}
	}()
	if err := fn(); err != nil && m.log != nil {
		m.log.Error("strategy manager: hook error", "name", name, "err", err)
	}
}
