// Package strategy defines the strategy capability set, a reusable
// lifecycle helper strategies embed instead of inheriting from a base class,
// and the strategy manager that registers, starts, stops, and broadcasts
// events to them. Grounded on original_source/include/algorithm/base_strategy.hpp
// and strategy_manager.hpp, replacing the C++ inheritance hierarchy with
// composition per the specification's design notes.
package strategy

import (
	"fmt"
	"sync"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
)

// StrategyType tags the family a concrete strategy belongs to. Concrete
// strategies are distinguished by this tag rather than by subclassing.
type StrategyType string

// Strategy is the capability set the strategy manager requires (section 6).
type Strategy interface {
	Initialize() error
	Start() error
	Stop() error
	Cleanup() error

	OnMarketData(domain.MarketData) error
	OnOrderUpdate(domain.OrderUpdate) error
	OnTradeUpdate(domain.TradeUpdate) error

	CheckRiskLimits() bool
	UpdateRiskMetrics()

	Name() string
	Type() StrategyType
	Status() domain.StrategyStatus

	// Subscriptions lists the symbols this strategy receives market data,
	// order updates, and trade updates for. The manager uses this to
	// filter its broadcasts.
	Subscriptions() []SymbolExchange
}

// SymbolExchange names one subscription: a symbol on a given exchange.
type SymbolExchange struct {
	Symbol   domain.Symbol
	Exchange string
}

// Hooks are the strategy-specific callbacks the Lifecycle helper invokes at
// each transition and event delivery. A concrete strategy supplies these
// (often as bound methods on itself) and embeds *Lifecycle for the state
// machine, locking, and position bookkeeping.
type Hooks struct {
	OnInitialize func() error
	OnStart      func() error
	OnStop       func() error
	OnCleanup    func() error

	OnMarketData  func(domain.MarketData) error
	OnOrderUpdate func(domain.OrderUpdate) error
	OnTradeUpdate func(domain.TradeUpdate) error

	CheckRiskLimits   func() bool
	UpdateRiskMetrics func()
}

// SubscriptionManager is the subset of the execution core the Lifecycle
// helper needs to (un)subscribe market data on Start/Stop. Subscribing the
// same (symbol, exchangeName) key again replaces the prior callback -- the
// execution core keeps exactly one live callback per key, not one per
// strategy.
type SubscriptionManager interface {
	SubscribeMarketData(symbol domain.Symbol, exchangeName string, cb func(domain.MarketData)) error
	UnsubscribeMarketData(symbol domain.Symbol, exchangeName string) error
}

// Lifecycle is the embeddable state-machine helper concrete strategies
// compose instead of inheriting a base class. It owns the status, per-symbol
// position map, and subscription list; subclasses supply behavior through
// Hooks.
type Lifecycle struct {
	name          string
	strategyType  StrategyType
	subscriptions []SymbolExchange
	execCore      SubscriptionManager
	hooks         Hooks

	mu        sync.Mutex
	status    domain.StrategyStatus
	lastErr   error
	positions map[domain.Symbol]domain.Position
}

// NewLifecycle constructs a Lifecycle in the Initialized-eligible zero
// state. It starts as if freshly constructed: Status() reports "" until
// Initialize is called, matching a strategy that has not yet entered the
// state machine.
func NewLifecycle(name string, strategyType StrategyType, execCore SubscriptionManager, subs []SymbolExchange, hooks Hooks) *Lifecycle {
	return &Lifecycle{
		name:          name,
		strategyType:  strategyType,
		subscriptions: subs,
		execCore:      execCore,
		hooks:         hooks,
		positions:     make(map[domain.Symbol]domain.Position),
	}
}

func (l *Lifecycle) Name() string       { return l.name }
func (l *Lifecycle) Type() StrategyType { return l.strategyType }

// Subscriptions returns the symbol/exchange pairs this strategy was
// constructed with.
func (l *Lifecycle) Subscriptions() []SymbolExchange {
	return l.subscriptions
}
func (l *Lifecycle) Status() domain.StrategyStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Initialize is legal only from the zero state (never initialized).
func (l *Lifecycle) Initialize() error {
	l.mu.Lock()
	if l.status != "" {
		from := l.status
		l.mu.Unlock()
		return &domain.InvalidTransitionError{From: from, To: domain.StrategyInitialized}
	}
	l.mu.Unlock()

	if l.hooks.OnInitialize != nil {
		if err := l.hooks.OnInitialize(); err != nil {
			l.setError(err)
			return err
		}
	}
	l.mu.Lock()
	l.status = domain.StrategyInitialized
	l.mu.Unlock()
	return nil
}

// Start is legal only from Initialized; it subscribes market data, runs
// OnStart, and enters Running.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	if l.status != domain.StrategyInitialized {
		from := l.status
		l.mu.Unlock()
		return &domain.InvalidTransitionError{From: from, To: domain.StrategyRunning}
	}
	l.mu.Unlock()

	for _, sub := range l.subscriptions {
		if l.execCore != nil {
			if err := l.execCore.SubscribeMarketData(sub.Symbol, sub.Exchange, l.dispatchMarketData); err != nil {
				l.setError(err)
				return err
			}
		}
	}
	if l.hooks.OnStart != nil {
		if err := l.hooks.OnStart(); err != nil {
			l.setError(err)
			return err
		}
	}
	l.mu.Lock()
	l.status = domain.StrategyRunning
	l.mu.Unlock()
	return nil
}

// Stop is legal from Running (the full stop, running unsubscribe/OnStop),
// and a no-op from Initialized or Stopped (a strategy that was never
// started, or is already stopped, simply moves to/stays at Stopped).
func (l *Lifecycle) Stop() error {
	l.mu.Lock()
	status := l.status
	l.mu.Unlock()

	if status == domain.StrategyStopped {
		return nil
	}
	if status == domain.StrategyInitialized {
		l.mu.Lock()
		l.status = domain.StrategyStopped
		l.mu.Unlock()
		return nil
	}
	if status != domain.StrategyRunning {
		return &domain.InvalidTransitionError{From: status, To: domain.StrategyStopped}
	}

	for _, sub := range l.subscriptions {
		if l.execCore != nil {
			_ = l.execCore.UnsubscribeMarketData(sub.Symbol, sub.Exchange)
		}
	}
	if l.hooks.OnStop != nil {
		if err := l.hooks.OnStop(); err != nil {
			l.setError(err)
			return err
		}
	}
	l.mu.Lock()
	l.status = domain.StrategyStopped
	l.mu.Unlock()
	return nil
}

// Cleanup runs the OnCleanup hook; legal from any state.
func (l *Lifecycle) Cleanup() error {
	if l.hooks.OnCleanup != nil {
		return l.hooks.OnCleanup()
	}
	return nil
}

func (l *Lifecycle) setError(cause error) {
	l.mu.Lock()
	l.status = domain.StrategyError
	l.lastErr = cause
	l.mu.Unlock()
}

// LastError returns the error that most recently drove the strategy into
// the Error state, if any.
func (l *Lifecycle) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// OnMarketData invokes the OnMarketData hook when the strategy is Running.
// The execution core reaches this through dispatchMarketData, its
// per-(symbol, exchange) callback registered in Start; market data no
// longer fans out through the strategy manager's broadcast.
func (l *Lifecycle) OnMarketData(md domain.MarketData) error {
	if l.Status() != domain.StrategyRunning {
		return nil
	}
	if l.hooks.OnMarketData != nil {
		return l.hooks.OnMarketData(md)
	}
	return nil
}

// dispatchMarketData is the callback registered with the execution core's
// per-(symbol, exchange) table in Start. It discards the error OnMarketData
// returns: a failing hook is neither logged nor recorded via setError.
func (l *Lifecycle) dispatchMarketData(md domain.MarketData) {
	_ = l.OnMarketData(md)
}

// OnOrderUpdate is a pass-through invoking the OnOrderUpdate hook; it does
// not affect position bookkeeping (that happens on fills, via OnTradeUpdate).
func (l *Lifecycle) OnOrderUpdate(u domain.OrderUpdate) error {
	if l.hooks.OnOrderUpdate != nil {
		return l.hooks.OnOrderUpdate(u)
	}
	return nil
}

// OnTradeUpdate updates the per-strategy position view using the section 3
// rule, then invokes the OnTradeUpdate hook.
func (l *Lifecycle) OnTradeUpdate(t domain.TradeUpdate) error {
	signed := t.Volume
	if t.Side == domain.SideSell {
		signed = -t.Volume
	}
	l.mu.Lock()
	pos := l.positions[t.Symbol]
	pos.Symbol = t.Symbol
	updated, _ := domain.ApplyTrade(pos, signed, t.Price)
	l.positions[t.Symbol] = updated
	l.mu.Unlock()

	if l.hooks.OnTradeUpdate != nil {
		return l.hooks.OnTradeUpdate(t)
	}
	return nil
}

// CheckRiskLimits is a pass-through invoking the CheckRiskLimits hook; with
// no hook supplied it reports limits as satisfied, matching the no-op
// default for every other optional hook.
func (l *Lifecycle) CheckRiskLimits() bool {
	if l.hooks.CheckRiskLimits != nil {
		return l.hooks.CheckRiskLimits()
	}
	return true
}

// UpdateRiskMetrics is a pass-through invoking the UpdateRiskMetrics hook.
func (l *Lifecycle) UpdateRiskMetrics() {
	if l.hooks.UpdateRiskMetrics != nil {
		l.hooks.UpdateRiskMetrics()
	}
}

// Position returns the strategy's current view of its position in symbol.
func (l *Lifecycle) Position(symbol domain.Symbol) domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positions[symbol]
}

// Positions returns a snapshot of every tracked position.
func (l *Lifecycle) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// String implements fmt.Stringer for debug logging.
func (l *Lifecycle) String() string {
	return fmt.Sprintf("%s[%s]", l.name, l.Status())
}
