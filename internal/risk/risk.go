// Package risk implements the pre-trade risk manager: a thread-safe policy
// engine evaluating per-order, per-symbol, per-account, and
// drawdown/daily-loss limits against a continuously updated position and
// balance snapshot. Grounded on original_source/include/risk/risk_manager.hpp,
// with the leverage check's zero/negative-balance guard added per the
// specification (the original divides by currentBalance_ unconditionally).
package risk

import (
	"sync"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/metrics"
)

// Sink receives a best-effort notification of every terminal risk decision,
// for the audit store. It is called synchronously from CheckOrderRisk while
// the manager's lock is held, so a slow implementation delays the check.
type Sink interface {
	RecordDecision(order domain.Order, accepted bool, reason domain.RejectReason)
}

// Manager is the risk policy engine described in section 4.3.
type Manager struct {
	log  *logging.Logger
	sink Sink

	mu      sync.Mutex
	enabled bool
	limits  domain.RiskLimits

	positions     map[domain.Symbol]float64
	averagePrices map[domain.Symbol]float64

	currentBalance    float64
	peakBalance       float64
	dailyStartBalance float64
}

// NewManager constructs a Manager, enabled by default, with the given
// limits.
func NewManager(limits domain.RiskLimits, log *logging.Logger, sink Sink) *Manager {
	return &Manager{
		log:           log,
		sink:          sink,
		enabled:       true,
		limits:        limits,
		positions:     make(map[domain.Symbol]float64),
		averagePrices: make(map[domain.Symbol]float64),
	}
}

// CheckOrderRisk evaluates order against the current limits and snapshot. If
// the manager is disabled every order is accepted.
func (m *Manager) CheckOrderRisk(order domain.Order) (accepted bool, reason domain.RejectReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		m.notify(order, true, domain.RejectNone)
		return true, domain.RejectNone
	}

	if order.Volume*order.Price > m.limits.MaxOrderSize {
		return m.reject(order, domain.RejectNotional)
	}

	if limit, ok := m.limits.SymbolLimits[string(order.Symbol)]; ok {
		if order.Volume > limit {
			return m.reject(order, domain.RejectSymbolLimit)
		}
	}

	current := m.positions[order.Symbol]
	signedDelta := order.Volume
	if order.Side == domain.SideSell {
		signedDelta = -order.Volume
	}
	projected := current + signedDelta
	if absf(projected) > m.limits.MaxPositionSize {
		return m.reject(order, domain.RejectPositionLimit)
	}

	if m.currentBalance <= 0 {
		return m.reject(order, domain.RejectLeverage)
	}
	exposure := 0.0
	for sym, vol := range m.positions {
		exposure += absf(vol) * m.averagePrices[sym]
	}
	exposure += order.Volume * order.Price
	if exposure/m.currentBalance > m.limits.MaxLeverage {
		return m.reject(order, domain.RejectLeverage)
	}

	if m.peakBalance > 0 {
		drawdown := (m.peakBalance - m.currentBalance) / m.peakBalance
		if drawdown > m.limits.MaxDrawdown {
			return m.reject(order, domain.RejectDrawdown)
		}
	}

	if m.dailyStartBalance-m.currentBalance > m.limits.MaxDailyLoss {
		return m.reject(order, domain.RejectDailyLoss)
	}

	m.notify(order, true, domain.RejectNone)
	return true, domain.RejectNone
}

func (m *Manager) reject(order domain.Order, reason domain.RejectReason) (bool, domain.RejectReason) {
	if m.log != nil {
		m.log.Warn("risk: order rejected", "symbol", string(order.Symbol), "reason", string(reason))
	}
	metrics.RecordRiskRejection(string(order.Symbol), string(reason))
	m.notify(order, false, reason)
	return false, reason
}

func (m *Manager) notify(order domain.Order, accepted bool, reason domain.RejectReason) {
	if m.sink != nil {
		m.sink.RecordDecision(order, accepted, reason)
	}
}

// UpdatePosition applies the position-update rule (see domain.ApplyTrade) for
// symbol given a signed trade volume at price.
func (m *Manager) UpdatePosition(symbol domain.Symbol, signedDelta, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := domain.Position{
		Symbol:       symbol,
		Volume:       m.positions[symbol],
		AveragePrice: m.averagePrices[symbol],
	}
	updated, _ := domain.ApplyTrade(pos, signedDelta, price)
	m.positions[symbol] = updated.Volume
	m.averagePrices[symbol] = updated.AveragePrice
}

// UpdateBalance sets the current balance and advances the peak balance
// watermark.
func (m *Manager) UpdateBalance(b float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentBalance = b
	if b > m.peakBalance {
		m.peakBalance = b
	}
	if m.dailyStartBalance == 0 {
		m.dailyStartBalance = b
	}
}

// ResetDailyMetrics sets the daily-loss baseline to the current balance,
// invoked when a SystemEvent with payload "EOD" is processed.
func (m *Manager) ResetDailyMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyStartBalance = m.currentBalance
}

// Enable turns pre-trade checks on.
func (m *Manager) Enable() {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
}

// Disable turns pre-trade checks off; every order is accepted while
// disabled.
func (m *Manager) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}

// IsEnabled reports whether pre-trade checks are active.
func (m *Manager) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Limits returns a copy of the current limits.
func (m *Manager) Limits() domain.RiskLimits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// SetLimits replaces the current limits.
func (m *Manager) SetLimits(l domain.RiskLimits) {
	m.mu.Lock()
	m.limits = l
	m.mu.Unlock()
}

// Position returns the current tracked signed volume and average price for
// symbol.
func (m *Manager) Position(symbol domain.Symbol) (volume, averagePrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions[symbol], m.averagePrices[symbol]
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
