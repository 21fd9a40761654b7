// Package engine implements the execution core: the façade composing the
// event processor, risk manager, and order router, grounded on
// original_source/include/execution/execution_engine.hpp.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/eventbus"
	"github.com/Quant-Club/Quant-Engine/internal/exchange"
	"github.com/Quant-Club/Quant-Engine/internal/router"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
)

// RiskController is the subset of risk.Manager the core drives directly
// (enable/disable/limits/EOD reset); order gating happens inside the
// router.
type RiskController interface {
	Enable()
	Disable()
	SetLimits(domain.RiskLimits)
	ResetDailyMetrics()
	UpdatePosition(symbol domain.Symbol, signedDelta, price float64)
}

// StrategyBroadcaster is the subset of strategy.Manager the core notifies of
// inbound order and trade updates. Market data does not flow through this:
// it is delivered through Core's own per-(symbol, exchange) callback table,
// see subs below.
type StrategyBroadcaster interface {
	OnOrderUpdate(domain.OrderUpdate)
	OnTradeUpdate(domain.TradeUpdate)
}

type subscriptionKey struct {
	symbol domain.Symbol
	source string
}

// Core composes a processor, risk manager, and order router into the single
// façade strategies and adapters interact with.
type Core struct {
	log    *logging.Logger
	proc   *eventbus.Processor
	risk   RiskController
	router *router.Router
	strat  StrategyBroadcaster

	subMu sync.RWMutex
	subs  map[subscriptionKey]func(domain.MarketData)
}

// New constructs a Core around already-constructed collaborators.
func New(proc *eventbus.Processor, risk RiskController, r *router.Router, strat StrategyBroadcaster, log *logging.Logger) *Core {
	c := &Core{
		log:    log,
		proc:   proc,
		risk:   risk,
		router: r,
		strat:  strat,
		subs:   make(map[subscriptionKey]func(domain.MarketData)),
	}
	c.wireHandlers()
	return c
}

func (c *Core) wireHandlers() {
	c.proc.Subscribe(domain.EventMarketData, func(e domain.Event) {
		md := e.MarketData
		key := subscriptionKey{symbol: md.Symbol, source: md.Source}
		c.subMu.RLock()
		cb := c.subs[key]
		c.subMu.RUnlock()
		if cb != nil {
			cb(md)
		}
	})
	c.proc.Subscribe(domain.EventOrderUpdate, func(e domain.Event) {
		u := e.OrderUpdate
		c.router.OnOrderUpdate(u)
		if c.risk != nil {
			// A filled order also produces trade updates that drive
			// position bookkeeping; order updates alone do not move
			// risk-manager position state.
			_ = u
		}
		if c.strat != nil {
			c.strat.OnOrderUpdate(u)
		}
	})
	c.proc.Subscribe(domain.EventTradeUpdate, func(e domain.Event) {
		t := e.TradeUpdate
		if c.risk != nil {
			signed := t.Volume
			if t.Side == domain.SideSell {
				signed = -t.Volume
			}
			c.risk.UpdatePosition(t.Symbol, signed, t.Price)
		}
		if c.strat != nil {
			c.strat.OnTradeUpdate(t)
		}
	})
	c.proc.Subscribe(domain.EventSystemEvent, func(e domain.Event) {
		if e.System.Payload == "EOD" {
			if c.risk != nil {
				c.risk.ResetDailyMetrics()
			}
			if c.log != nil {
				c.log.Info("engine: EOD system event processed, daily risk metrics reset")
			}
			return
		}
		if c.log != nil {
			c.log.Debug("engine: unrecognized system event payload", "payload", e.System.Payload)
		}
	})
}

// Start starts the underlying processor.
func (c *Core) Start(ctx context.Context) {
	c.proc.Start()
}

// Stop stops the underlying processor.
func (c *Core) Stop() {
	c.proc.Stop()
}

// Publish enqueues an event for dispatch. Adapters call this from their I/O
// goroutines.
func (c *Core) Publish(e domain.Event) bool {
	return c.proc.Publish(e)
}

// RegisterExchange registers a named adapter with the router.
func (c *Core) RegisterExchange(name string, adapter exchange.Adapter) {
	c.router.RegisterExchange(name, adapter)
}

// UnregisterExchange removes a named adapter from the router.
func (c *Core) UnregisterExchange(name string) error {
	return c.router.UnregisterExchange(name)
}

// SubmitOrder delegates to the router.
func (c *Core) SubmitOrder(ctx context.Context, order domain.Order, exchangeName string) (domain.OrderId, error) {
	return c.router.SubmitOrder(ctx, order, exchangeName)
}

// CancelOrder delegates to the router.
func (c *Core) CancelOrder(ctx context.Context, orderID domain.OrderId, exchangeName string) error {
	return c.router.CancelOrder(ctx, orderID, exchangeName)
}

// GetOrderStatus delegates to the router.
func (c *Core) GetOrderStatus(ctx context.Context, orderID domain.OrderId, exchangeName string) (domain.OrderStatus, error) {
	return c.router.GetOrderStatus(ctx, orderID, exchangeName)
}

// GetActiveOrders delegates to the router.
func (c *Core) GetActiveOrders(exchangeName string) []domain.Order {
	return c.router.GetActiveOrders(exchangeName)
}

// SubscribeMarketData registers callback as the handler for (symbol,
// exchangeName), replacing any prior callback registered for that key, and
// asks the named exchange to start streaming symbol on the wire.
func (c *Core) SubscribeMarketData(symbol domain.Symbol, exchangeName string, callback func(domain.MarketData)) error {
	c.subMu.Lock()
	c.subs[subscriptionKey{symbol: symbol, source: exchangeName}] = callback
	c.subMu.Unlock()
	return c.router.SubscribeMarketData(exchangeName, symbol)
}

// UnsubscribeMarketData removes the callback for (symbol, exchangeName) and
// asks the named exchange to stop streaming symbol.
func (c *Core) UnsubscribeMarketData(symbol domain.Symbol, exchangeName string) error {
	c.subMu.Lock()
	delete(c.subs, subscriptionKey{symbol: symbol, source: exchangeName})
	c.subMu.Unlock()
	return c.router.UnsubscribeMarketData(exchangeName, symbol)
}

// EnableRiskManager turns pre-trade risk checks on.
func (c *Core) EnableRiskManager() {
	if c.risk != nil {
		c.risk.Enable()
	}
}

// DisableRiskManager turns pre-trade risk checks off.
func (c *Core) DisableRiskManager() {
	if c.risk != nil {
		c.risk.Disable()
	}
}

// SetRiskLimits replaces the active risk limits.
func (c *Core) SetRiskLimits(limits domain.RiskLimits) {
	if c.risk != nil {
		c.risk.SetLimits(limits)
	}
}

// PublishSystemEvent is a convenience wrapper used by the supervisor at
// end-of-day to trigger a daily risk-metric reset.
func (c *Core) PublishSystemEvent(payload string) bool {
	return c.Publish(domain.NewSystemEvent(payload, time.Now()))
}
