// Package domain holds the scalar and aggregate types shared by every
// component of the trading runtime: market data, order intents, order and
// trade reports, positions, balances, and risk limits.
package domain

import "time"

// Epsilon is the absolute tolerance used for "is this position effectively
// zero" comparisons throughout the runtime.
const Epsilon = 1e-9

// OrderId is an opaque identifier assigned by the exchange. Strategies never
// mint one themselves.
type OrderId string

// Symbol is a trading pair in the exchange's native form, e.g. "BTCUSDT".
type Symbol string

// OrderType enumerates the order types a strategy may submit.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderSide is the direction of an order or trade.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus is the lifecycle status reported by an exchange for a
// previously submitted order. Statuses form a DAG:
// Pending -> {Partial, Filled, Cancelled, Rejected}
// Partial -> {Partial, Filled, Cancelled}
// Filled/Cancelled/Rejected are terminal.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status can no longer transition.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// PriceLevel is one row of an order-book depth snapshot.
type PriceLevel struct {
	Price  float64
	Volume float64
}

// MarketData is a market-data snapshot for a symbol as published by an
// exchange adapter.
type MarketData struct {
	Symbol    Symbol
	Timestamp time.Time
	LastPrice float64
	BestBid   float64
	BestAsk   float64
	BidVolume float64
	AskVolume float64
	Bids      []PriceLevel // sorted descending by price
	Asks      []PriceLevel // sorted ascending by price
	Source    string       // exchange name that produced this snapshot
}

// Order is an order intent, prior to adapter acceptance. Strategies build
// these; the router assigns no fields beyond what is supplied here.
type Order struct {
	Symbol        Symbol
	Type          OrderType
	Side          OrderSide
	Price         float64
	Volume        float64
	ClientOrderID string
}

// Validate checks the invariants named for Order: Volume > 0, and Price > 0
// for order types that require a limit price.
func (o Order) Validate() error {
	if o.Volume <= 0 {
		return ErrInvalidOrder
	}
	if (o.Type == OrderTypeLimit || o.Type == OrderTypeStopLimit) && o.Price <= 0 {
		return ErrInvalidOrder
	}
	return nil
}

// OrderUpdate is a status report for a previously submitted order.
type OrderUpdate struct {
	OrderID      OrderId
	Symbol       Symbol
	Status       OrderStatus
	FilledPrice  float64
	FilledVolume float64
	Timestamp    time.Time
	Message      string
	Source       string
}

// TradeUpdate is one fill against an order. An order may generate more than
// one; TradeUpdate carries no AveragePrice field.
type TradeUpdate struct {
	OrderID   OrderId
	Symbol    Symbol
	Price     float64
	Volume    float64
	Side      OrderSide
	Timestamp time.Time
	Source    string
}

// Position is the signed exposure the runtime holds in a symbol.
type Position struct {
	Symbol        Symbol
	Volume        float64 // signed: positive is long, negative is short
	AveragePrice  float64
	UnrealizedPnL float64
	RealizedPnL   float64
}

// ApplyTrade applies the position-update rule to pos for a trade of signed
// volume delta at the given price, returning the updated position and the
// realized P&L booked by this trade (zero if the trade did not close or
// reduce any exposure at a marked price).
func ApplyTrade(pos Position, delta, price float64) (Position, float64) {
	if pos.Volume == 0 {
		pos.Volume = delta
		pos.AveragePrice = price
		return pos, 0
	}
	if sign(delta) == sign(pos.Volume) {
		totalVolume := absf(pos.Volume) + absf(delta)
		pos.AveragePrice = (pos.AveragePrice*absf(pos.Volume) + price*absf(delta)) / totalVolume
		pos.Volume += delta
		return pos, 0
	}

	// Reduces, closes, or flips the position: realize P&L on the closed
	// portion at the old average price. A partial reduction keeps the old
	// average price; a flip opens the remainder at the new price.
	closingVolume := minf(absf(pos.Volume), absf(delta))
	direction := sign(pos.Volume) // realized on a long position when it is sold, and vice versa
	realized := direction * closingVolume * (price - pos.AveragePrice)

	remaining := pos.Volume + delta
	pos.RealizedPnL += realized
	switch {
	case absf(remaining) < Epsilon:
		pos.Volume = 0
		pos.AveragePrice = 0
	case sign(remaining) == sign(pos.Volume):
		pos.Volume = remaining
	default:
		pos.Volume = remaining
		pos.AveragePrice = price
	}
	return pos, realized
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Balance is a per-asset account balance snapshot.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Total returns Free + Locked.
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}

// RiskLimits bounds the sizes and exposures the risk manager will accept.
type RiskLimits struct {
	MaxOrderSize    float64
	MaxPositionSize float64
	MaxLeverage     float64
	MaxDrawdown     float64
	MaxDailyLoss    float64
	SymbolLimits    map[string]float64
}

// DefaultRiskLimits mirrors the recognized configuration defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxOrderSize:    100_000,
		MaxPositionSize: 1_000_000,
		MaxLeverage:     3.0,
		MaxDrawdown:     0.1,
		MaxDailyLoss:    10_000,
		SymbolLimits:    map[string]float64{},
	}
}

// ExchangeInfo describes a venue's static metadata.
type ExchangeInfo struct {
	Name             string
	SupportedSymbols []string
	RestEndpoint     string
	WsEndpoint       string
}
