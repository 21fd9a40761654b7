// Package exchange defines the capability set the order router and
// execution core require of every venue integration, grounded on
// original_source/include/exchange/exchange_interface.hpp and extended per
// the specification with explicit callback setters (the original wired
// callbacks through constructor arguments, which this system replaces with
// setters so an adapter can be constructed before the engine that will
// consume it exists).
package exchange

import (
	"context"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
)

// MarketDataCallback is invoked by an adapter whenever it has a new market
// data snapshot. Implementations must be fast: they enqueue into the event
// processor and must not block on further I/O.
type MarketDataCallback func(domain.MarketData)

// OrderUpdateCallback is invoked by an adapter on any order status change.
type OrderUpdateCallback func(domain.OrderUpdate)

// TradeUpdateCallback is invoked by an adapter on each fill.
type TradeUpdateCallback func(domain.TradeUpdate)

// Adapter is the capability set every exchange integration implements.
type Adapter interface {
	// Trading
	SubmitOrder(ctx context.Context, order domain.Order) (domain.OrderId, error)
	CancelOrder(ctx context.Context, orderID domain.OrderId) error
	GetOrderStatus(ctx context.Context, orderID domain.OrderId) (domain.OrderStatus, error)

	// Account
	GetBalance(ctx context.Context) ([]domain.Balance, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// Market data
	SubscribeMarketData(symbol domain.Symbol) error
	UnsubscribeMarketData(symbol domain.Symbol) error

	// Callback wiring
	SetMarketDataCallback(cb MarketDataCallback)
	SetOrderUpdateCallback(cb OrderUpdateCallback)
	SetTradeUpdateCallback(cb TradeUpdateCallback)

	// Metadata
	Name() string
	SupportedSymbols() []string
	ExchangeInfo() domain.ExchangeInfo
}
