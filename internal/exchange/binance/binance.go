// Package binance implements exchange.Adapter over Binance USD-M futures,
// grounded on the reference codebase's exchange/binance adapter (REST client
// setup, the private-key-free market-data websocket) and its
// order/executor_adapter.go rate limiter (25 orders/sec, burst 30). Symbols
// are lowercased before being composed into a stream name -- the reference
// adapter never did this and would silently subscribe to a stream that does
// not exist for any mixed-case symbol.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/exchange"
	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
)

const wsBaseURL = "wss://fstream.binance.com/ws"
const wsBaseURLTestnet = "wss://stream.binancefuture.com/ws"

// Config configures a Binance adapter instance.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// Adapter implements exchange.Adapter against Binance USD-M futures.
type Adapter struct {
	client *futures.Client
	log    *logging.Logger

	limiter *rate.Limiter

	mu        sync.Mutex
	streams   map[domain.Symbol]*websocket.Conn
	wsBaseURL string

	mdCB    exchange.MarketDataCallback
	orderCB exchange.OrderUpdateCallback
	tradeCB exchange.TradeUpdateCallback
}

// New constructs a Binance adapter. It does not open any network connection
// until SubscribeMarketData or an order operation is called.
func New(cfg Config, log *logging.Logger) *Adapter {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)

	base := wsBaseURL
	if cfg.Testnet {
		base = wsBaseURLTestnet
	}

	return &Adapter{
		client:    client,
		log:       log,
		limiter:   rate.NewLimiter(rate.Limit(25), 30),
		streams:   make(map[domain.Symbol]*websocket.Conn),
		wsBaseURL: base,
	}
}

// Name implements exchange.Adapter.
func (a *Adapter) Name() string { return "binance" }

// SupportedSymbols implements exchange.Adapter. It always returns nil: the
// adapter does not fetch the venue's symbol list, and ExchangeInfo reports
// only the exchange name.
func (a *Adapter) SupportedSymbols() []string { return nil }

// ExchangeInfo implements exchange.Adapter.
func (a *Adapter) ExchangeInfo() domain.ExchangeInfo {
	return domain.ExchangeInfo{Name: "binance"}
}

// SubmitOrder implements exchange.Adapter, converting a domain.Order into a
// futures order request and applying the client-side rate limit before
// calling the exchange.
func (a *Adapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.OrderId, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("binance: rate limit wait: %w", err)
	}

	svc := a.client.NewCreateOrderService().
		Symbol(string(order.Symbol)).
		Side(toBinanceSide(order.Side)).
		Type(toBinanceType(order.Type)).
		Quantity(strconv.FormatFloat(order.Volume, 'f', -1, 64))

	if order.Type == domain.OrderTypeLimit || order.Type == domain.OrderTypeStopLimit {
		svc = svc.TimeInForce(futures.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(order.Price, 'f', -1, 64))
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return "", fmt.Errorf("binance: create order: %w", err)
	}
	return domain.OrderId(strconv.FormatInt(resp.OrderID, 10)), nil
}

// CancelOrder implements exchange.Adapter.
func (a *Adapter) CancelOrder(ctx context.Context, id domain.OrderId) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("binance: rate limit wait: %w", err)
	}
	orderID, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return fmt.Errorf("binance: invalid order id %q: %w", id, err)
	}
	_, err = a.client.NewCancelOrderService().OrderID(orderID).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: cancel order: %w", err)
	}
	return nil
}

// GetOrderStatus implements exchange.Adapter.
func (a *Adapter) GetOrderStatus(ctx context.Context, id domain.OrderId) (domain.OrderStatus, error) {
	orderID, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return "", fmt.Errorf("binance: invalid order id %q: %w", id, err)
	}
	resp, err := a.client.NewGetOrderService().OrderID(orderID).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("binance: get order: %w", err)
	}
	return fromBinanceStatus(string(resp.Status)), nil
}

// GetBalance implements exchange.Adapter.
func (a *Adapter) GetBalance(ctx context.Context) ([]domain.Balance, error) {
	balances, err := a.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: get balance: %w", err)
	}
	out := make([]domain.Balance, 0, len(balances))
	for _, b := range balances {
		avail, _ := strconv.ParseFloat(b.AvailableBalance, 64)
		bal, _ := strconv.ParseFloat(b.Balance, 64)
		out = append(out, domain.Balance{Asset: b.Asset, Free: avail, Locked: bal - avail})
	}
	return out, nil
}

// GetPositions implements exchange.Adapter.
func (a *Adapter) GetPositions(ctx context.Context) ([]domain.Position, error) {
	risks, err := a.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: get position risk: %w", err)
	}
	out := make([]domain.Position, 0, len(risks))
	for _, p := range risks {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		unrealized, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		out = append(out, domain.Position{
			Symbol:        domain.Symbol(p.Symbol),
			Volume:        amt,
			AveragePrice:  entry,
			UnrealizedPnL: unrealized,
		})
	}
	return out, nil
}

// SetMarketDataCallback implements exchange.Adapter.
func (a *Adapter) SetMarketDataCallback(cb exchange.MarketDataCallback) {
	a.mu.Lock()
	a.mdCB = cb
	a.mu.Unlock()
}

// SetOrderUpdateCallback implements exchange.Adapter.
func (a *Adapter) SetOrderUpdateCallback(cb exchange.OrderUpdateCallback) {
	a.mu.Lock()
	a.orderCB = cb
	a.mu.Unlock()
}

// SetTradeUpdateCallback implements exchange.Adapter.
func (a *Adapter) SetTradeUpdateCallback(cb exchange.TradeUpdateCallback) {
	a.mu.Lock()
	a.tradeCB = cb
	a.mu.Unlock()
}

// SubscribeMarketData implements exchange.Adapter, opening a book-ticker
// websocket stream for symbol. The stream name must be all-lowercase per
// Binance's convention; the symbol is lowercased here rather than left to
// the caller.
func (a *Adapter) SubscribeMarketData(symbol domain.Symbol) error {
	a.mu.Lock()
	if _, exists := a.streams[symbol]; exists {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	streamName := strings.ToLower(string(symbol)) + "@bookTicker"
	url := a.wsBaseURL + "/" + streamName

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("binance: dial market data stream: %w", err)
	}

	a.mu.Lock()
	a.streams[symbol] = conn
	a.mu.Unlock()

	go a.readLoop(symbol, conn)
	return nil
}

// UnsubscribeMarketData implements exchange.Adapter.
func (a *Adapter) UnsubscribeMarketData(symbol domain.Symbol) error {
	a.mu.Lock()
	conn, ok := a.streams[symbol]
	if ok {
		delete(a.streams, symbol)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Close()
}

type bookTickerMessage struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

func (a *Adapter) readLoop(symbol domain.Symbol, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if a.log != nil {
				a.log.Warn("binance: market data stream closed", "symbol", string(symbol), "error", err.Error())
			}
			return
		}
		var msg bookTickerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		bid, _ := strconv.ParseFloat(msg.BidPrice, 64)
		ask, _ := strconv.ParseFloat(msg.AskPrice, 64)

		a.mu.Lock()
		cb := a.mdCB
		a.mu.Unlock()
		if cb != nil {
			cb(domain.MarketData{
				Symbol:    symbol,
				Source:    "binance",
				Timestamp: time.Now(),
				LastPrice: (bid + ask) / 2,
				Bids:      []domain.PriceLevel{{Price: bid}},
				Asks:      []domain.PriceLevel{{Price: ask}},
			})
		}
	}
}

func toBinanceSide(side domain.OrderSide) futures.SideType {
	if side == domain.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func toBinanceType(t domain.OrderType) futures.OrderType {
	switch t {
	case domain.OrderTypeLimit:
		return futures.OrderTypeLimit
	case domain.OrderTypeStopLimit:
		return futures.OrderTypeStop
	default:
		return futures.OrderTypeMarket
	}
}

func fromBinanceStatus(status string) domain.OrderStatus {
	switch status {
	case "NEW":
		return domain.OrderStatusPending
	case "PARTIALLY_FILLED":
		return domain.OrderStatusPartial
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "EXPIRED":
		return domain.OrderStatusCancelled
	case "REJECTED":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusPending
	}
}
