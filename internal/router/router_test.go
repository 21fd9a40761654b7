package router

import (
	"context"
	"errors"
	"testing"

	"github.com/Quant-Club/Quant-Engine/internal/coordination/lock"
	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/exchange"
)

type fakeAdapter struct {
	name         string
	nextID       int
	submitErr    error
	cancelErr    error
	statusByID   map[domain.OrderId]domain.OrderStatus
	subscribed   []domain.Symbol
	unsubscribed []domain.Symbol
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, statusByID: make(map[domain.OrderId]domain.OrderStatus)}
}

func (f *fakeAdapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.OrderId, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextID++
	id := domain.OrderId(itoa(f.nextID))
	f.statusByID[id] = domain.OrderStatusPending
	return id, nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, id domain.OrderId) error { return f.cancelErr }
func (f *fakeAdapter) GetOrderStatus(ctx context.Context, id domain.OrderId) (domain.OrderStatus, error) {
	return f.statusByID[id], nil
}
func (f *fakeAdapter) GetBalance(ctx context.Context) ([]domain.Balance, error)    { return nil, nil }
func (f *fakeAdapter) GetPositions(ctx context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeAdapter) SubscribeMarketData(s domain.Symbol) error {
	f.subscribed = append(f.subscribed, s)
	return nil
}
func (f *fakeAdapter) UnsubscribeMarketData(s domain.Symbol) error {
	f.unsubscribed = append(f.unsubscribed, s)
	return nil
}
func (f *fakeAdapter) SetMarketDataCallback(cb exchange.MarketDataCallback)   {}
func (f *fakeAdapter) SetOrderUpdateCallback(cb exchange.OrderUpdateCallback) {}
func (f *fakeAdapter) SetTradeUpdateCallback(cb exchange.TradeUpdateCallback) {}
func (f *fakeAdapter) Name() string                                           { return f.name }
func (f *fakeAdapter) SupportedSymbols() []string                             { return nil }
func (f *fakeAdapter) ExchangeInfo() domain.ExchangeInfo                      { return domain.ExchangeInfo{Name: f.name} }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

type acceptAllRisk struct{}

func (acceptAllRisk) CheckOrderRisk(domain.Order) (bool, domain.RejectReason) { return true, "" }

type rejectAllRisk struct{ reason domain.RejectReason }

func (r rejectAllRisk) CheckOrderRisk(domain.Order) (bool, domain.RejectReason) {
	return false, r.reason
}

func TestSubmitOrderUnknownExchange(t *testing.T) {
	r := New(acceptAllRisk{}, lock.NewNopLock(), nil, nil)
	_, err := r.SubmitOrder(context.Background(), domain.Order{Symbol: "BTC", Type: domain.OrderTypeMarket, Volume: 1}, "nope")
	if !errors.Is(err, domain.ErrUnknownExchange) {
		t.Fatalf("want ErrUnknownExchange, got %v", err)
	}
}

func TestSubmitOrderRiskRejection(t *testing.T) {
	r := New(rejectAllRisk{reason: domain.RejectNotional}, lock.NewNopLock(), nil, nil)
	r.RegisterExchange("binance", newFakeAdapter("binance"))
	_, err := r.SubmitOrder(context.Background(), domain.Order{Symbol: "BTC", Type: domain.OrderTypeMarket, Volume: 1}, "binance")
	var rej *domain.RiskRejectedError
	if !errors.As(err, &rej) || rej.Reason != domain.RejectNotional {
		t.Fatalf("want RiskRejectedError{Notional}, got %v", err)
	}
}

func TestOrderLifecycleRemovedOnlyOnTerminalUpdate(t *testing.T) {
	r := New(acceptAllRisk{}, lock.NewNopLock(), nil, nil)
	r.RegisterExchange("binance", newFakeAdapter("binance"))
	id, err := r.SubmitOrder(context.Background(), domain.Order{Symbol: "BTC", Type: domain.OrderTypeMarket, Volume: 1}, "binance")
	if err != nil {
		t.Fatal(err)
	}

	active := r.GetActiveOrders("binance")
	if len(active) != 1 {
		t.Fatalf("want 1 active order, got %d", len(active))
	}

	r.OnOrderUpdate(domain.OrderUpdate{OrderID: id, Status: domain.OrderStatusPartial, FilledVolume: 0.3})
	if len(r.GetActiveOrders("binance")) != 1 {
		t.Fatal("PARTIAL update must not remove the order from the live book")
	}

	r.OnOrderUpdate(domain.OrderUpdate{OrderID: id, Status: domain.OrderStatusPartial, FilledVolume: 0.7})
	if len(r.GetActiveOrders("binance")) != 1 {
		t.Fatal("second PARTIAL update must not remove the order from the live book")
	}

	r.OnOrderUpdate(domain.OrderUpdate{OrderID: id, Status: domain.OrderStatusFilled, FilledVolume: 1.0})
	if len(r.GetActiveOrders("binance")) != 0 {
		t.Fatal("FILLED update must remove the order from the live book")
	}
}

func TestCancelOrderDoesNotRemoveUntilConfirmed(t *testing.T) {
	r := New(acceptAllRisk{}, lock.NewNopLock(), nil, nil)
	r.RegisterExchange("binance", newFakeAdapter("binance"))
	id, err := r.SubmitOrder(context.Background(), domain.Order{Symbol: "BTC", Type: domain.OrderTypeMarket, Volume: 1}, "binance")
	if err != nil {
		t.Fatal(err)
	}

	if err := r.CancelOrder(context.Background(), id, "binance"); err != nil {
		t.Fatal(err)
	}
	if len(r.GetActiveOrders("binance")) != 1 {
		t.Fatal("cancel request alone must not remove the order from the live book")
	}

	r.OnOrderUpdate(domain.OrderUpdate{OrderID: id, Status: domain.OrderStatusCancelled})
	if len(r.GetActiveOrders("binance")) != 0 {
		t.Fatal("confirmed CANCELLED update should remove the order from the live book")
	}
}

func TestSubscribeMarketDataDelegatesToAdapter(t *testing.T) {
	r := New(acceptAllRisk{}, lock.NewNopLock(), nil, nil)
	adapter := newFakeAdapter("binance")
	r.RegisterExchange("binance", adapter)

	if err := r.SubscribeMarketData("binance", "BTCUSDT"); err != nil {
		t.Fatal(err)
	}
	if len(adapter.subscribed) != 1 || adapter.subscribed[0] != "BTCUSDT" {
		t.Fatalf("want adapter subscribed to BTCUSDT, got %v", adapter.subscribed)
	}

	if err := r.UnsubscribeMarketData("binance", "BTCUSDT"); err != nil {
		t.Fatal(err)
	}
	if len(adapter.unsubscribed) != 1 || adapter.unsubscribed[0] != "BTCUSDT" {
		t.Fatalf("want adapter unsubscribed from BTCUSDT, got %v", adapter.unsubscribed)
	}
}

func TestSubscribeMarketDataUnknownExchange(t *testing.T) {
	r := New(acceptAllRisk{}, lock.NewNopLock(), nil, nil)
	if err := r.SubscribeMarketData("nope", "BTCUSDT"); !errors.Is(err, domain.ErrUnknownExchange) {
		t.Fatalf("want ErrUnknownExchange, got %v", err)
	}
}

func TestUnregisterExchangeFailsWithLiveOrders(t *testing.T) {
	r := New(acceptAllRisk{}, lock.NewNopLock(), nil, nil)
	r.RegisterExchange("binance", newFakeAdapter("binance"))
	_, err := r.SubmitOrder(context.Background(), domain.Order{Symbol: "BTC", Type: domain.OrderTypeMarket, Volume: 1}, "binance")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.UnregisterExchange("binance"); err == nil {
		t.Fatal("expected unregister to fail with live orders outstanding")
	}
}
