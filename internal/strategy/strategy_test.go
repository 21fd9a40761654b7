package strategy

import (
	"errors"
	"testing"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
)

type stubSubs struct {
	subscribed   []SymbolExchange
	unsubscribed []SymbolExchange
	callbacks    map[SymbolExchange]func(domain.MarketData)
}

func (s *stubSubs) SubscribeMarketData(symbol domain.Symbol, ex string, cb func(domain.MarketData)) error {
	s.subscribed = append(s.subscribed, SymbolExchange{Symbol: symbol, Exchange: ex})
	if s.callbacks == nil {
		s.callbacks = make(map[SymbolExchange]func(domain.MarketData))
	}
	s.callbacks[SymbolExchange{Symbol: symbol, Exchange: ex}] = cb
	return nil
}

func (s *stubSubs) UnsubscribeMarketData(symbol domain.Symbol, ex string) error {
	s.unsubscribed = append(s.unsubscribed, SymbolExchange{Symbol: symbol, Exchange: ex})
	return nil
}

func TestLifecycleFreshStrategyStateMachine(t *testing.T) {
	subs := &stubSubs{}
	lc := NewLifecycle("demo", "trend", subs, []SymbolExchange{{Symbol: "BTCUSDT", Exchange: "binance"}}, Hooks{})

	if err := lc.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if lc.Status() != domain.StrategyInitialized {
		t.Fatalf("want Initialized, got %s", lc.Status())
	}

	// stop() before ever starting is a documented no-op, not an error.
	if err := lc.Stop(); err != nil {
		t.Fatalf("stop from Initialized should be a no-op: %v", err)
	}
	if lc.Status() != domain.StrategyStopped {
		t.Fatalf("want Stopped, got %s", lc.Status())
	}

	// start() from Stopped is illegal.
	err := lc.Start()
	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("want InvalidTransitionError, got %v", err)
	}
}

func TestLifecycleStartSubscribesAndStopUnsubscribes(t *testing.T) {
	subs := &stubSubs{}
	lc := NewLifecycle("demo", "trend", subs, []SymbolExchange{{Symbol: "BTCUSDT", Exchange: "binance"}}, Hooks{})
	if err := lc.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := lc.Start(); err != nil {
		t.Fatal(err)
	}
	if lc.Status() != domain.StrategyRunning {
		t.Fatalf("want Running, got %s", lc.Status())
	}
	if len(subs.subscribed) != 1 {
		t.Fatalf("want 1 subscription, got %d", len(subs.subscribed))
	}
	if err := lc.Stop(); err != nil {
		t.Fatal(err)
	}
	if len(subs.unsubscribed) != 1 {
		t.Fatalf("want 1 unsubscription, got %d", len(subs.unsubscribed))
	}
}

func TestLifecycleInitializeFailureRoutesToError(t *testing.T) {
	lc := NewLifecycle("demo", "trend", nil, nil, Hooks{
		OnInitialize: func() error { return errors.New("boom") },
	})
	if err := lc.Initialize(); err == nil {
		t.Fatal("expected initialize to fail")
	}
	if lc.Status() != domain.StrategyError {
		t.Fatalf("want Error, got %s", lc.Status())
	}
}

func TestLifecyclePositionRoundTrip(t *testing.T) {
	lc := NewLifecycle("demo", "trend", nil, nil, Hooks{})
	if err := lc.OnTradeUpdate(domain.TradeUpdate{Symbol: "BTCUSDT", Side: domain.SideBuy, Volume: 1, Price: 100}); err != nil {
		t.Fatal(err)
	}
	if err := lc.OnTradeUpdate(domain.TradeUpdate{Symbol: "BTCUSDT", Side: domain.SideSell, Volume: 1, Price: 100}); err != nil {
		t.Fatal(err)
	}
	pos := lc.Position("BTCUSDT")
	if pos.Volume > domain.Epsilon || pos.Volume < -domain.Epsilon {
		t.Fatalf("expected flat position, got %v", pos.Volume)
	}
	if pos.RealizedPnL != 0 {
		t.Fatalf("round trip at same price should realize 0 pnl, got %v", pos.RealizedPnL)
	}
}

type fakeStrategy struct {
	*Lifecycle
	marketDataCount int
	orderCount      int
}

func newFakeStrategy(name string, subs []SymbolExchange) *fakeStrategy {
	fs := &fakeStrategy{}
	fs.Lifecycle = NewLifecycle(name, "fake", nil, subs, Hooks{
		OnMarketData: func(domain.MarketData) error {
			fs.marketDataCount++
			return nil
		},
		OnOrderUpdate: func(domain.OrderUpdate) error {
			fs.orderCount++
			return nil
		},
	})
	return fs
}

func TestLifecycleStartRegistersDispatchMarketDataAsCallback(t *testing.T) {
	subs := &stubSubs{}
	fs := &fakeStrategy{}
	fs.Lifecycle = NewLifecycle("demo", "fake", subs, []SymbolExchange{{Symbol: "BTCUSDT", Exchange: "binance"}}, Hooks{
		OnMarketData: func(domain.MarketData) error {
			fs.marketDataCount++
			return nil
		},
	})
	if err := fs.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := fs.Start(); err != nil {
		t.Fatal(err)
	}

	cb := subs.callbacks[SymbolExchange{Symbol: "BTCUSDT", Exchange: "binance"}]
	if cb == nil {
		t.Fatal("expected Start to register a callback with the execution core")
	}
	cb(domain.MarketData{Symbol: "BTCUSDT", Source: "binance"})
	if fs.marketDataCount != 1 {
		t.Fatalf("want 1 dispatched market data event, got %d", fs.marketDataCount)
	}
}

func TestManagerOnOrderUpdateFiltersByStatusAndSubscription(t *testing.T) {
	m := NewManager(nil)
	btc := []SymbolExchange{{Symbol: "BTCUSDT", Exchange: "binance"}}
	eth := []SymbolExchange{{Symbol: "ETHUSDT", Exchange: "binance"}}

	running := newFakeStrategy("running-subscribed", btc)
	unsubscribed := newFakeStrategy("running-unsubscribed", eth)
	stopped := newFakeStrategy("stopped-subscribed", btc)
	m.Register(running)
	m.Register(unsubscribed)
	m.Register(stopped)

	if err := m.Start("running-subscribed"); err != nil {
		t.Fatal(err)
	}
	if err := m.Start("running-unsubscribed"); err != nil {
		t.Fatal(err)
	}

	m.OnOrderUpdate(domain.OrderUpdate{Symbol: "BTCUSDT", Source: "binance"})

	if running.orderCount != 1 {
		t.Fatalf("running strategy subscribed to the symbol should have received the event, got count %d", running.orderCount)
	}
	if unsubscribed.orderCount != 0 {
		t.Fatalf("running strategy subscribed to a different symbol should not receive the event, got count %d", unsubscribed.orderCount)
	}
	if stopped.orderCount != 0 {
		t.Fatalf("non-running strategy should not receive events even if subscribed, got count %d", stopped.orderCount)
	}
}

type panickyStrategy struct {
	*Lifecycle
}

func TestManagerHookPanicDoesNotStopBroadcast(t *testing.T) {
	m := NewManager(nil)
	btc := []SymbolExchange{{Symbol: "BTCUSDT", Exchange: "binance"}}
	panicky := &panickyStrategy{}
	panicky.Lifecycle = NewLifecycle("panicky", "fake", nil, btc, Hooks{
		OnOrderUpdate: func(domain.OrderUpdate) error { panic("boom") },
	})
	normal := newFakeStrategy("normal", btc)

	m.Register(panicky)
	m.Register(normal)
	if err := m.Start("panicky"); err != nil {
		t.Fatal(err)
	}
	if err := m.Start("normal"); err != nil {
		t.Fatal(err)
	}

	m.OnOrderUpdate(domain.OrderUpdate{Symbol: "BTCUSDT", Source: "binance"})

	if normal.orderCount != 1 {
		t.Fatalf("normal strategy should still receive events after a sibling panics, got %d", normal.orderCount)
	}
}
