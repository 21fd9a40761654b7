package binance

import (
	"testing"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
)

func TestOrderTypeAndSideTranslation(t *testing.T) {
	if got := string(toBinanceSide(domain.SideSell)); got != "SELL" {
		t.Fatalf("want SELL, got %v", got)
	}
	if got := string(toBinanceSide(domain.SideBuy)); got != "BUY" {
		t.Fatalf("want BUY, got %v", got)
	}
	if got := string(toBinanceType(domain.OrderTypeLimit)); got != "LIMIT" {
		t.Fatalf("want LIMIT, got %v", got)
	}
}

func TestFromBinanceStatusMapsToTerminalStates(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"NEW":              domain.OrderStatusPending,
		"PARTIALLY_FILLED": domain.OrderStatusPartial,
		"FILLED":           domain.OrderStatusFilled,
		"CANCELED":         domain.OrderStatusCancelled,
		"REJECTED":         domain.OrderStatusRejected,
	}
	for raw, want := range cases {
		if got := fromBinanceStatus(raw); got != want {
			t.Fatalf("status %s: want %s, got %s", raw, want, got)
		}
	}
	if !fromBinanceStatus("FILLED").IsTerminal() {
		t.Fatal("FILLED must translate to a terminal domain status")
	}
}

func TestNewAdapterStartsWithNoCachedStreams(t *testing.T) {
	a := New(Config{}, nil)
	if a.wsBaseURL == "" {
		t.Fatal("expected a websocket base url to be set")
	}
	// The lowercased stream name SubscribeMarketData composes is not checked
	// here, since subscribing dials the network; this only asserts the
	// adapter was constructed with a base url and no cached stream.
	a.mu.Lock()
	_, exists := a.streams["BTCUSDT"]
	a.mu.Unlock()
	if exists {
		t.Fatal("fresh adapter must not have any cached streams")
	}
}
