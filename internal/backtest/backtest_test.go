package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
)

type noopStrategy struct{}

func (noopStrategy) Initialize() error                            { return nil }
func (noopStrategy) Start() error                                 { return nil }
func (noopStrategy) Stop() error                                  { return nil }
func (noopStrategy) Cleanup() error                                { return nil }
func (noopStrategy) OnMarketData(domain.MarketData) error         { return nil }
func (noopStrategy) OnOrderUpdate(domain.OrderUpdate) error        { return nil }
func (noopStrategy) OnTradeUpdate(domain.TradeUpdate) error        { return nil }

func TestScenarioBuyThenSellAtProfit(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDriver(Config{InitialCapital: 10_000, Symbols: []domain.Symbol{"BTCUSDT"}})

	d.QueueFill(Fill{Timestamp: start, OrderID: "1", Symbol: "BTCUSDT", Side: domain.SideBuy, Price: 5_000, Volume: 1})
	d.QueueFill(Fill{Timestamp: start.Add(time.Minute), OrderID: "2", Symbol: "BTCUSDT", Side: domain.SideSell, Price: 5_500, Volume: 1})

	result, err := d.Run(noopStrategy{})
	if err != nil {
		t.Fatal(err)
	}

	if result.FinalCapital != 10_500 {
		t.Fatalf("want final capital 10500, got %v", result.FinalCapital)
	}
	if diff := result.TotalReturn - 0.05; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("want total return 0.05, got %v", result.TotalReturn)
	}
	if result.TotalTrades != 2 {
		t.Fatalf("want 2 trades, got %d", result.TotalTrades)
	}
	if len(result.EquityCurve) == 0 || result.EquityCurve[len(result.EquityCurve)-1].Equity != 10_500 {
		t.Fatalf("want equity curve's last value 10500, got %+v", result.EquityCurve)
	}
}

func TestWinLossClassificationUsesRealizedPnL(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDriver(Config{InitialCapital: 10_000, Symbols: []domain.Symbol{"ETHUSDT"}})

	d.QueueFill(Fill{Timestamp: start, OrderID: "1", Symbol: "ETHUSDT", Side: domain.SideBuy, Price: 100, Volume: 1})
	d.QueueFill(Fill{Timestamp: start.Add(time.Minute), OrderID: "2", Symbol: "ETHUSDT", Side: domain.SideSell, Price: 90, Volume: 1}) // losing trade

	result, err := d.Run(noopStrategy{})
	if err != nil {
		t.Fatal(err)
	}
	if result.WinningTrades != 0 {
		t.Fatalf("expected zero winning trades for a losing close, got %d", result.WinningTrades)
	}
	if result.AverageLoss <= 0 {
		t.Fatalf("expected a positive average loss magnitude, got %v", result.AverageLoss)
	}
}

func TestLoadMarketDataCSVFiltersDateRange(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "BTCUSDT.csv")
	content := "timestamp,lastPrice,bestBid,bestAsk\n" +
		"2024-01-01T00:00:00Z,100,99,101\n" +
		"2024-06-01T00:00:00Z,200,199,201\n" +
		"2025-01-01T00:00:00Z,300,299,301\n"
	if err := os.WriteFile(csvPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDriver(Config{
		DataDir:   dir,
		Symbols:   []domain.Symbol{"BTCUSDT"},
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	if err := d.LoadMarketDataCSV(); err != nil {
		t.Fatal(err)
	}
	if d.events.Len() != 1 {
		t.Fatalf("want 1 event within the date range, got %d", d.events.Len())
	}
}

func TestWriteEquityCurveAndTradesCSV(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDriver(Config{InitialCapital: 1_000, Symbols: []domain.Symbol{"BTCUSDT"}})
	d.QueueFill(Fill{Timestamp: start, OrderID: "1", Symbol: "BTCUSDT", Side: domain.SideBuy, Price: 100, Volume: 1})
	result, err := d.Run(noopStrategy{})
	if err != nil {
		t.Fatal(err)
	}

	equityPath := filepath.Join(dir, "equity.csv")
	tradesPath := filepath.Join(dir, "trades.csv")
	if err := WriteEquityCurveCSV(equityPath, result.EquityCurve); err != nil {
		t.Fatal(err)
	}
	if err := WriteTradesCSV(tradesPath, result, d.RealizedPnL()); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{equityPath, tradesPath} {
		info, err := os.Stat(p)
		if err != nil || info.Size() == 0 {
			t.Fatalf("expected a non-empty report file at %s", p)
		}
	}
}
