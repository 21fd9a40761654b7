// Package backtest replays historical market data through a strategy
// without touching any live exchange, grounded on
// original_source/include/algorithm/backtest_engine.hpp: same
// timestamp-ordered event replay, the same capital/equity-curve bookkeeping,
// and the same reported metric set. Two deliberate departures from the
// original are named where they occur: win/loss classification uses
// realized P&L rather than the original's non-compiling
// "trade.price > trade.averagePrice" comparison, and the event queue is a
// container/heap min-heap rather than a single pre-sorted vector, so
// multi-symbol CSV input does not need to be pre-merged.
package backtest

import (
	"container/heap"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
	"github.com/Quant-Club/Quant-Engine/internal/quant"
)

// Config configures a single backtest run.
type Config struct {
	DataDir         string
	StartDate       time.Time
	EndDate         time.Time
	InitialCapital  float64
	Symbols         []domain.Symbol
	TradingFees     map[domain.Symbol]float64 // fraction of notional, e.g. 0.0005
	Slippage        map[domain.Symbol]float64 // fraction of notional
}

// Strategy is the minimal capability set the backtest driver requires. It
// intentionally mirrors strategy.Strategy's hook surface, not the full
// interface, so a backtest can drive any type that implements these methods
// without importing the strategy package's lifecycle machinery.
type Strategy interface {
	Initialize() error
	Start() error
	Stop() error
	Cleanup() error
	OnMarketData(domain.MarketData) error
	OnOrderUpdate(domain.OrderUpdate) error
	OnTradeUpdate(domain.TradeUpdate) error
}

// Fill is a simulated order fill fed into the replay by the caller (a real
// backtest wires a strategy's order submissions to a simple fill model;
// this driver only owns event ordering and bookkeeping, not order matching).
type Fill struct {
	Timestamp time.Time
	OrderID   domain.OrderId
	Symbol    domain.Symbol
	Side      domain.OrderSide
	Price     float64
	Volume    float64
}

// Result is the summary produced by a completed run, matching the fields the
// original's BacktestResult reports.
type Result struct {
	FinalCapital  float64
	TotalReturn   float64
	SharpeRatio   float64
	ValueAtRisk95 float64
	MaxDrawdown   float64
	TotalTrades   int
	WinningTrades int
	WinRate       float64
	AverageWin    float64
	AverageLoss   float64
	EquityCurve   []EquityPoint
	Trades        []domain.TradeUpdate
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

type eventKind int

const (
	eventMarketData eventKind = iota
	eventFill
)

type replayEvent struct {
	timestamp time.Time
	kind      eventKind
	md        domain.MarketData
	fill      Fill
}

// eventHeap is a container/heap min-heap ordered by timestamp.
type eventHeap []replayEvent

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].timestamp.Before(h[j].timestamp) }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(replayEvent)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Driver replays a fixed set of market-data snapshots and fills, in
// timestamp order, against a strategy, and reports the resulting equity
// curve and trade statistics.
type Driver struct {
	cfg Config

	events        eventHeap
	currentTime   time.Time
	currentCap    float64
	peakCap       float64
	lastPrice     map[domain.Symbol]float64
	positions     map[domain.Symbol]domain.Position
	trades        []domain.TradeUpdate
	equityCurve   []EquityPoint
	fillRealized  []float64 // realized P&L per fill, parallel to trades
}

// NewDriver builds a Driver with an empty event queue; call
// LoadMarketDataCSV and QueueMarketData to populate it before Run.
func NewDriver(cfg Config) *Driver {
	return &Driver{
		cfg:         cfg,
		currentCap:  cfg.InitialCapital,
		peakCap:     cfg.InitialCapital,
		lastPrice:   make(map[domain.Symbol]float64),
		positions:   make(map[domain.Symbol]domain.Position),
	}
}

// QueueMarketData enqueues a market-data snapshot for replay.
func (d *Driver) QueueMarketData(md domain.MarketData) {
	heap.Push(&d.events, replayEvent{timestamp: md.Timestamp, kind: eventMarketData, md: md})
}

// QueueFill enqueues a simulated fill for replay.
func (d *Driver) QueueFill(f Fill) {
	heap.Push(&d.events, replayEvent{timestamp: f.Timestamp, kind: eventFill, fill: f})
}

// LoadMarketDataCSV loads one CSV file per configured symbol from
// cfg.DataDir, named "<symbol>.csv" with header
// "timestamp,lastPrice,bestBid,bestAsk", filtering rows outside
// [StartDate, EndDate]. This is the input-side counterpart to the two
// output CSVs named by the specification -- the original loads market data
// the same way, one file per symbol, skipping the header line.
func (d *Driver) LoadMarketDataCSV() error {
	for _, symbol := range d.cfg.Symbols {
		path := fmt.Sprintf("%s/%s.csv", d.cfg.DataDir, symbol)
		if err := d.loadSymbolCSV(symbol, path); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) loadSymbolCSV(symbol domain.Symbol, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("backtest: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("backtest: read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows[1:] { // skip header
		if len(row) < 4 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return fmt.Errorf("backtest: parse timestamp %q: %w", row[0], err)
		}
		if !d.cfg.StartDate.IsZero() && ts.Before(d.cfg.StartDate) {
			continue
		}
		if !d.cfg.EndDate.IsZero() && ts.After(d.cfg.EndDate) {
			continue
		}
		last, _ := strconv.ParseFloat(row[1], 64)
		bid, _ := strconv.ParseFloat(row[2], 64)
		ask, _ := strconv.ParseFloat(row[3], 64)
		d.QueueMarketData(domain.MarketData{
			Symbol:    symbol,
			Timestamp: ts,
			LastPrice: last,
			BestBid:   bid,
			BestAsk:   ask,
			Source:    "backtest",
		})
	}
	return nil
}

// Run drains the event queue in timestamp order, dispatching to strategy
// and updating capital/positions/equity as fills occur, then returns the
// computed Result.
func (d *Driver) Run(strategy Strategy) (Result, error) {
	if err := strategy.Initialize(); err != nil {
		return Result{}, fmt.Errorf("backtest: strategy initialize: %w", err)
	}
	if err := strategy.Start(); err != nil {
		return Result{}, fmt.Errorf("backtest: strategy start: %w", err)
	}

	heap.Init(&d.events)
	for d.events.Len() > 0 {
		ev := heap.Pop(&d.events).(replayEvent)
		d.currentTime = ev.timestamp
		switch ev.kind {
		case eventMarketData:
			d.lastPrice[ev.md.Symbol] = ev.md.LastPrice
			if err := strategy.OnMarketData(ev.md); err != nil {
				return Result{}, fmt.Errorf("backtest: OnMarketData: %w", err)
			}
		case eventFill:
			d.applyFill(ev.fill)
			trade := domain.TradeUpdate{
				OrderID:   ev.fill.OrderID,
				Symbol:    ev.fill.Symbol,
				Price:     ev.fill.Price,
				Volume:    ev.fill.Volume,
				Side:      ev.fill.Side,
				Timestamp: ev.fill.Timestamp,
				Source:    "backtest",
			}
			d.trades = append(d.trades, trade)
			if err := strategy.OnTradeUpdate(trade); err != nil {
				return Result{}, fmt.Errorf("backtest: OnTradeUpdate: %w", err)
			}
		}
		d.recordEquityPoint()
	}

	if err := strategy.Stop(); err != nil {
		return Result{}, fmt.Errorf("backtest: strategy stop: %w", err)
	}
	if err := strategy.Cleanup(); err != nil {
		return Result{}, fmt.Errorf("backtest: strategy cleanup: %w", err)
	}

	return d.buildResult(), nil
}

// applyFill charges the fee/slippage-adjusted trade cost against capital (a
// buy pays notional*(1+fee)*(1+slippage), a sell receives
// notional*(1-fee)*(1-slippage)) and updates the position via the same
// domain.ApplyTrade rule used everywhere else in the runtime, tracking
// realized P&L per fill for win/loss classification.
func (d *Driver) applyFill(f Fill) {
	signedVolume := f.Volume
	if f.Side == domain.SideSell {
		signedVolume = -f.Volume
	}

	notional := f.Price * f.Volume
	fee := d.cfg.TradingFees[f.Symbol]
	slip := d.cfg.Slippage[f.Symbol]
	if f.Side == domain.SideBuy {
		d.currentCap -= notional * (1 + fee) * (1 + slip)
	} else {
		d.currentCap += notional * (1 - fee) * (1 - slip)
	}

	pos := d.positions[f.Symbol]
	newPos, realized := domain.ApplyTrade(pos, signedVolume, f.Price)
	d.positions[f.Symbol] = newPos
	d.fillRealized = append(d.fillRealized, realized)
}

func (d *Driver) recordEquityPoint() {
	total := d.currentCap
	for symbol, pos := range d.positions {
		if last, ok := d.lastPrice[symbol]; ok {
			total += pos.Volume * last
		}
	}
	if total > d.peakCap {
		d.peakCap = total
	}
	d.equityCurve = append(d.equityCurve, EquityPoint{Timestamp: d.currentTime, Equity: total})
}

func (d *Driver) buildResult() Result {
	result := Result{
		FinalCapital: d.currentCap,
		TotalTrades:  len(d.trades),
		EquityCurve:  d.equityCurve,
		Trades:       d.trades,
	}
	// re-add any open position's mark-to-market value at the last known price
	final := d.currentCap
	for symbol, pos := range d.positions {
		if last, ok := d.lastPrice[symbol]; ok {
			final += pos.Volume * last
		}
	}
	result.FinalCapital = final

	if d.cfg.InitialCapital != 0 {
		result.TotalReturn = (final - d.cfg.InitialCapital) / d.cfg.InitialCapital
	}

	returns := d.periodReturns()
	result.SharpeRatio = sharpeRatio(returns)
	if var95, err := quant.ValueAtRisk(returns, 0.95); err == nil {
		result.ValueAtRisk95 = var95
	}
	result.MaxDrawdown = d.maxDrawdown()

	var totalWins, totalLosses float64
	var winCount, lossCount int
	for _, pnl := range d.fillRealized {
		switch {
		case pnl > 0:
			totalWins += pnl
			winCount++
		case pnl < 0:
			totalLosses += -pnl
			lossCount++
		}
	}
	result.WinningTrades = winCount
	if result.TotalTrades > 0 {
		result.WinRate = float64(winCount) / float64(result.TotalTrades)
	}
	if winCount > 0 {
		result.AverageWin = totalWins / float64(winCount)
	}
	if lossCount > 0 {
		result.AverageLoss = totalLosses / float64(lossCount)
	}
	return result
}

// periodReturns computes the equity curve's period-over-period returns, the
// input series both sharpeRatio and quant.ValueAtRisk operate on.
func (d *Driver) periodReturns() []float64 {
	if len(d.equityCurve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(d.equityCurve)-1)
	for i := 1; i < len(d.equityCurve); i++ {
		prev := d.equityCurve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (d.equityCurve[i].Equity-prev)/prev)
	}
	return returns
}

func sharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}

func (d *Driver) maxDrawdown() float64 {
	maxDD := 0.0
	peak := d.cfg.InitialCapital
	for _, point := range d.equityCurve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak == 0 {
			continue
		}
		dd := (peak - point.Equity) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
