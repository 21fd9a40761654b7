package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// WriteEquityCurveCSV writes the equity curve to path with the columns
// named by the specification: timestamp,equity.
func WriteEquityCurveCSV(path string, points []EquityPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backtest: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "equity"}); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			p.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(p.Equity, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteTradesCSV writes the completed run's trades to path with the columns
// named by the specification: timestamp,orderId,symbol,side,price,volume,
// realizedPnl. realized must be parallel to result.Trades (Driver.Run keeps
// this invariant internally via fillRealized).
func WriteTradesCSV(path string, result Result, realized []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backtest: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "orderId", "symbol", "side", "price", "volume", "realizedPnl"}); err != nil {
		return err
	}
	for i, t := range result.Trades {
		pnl := 0.0
		if i < len(realized) {
			pnl = realized[i]
		}
		row := []string{
			t.Timestamp.Format(time.RFC3339),
			string(t.OrderID),
			string(t.Symbol),
			string(t.Side),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.Volume, 'f', -1, 64),
			strconv.FormatFloat(pnl, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// RealizedPnL exposes the per-fill realized P&L computed during Run, in
// the same order as Result.Trades, for callers that want to write a trades
// report via WriteTradesCSV.
func (d *Driver) RealizedPnL() []float64 {
	return d.fillRealized
}
