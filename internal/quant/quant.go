// Package quant implements the CPU-only indicator and pricing capability
// set named by the specification: moving_average, exponential_moving_average,
// bollinger_bands, rsi, black_scholes, monte_carlo, portfolio_optimization,
// and value_at_risk. Grounded on the reference codebase's indicators package
// shape (Candle input, plain functions over slices) and
// original_source/include/model/kernels.hpp's operation set, without the
// GPU/CPU backend abstraction that header wraps around them -- out of core
// scope per the specification's design notes.
package quant

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// ErrInsufficientData is returned when an input series is shorter than the
// requested period.
var ErrInsufficientData = errors.New("quant: insufficient data for period")

// MovingAverage computes the simple moving average over period-sized
// windows of closes, producing len(closes)-period+1 values.
func MovingAverage(closes []float64, period int) ([]float64, error) {
	if period <= 0 || len(closes) < period {
		return nil, ErrInsufficientData
	}
	out := make([]float64, len(closes)-period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	out[0] = sum / float64(period)
	for i := period; i < len(closes); i++ {
		sum += closes[i] - closes[i-period]
		out[i-period+1] = sum / float64(period)
	}
	return out, nil
}

// ExponentialMovingAverage computes the EMA over closes with the standard
// smoothing factor 2/(period+1), seeded by the simple average of the first
// period values.
func ExponentialMovingAverage(closes []float64, period int) ([]float64, error) {
	if period <= 0 || len(closes) < period {
		return nil, ErrInsufficientData
	}
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(closes)-period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	out[0] = sum / float64(period)
	for i := period; i < len(closes); i++ {
		out[i-period+1] = alpha*closes[i] + (1-alpha)*out[i-period]
	}
	return out, nil
}

// BollingerBands returns the middle (SMA), upper, and lower bands for
// closes over period, at numStdDev standard deviations.
func BollingerBands(closes []float64, period int, numStdDev float64) (middle, upper, lower []float64, err error) {
	middle, err = MovingAverage(closes, period)
	if err != nil {
		return nil, nil, nil, err
	}
	upper = make([]float64, len(middle))
	lower = make([]float64, len(middle))
	for i := range middle {
		window := closes[i : i+period]
		variance := 0.0
		for _, v := range window {
			d := v - middle[i]
			variance += d * d
		}
		stdDev := math.Sqrt(variance / float64(period))
		upper[i] = middle[i] + numStdDev*stdDev
		lower[i] = middle[i] - numStdDev*stdDev
	}
	return middle, upper, lower, nil
}

// RSI computes the relative strength index over period, producing
// len(closes)-period values using Wilder's smoothing.
func RSI(closes []float64, period int) ([]float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return nil, ErrInsufficientData
	}
	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta >= 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	out := make([]float64, len(closes)-period)
	out[0] = rsiFromAverages(avgGain, avgLoss)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta >= 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i-period] = rsiFromAverages(avgGain, avgLoss)
	}
	return out, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// OptionType distinguishes a call from a put in BlackScholes.
type OptionType int

const (
	Call OptionType = iota
	Put
)

// BlackScholes prices a European option: spot S, strike K, risk-free rate r,
// volatility sigma, time to expiry t (years).
func BlackScholes(kind OptionType, s, k, r, sigma, t float64) float64 {
	if t <= 0 || sigma <= 0 {
		if kind == Call {
			return math.Max(s-k, 0)
		}
		return math.Max(k-s, 0)
	}
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
	d2 := d1 - sigma*math.Sqrt(t)
	if kind == Call {
		return s*normCDF(d1) - k*math.Exp(-r*t)*normCDF(d2)
	}
	return k*math.Exp(-r*t)*normCDF(-d2) - s*normCDF(-d1)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// MonteCarloResult summarizes a Monte Carlo terminal-price simulation.
type MonteCarloResult struct {
	MeanTerminal float64
	StdDev       float64
	Paths        int
}

// MonteCarlo simulates numPaths geometric Brownian motion paths for a spot
// price s over t years with drift mu and volatility sigma, using rng for
// reproducibility (pass rand.New(rand.NewSource(seed)) for deterministic
// tests).
func MonteCarlo(s, mu, sigma, t float64, numPaths int, rng *rand.Rand) MonteCarloResult {
	if numPaths <= 0 {
		return MonteCarloResult{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	sum, sumSq := 0.0, 0.0
	for i := 0; i < numPaths; i++ {
		z := rng.NormFloat64()
		terminal := s * math.Exp((mu-0.5*sigma*sigma)*t+sigma*math.Sqrt(t)*z)
		sum += terminal
		sumSq += terminal * terminal
	}
	mean := sum / float64(numPaths)
	variance := sumSq/float64(numPaths) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return MonteCarloResult{MeanTerminal: mean, StdDev: math.Sqrt(variance), Paths: numPaths}
}

// PortfolioOptimization computes minimum-variance weights for a set of
// assets given their covariance matrix, normalized to sum to 1. This is the
// closed-form global-minimum-variance portfolio (no target-return
// constraint), a reasonable conformance target for the capability named by
// the specification without pulling in a full QP solver.
func PortfolioOptimization(covariance [][]float64) ([]float64, error) {
	n := len(covariance)
	if n == 0 {
		return nil, errors.New("quant: empty covariance matrix")
	}
	inv, err := invert(covariance)
	if err != nil {
		return nil, err
	}
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	numer := matVec(inv, ones)
	denom := 0.0
	for _, v := range numer {
		denom += v
	}
	if denom == 0 {
		return nil, errors.New("quant: degenerate covariance matrix")
	}
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = numer[i] / denom
	}
	return weights, nil
}

// ValueAtRisk estimates historical (empirical) VaR at the given confidence
// level (e.g. 0.95) from a series of period returns, returned as a
// non-negative number representing the loss magnitude (0 when the return at
// that quantile is not a loss).
func ValueAtRisk(returns []float64, confidence float64) (float64, error) {
	if len(returns) == 0 {
		return 0, ErrInsufficientData
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int((1 - confidence) * float64(len(sorted)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	loss := -sorted[idx]
	if loss < 0 {
		loss = 0
	}
	return loss, nil
}

// invert computes the matrix inverse via Gauss-Jordan elimination. Adequate
// for the small covariance matrices (tens of assets) this capability targets.
func invert(a [][]float64) ([][]float64, error) {
	n := len(a)
	aug := make([][]float64, n)
	for i := range a {
		row := make([]float64, 2*n)
		copy(row, a[i])
		row[n+i] = 1
		aug[i] = row
	}
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return nil, errors.New("quant: singular matrix")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]
		pv := aug[col][col]
		for c := 0; c < 2*n; c++ {
			aug[col][c] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			for c := 0; c < 2*n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = append([]float64(nil), aug[i][n:]...)
	}
	return inv, nil
}

func matVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		sum := 0.0
		for j, val := range row {
			sum += val * v[j]
		}
		out[i] = sum
	}
	return out
}
