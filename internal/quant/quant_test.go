package quant

import (
	"math"
	"math/rand"
	"testing"
)

func TestMovingAverageWindow(t *testing.T) {
	out, err := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 3, 4}
	for i, v := range want {
		if math.Abs(out[i]-v) > 1e-9 {
			t.Fatalf("index %d: want %v, got %v", i, v, out[i])
		}
	}
}

func TestMovingAverageInsufficientData(t *testing.T) {
	if _, err := MovingAverage([]float64{1, 2}, 5); err != ErrInsufficientData {
		t.Fatalf("want ErrInsufficientData, got %v", err)
	}
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6}
	out, err := RSI(closes, 5)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 100 {
		t.Fatalf("want RSI 100 on an all-gains series, got %v", out[0])
	}
}

func TestBlackScholesCallAtExpiryIsIntrinsicValue(t *testing.T) {
	price := BlackScholes(Call, 110, 100, 0.05, 0.2, 0)
	if math.Abs(price-10) > 1e-9 {
		t.Fatalf("want intrinsic value 10, got %v", price)
	}
}

func TestMonteCarloIsDeterministicWithSeededRNG(t *testing.T) {
	rng1 := rand.New(rand.NewSource(42))
	rng2 := rand.New(rand.NewSource(42))
	r1 := MonteCarlo(100, 0.05, 0.2, 1, 1000, rng1)
	r2 := MonteCarlo(100, 0.05, 0.2, 1, 1000, rng2)
	if r1.MeanTerminal != r2.MeanTerminal || r1.StdDev != r2.StdDev {
		t.Fatalf("expected identical results from identically seeded RNGs, got %+v vs %+v", r1, r2)
	}
}

func TestPortfolioOptimizationWeightsSumToOne(t *testing.T) {
	cov := [][]float64{
		{0.04, 0.01},
		{0.01, 0.09},
	}
	weights, err := PortfolioOptimization(cov)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("want weights summing to 1, got %v (sum %v)", weights, sum)
	}
}

func TestValueAtRiskReturnsPositiveLossMagnitude(t *testing.T) {
	returns := []float64{0.01, -0.05, 0.02, -0.10, 0.03, -0.02, 0.01, -0.01}
	v, err := ValueAtRisk(returns, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if v <= 0 {
		t.Fatalf("VaR must be a positive loss magnitude for a series with losses, got %v", v)
	}
}
