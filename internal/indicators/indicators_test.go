package indicators

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestSimpleMA(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5}
	out := SimpleMA(series, 3)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Fatalf("expected NaN warmup, got %v", out[:2])
	}
	if !almostEqual(out[2], 2, 1e-9) || !almostEqual(out[3], 3, 1e-9) || !almostEqual(out[4], 4, 1e-9) {
		t.Fatalf("unexpected SMA values: %v", out)
	}
}

func TestExponentialMASeedsOnFirstValue(t *testing.T) {
	series := []float64{10, 10, 10}
	out := ExponentialMA(series, 5)
	for i, v := range out {
		if !almostEqual(v, 10, 1e-9) {
			t.Fatalf("constant series should stay constant under EMA, idx %d got %v", i, v)
		}
	}
}

func TestWeightedMAWeightsRecentBarMost(t *testing.T) {
	series := []float64{1, 1, 1, 100}
	out := WeightedMA(series, 4)
	// weights 1,2,3,4 sum 10; (1+2+3+400)/10 = 40.6
	if !almostEqual(out[3], 40.6, 1e-9) {
		t.Fatalf("WMA = %v, want 40.6", out[3])
	}
}

func TestHullMALength(t *testing.T) {
	series := make([]float64, 50)
	for i := range series {
		series[i] = float64(i)
	}
	out := HullMA(series, 16)
	if len(out) != len(series) {
		t.Fatalf("HMA length mismatch")
	}
	// on a straight ramp, HMA should track close to the ramp value once warmed up
	if !almostEqual(out[49], 49, 1.0) {
		t.Fatalf("HMA on linear ramp = %v, want close to 49", out[49])
	}
}

func TestMADispatchUnknownReturnsNaN(t *testing.T) {
	out := MA(MAType("bogus"), []float64{1, 2, 3}, 2, nil, nil, nil)
	for _, v := range out {
		if !math.IsNaN(v) {
			t.Fatalf("expected all NaN for unknown MA type, got %v", out)
		}
	}
}

func TestATRConstantSeriesIsZero(t *testing.T) {
	n := 20
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	for i := range high {
		high[i] = 10
		low[i] = 10
		close[i] = 10
	}
	out := ATR(high, low, close, 14)
	for i, v := range out {
		if !almostEqual(v, 0, 1e-9) {
			t.Fatalf("ATR on flat series should be 0 at idx %d, got %v", i, v)
		}
	}
}

func TestRSIUptrendApproachesHundred(t *testing.T) {
	n := 30
	close := make([]float64, n)
	for i := range close {
		close[i] = float64(i)
	}
	out := RSI(close, 14)
	last := out[n-1]
	if last < 90 {
		t.Fatalf("RSI on a pure uptrend should approach 100, got %v", last)
	}
}

func TestStochRSIBounded(t *testing.T) {
	n := 60
	close := make([]float64, n)
	for i := range close {
		close[i] = float64(i%10) + float64(i)*0.1
	}
	k, d := StochRSI(close, 14, 14, 3, 3)
	for i := range k {
		if math.IsNaN(k[i]) {
			continue
		}
		if k[i] < -1e-9 || k[i] > 100+1e-9 {
			t.Fatalf("%%K out of bounds at %d: %v", i, k[i])
		}
	}
	if len(d) != n {
		t.Fatalf("%%D length mismatch")
	}
}
