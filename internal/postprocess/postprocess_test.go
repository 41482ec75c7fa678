package postprocess

import (
	"testing"

	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

func syntheticTable(n int) types.OHLCVTable {
	bars := make([]types.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.25
		bars[i] = types.Bar{
			Time: int64(i * 3600), Open: price - 0.2, High: price + 0.3, Low: price - 0.4,
			Close: price, Volume: 1000,
		}
	}
	return types.NewOHLCVTable(bars)
}

func oneCandidate(t *testing.T, s strategy.Strategy, table types.OHLCVTable, params types.Params) Candidate {
	t.Helper()
	result, err := s.Run(table, params, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return Candidate{TrialNumber: 1, Params: params, IS: result}
}

func TestRunForwardTestComputesDegradation(t *testing.T) {
	s := strategy.NewS01TrailingMA()
	table := syntheticTable(500)
	c := oneCandidate(t, s, table, types.Params{"maLength": 20})

	results := RunForwardTest(s, table, []Candidate{c}, types.PostProcessConfig{FTPeriodDays: 5})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ISProfitPct != c.IS.Basic.NetProfitPct {
		t.Fatalf("ISProfitPct mismatch: %v vs %v", r.ISProfitPct, c.IS.Basic.NetProfitPct)
	}
}

func TestRunDSRRanksByDeflatedSharpe(t *testing.T) {
	s := strategy.NewS01TrailingMA()
	table := syntheticTable(500)
	c1 := oneCandidate(t, s, table, types.Params{"maLength": 15})
	c2 := oneCandidate(t, s, table, types.Params{"maLength": 45})

	results := RunDSR([]Candidate{c1, c2}, 20)
	if len(results) != 2 {
		t.Fatalf("expected 2 DSR results, got %d", len(results))
	}
	ranked := RankByDSR(results)
	if ranked[0].DeflatedSharpe < ranked[1].DeflatedSharpe {
		t.Fatal("RankByDSR did not sort descending")
	}
}

func TestRunStressTestSkipsBadBase(t *testing.T) {
	s := strategy.NewS01TrailingMA()
	table := syntheticTable(100)
	c := Candidate{
		TrialNumber: 1,
		Params:      types.Params{"maLength": 20},
		IS:          types.StrategyResult{Basic: types.BasicMetrics{NetProfitPct: -5}},
	}
	result := RunStressTest(s, table, 0, c, s.ParamSchema(), types.PostProcessConfig{FailureThreshold: 0.5})
	if result.Status != StatusSkippedBadBase {
		t.Fatalf("expected StatusSkippedBadBase, got %v", result.Status)
	}
}

func TestRunStressTestOKProducesRetention(t *testing.T) {
	s := strategy.NewS01TrailingMA()
	table := syntheticTable(500)
	params := types.Params{"maLength": 30}
	c := oneCandidate(t, s, table, params)
	if c.IS.Basic.NetProfitPct <= 0 {
		t.Skip("synthetic uptrend did not produce a positive base profit for this seed")
	}

	result := RunStressTest(s, table, 0, c, s.ParamSchema(), types.PostProcessConfig{FailureThreshold: 0.5})
	if result.Status != StatusOK {
		t.Fatalf("expected StatusOK, got %v (perturbations=%d)", result.Status, result.NumPerturbations)
	}
	if result.NumPerturbations == 0 {
		t.Fatal("expected at least one perturbation")
	}
}

func TestSelectSurvivorsPrefersSTOverFallbacks(t *testing.T) {
	st := []StressTestResult{{TrialNumber: 1, Status: StatusOK, Params: types.Params{"a": 1}}}
	ft := []ForwardTestResult{{TrialNumber: 2, Params: types.Params{"a": 2}}}
	survivors := SelectSurvivors(5, st, ft, nil, nil)
	if len(survivors) != 1 || survivors[0].Source != "st" {
		t.Fatalf("expected ST survivor, got %+v", survivors)
	}
}

func TestSelectSurvivorsFallsBackToOptunaWhenNoModulesRan(t *testing.T) {
	optuna := []Candidate{{TrialNumber: 9, Params: types.Params{"a": 9}}}
	survivors := SelectSurvivors(5, nil, nil, nil, optuna)
	if len(survivors) != 1 || survivors[0].Source != "optuna" {
		t.Fatalf("expected optuna fallback survivor, got %+v", survivors)
	}
}

func TestInvNormCDFRoundTripsNormCDF(t *testing.T) {
	for _, p := range []float64{0.01, 0.25, 0.5, 0.75, 0.99} {
		z := invNormCDF(p)
		back := normCDF(z)
		if diff := back - p; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("invNormCDF/normCDF round trip failed for p=%v: got %v", p, back)
		}
	}
}
