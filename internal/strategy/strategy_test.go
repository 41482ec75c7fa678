package strategy

import (
	"testing"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

func TestRegistryListAndCreate(t *testing.T) {
	r := NewRegistry(nil)
	ids := r.List()
	if len(ids) != 2 {
		t.Fatalf("expected 2 built-in strategies, got %d (%v)", len(ids), ids)
	}
	if _, ok := r.Create("s01_trailing_ma"); !ok {
		t.Fatal("expected s01_trailing_ma to be registered")
	}
	if _, ok := r.Create("does_not_exist"); ok {
		t.Fatal("expected unknown strategy id to fail lookup")
	}
}

func syntheticUptrend(n int) types.OHLCVTable {
	bars := make([]types.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.5
		bars[i] = types.Bar{
			Time: int64(i * 3600), Open: price - 0.2, High: price + 0.3, Low: price - 0.4,
			Close: price, Volume: 1000,
		}
	}
	return types.NewOHLCVTable(bars)
}

func TestS01TrailingMARunProducesConsistentCurves(t *testing.T) {
	s := NewS01TrailingMA()
	table := syntheticUptrend(400)
	result, err := s.Run(table, types.Params{"maLength": 20, "atrPeriod": 14}, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.EquityCurve) != table.Len() || len(result.BalanceCurve) != table.Len() || len(result.Timestamps) != table.Len() {
		t.Fatalf("curve lengths must match bar count: equity=%d balance=%d ts=%d bars=%d",
			len(result.EquityCurve), len(result.BalanceCurve), len(result.Timestamps), table.Len())
	}
	for _, tr := range result.Trades {
		if tr.ExitTime < tr.EntryTime {
			t.Fatalf("trade exit before entry: %+v", tr)
		}
		if !tr.Size.IsPositive() {
			t.Fatalf("trade size must be positive: %+v", tr)
		}
	}
}

func TestS01TrailingMARejectsUnknownMAType(t *testing.T) {
	s := NewS01TrailingMA()
	table := syntheticUptrend(50)
	_, err := s.Run(table, types.Params{"maType": "NOT_A_MA"}, 0)
	if err == nil {
		t.Fatal("expected error for unknown MA type")
	}
}

func TestS01TrailingMADeterministic(t *testing.T) {
	s := NewS01TrailingMA()
	table := syntheticUptrend(300)
	params := types.Params{"maLength": 15}
	r1, err1 := s.Run(table, params, 0)
	r2, err2 := s.Run(table, params, 0)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if len(r1.Trades) != len(r2.Trades) {
		t.Fatalf("non-deterministic trade count: %d vs %d", len(r1.Trades), len(r2.Trades))
	}
	for i := range r1.EquityCurve {
		if r1.EquityCurve[i] != r2.EquityCurve[i] {
			t.Fatalf("non-deterministic equity curve at bar %d", i)
		}
	}
}

func TestS04StochRSIBalanceMixRatioZeroMatchesRealized(t *testing.T) {
	s := NewS04StochRSI()
	table := syntheticUptrend(200)
	result, err := s.Run(table, types.Params{"balanceMixRatio": 0.0}, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// With a zero mix ratio the balance curve never includes unrealized P&L,
	// so it can only change on bars where a trade opened (entry commission)
	// or closed: at most twice per trade, plus once for a position still
	// open on the last bar.
	changes := 0
	for i := 1; i < len(result.BalanceCurve); i++ {
		if result.BalanceCurve[i] != result.BalanceCurve[i-1] {
			changes++
		}
	}
	if changes > 2*len(result.Trades)+1 {
		t.Fatalf("balance curve changed %d times with only %d trades", changes, len(result.Trades))
	}
}

func TestS04StochRSIRejectsInvalidThresholds(t *testing.T) {
	s := NewS04StochRSI()
	table := syntheticUptrend(50)
	_, err := s.Run(table, types.Params{"oversold": 90, "overbought": 80}, 0)
	if err == nil {
		t.Fatal("expected error when overbought <= oversold")
	}
}
