package walkforward

import (
	"context"
	"testing"

	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

func syntheticTable(n int) types.OHLCVTable {
	bars := make([]types.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.2
		bars[i] = types.Bar{
			Time: int64(i * 3600), Open: price - 0.2, High: price + 0.3, Low: price - 0.4,
			Close: price, Volume: 1000,
		}
	}
	return types.NewOHLCVTable(bars)
}

func basicWFAConfig() types.WFAConfig {
	return types.WFAConfig{
		Optimization: types.OptimizationConfig{
			Objectives:        []string{"net_profit_pct"},
			PrimaryObjective:  "net_profit_pct",
			Sampler:           types.SamplerRandom,
			BudgetMode:        types.BudgetTrials,
			BudgetTrialsCount: 6,
			NumWorkers:        2,
			SanitizeEnabled:   true,
			SanitizeTradesThreshold: 5,
			ScoreConfig: types.ScoreConfig{
				Normalization: types.NormalizationMinMax,
				Metrics: []types.ScoreMetricConfig{
					{Metric: "net_profit_pct", Weight: 1, Enabled: true, Min: -50, Max: 50},
				},
			},
		},
		ISPeriodDays:          5,
		OOSPeriodDays:         3,
		MaxOOSPeriodDays:      6,
		MinOOSTrades:          1,
		CheckIntervalTrades:   1,
		CUSUMThreshold:        4,
		DDThresholdMultiplier: 2,
		InactivityMultiplier:  5,
		MinCUSUMSamples:       2,
		StoreTopNTrials:       3,
	}
}

func TestFixedWindowsAreContiguousAndDayAligned(t *testing.T) {
	table := syntheticTable(24 * 40)
	cfg := basicWFAConfig()

	windows, _, err := FixedWindows(table, cfg)
	if err != nil {
		t.Fatalf("FixedWindows() error = %v", err)
	}
	if len(windows) < 2 {
		t.Fatalf("expected at least 2 windows, got %d", len(windows))
	}
	for _, w := range windows {
		if w.OOSStartTime != w.ISEndTime {
			t.Errorf("window %d: OOS does not start where IS ends", w.Number)
		}
		if w.ISStartTime%secondsPerDay != 0 {
			t.Errorf("window %d: IS start not day-aligned", w.Number)
		}
	}
}

func TestAdaptiveBaseWindowCapsAtMaxOOSPeriod(t *testing.T) {
	table := syntheticTable(24 * 40)
	cfg := basicWFAConfig()

	w, ok := AdaptiveBaseWindow(table, dayAlign(table.Bar(0).Time), cfg)
	if !ok {
		t.Fatal("expected a window")
	}
	gotDays := (w.OOSEndTime - w.OOSStartTime) / secondsPerDay
	if gotDays != int64(cfg.MaxOOSPeriodDays) {
		t.Fatalf("expected OOS span of %d days, got %d", cfg.MaxOOSPeriodDays, gotDays)
	}
}

func TestCheckCUSUMFiresOnSustainedLosses(t *testing.T) {
	baseline := ISBaseline{NumTrades: 20, TradeReturnMean: 0.5, TradeReturnStdDev: 1.0}
	cfg := basicWFAConfig()

	trades := make([]types.TradeRecord, 0, 10)
	for i := 0; i < 10; i++ {
		loss := -3.0
		trades = append(trades, types.TradeRecord{
			EntryTime: int64(i * 3600), ExitTime: int64(i*3600 + 1800), ProfitPct: &loss,
		})
	}

	outcome := CheckCUSUM(trades, baseline, cfg)
	if !outcome.Triggered {
		t.Fatal("expected CUSUM to fire on a sustained run of losses")
	}
	if outcome.Detail.CUSUMFinal == nil || *outcome.Detail.CUSUMFinal < cfg.CUSUMThreshold {
		t.Fatalf("expected recorded CUSUM >= threshold, got %v", outcome.Detail.CUSUMFinal)
	}
}

func TestCheckCUSUMDisabledWithoutISVariance(t *testing.T) {
	baseline := ISBaseline{NumTrades: 1}
	cfg := basicWFAConfig()
	outcome := CheckCUSUM(nil, baseline, cfg)
	if outcome.Triggered {
		t.Fatal("CUSUM must not fire when the IS baseline has no usable variance")
	}
}

func TestCheckCUSUMCheckpointsAnchorAtMinOOSTrades(t *testing.T) {
	baseline := ISBaseline{NumTrades: 20, TradeReturnMean: 0.5, TradeReturnStdDev: 1.0}
	cfg := basicWFAConfig()
	cfg.MinOOSTrades = 2
	cfg.CheckIntervalTrades = 3
	cfg.CUSUMThreshold = 4 // first crossed at trade 3, which is not a checkpoint

	trades := make([]types.TradeRecord, 0, 8)
	for i := 0; i < 8; i++ {
		loss := -1.0
		trades = append(trades, types.TradeRecord{
			EntryTime: int64(i * 3600), ExitTime: int64(i*3600 + 1800), ProfitPct: &loss,
		})
	}

	// With MinOOSTrades=2 and CheckIntervalTrades=3, checkpoints fall at
	// trade counts 2, 5, 8 -- never at a bare multiple of 3 like 3 or 6.
	// Each -1% trade adds 1.5 to the CUSUM (3.0 at trade 2, 4.5 at trade 3),
	// so it is first evaluated above the threshold at trade 5 (index 4).
	outcome := CheckCUSUM(trades, baseline, cfg)
	if !outcome.Triggered {
		t.Fatal("expected CUSUM to fire at the first checkpoint past the threshold crossing")
	}
	if outcome.Detail.TriggerTradeIdx != 4 {
		t.Fatalf("expected CUSUM to fire at trade index 4 (checkpoint 5), got %d", outcome.Detail.TriggerTradeIdx)
	}
}

func TestCheckDrawdownFiresAtTradeExitNotIntraTradeDip(t *testing.T) {
	baseline := ISBaseline{MaxDrawdownPct: 10}
	cfg := basicWFAConfig()
	cfg.DDThresholdMultiplier = 2 // threshold = 20%

	// Equity dips below the 20% drawdown threshold between bars 1 and 2,
	// then recovers by the time the only trade in the window exits at bar 3.
	equity := []float64{100, 75, 100, 100}
	timestamps := []int64{0, 3600, 7200, 10800}
	profit := 0.0
	trades := []types.TradeRecord{{EntryTime: 0, ExitTime: 10800, ProfitPct: &profit}}

	outcome := CheckDrawdown(trades, equity, timestamps, 10800, baseline, cfg)
	if outcome.Triggered {
		t.Fatal("expected drawdown to be sampled only at the trade exit, where it has already recovered")
	}
}

func TestCheckDrawdownFiresAtTradeExitWhenDrawdownPersists(t *testing.T) {
	baseline := ISBaseline{MaxDrawdownPct: 10}
	cfg := basicWFAConfig()
	cfg.DDThresholdMultiplier = 2 // threshold = 20%

	equity := []float64{100, 75, 70, 70}
	timestamps := []int64{0, 3600, 7200, 10800}
	profit := 0.0
	trades := []types.TradeRecord{{EntryTime: 0, ExitTime: 10800, ProfitPct: &profit}}

	outcome := CheckDrawdown(trades, equity, timestamps, 10800, baseline, cfg)
	if !outcome.Triggered {
		t.Fatal("expected drawdown still in excess of threshold at trade exit to fire")
	}
	if outcome.AtTime != 10800 {
		t.Fatalf("expected trigger timestamp to be the trade exit time, got %d", outcome.AtTime)
	}
}

func TestCheckDrawdownWithNoTradesChecksOOSMaxEnd(t *testing.T) {
	baseline := ISBaseline{MaxDrawdownPct: 10}
	cfg := basicWFAConfig()
	cfg.DDThresholdMultiplier = 2 // threshold = 20%

	equity := []float64{100, 75, 70, 70}
	timestamps := []int64{0, 3600, 7200, 10800}

	outcome := CheckDrawdown(nil, equity, timestamps, 10800, baseline, cfg)
	if !outcome.Triggered {
		t.Fatal("expected the no-trades case to fall back to checking drawdown at oosMaxEnd")
	}
}

func TestStitchCompoundsEquityAcrossWindows(t *testing.T) {
	windows := []types.WFAWindow{
		{
			ISStart: 0, ISEnd: 5 * secondsPerDay,
			OOSStart: 5 * secondsPerDay, OOSEnd: 8 * secondsPerDay,
			ISMetrics:           types.BasicMetrics{NetProfitPct: 10},
			OOSMetrics:          types.BasicMetrics{NetProfitPct: 10, TotalTrades: 4, WinningTrades: 3},
			OOSEquityCurveDense: []float64{100, 110},
			OOSTimestampsDense:  []int64{5 * secondsPerDay, 8 * secondsPerDay},
		},
		{
			ISStart: 3 * secondsPerDay, ISEnd: 8 * secondsPerDay,
			OOSStart: 8 * secondsPerDay, OOSEnd: 11 * secondsPerDay,
			ISMetrics:           types.BasicMetrics{NetProfitPct: 5},
			OOSMetrics:          types.BasicMetrics{NetProfitPct: -10, TotalTrades: 2, WinningTrades: 0},
			OOSEquityCurveDense: []float64{110, 99},
			OOSTimestampsDense:  []int64{8 * secondsPerDay, 11 * secondsPerDay},
		},
	}

	result := Stitch(windows, 100)
	if len(result.StitchedEquityCurve) != 4 {
		t.Fatalf("expected 4 stitched points, got %d", len(result.StitchedEquityCurve))
	}
	wantFinal := 99.0
	got := result.StitchedEquityCurve[len(result.StitchedEquityCurve)-1]
	if diff := got - wantFinal; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("final stitched equity = %v, want %v", got, wantFinal)
	}
	if result.StitchedTotalTrades != 6 {
		t.Fatalf("StitchedTotalTrades = %d, want 6", result.StitchedTotalTrades)
	}
	wantWinRate := 3.0 / 6.0 * 100
	if diff := result.OOSWinRate - wantWinRate; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("OOSWinRate = %v, want %v", result.OOSWinRate, wantWinRate)
	}
	if result.StitchedMaxDrawdownPct <= 0 {
		t.Fatal("expected a positive stitched max drawdown after the second window's loss")
	}
}

func TestStitchEmptyWindowsReturnsZeroValue(t *testing.T) {
	result := Stitch(nil, 100)
	if len(result.Windows) != 0 || result.WFE != 0 {
		t.Fatalf("expected zero-value result for no windows, got %+v", result)
	}
}

func TestEngineRunFixedProducesStitchedResult(t *testing.T) {
	table := syntheticTable(24 * 40)
	cfg := basicWFAConfig()
	s := strategy.NewS04StochRSI()

	engine := NewEngine(nil)
	result, err := engine.Run(context.Background(), s, table, cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Windows) == 0 {
		t.Fatal("expected at least one completed window")
	}
	if len(result.StitchedEquityCurve) == 0 {
		t.Fatal("expected a non-empty stitched equity curve")
	}
}

func TestEngineRunAdaptiveProducesWindows(t *testing.T) {
	table := syntheticTable(24 * 60)
	cfg := basicWFAConfig()
	cfg.AdaptiveMode = true
	s := strategy.NewS04StochRSI()

	engine := NewEngine(nil)
	result, err := engine.Run(context.Background(), s, table, cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Windows) == 0 {
		t.Fatal("expected at least one completed adaptive window")
	}
}
