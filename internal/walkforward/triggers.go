package walkforward

import (
	"math"
	"sort"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// ISBaseline holds the in-sample statistics every adaptive trigger is
// measured against.
type ISBaseline struct {
	TradeReturnMean     float64
	TradeReturnStdDev   float64
	MaxDrawdownPct      float64
	MeanTradeIntervalSec float64
	NumTrades           int
}

// BuildISBaseline computes the IS-side statistics an adaptive OOS window's
// triggers compare against. Triggers relying on a statistic that can't be
// computed (e.g. only one IS trade, so there's no interval to average)
// come back disabled, matching the spec's "individually disabled if
// inputs uncomputable" rule.
func BuildISBaseline(result types.StrategyResult) ISBaseline {
	b := ISBaseline{NumTrades: len(result.Trades), MaxDrawdownPct: result.Basic.MaxDrawdownPct}

	returns := make([]float64, 0, len(result.Trades))
	for _, tr := range result.Trades {
		if tr.ProfitPct != nil {
			returns = append(returns, *tr.ProfitPct)
		}
	}
	if len(returns) > 0 {
		sum := 0.0
		for _, r := range returns {
			sum += r
		}
		mean := sum / float64(len(returns))
		variance := 0.0
		for _, r := range returns {
			d := r - mean
			variance += d * d
		}
		b.TradeReturnMean = mean
		b.TradeReturnStdDev = math.Sqrt(variance / float64(len(returns)))
	}

	if len(result.Trades) > 1 {
		var gaps float64
		for i := 1; i < len(result.Trades); i++ {
			gaps += float64(result.Trades[i].EntryTime - result.Trades[i-1].EntryTime)
		}
		b.MeanTradeIntervalSec = gaps / float64(len(result.Trades)-1)
	}

	return b
}

// TriggerOutcome is the result of checking one trigger against an OOS run.
type TriggerOutcome struct {
	Type      types.TriggerType
	Triggered bool
	AtTime    int64 // timestamp the trigger fired, only meaningful if Triggered
	Detail    types.AdaptiveTelemetry
}

// CheckCUSUM implements the one-sided cumulative-sum trigger: accumulate
// -(tradeReturn-mean)/stdDev after every OOS trade, but only evaluate it
// against CUSUMThreshold at checkpoints anchored at MinOOSTrades and
// stepping by CheckIntervalTrades from there (trade counts where
// (tradeNum-MinOOSTrades)%CheckIntervalTrades == 0). Disabled when the IS
// baseline has no usable variance (fewer than 2 IS trades).
func CheckCUSUM(oosTrades []types.TradeRecord, baseline ISBaseline, cfg types.WFAConfig) TriggerOutcome {
	if baseline.NumTrades < 2 || baseline.TradeReturnStdDev == 0 {
		return TriggerOutcome{Type: types.TriggerCUSUM}
	}
	checkInterval := cfg.CheckIntervalTrades
	if checkInterval < 1 {
		checkInterval = 1
	}

	cusum := 0.0
	for i, tr := range oosTrades {
		if tr.ProfitPct == nil {
			continue
		}
		cusum += -(*tr.ProfitPct - baseline.TradeReturnMean) / baseline.TradeReturnStdDev
		if cusum < 0 {
			cusum = 0 // one-sided: never let accumulated "good" performance offset future bad runs indefinitely
		}
		tradeNum := i + 1
		if tradeNum < cfg.MinOOSTrades {
			continue
		}
		if (tradeNum-cfg.MinOOSTrades)%checkInterval != 0 {
			continue
		}
		if cusum >= cfg.CUSUMThreshold {
			final := cusum
			return TriggerOutcome{
				Type: types.TriggerCUSUM, Triggered: true, AtTime: tr.ExitTime,
				Detail: types.AdaptiveTelemetry{Trigger: types.TriggerCUSUM, CUSUMFinal: &final, TriggerTradeIdx: i},
			}
		}
	}
	return TriggerOutcome{Type: types.TriggerCUSUM}
}

// CheckDrawdown fires when the running drawdown at a trade-exit event (or
// at the window's final bar, oosMaxEnd, if no trade has closed yet) exceeds
// DDThresholdMultiplier times the IS max drawdown. The causal running-peak
// drawdown series is computed once over the dense OOS equity curve, then
// sampled only at trade-exit timestamps rather than at every bar, matching
// the original engine's trade-indexed evaluation.
func CheckDrawdown(oosTrades []types.TradeRecord, oosEquity []float64, oosTimestamps []int64, oosMaxEnd int64, baseline ISBaseline, cfg types.WFAConfig) TriggerOutcome {
	if baseline.MaxDrawdownPct <= 0 || len(oosEquity) == 0 || len(oosTimestamps) == 0 {
		return TriggerOutcome{Type: types.TriggerDrawdown}
	}
	threshold := baseline.MaxDrawdownPct * cfg.DDThresholdMultiplier

	ddByIndex := make([]float64, len(oosEquity))
	peak := oosEquity[0]
	for i, eq := range oosEquity {
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			ddByIndex[i] = (peak - eq) / peak * 100
		}
	}

	drawdownAt := func(ts int64) float64 {
		idx := sort.Search(len(oosTimestamps), func(i int) bool { return oosTimestamps[i] > ts }) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(ddByIndex) {
			idx = len(ddByIndex) - 1
		}
		return ddByIndex[idx]
	}

	checkpoints := make([]int64, 0, len(oosTrades)+1)
	for _, tr := range oosTrades {
		checkpoints = append(checkpoints, tr.ExitTime)
	}
	if len(checkpoints) == 0 {
		checkpoints = append(checkpoints, oosMaxEnd)
	}

	for _, ts := range checkpoints {
		if dd := drawdownAt(ts); dd >= threshold {
			return TriggerOutcome{
				Type: types.TriggerDrawdown, Triggered: true, AtTime: ts,
				Detail: types.AdaptiveTelemetry{Trigger: types.TriggerDrawdown, DDThreshold: &threshold},
			}
		}
	}
	return TriggerOutcome{Type: types.TriggerDrawdown}
}

// CheckInactivity fires when a gap without an open trade (from OOS start
// or a trade's exit to the next trade entry, or from the final trade exit
// to OOS end) reaches InactivityMultiplier times the IS mean trade
// interval.
func CheckInactivity(oosTrades []types.TradeRecord, oosStart, oosEnd int64, baseline ISBaseline, cfg types.WFAConfig) TriggerOutcome {
	if baseline.MeanTradeIntervalSec <= 0 {
		return TriggerOutcome{Type: types.TriggerInactivity}
	}
	threshold := int64(baseline.MeanTradeIntervalSec * cfg.InactivityMultiplier)

	last := oosStart
	for _, tr := range oosTrades {
		if tr.EntryTime-last >= threshold {
			return TriggerOutcome{Type: types.TriggerInactivity, Triggered: true, AtTime: last + threshold}
		}
		last = tr.ExitTime
	}
	if oosEnd-last >= threshold {
		return TriggerOutcome{Type: types.TriggerInactivity, Triggered: true, AtTime: last + threshold}
	}
	return TriggerOutcome{Type: types.TriggerInactivity}
}

// EarliestTrigger picks the trigger that fires first in time among the
// ones that fired at all; returns Triggered=false if none did.
func EarliestTrigger(outcomes ...TriggerOutcome) TriggerOutcome {
	var best TriggerOutcome
	found := false
	for _, o := range outcomes {
		if !o.Triggered {
			continue
		}
		if !found || o.AtTime < best.AtTime {
			best = o
			found = true
		}
	}
	return best
}
