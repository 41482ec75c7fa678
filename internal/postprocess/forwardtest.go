package postprocess

import (
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

// ForwardTestResult is one candidate's outcome under FT: its full in-sample
// profit re-measured against just the final ft_period_days slice of the
// in-sample range.
type ForwardTestResult struct {
	TrialNumber       int
	Params            types.Params
	ISProfitPct       float64
	ForwardProfitPct  float64
	ProfitDegradation float64 // ForwardProfitPct / ISProfitPct, guarded
	ValidBaseline     bool    // false when ISProfitPct <= 0, so degradation is undefined
	ForwardMetrics    types.BasicMetrics
	ForwardAdvanced   types.AdvancedMetrics
}

const forwardTestSecondsPerDay = 86400

// RunForwardTest re-runs every candidate on the trailing cfg.FTPeriodDays
// slice of isTable and compares its profit there against the profit it
// achieved over the full in-sample range.
func RunForwardTest(strat strategy.Strategy, isTable types.OHLCVTable, candidates []Candidate, cfg types.PostProcessConfig) []ForwardTestResult {
	if isTable.Len() == 0 {
		return nil
	}
	forwardStart := isTable.Bar(isTable.Len()-1).Time - int64(cfg.FTPeriodDays)*forwardTestSecondsPerDay
	idx := isTable.IndexAtOrAfter(forwardStart)
	forwardTable := isTable.Slice(idx, isTable.Len())

	results := make([]ForwardTestResult, 0, len(candidates))
	for _, c := range candidates {
		r := ForwardTestResult{
			TrialNumber: c.TrialNumber,
			Params:      c.Params,
			ISProfitPct: c.IS.Basic.NetProfitPct,
		}
		if forwardTable.Len() == 0 {
			results = append(results, r)
			continue
		}
		fwd, err := strat.Run(forwardTable, c.Params, 0)
		if err != nil {
			results = append(results, r)
			continue
		}
		r.ForwardProfitPct = fwd.Basic.NetProfitPct
		r.ForwardMetrics = fwd.Basic
		r.ForwardAdvanced = fwd.Advanced
		if r.ISProfitPct > 0 {
			r.ValidBaseline = true
			r.ProfitDegradation = r.ForwardProfitPct / r.ISProfitPct
		}
		results = append(results, r)
	}
	return results
}

// RankByForwardMetric orders FT results by a named forward-window metric,
// descending. Unknown metric names fall back to ForwardProfitPct.
func RankByForwardMetric(results []ForwardTestResult, metric string) []ForwardTestResult {
	ranked := append([]ForwardTestResult(nil), results...)
	key := func(r ForwardTestResult) float64 {
		switch metric {
		case "sharpe_ratio":
			if r.ForwardAdvanced.SharpeRatio != nil {
				return *r.ForwardAdvanced.SharpeRatio
			}
			return 0
		case "romad":
			if r.ForwardAdvanced.RoMaD != nil {
				return *r.ForwardAdvanced.RoMaD
			}
			return 0
		default:
			return r.ForwardProfitPct
		}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && key(ranked[j-1]) < key(ranked[j]); j-- {
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
		}
	}
	return ranked
}
