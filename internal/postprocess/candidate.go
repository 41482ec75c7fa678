package postprocess

import "github.com/ashgrove-quant/barforge/pkg/types"

// Candidate is one optimizer survivor carried into the post-process chain:
// its parameter set plus the metrics it produced on the full in-sample
// range.
type Candidate struct {
	TrialNumber int
	Params      types.Params
	IS          types.StrategyResult
}

// Status is the outcome of running a post-process module against one
// candidate.
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
	StatusSkippedBadBase   Status = "skipped_bad_base"
	StatusSkippedNoParams  Status = "skipped_no_params"
)

// tradeReturns extracts per-trade percentage returns from a result's trade
// ledger, for use as the return series in DSR and the Monte-Carlo-style
// moment calculations.
func tradeReturns(result types.StrategyResult) []float64 {
	out := make([]float64, 0, len(result.Trades))
	for _, tr := range result.Trades {
		if tr.ProfitPct != nil {
			out = append(out, *tr.ProfitPct)
		}
	}
	return out
}

// barReturns computes simple period returns off an equity curve, the same
// series internal/metrics uses for Sharpe/Sortino.
func barReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		out = append(out, (equity[i]-equity[i-1])/equity[i-1])
	}
	return out
}
