package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// OptunaMetadata is the first of the Optimization CSV's three sections.
type OptunaMetadata struct {
	Method          string
	Target          string
	CompletedTrials int
	TotalTrials     int
	BestValue       float64
	Elapsed         time.Duration
}

// WriteOptimizationResults renders the spec's Optimization CSV: optional
// Optuna metadata, the fixed (non-optimized) parameter payload, then a
// results table whose columns are built from schema (the optimized
// parameters, in schema order) followed by a fixed set of metric columns.
// Results below minProfitPct are dropped from the table, matching the
// spec's "values below a configured profit threshold may be filtered
// pre-export."
func WriteOptimizationResults(w io.Writer, meta *OptunaMetadata, fixed types.Params, schema types.ParamSchema, results []types.OptimizationResult, minProfitPct float64) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if meta != nil {
		if err := cw.Write([]string{"Method", meta.Method}); err != nil {
			return err
		}
		if err := cw.Write([]string{"Target", meta.Target}); err != nil {
			return err
		}
		if err := cw.Write([]string{"Completed Trials", fmt.Sprintf("%d", meta.CompletedTrials)}); err != nil {
			return err
		}
		if err := cw.Write([]string{"Total Trials", fmt.Sprintf("%d", meta.TotalTrials)}); err != nil {
			return err
		}
		if err := cw.Write([]string{"Best Value", fmt.Sprintf("%.4f", meta.BestValue)}); err != nil {
			return err
		}
		if err := cw.Write([]string{"Elapsed", meta.Elapsed.String()}); err != nil {
			return err
		}
		if err := cw.Write([]string{}); err != nil {
			return err
		}
	}

	fixedNames := make([]string, 0, len(fixed))
	for name := range fixed {
		fixedNames = append(fixedNames, name)
	}
	sort.Strings(fixedNames)
	for _, name := range fixedNames {
		if err := cw.Write([]string{name, fmt.Sprintf("%v", fixed[name])}); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{}); err != nil {
		return err
	}

	optimizedNames := make([]string, 0, len(schema))
	for _, spec := range schema {
		if spec.Optimize {
			optimizedNames = append(optimizedNames, spec.Name)
		}
	}

	header := append([]string{"Trial"}, optimizedNames...)
	header = append(header, "Net Profit %", "Max Drawdown %", "Total Trades", "Win Rate %", "Profit Factor", "Sharpe Ratio")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		if r.Failed || r.Basic.NetProfitPct < minProfitPct {
			continue
		}
		row := []string{fmt.Sprintf("%d", r.TrialNumber)}
		for _, name := range optimizedNames {
			row = append(row, fmt.Sprintf("%v", r.Params[name]))
		}
		winRate := 0.0
		if r.Basic.TotalTrades > 0 {
			winRate = float64(r.Basic.WinningTrades) / float64(r.Basic.TotalTrades) * 100
		}
		profitFactor := "inf"
		if !r.Advanced.ProfitFactorInf && r.Advanced.ProfitFactor != nil {
			profitFactor = fmt.Sprintf("%.2f", *r.Advanced.ProfitFactor)
		} else if !r.Advanced.ProfitFactorInf {
			profitFactor = ""
		}
		sharpe := ""
		if r.Advanced.SharpeRatio != nil {
			sharpe = fmt.Sprintf("%.2f", *r.Advanced.SharpeRatio)
		}
		row = append(row,
			fmt.Sprintf("%.2f", r.Basic.NetProfitPct),
			fmt.Sprintf("%.2f", r.Basic.MaxDrawdownPct),
			fmt.Sprintf("%d", r.Basic.TotalTrades),
			fmt.Sprintf("%.2f", winRate),
			profitFactor,
			sharpe,
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}
