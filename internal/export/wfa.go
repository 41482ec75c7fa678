package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

// WriteWFAResult renders the spec's WFA CSV: a summary block (stitched
// OOS metrics), then one row per window (IS/OOS metrics), then one
// parameter block per window ordered by the strategy's schema.
func WriteWFAResult(w io.Writer, schema types.ParamSchema, result types.WFAResult) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"Stitched Net Profit %", fmt.Sprintf("%.2f", result.StitchedNetProfitPct)}); err != nil {
		return err
	}
	if err := cw.Write([]string{"Stitched Max Drawdown %", fmt.Sprintf("%.2f", result.StitchedMaxDrawdownPct)}); err != nil {
		return err
	}
	if err := cw.Write([]string{"Stitched Total Trades", fmt.Sprintf("%d", result.StitchedTotalTrades)}); err != nil {
		return err
	}
	if err := cw.Write([]string{"OOS Win Rate %", fmt.Sprintf("%.2f", result.OOSWinRate)}); err != nil {
		return err
	}
	if err := cw.Write([]string{"Walk-Forward Efficiency", fmt.Sprintf("%.4f", result.WFE)}); err != nil {
		return err
	}
	if err := cw.Write([]string{}); err != nil {
		return err
	}

	windowHeader := []string{
		"Window", "IS Start", "IS End", "OOS Start", "OOS End",
		"IS Net Profit %", "IS Max Drawdown %", "IS Total Trades",
		"OOS Net Profit %", "OOS Max Drawdown %", "OOS Total Trades",
	}
	if err := cw.Write(windowHeader); err != nil {
		return err
	}
	for _, win := range result.Windows {
		row := []string{
			fmt.Sprintf("%d", win.WindowNumber),
			formatUnixSeconds(win.ISStart), formatUnixSeconds(win.ISEnd),
			formatUnixSeconds(win.OOSStart), formatUnixSeconds(win.OOSEnd),
			fmt.Sprintf("%.2f", win.ISMetrics.NetProfitPct),
			fmt.Sprintf("%.2f", win.ISMetrics.MaxDrawdownPct),
			fmt.Sprintf("%d", win.ISMetrics.TotalTrades),
			fmt.Sprintf("%.2f", win.OOSMetrics.NetProfitPct),
			fmt.Sprintf("%.2f", win.OOSMetrics.MaxDrawdownPct),
			fmt.Sprintf("%d", win.OOSMetrics.TotalTrades),
		}
		if err := cw.Write(row); err != nil {
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
	paramHeader := append([]string{"Window"}, optimizedNames...)
	if err := cw.Write(paramHeader); err != nil {
		return err
	}
	for _, win := range result.Windows {
		row := []string{fmt.Sprintf("%d", win.WindowNumber)}
		for _, name := range optimizedNames {
			row = append(row, fmt.Sprintf("%v", win.BestParams[name]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}
