package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

var tradeHeader = []string{
	"Symbol", "Type", "Entry Time", "Entry Price", "Exit Time", "Exit Price", "Profit", "Profit %", "Size",
}

// WriteTrades renders one row per trade in result.Trades, in the layout
// the spec calls the Trade CSV: Symbol derived from the source CSV
// filename, dates as "YYYY-MM-DD HH:MM:SS", numeric columns at two
// decimals, profit % suffixed with "%".
func WriteTrades(w io.Writer, csvFileName string, result types.StrategyResult) error {
	symbol := SymbolFromFilename(csvFileName)
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, tr := range result.Trades {
		if err := cw.Write(tradeRow(symbol, tr)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func tradeRow(symbol string, tr types.TradeRecord) []string {
	tradeType := "Buy"
	if tr.Direction == types.DirectionShort {
		tradeType = "Sell"
	}
	profitPct := 0.0
	if tr.ProfitPct != nil {
		profitPct = *tr.ProfitPct
	}
	netPnL, _ := tr.NetPnL.Float64()
	entryPrice, _ := tr.EntryPrice.Float64()
	exitPrice, _ := tr.ExitPrice.Float64()
	size, _ := tr.Size.Float64()
	return []string{
		symbol,
		tradeType,
		formatUnixSeconds(tr.EntryTime),
		fmt.Sprintf("%.2f", entryPrice),
		formatUnixSeconds(tr.ExitTime),
		fmt.Sprintf("%.2f", exitPrice),
		fmt.Sprintf("%.2f", netPnL),
		fmt.Sprintf("%.2f%%", profitPct),
		fmt.Sprintf("%.2f", size),
	}
}

// WriteReplayTrades renders the two-row-per-fill variant the spec
// describes for WFA trade replays: one "Buy"/"Sell" row for the entry
// fill and one for the exit fill, instead of one row per round trip.
func WriteReplayTrades(w io.Writer, csvFileName string, windowNumber int, result types.StrategyResult) error {
	symbol := SymbolFromFilename(csvFileName)
	cw := csv.NewWriter(w)
	header := append([]string{"Window"}, tradeHeader...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, tr := range result.Trades {
		entrySide := "Buy"
		exitSide := "Sell"
		if tr.Direction == types.DirectionShort {
			entrySide, exitSide = "Sell", "Buy"
		}
		entryPrice, _ := tr.EntryPrice.Float64()
		exitPrice, _ := tr.ExitPrice.Float64()
		size, _ := tr.Size.Float64()

		entryRow := append([]string{fmt.Sprintf("%d", windowNumber)}, []string{
			symbol, entrySide, formatUnixSeconds(tr.EntryTime), fmt.Sprintf("%.2f", entryPrice), "", "", "", "", fmt.Sprintf("%.2f", size),
		}...)
		if err := cw.Write(entryRow); err != nil {
			return err
		}

		netPnL, _ := tr.NetPnL.Float64()
		profitPct := 0.0
		if tr.ProfitPct != nil {
			profitPct = *tr.ProfitPct
		}
		exitRow := append([]string{fmt.Sprintf("%d", windowNumber)}, []string{
			symbol, exitSide, "", "", formatUnixSeconds(tr.ExitTime), fmt.Sprintf("%.2f", exitPrice),
			fmt.Sprintf("%.2f", netPnL), fmt.Sprintf("%.2f%%", profitPct), fmt.Sprintf("%.2f", size),
		}...)
		if err := cw.Write(exitRow); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatUnixSeconds(sec int64) string {
	if sec == 0 {
		return ""
	}
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04:05")
}
