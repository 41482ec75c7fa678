package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

func TestSymbolFromFilename(t *testing.T) {
	cases := map[string]string{
		"OKX_LINKUSDT.P, 1H 2024.01.01-2024.06.01.csv": "OKX:LINKUSDT.P",
		"BINANCE_BTCUSDT, 15 2025.csv":                 "BINANCE:BTCUSDT",
		"plain_dataset_no_comma.csv":                   "plain_dataset_no_comma",
	}
	for name, want := range cases {
		if got := SymbolFromFilename(name); got != want {
			t.Errorf("SymbolFromFilename(%q) = %q, want %q", name, got, want)
		}
	}
}

func sampleResult() types.StrategyResult {
	profitPct := 12.5
	return types.StrategyResult{
		Trades: []types.TradeRecord{
			{
				Direction:  types.DirectionLong,
				EntryTime:  1700000000,
				ExitTime:   1700003600,
				EntryPrice: decimal.NewFromFloat(100.123),
				ExitPrice:  decimal.NewFromFloat(112.5),
				Size:       decimal.NewFromFloat(1.0),
				NetPnL:     decimal.NewFromFloat(12.377),
				ProfitPct:  &profitPct,
			},
		},
		Basic: types.BasicMetrics{NetProfitPct: 12.5, TotalTrades: 1, WinningTrades: 1},
	}
}

func TestWriteTradesHeaderAndRow(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTrades(&buf, "OKX_LINKUSDT.P, 1H 2024.csv", sampleResult()); err != nil {
		t.Fatalf("WriteTrades: %v", err)
	}

	r := csv.NewReader(strings.NewReader(buf.String()))
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if rows[0][0] != "Symbol" || rows[0][1] != "Type" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "OKX:LINKUSDT.P" {
		t.Fatalf("unexpected symbol: %s", rows[1][0])
	}
	if rows[1][1] != "Buy" {
		t.Fatalf("expected Buy for long trade, got %s", rows[1][1])
	}
	if !strings.HasSuffix(rows[1][7], "%") {
		t.Fatalf("expected profit %% suffix, got %s", rows[1][7])
	}
}

func TestWriteReplayTradesTwoRowsPerFill(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReplayTrades(&buf, "OKX_LINKUSDT.P, 1H 2024.csv", 3, sampleResult()); err != nil {
		t.Fatalf("WriteReplayTrades: %v", err)
	}
	r := csv.NewReader(strings.NewReader(buf.String()))
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 fill rows, got %d", len(rows))
	}
	if rows[1][1] != "OKX:LINKUSDT.P" || rows[1][2] != "Buy" {
		t.Fatalf("unexpected entry row: %v", rows[1])
	}
	if rows[2][2] != "Sell" {
		t.Fatalf("unexpected exit row: %v", rows[2])
	}
}

func TestWriteOptimizationResultsFiltersBelowThreshold(t *testing.T) {
	schema := types.ParamSchema{
		{Name: "maLength", Optimize: true},
		{Name: "stopLossPct", Optimize: true},
	}
	results := []types.OptimizationResult{
		{TrialNumber: 0, Params: types.Params{"maLength": 20, "stopLossPct": 2.0}, Basic: types.BasicMetrics{NetProfitPct: 50, TotalTrades: 10}},
		{TrialNumber: 1, Params: types.Params{"maLength": 40, "stopLossPct": 1.5}, Basic: types.BasicMetrics{NetProfitPct: -5, TotalTrades: 3}},
	}
	var buf bytes.Buffer
	meta := &OptunaMetadata{Method: "tpe", Target: "net_profit_pct", CompletedTrials: 2, TotalTrials: 2, BestValue: 50}
	if err := WriteOptimizationResults(&buf, meta, types.Params{"riskPct": 1.0}, schema, results, 0); err != nil {
		t.Fatalf("WriteOptimizationResults: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Method") || !strings.Contains(out, "tpe") {
		t.Fatalf("expected Optuna metadata section in output:\n%s", out)
	}
	if !strings.Contains(out, "riskPct") {
		t.Fatalf("expected fixed params section in output:\n%s", out)
	}
	if strings.Contains(out, "-5.00") {
		t.Fatalf("expected trial below threshold to be filtered out:\n%s", out)
	}
}

func TestWriteWFAResultSections(t *testing.T) {
	result := types.WFAResult{
		StitchedNetProfitPct:   30.5,
		StitchedMaxDrawdownPct: 10.2,
		StitchedTotalTrades:    42,
		OOSWinRate:             55.0,
		WFE:                    0.8,
		Windows: []types.WFAWindow{
			{
				WindowNumber: 1,
				ISStart:      1700000000, ISEnd: 1700100000,
				OOSStart: 1700100000, OOSEnd: 1700200000,
				BestParams: types.Params{"maLength": 20},
				ISMetrics:  types.BasicMetrics{NetProfitPct: 20, TotalTrades: 10},
				OOSMetrics: types.BasicMetrics{NetProfitPct: 12, TotalTrades: 5},
			},
		},
	}
	schema := types.ParamSchema{{Name: "maLength", Optimize: true}}

	var buf bytes.Buffer
	if err := WriteWFAResult(&buf, schema, result); err != nil {
		t.Fatalf("WriteWFAResult: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Walk-Forward Efficiency") {
		t.Fatalf("expected WFE summary row:\n%s", out)
	}
	if !strings.Contains(out, "maLength") {
		t.Fatalf("expected param block header:\n%s", out)
	}
}

func TestBuildBundleContainsTradesAndSummary(t *testing.T) {
	data, err := BuildBundle("OKX_LINKUSDT.P, 1H 2024.csv", sampleResult())
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["trades.csv"] || !names["summary.json"] {
		t.Fatalf("expected trades.csv and summary.json in bundle, got %v", names)
	}

	for _, f := range zr.File {
		if f.Name != "summary.json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open summary.json: %v", err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		if !strings.Contains(string(b), "NetProfitPct") {
			t.Fatalf("expected metrics in summary.json, got:\n%s", b)
		}
	}
}
