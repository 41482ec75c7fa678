// Package main provides a one-shot CLI runner: load an OHLCV CSV, run a
// single registered strategy at its default parameters, and print the
// resulting basic metrics. It exists as a smoke test for the core
// backtesting path without standing up the HTTP API.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ashgrove-quant/barforge/internal/config"
	"github.com/ashgrove-quant/barforge/internal/ohlcv"
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

func main() {
	csvPath := flag.String("csv", "", "Path to an OHLCV CSV file")
	strategyID := flag.String("strategy", "s04_stochrsi", "Registered strategy id")
	warmupBars := flag.Int("warmup", 0, "Number of leading bars excluded from trade entry")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "barforge-backtest: -csv is required")
		os.Exit(1)
	}

	logger, err := config.NewLogger(config.LoggingConfig{Level: *logLevel, Format: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	loader := ohlcv.NewLoader([]string{"."})
	resolved, err := loader.Resolve(*csvPath)
	if err != nil {
		logger.Fatal("resolve csv path", zap.Error(err))
	}
	table, err := loader.Load(resolved)
	if err != nil {
		logger.Fatal("load csv", zap.Error(err))
	}

	registry := strategy.NewRegistry(logger)
	strat, ok := registry.Create(*strategyID)
	if !ok {
		logger.Fatal("unknown strategy id", zap.String("strategy", *strategyID))
	}

	params := defaultParams(strat.ParamSchema())
	result, err := strat.Run(table, params, *warmupBars)
	if err != nil {
		logger.Fatal("strategy run failed", zap.Error(err))
	}

	logger.Info("run complete",
		zap.String("strategy", strat.ID()),
		zap.Int("bars", table.Len()),
		zap.Int("trades", result.Basic.TotalTrades),
		zap.Float64("netProfitPct", result.Basic.NetProfitPct),
		zap.Float64("maxDrawdownPct", result.Basic.MaxDrawdownPct),
	)
}

// defaultParams resolves every schema entry to its declared default, so
// the CLI can run a strategy without requiring the caller to supply a
// full parameter payload.
func defaultParams(schema types.ParamSchema) types.Params {
	params := make(types.Params, len(schema))
	for _, spec := range schema {
		params[spec.Name] = spec.Default
	}
	return params
}
