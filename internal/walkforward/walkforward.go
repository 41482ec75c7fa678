package walkforward

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ashgrove-quant/barforge/internal/optimize"
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

const defaultInitialBalance = 100.0

// Engine drives a complete walk-forward study: splitting the dataset into
// windows (fixed or adaptive), running each window's optimize → post-process
// → confirm pipeline, and stitching the per-window OOS curves into one
// study-level result.
type Engine struct {
	optimizer *optimize.Optimizer
	logger    *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{optimizer: optimize.NewOptimizer(logger), logger: logger}
}

// Run executes every window of the study in sequence — windows are not
// independent in adaptive mode, since window k+1's start depends on window
// k's actual (possibly truncated) OOS length — and returns the stitched
// study result.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, table types.OHLCVTable, cfg types.WFAConfig) (types.WFAResult, error) {
	if cfg.AdaptiveMode {
		return e.runAdaptive(ctx, strat, table, cfg)
	}
	return e.runFixed(ctx, strat, table, cfg)
}

func (e *Engine) runFixed(ctx context.Context, strat strategy.Strategy, table types.OHLCVTable, cfg types.WFAConfig) (types.WFAResult, error) {
	windows, warnings, err := FixedWindows(table, cfg)
	if err != nil {
		return types.WFAResult{}, err
	}
	for _, w := range warnings {
		if e.logger != nil {
			e.logger.Warn("walkforward: thin window side", zap.String("detail", w))
		}
	}

	results := make([]types.WFAWindow, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return types.WFAResult{}, err
		}
		wr, err := RunWindow(ctx, e.optimizer, strat, table, w, cfg, false)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("walkforward: window failed, skipping", zap.Int("window", w.Number), zap.Error(err))
			}
			continue
		}
		results = append(results, wr)
	}
	if len(results) == 0 {
		return types.WFAResult{}, fmt.Errorf("walkforward: every window failed")
	}
	return Stitch(results, defaultInitialBalance), nil
}

func (e *Engine) runAdaptive(ctx context.Context, strat strategy.Strategy, table types.OHLCVTable, cfg types.WFAConfig) (types.WFAResult, error) {
	totalEnd := table.Bar(table.Len() - 1).Time
	windowStart := dayAlign(table.Bar(0).Time)

	var results []types.WFAWindow
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return types.WFAResult{}, err
		}
		base, ok := AdaptiveBaseWindow(table, windowStart, cfg)
		if !ok || base.OOSEndTime > totalEnd {
			break
		}
		base.Number = n

		wr, err := RunWindow(ctx, e.optimizer, strat, table, base, cfg, true)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("walkforward: adaptive window failed, stopping", zap.Int("window", n), zap.Error(err))
			}
			break
		}
		results = append(results, wr)

		actualOOSEnd := wr.OOSEnd
		if actualOOSEnd <= wr.OOSStart {
			break
		}
		next := dayAlign(windowStart + (actualOOSEnd - wr.OOSStart))
		if next <= windowStart {
			next = windowStart + secondsPerDay
		}
		windowStart = next
	}

	if len(results) == 0 {
		return types.WFAResult{}, fmt.Errorf("walkforward: adaptive mode produced no completed windows")
	}
	return Stitch(results, defaultInitialBalance), nil
}
