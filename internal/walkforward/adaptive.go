package walkforward

import (
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

// truncateAdaptiveWindow runs the window's winning params over the
// maximal-length OOS side once, checks every trigger against that run,
// and truncates the window at the earliest one that fires. Individual
// triggers come back non-firing (never erroring) when their IS baseline
// is uncomputable, so this always returns a usable window even when every
// trigger is effectively disabled.
func truncateAdaptiveWindow(fullTable types.OHLCVTable, window Window, strat strategy.Strategy, params types.Params, isResult types.StrategyResult, cfg types.WFAConfig) (Window, types.AdaptiveTelemetry) {
	maxOOSTable := fullTable.Slice(window.OOSStart, window.OOSEnd)
	oosFull, err := strat.Run(maxOOSTable, params, 0)
	if err != nil {
		return window, types.AdaptiveTelemetry{Trigger: types.TriggerNone}
	}

	baseline := BuildISBaseline(isResult)
	cusum := CheckCUSUM(oosFull.Trades, baseline, cfg)
	dd := CheckDrawdown(oosFull.Trades, oosFull.EquityCurve, oosFull.Timestamps, window.OOSEndTime, baseline, cfg)
	inactivity := CheckInactivity(oosFull.Trades, window.OOSStartTime, window.OOSEndTime, baseline, cfg)

	earliest := EarliestTrigger(cusum, dd, inactivity)
	if !earliest.Triggered {
		telemetry := types.AdaptiveTelemetry{
			Trigger:       types.TriggerNone,
			ActualOOSDays: float64(window.OOSEndTime-window.OOSStartTime) / float64(secondsPerDay),
		}
		return window, telemetry
	}

	truncated := window
	truncated.OOSEndTime = earliest.AtTime
	truncated.OOSEnd = fullTable.IndexAtOrAfter(earliest.AtTime)
	if truncated.OOSEnd <= truncated.OOSStart {
		truncated.OOSEnd = truncated.OOSStart + 1
	}

	telemetry := earliest.Detail
	telemetry.ActualOOSDays = float64(truncated.OOSEndTime-window.OOSStartTime) / float64(secondsPerDay)
	return truncated, telemetry
}
