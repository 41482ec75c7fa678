// Package walkforward implements the walk-forward engine (C6): fixed and
// adaptive window splitting, the per-window optimize → post-process →
// confirm pipeline, and OOS-equity stitching across windows.
package walkforward

import (
	"fmt"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

const secondsPerDay = 86400

// minBarsPerSideWarning is the bar-count threshold below which a window's
// IS or OOS side is flagged as too thin to trust (spec §4.5).
const minBarsPerSideWarning = 100

// Window is one fixed or adaptive split, as indices into the source table.
type Window struct {
	Number int

	ISStart, ISEnd   int // half-open bar index range
	OOSStart, OOSEnd int

	ISStartTime, ISEndTime   int64
	OOSStartTime, OOSEndTime int64
}

func dayAlign(ts int64) int64 {
	return (ts / secondsPerDay) * secondsPerDay
}

// FixedWindows splits table into a fixed sequence of IS/OOS windows, each
// aligned to day (00:00 UTC) boundaries, with window k+1's start shifted
// by OOSPeriodDays relative to window k's start. Returns an error if fewer
// than 2 complete windows fit, and thin-side warnings otherwise.
func FixedWindows(table types.OHLCVTable, cfg types.WFAConfig) ([]Window, []string, error) {
	if table.Len() == 0 {
		return nil, nil, fmt.Errorf("walkforward: empty table")
	}
	isPeriod := int64(cfg.ISPeriodDays) * secondsPerDay
	oosPeriod := int64(cfg.OOSPeriodDays) * secondsPerDay
	if isPeriod <= 0 || oosPeriod <= 0 {
		return nil, nil, fmt.Errorf("walkforward: ISPeriodDays and OOSPeriodDays must be positive")
	}

	totalEnd := table.Bar(table.Len() - 1).Time
	windowStart := dayAlign(table.Bar(0).Time)

	var windows []Window
	var warnings []string
	for n := 0; ; n++ {
		isStart := windowStart
		isEnd := isStart + isPeriod
		oosStart := isEnd
		oosEnd := oosStart + oosPeriod
		if oosEnd > totalEnd {
			break
		}

		w := Window{
			Number:       n,
			ISStart:      table.IndexAtOrAfter(isStart),
			ISEnd:        table.IndexAtOrAfter(isEnd),
			OOSStart:     table.IndexAtOrAfter(oosStart),
			OOSEnd:       table.IndexAtOrAfter(oosEnd),
			ISStartTime:  isStart,
			ISEndTime:    isEnd,
			OOSStartTime: oosStart,
			OOSEndTime:   oosEnd,
		}
		if w.ISEnd-w.ISStart < minBarsPerSideWarning {
			warnings = append(warnings, fmt.Sprintf("window %d: in-sample side has only %d bars (< %d)", n, w.ISEnd-w.ISStart, minBarsPerSideWarning))
		}
		if w.OOSEnd-w.OOSStart < minBarsPerSideWarning {
			warnings = append(warnings, fmt.Sprintf("window %d: out-of-sample side has only %d bars (< %d)", n, w.OOSEnd-w.OOSStart, minBarsPerSideWarning))
		}
		windows = append(windows, w)

		windowStart += oosPeriod
	}

	if len(windows) < 2 {
		return nil, warnings, fmt.Errorf("walkforward: dataset only fits %d window(s), need at least 2", len(windows))
	}
	return windows, warnings, nil
}

// AdaptiveBaseWindow builds one candidate (pre-truncation) window for
// adaptive mode: the IS side is fixed exactly as in FixedWindows, but the
// OOS side opens at IS end and extends to the adaptive mode's cap
// (MaxOOSPeriodDays); truncateAdaptiveWindow shortens it once a trigger
// fires. The next window's start still advances by the actual (not
// nominal) prior OOS length, so callers must build windows one at a time
// rather than precomputing the whole sequence up front.
func AdaptiveBaseWindow(table types.OHLCVTable, windowStart int64, cfg types.WFAConfig) (Window, bool) {
	isPeriod := int64(cfg.ISPeriodDays) * secondsPerDay
	maxOOSPeriod := int64(cfg.MaxOOSPeriodDays) * secondsPerDay

	isStart := windowStart
	isEnd := isStart + isPeriod
	oosStart := isEnd
	oosEnd := oosStart + maxOOSPeriod

	totalEnd := table.Bar(table.Len() - 1).Time
	if oosStart >= totalEnd {
		return Window{}, false
	}
	if oosEnd > totalEnd {
		oosEnd = totalEnd
	}

	return Window{
		ISStart:      table.IndexAtOrAfter(isStart),
		ISEnd:        table.IndexAtOrAfter(isEnd),
		OOSStart:     table.IndexAtOrAfter(oosStart),
		OOSEnd:       table.IndexAtOrAfter(oosEnd),
		ISStartTime:  isStart,
		ISEndTime:    isEnd,
		OOSStartTime: oosStart,
		OOSEndTime:   oosEnd,
	}, true
}
