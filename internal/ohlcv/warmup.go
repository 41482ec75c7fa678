package ohlcv

import "github.com/ashgrove-quant/barforge/pkg/types"

// PrepareDatasetWithWarmup trims table to up to warmupBars bars strictly
// before start plus all bars in [start, end], returning the trimmed table
// and the offset (trade_start_idx) where trading may begin. If start and
// end are both nil the full table is returned with trade_start_idx = 0. If
// start is after all data, an empty table is returned. Ported from
// prepare_dataset_with_warmup in the Python reference implementation.
func PrepareDatasetWithWarmup(table types.OHLCVTable, start, end *int64, warmupBars int) (types.OHLCVTable, int) {
	if warmupBars < 0 {
		warmupBars = 0
	}

	if start == nil && end == nil {
		return table, 0
	}

	n := table.Len()

	var startIdx int
	if start != nil {
		startIdx = table.IndexAtOrAfter(*start)
		if startIdx >= n {
			return types.NewOHLCVTable(nil), 0
		}
	} else {
		startIdx = 0
	}

	var endIdx int
	if end != nil {
		lastAtOrBefore := table.IndexAtOrBefore(*end)
		if lastAtOrBefore < 0 {
			return types.NewOHLCVTable(nil), 0
		}
		endIdx = lastAtOrBefore + 1
	} else {
		endIdx = n
	}

	warmupStartIdx := startIdx - warmupBars
	if warmupStartIdx < 0 {
		warmupStartIdx = 0
	}

	trimmed := table.Slice(warmupStartIdx, endIdx)
	tradeStartIdx := startIdx - warmupStartIdx
	return trimmed, tradeStartIdx
}
