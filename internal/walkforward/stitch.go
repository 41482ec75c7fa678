package walkforward

import (
	"github.com/ashgrove-quant/barforge/pkg/types"
)

const daysPerYear = 365.0

// Stitch concatenates every window's OOS equity curve into one continuous
// curve compounding from initialBalance, and computes the study-level
// summary metrics (spec §4.5).
func Stitch(windows []types.WFAWindow, initialBalance float64) types.WFAResult {
	result := types.WFAResult{Windows: windows}
	if len(windows) == 0 {
		return result
	}

	equity := initialBalance
	peak := initialBalance
	maxDD := 0.0
	var totalTrades, totalWins int
	var isProfitDaySum, oosProfitDaySum, isDaySum, oosDaySum float64

	for _, w := range windows {
		curve := w.OOSEquityCurveDense
		for i := 0; i < len(curve); i++ {
			if i == 0 {
				result.StitchedEquityCurve = append(result.StitchedEquityCurve, equity)
				if i < len(w.OOSTimestampsDense) {
					result.StitchedTimestamps = append(result.StitchedTimestamps, w.OOSTimestampsDense[i])
				}
				continue
			}
			prev, cur := curve[i-1], curve[i]
			ret := 0.0
			if prev != 0 {
				ret = (cur - prev) / prev
			}
			equity *= 1 + ret
			result.StitchedEquityCurve = append(result.StitchedEquityCurve, equity)
			if i < len(w.OOSTimestampsDense) {
				result.StitchedTimestamps = append(result.StitchedTimestamps, w.OOSTimestampsDense[i])
			}
			if equity > peak {
				peak = equity
			} else if peak > 0 {
				dd := (peak - equity) / peak * 100
				if dd > maxDD {
					maxDD = dd
				}
			}
		}

		totalTrades += w.OOSMetrics.TotalTrades
		totalWins += w.OOSMetrics.WinningTrades

		isDays := float64(w.ISEnd-w.ISStart) / float64(secondsPerDay)
		oosDays := float64(w.OOSEnd-w.OOSStart) / float64(secondsPerDay)
		isDaySum += isDays
		oosDaySum += oosDays
		isProfitDaySum += w.ISMetrics.NetProfitPct
		oosProfitDaySum += w.OOSMetrics.NetProfitPct
	}

	result.StitchedNetProfitPct = (equity - initialBalance) / initialBalance * 100
	result.StitchedMaxDrawdownPct = maxDD
	result.StitchedTotalTrades = totalTrades
	if totalTrades > 0 {
		result.OOSWinRate = float64(totalWins) / float64(totalTrades) * 100
	}

	annualizedIS := annualize(isProfitDaySum, isDaySum)
	annualizedOOS := annualize(oosProfitDaySum, oosDaySum)
	if annualizedIS != 0 {
		result.WFE = annualizedOOS / annualizedIS
	}

	return result
}

// annualize applies the duration-weighted Σ(profit)/Σ(days)·365 formula
// used for both fixed (where durations are equal across windows) and
// adaptive (where OOS durations vary per window) splitting.
func annualize(profitSum, daySum float64) float64 {
	if daySum <= 0 {
		return 0
	}
	return profitSum / daySum * daysPerYear
}
