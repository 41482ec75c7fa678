// Package metrics computes basic and advanced performance statistics from a
// completed strategy run: net profit, drawdown, trade counts, Sharpe/
// Sortino, profit factor, RoMaD, Ulcer Index, SQN, monthly consistency, and
// recovery factor. It only calculates — it never orchestrates a backtest or
// optimization run.
package metrics

import (
	"math"
	"time"

	"github.com/ashgrove-quant/barforge/pkg/types"
)

const barsPerYear = 252.0

// CalculateBasic derives trade-count and drawdown statistics directly from
// a strategy result's trade ledger and mark-to-market equity curve.
func CalculateBasic(result types.StrategyResult, initialBalance float64) types.BasicMetrics {
	var m types.BasicMetrics
	m.TotalTrades = len(result.Trades)

	for _, tr := range result.Trades {
		pnl, _ := tr.NetPnL.Float64()
		if pnl > 0 {
			m.WinningTrades++
			m.GrossProfit += pnl
		} else if pnl < 0 {
			m.LosingTrades++
			m.GrossLoss += -pnl
		}
	}

	var streak int
	for _, tr := range result.Trades {
		pnl, _ := tr.NetPnL.Float64()
		if pnl <= 0 {
			streak++
			if streak > m.MaxConsecutiveLosses {
				m.MaxConsecutiveLosses = streak
			}
		} else {
			streak = 0
		}
	}

	if len(result.BalanceCurve) > 0 {
		finalBalance := result.BalanceCurve[len(result.BalanceCurve)-1]
		m.NetProfit = finalBalance - initialBalance
		if initialBalance != 0 {
			m.NetProfitPct = m.NetProfit / initialBalance * 100
		}
	}

	maxDD, maxDDPct := maxDrawdown(result.EquityCurve)
	m.MaxDrawdown = maxDD
	m.MaxDrawdownPct = maxDDPct

	return m
}

// CalculateAdvanced derives distribution-sensitive statistics from the
// mark-to-market equity curve and the trade ledger. riskFreeRate is an
// annualized rate subtracted from the annualized Sharpe numerator.
func CalculateAdvanced(result types.StrategyResult, initialBalance, riskFreeRate float64) types.AdvancedMetrics {
	var adv types.AdvancedMetrics

	returns := barReturns(result.EquityCurve)
	if len(returns) > 1 {
		avg := mean(returns)
		sd := stdDev(returns)
		if sd > 0 {
			sharpe := (avg*barsPerYear - riskFreeRate) / (sd * math.Sqrt(barsPerYear))
			adv.SharpeRatio = &sharpe
		}
		dd := downsideDeviation(returns)
		if dd > 0 {
			sortino := (avg*barsPerYear - riskFreeRate) / (dd * math.Sqrt(barsPerYear))
			adv.SortinoRatio = &sortino
		}
	}

	grossProfit, grossLoss := 0.0, 0.0
	pnls := make([]float64, 0, len(result.Trades))
	for _, tr := range result.Trades {
		pnl, _ := tr.NetPnL.Float64()
		pnls = append(pnls, pnl)
		if pnl > 0 {
			grossProfit += pnl
		} else if pnl < 0 {
			grossLoss += -pnl
		}
	}
	switch {
	case grossLoss > 0:
		pf := grossProfit / grossLoss
		adv.ProfitFactor = &pf
	case grossProfit > 0:
		adv.ProfitFactorInf = true
	}

	_, maxDDPct := maxDrawdown(result.EquityCurve)
	basic := CalculateBasic(result, initialBalance)
	if maxDDPct != 0 {
		romad := basic.NetProfitPct / maxDDPct
		adv.RoMaD = &romad
	}
	if basic.MaxDrawdown != 0 {
		rf := basic.NetProfit / basic.MaxDrawdown
		adv.RecoveryFactor = &rf
	}

	if ui := ulcerIndex(result.EquityCurve); !math.IsNaN(ui) {
		adv.UlcerIndex = &ui
	}

	if len(pnls) > 1 {
		avgPnl := mean(pnls)
		sdPnl := stdDev(pnls)
		if sdPnl > 0 {
			sqn := math.Sqrt(float64(len(pnls))) * avgPnl / sdPnl
			adv.SQN = &sqn
		}
	}

	if cs := monthlyConsistency(result.Timestamps, result.EquityCurve); !math.IsNaN(cs) {
		adv.ConsistencyScore = &cs
	}

	return adv
}

// Enrich computes and attaches both basic and advanced metrics onto result
// in one call, the pattern strategies use to avoid manual field drift.
func Enrich(result *types.StrategyResult, initialBalance, riskFreeRate float64) {
	result.Basic = CalculateBasic(*result, initialBalance)
	result.Advanced = CalculateAdvanced(*result, initialBalance, riskFreeRate)
}

func barReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev == 0 {
			continue
		}
		out = append(out, (equity[i]-prev)/prev)
	}
	return out
}

func maxDrawdown(equity []float64) (abs, pct float64) {
	if len(equity) == 0 {
		return 0, 0
	}
	peak := equity[0]
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		dd := peak - v
		if dd > abs {
			abs = dd
		}
		if peak != 0 {
			ddPct := dd / peak * 100
			if ddPct > pct {
				pct = ddPct
			}
		}
	}
	return abs, pct
}

func ulcerIndex(equity []float64) float64 {
	if len(equity) == 0 {
		return math.NaN()
	}
	peak := equity[0]
	var sumSq float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		var ddPct float64
		if peak != 0 {
			ddPct = (peak - v) / peak * 100
		}
		sumSq += ddPct * ddPct
	}
	return math.Sqrt(sumSq / float64(len(equity)))
}

// monthlyConsistency is the percentage of calendar months, among those with
// at least one bar, in which the equity curve closed higher than it opened.
func monthlyConsistency(timestamps []int64, equity []float64) float64 {
	if len(timestamps) == 0 || len(timestamps) != len(equity) {
		return math.NaN()
	}
	type bounds struct{ open, close float64 }
	byMonth := make(map[string]*bounds)
	order := make([]string, 0)
	for i, ts := range timestamps {
		key := time.Unix(ts, 0).UTC().Format("2006-01")
		b, ok := byMonth[key]
		if !ok {
			b = &bounds{open: equity[i]}
			byMonth[key] = b
			order = append(order, key)
		}
		b.close = equity[i]
	}
	if len(order) == 0 {
		return math.NaN()
	}
	profitable := 0
	for _, key := range order {
		b := byMonth[key]
		if b.close > b.open {
			profitable++
		}
	}
	return float64(profitable) / float64(len(order)) * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) == 0 {
		return 0
	}
	return stdDev(negative)
}
