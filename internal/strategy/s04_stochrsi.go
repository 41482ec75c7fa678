package strategy

import (
	"math"

	"github.com/ashgrove-quant/barforge/internal/indicators"
	"github.com/ashgrove-quant/barforge/internal/metrics"
	"github.com/ashgrove-quant/barforge/pkg/types"
	"github.com/shopspring/decimal"
)

type s04Config struct {
	rsiPeriod   int
	stochPeriod int
	smoothK     int
	smoothD     int
	oversold    float64
	overbought  float64

	stopATRMult float64
	stopRR      float64
	maxHoldDays int

	riskPerTradePct float64
	contractSize    float64
	commissionRate  float64
	atrPeriod       int

	balanceMixRatio float64
}

func parseS04Config(p types.Params) (s04Config, error) {
	cfg := s04Config{
		rsiPeriod:       maxInt(intParam(p, "rsiPeriod", 14), 2),
		stochPeriod:     maxInt(intParam(p, "stochPeriod", 14), 2),
		smoothK:         maxInt(intParam(p, "smoothK", 3), 1),
		smoothD:         maxInt(intParam(p, "smoothD", 3), 1),
		oversold:        floatParam(p, "oversold", 20.0),
		overbought:      floatParam(p, "overbought", 80.0),
		stopATRMult:     maxFloat(floatParam(p, "stopATRMult", 2.0), 0.01),
		stopRR:          maxFloat(floatParam(p, "stopRR", 2.0), 0.01),
		maxHoldDays:     maxInt(intParam(p, "maxHoldDays", 5), 0),
		riskPerTradePct: maxFloat(floatParam(p, "riskPerTrade", 2.0), 0),
		contractSize:    maxFloat(floatParam(p, "contractSize", 0.01), 0),
		commissionRate:  maxFloat(floatParam(p, "commissionRate", 0.0005), 0),
		atrPeriod:       maxInt(intParam(p, "atrPeriod", defaultATRPeriod), 1),
		balanceMixRatio: floatParam(p, "balanceMixRatio", 0.0),
	}
	if cfg.oversold < 0 || cfg.oversold > 100 {
		return cfg, invalidParamErr("oversold", "out of [0,100]")
	}
	if cfg.overbought < 0 || cfg.overbought > 100 || cfg.overbought <= cfg.oversold {
		return cfg, invalidParamErr("overbought", "must be in (oversold,100]")
	}
	if cfg.balanceMixRatio < 0 || cfg.balanceMixRatio > 1 {
		return cfg, invalidParamErr("balanceMixRatio", "out of [0,1]")
	}
	return cfg, nil
}

// S04StochRSI is a mean-reversion-on-momentum-exhaustion strategy: enters
// long when %K crosses up out of oversold, short when %K crosses down out
// of overbought, and exits via ATR stop/target or a max holding period. Its
// balance curve is blended with a configurable fraction of unrealized P&L
// (BalanceMixRatio) to mirror an external charting platform's drawdown
// display. Drawdown and the advanced metrics read the pure mark-to-market
// equity curve; basic net profit reads the last balance-curve value, which
// includes the blended share of a position still open on the final bar.
type S04StochRSI struct{}

// NewS04StochRSI constructs the StochRSI mean-reversion strategy.
func NewS04StochRSI() *S04StochRSI { return &S04StochRSI{} }

func (s *S04StochRSI) ID() string   { return "s04_stochrsi" }
func (s *S04StochRSI) Name() string { return "StochRSI Momentum Exhaustion" }
func (s *S04StochRSI) Description() string {
	return "Enters on %K crossing out of oversold/overbought StochRSI extremes, exits on ATR stop/target or a max holding period."
}

func (s *S04StochRSI) ParamSchema() types.ParamSchema {
	f := func(v float64) *float64 { return &v }
	return types.ParamSchema{
		{Name: "rsiPeriod", Kind: types.ParamInt, Default: 14, Min: f(2), Max: f(50), Step: f(1), Optimize: true},
		{Name: "stochPeriod", Kind: types.ParamInt, Default: 14, Min: f(2), Max: f(50), Step: f(1), Optimize: true},
		{Name: "smoothK", Kind: types.ParamInt, Default: 3, Min: f(1), Max: f(10), Step: f(1), Optimize: true},
		{Name: "smoothD", Kind: types.ParamInt, Default: 3, Min: f(1), Max: f(10), Step: f(1), Optimize: true},
		{Name: "oversold", Kind: types.ParamFloat, Default: 20.0, Min: f(0), Max: f(40), Step: f(1), Optimize: true},
		{Name: "overbought", Kind: types.ParamFloat, Default: 80.0, Min: f(60), Max: f(100), Step: f(1), Optimize: true},
		{Name: "stopATRMult", Kind: types.ParamFloat, Default: 2.0, Min: f(0.5), Max: f(6), Step: f(0.1), Optimize: true},
		{Name: "stopRR", Kind: types.ParamFloat, Default: 2.0, Min: f(0.5), Max: f(8), Step: f(0.1), Optimize: true},
		{Name: "maxHoldDays", Kind: types.ParamInt, Default: 5, Min: f(0), Max: f(60), Step: f(1), Optimize: true},
		{Name: "riskPerTrade", Kind: types.ParamFloat, Default: 2.0, Min: f(0.1), Max: f(10), Step: f(0.1)},
		{Name: "contractSize", Kind: types.ParamFloat, Default: 0.01, Min: f(0.0001), Max: f(10)},
		{Name: "commissionRate", Kind: types.ParamFloat, Default: 0.0005, Min: f(0), Max: f(0.01)},
		{Name: "atrPeriod", Kind: types.ParamInt, Default: defaultATRPeriod, Min: f(2), Max: f(60), Step: f(1), Optimize: true},
		{Name: "balanceMixRatio", Kind: types.ParamFloat, Default: 0.0, Min: f(0), Max: f(1), Step: f(0.01)},
	}
}

func (s *S04StochRSI) Run(table types.OHLCVTable, params types.Params, tradeStartIdx int) (types.StrategyResult, error) {
	cfg, err := parseS04Config(params)
	if err != nil {
		return types.StrategyResult{}, err
	}

	n := table.Len()
	closeS := make([]float64, n)
	highS := make([]float64, n)
	lowS := make([]float64, n)
	ts := make([]int64, n)
	for i := 0; i < n; i++ {
		b := table.Bar(i)
		closeS[i], highS[i], lowS[i] = b.Close, b.High, b.Low
		ts[i] = b.Time
	}

	atrSeries := indicators.ATR(highS, lowS, closeS, cfg.atrPeriod)
	k, _ := indicators.StochRSI(closeS, cfg.rsiPeriod, cfg.stochPeriod, cfg.smoothK, cfg.smoothD)

	const initialEquity = 100.0
	realizedEquity := initialEquity

	position := 0
	positionSize := 0.0
	entryPrice := math.NaN()
	stopPrice := math.NaN()
	targetPrice := math.NaN()
	var entryTime int64
	haveEntryTime := false
	entryCommission := 0.0

	var trades []types.TradeRecord
	mtmCurve := make([]float64, 0, n)
	balanceCurve := make([]float64, 0, n)

	for i := 0; i < n; i++ {
		t := ts[i]
		c, h, l := closeS[i], highS[i], lowS[i]
		atrValue := atrSeries[i]

		var exitPrice float64
		haveExit := false

		if position > 0 {
			if l <= stopPrice {
				exitPrice, haveExit = stopPrice, true
			} else if h >= targetPrice {
				exitPrice, haveExit = targetPrice, true
			}
			if !haveExit && haveEntryTime && cfg.maxHoldDays > 0 {
				days := int(math.Floor(float64(t-entryTime) / 86400.0))
				if days >= cfg.maxHoldDays {
					exitPrice, haveExit = c, true
				}
			}
			if haveExit {
				grossPnl := (exitPrice - entryPrice) * positionSize
				exitCommission := exitPrice * positionSize * cfg.commissionRate
				netPnl := grossPnl - exitCommission - entryCommission
				realizedEquity += grossPnl - exitCommission
				entryValue := entryPrice * positionSize
				var profitPct *float64
				if entryValue != 0 {
					pp := netPnl / entryValue * 100.0
					profitPct = &pp
				}
				trades = append(trades, types.TradeRecord{
					Direction: types.DirectionLong, EntryTime: entryTime, ExitTime: t,
					EntryPrice: decimal.NewFromFloat(entryPrice), ExitPrice: decimal.NewFromFloat(exitPrice),
					Size: decimal.NewFromFloat(positionSize), NetPnL: decimal.NewFromFloat(netPnl), ProfitPct: profitPct,
				})
				position, positionSize = 0, 0
				entryPrice, stopPrice, targetPrice = math.NaN(), math.NaN(), math.NaN()
				haveEntryTime = false
				entryCommission = 0
			}
		} else if position < 0 {
			if h >= stopPrice {
				exitPrice, haveExit = stopPrice, true
			} else if l <= targetPrice {
				exitPrice, haveExit = targetPrice, true
			}
			if !haveExit && haveEntryTime && cfg.maxHoldDays > 0 {
				days := int(math.Floor(float64(t-entryTime) / 86400.0))
				if days >= cfg.maxHoldDays {
					exitPrice, haveExit = c, true
				}
			}
			if haveExit {
				grossPnl := (entryPrice - exitPrice) * positionSize
				exitCommission := exitPrice * positionSize * cfg.commissionRate
				netPnl := grossPnl - exitCommission - entryCommission
				realizedEquity += grossPnl - exitCommission
				entryValue := entryPrice * positionSize
				var profitPct *float64
				if entryValue != 0 {
					pp := netPnl / entryValue * 100.0
					profitPct = &pp
				}
				trades = append(trades, types.TradeRecord{
					Direction: types.DirectionShort, EntryTime: entryTime, ExitTime: t,
					EntryPrice: decimal.NewFromFloat(entryPrice), ExitPrice: decimal.NewFromFloat(exitPrice),
					Size: decimal.NewFromFloat(positionSize), NetPnL: decimal.NewFromFloat(netPnl), ProfitPct: profitPct,
				})
				position, positionSize = 0, 0
				entryPrice, stopPrice, targetPrice = math.NaN(), math.NaN(), math.NaN()
				haveEntryTime = false
				entryCommission = 0
			}
		}

		inRange := i >= tradeStartIdx
		crossUpFromOversold := i > 0 && !math.IsNaN(k[i]) && !math.IsNaN(k[i-1]) && k[i-1] <= cfg.oversold && k[i] > cfg.oversold
		crossDownFromOverbought := i > 0 && !math.IsNaN(k[i]) && !math.IsNaN(k[i-1]) && k[i-1] >= cfg.overbought && k[i] < cfg.overbought

		if position == 0 && inRange && !math.IsNaN(atrValue) {
			if crossUpFromOversold {
				stopDistance := atrValue * cfg.stopATRMult
				if stopDistance > 0 {
					riskCash := realizedEquity * (cfg.riskPerTradePct / 100)
					qty := riskCash / stopDistance
					if cfg.contractSize > 0 {
						qty = math.Floor(qty/cfg.contractSize) * cfg.contractSize
					}
					if qty > 0 {
						position = 1
						positionSize = qty
						entryPrice = c
						stopPrice = c - stopDistance
						targetPrice = c + stopDistance*cfg.stopRR
						entryTime, haveEntryTime = t, true
						entryCommission = entryPrice * positionSize * cfg.commissionRate
						realizedEquity -= entryCommission
					}
				}
			} else if crossDownFromOverbought {
				stopDistance := atrValue * cfg.stopATRMult
				if stopDistance > 0 {
					riskCash := realizedEquity * (cfg.riskPerTradePct / 100)
					qty := riskCash / stopDistance
					if cfg.contractSize > 0 {
						qty = math.Floor(qty/cfg.contractSize) * cfg.contractSize
					}
					if qty > 0 {
						position = -1
						positionSize = qty
						entryPrice = c
						stopPrice = c + stopDistance
						targetPrice = c - stopDistance*cfg.stopRR
						entryTime, haveEntryTime = t, true
						entryCommission = entryPrice * positionSize * cfg.commissionRate
						realizedEquity -= entryCommission
					}
				}
			}
		}

		markToMarket := realizedEquity
		if position > 0 && !math.IsNaN(entryPrice) {
			markToMarket += (c - entryPrice) * positionSize
		} else if position < 0 && !math.IsNaN(entryPrice) {
			markToMarket += (entryPrice - c) * positionSize
		}
		unrealized := markToMarket - realizedEquity
		mtmCurve = append(mtmCurve, markToMarket)
		balanceCurve = append(balanceCurve, realizedEquity+cfg.balanceMixRatio*unrealized)
	}

	result := types.StrategyResult{
		Trades:       trades,
		EquityCurve:  mtmCurve,
		BalanceCurve: balanceCurve,
		Timestamps:   ts,
	}
	result.Basic = metrics.CalculateBasic(result, initialEquity)
	result.Advanced = metrics.CalculateAdvanced(result, initialEquity, 0.02)
	return result, nil
}
