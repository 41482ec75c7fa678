package strategy

import (
	"math"

	"github.com/ashgrove-quant/barforge/internal/indicators"
	"github.com/ashgrove-quant/barforge/internal/metrics"
	"github.com/ashgrove-quant/barforge/pkg/types"
	"github.com/shopspring/decimal"
)

// TrailTriggerVariant selects which price leg arms the trailing stop once a
// position is in profit. Two variants exist in the reference project's
// strategy history; both are kept here as an explicit, never-silent choice.
type TrailTriggerVariant string

const (
	// TrailTriggerHighCross arms the trail when the bar's high (long) or low
	// (short) crosses the activation price. This is the currently-live
	// behaviour.
	TrailTriggerHighCross TrailTriggerVariant = "high_cross"
	// TrailTriggerCloseCross arms the trail only once the bar's close
	// crosses the activation price — the more conservative variant carried
	// by the strategy's migrated branch.
	TrailTriggerCloseCross TrailTriggerVariant = "close_cross"
)

const defaultATRPeriod = 14

type s01Config struct {
	useDateFilter bool

	maType   indicators.MAType
	maLength int

	closeCountLong  int
	closeCountShort int

	stopLongATR float64
	stopLongRR  float64
	stopLongLP  int

	stopShortATR float64
	stopShortRR  float64
	stopShortLP  int

	stopLongMaxPct  float64
	stopShortMaxPct float64
	stopLongMaxDays int
	stopShortMaxDays int

	trailRRLong  float64
	trailRRShort float64

	trailLongType   indicators.MAType
	trailLongLength int
	trailLongOffset float64

	trailShortType   indicators.MAType
	trailShortLength int
	trailShortOffset float64

	riskPerTradePct float64
	contractSize    float64
	commissionRate  float64
	atrPeriod       int

	trigger TrailTriggerVariant
}

func parseS01Config(p types.Params) (s01Config, error) {
	cfg := s01Config{
		useDateFilter:    boolParam(p, "dateFilter", true),
		maType:           indicators.MAType(stringParam(p, "maType", "EMA")),
		maLength:         maxInt(intParam(p, "maLength", 45), 0),
		closeCountLong:   maxInt(intParam(p, "closeCountLong", 7), 0),
		closeCountShort:  maxInt(intParam(p, "closeCountShort", 5), 0),
		stopLongATR:      floatParam(p, "stopLongX", 2.0),
		stopLongRR:       floatParam(p, "stopLongRR", 3.0),
		stopLongLP:       maxInt(intParam(p, "stopLongLP", 2), 1),
		stopShortATR:     floatParam(p, "stopShortX", 2.0),
		stopShortRR:      floatParam(p, "stopShortRR", 3.0),
		stopShortLP:      maxInt(intParam(p, "stopShortLP", 2), 1),
		stopLongMaxPct:   maxFloat(floatParam(p, "stopLongMaxPct", 3.0), 0),
		stopShortMaxPct:  maxFloat(floatParam(p, "stopShortMaxPct", 3.0), 0),
		stopLongMaxDays:  maxInt(intParam(p, "stopLongMaxDays", 2), 0),
		stopShortMaxDays: maxInt(intParam(p, "stopShortMaxDays", 4), 0),
		trailRRLong:      maxFloat(floatParam(p, "trailRRLong", 1.0), 0),
		trailRRShort:     maxFloat(floatParam(p, "trailRRShort", 1.0), 0),
		trailLongType:    indicators.MAType(stringParam(p, "trailLongType", "SMA")),
		trailLongLength:  maxInt(intParam(p, "trailLongLength", 160), 0),
		trailLongOffset:  floatParam(p, "trailLongOffset", -1.0),
		trailShortType:   indicators.MAType(stringParam(p, "trailShortType", "SMA")),
		trailShortLength: maxInt(intParam(p, "trailShortLength", 160), 0),
		trailShortOffset: floatParam(p, "trailShortOffset", 1.0),
		riskPerTradePct:  maxFloat(floatParam(p, "riskPerTrade", 2.0), 0),
		contractSize:     maxFloat(floatParam(p, "contractSize", 0.01), 0),
		commissionRate:   maxFloat(floatParam(p, "commissionRate", 0.0005), 0),
		atrPeriod:        maxInt(intParam(p, "atrPeriod", defaultATRPeriod), 1),
		trigger:          TrailTriggerVariant(stringParam(p, "trailTriggerVariant", string(TrailTriggerHighCross))),
	}

	if !indicators.ValidMATypes[cfg.maType] {
		return cfg, invalidParamErr("maType", string(cfg.maType))
	}
	if !indicators.ValidMATypes[cfg.trailLongType] {
		return cfg, invalidParamErr("trailLongType", string(cfg.trailLongType))
	}
	if !indicators.ValidMATypes[cfg.trailShortType] {
		return cfg, invalidParamErr("trailShortType", string(cfg.trailShortType))
	}
	if cfg.trigger != TrailTriggerHighCross && cfg.trigger != TrailTriggerCloseCross {
		return cfg, invalidParamErr("trailTriggerVariant", string(cfg.trigger))
	}
	return cfg, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// S01TrailingMA is the trend-follow-with-trailing-stop strategy: enters on
// a sustained run of closes above/below a moving average, sizes by ATR
// risk, and exits via fixed stop/target or a ratcheting trail once armed.
type S01TrailingMA struct{}

// NewS01TrailingMA constructs the trailing-MA strategy.
func NewS01TrailingMA() *S01TrailingMA { return &S01TrailingMA{} }

func (s *S01TrailingMA) ID() string          { return "s01_trailing_ma" }
func (s *S01TrailingMA) Name() string        { return "Trailing MA Trend Follower" }
func (s *S01TrailingMA) Description() string {
	return "Enters on a sustained close-above/below-MA streak, sized by ATR risk, exits on fixed stop/target or a ratcheting MA trail once armed."
}

// ParamSchema lists every tunable input with its default and optimizable
// range, matching the reference strategy's payload contract field-for-field.
func (s *S01TrailingMA) ParamSchema() types.ParamSchema {
	f := func(v float64) *float64 { return &v }
	return types.ParamSchema{
		{Name: "dateFilter", Kind: types.ParamBool, Default: true},
		{Name: "maType", Kind: types.ParamCategorical, Default: "EMA", Options: []string{"SMA", "EMA", "WMA", "HMA", "VWMA", "VWAP", "ALMA", "DEMA", "KAMA", "TMA", "T3"}, Optimize: true},
		{Name: "maLength", Kind: types.ParamInt, Default: 45, Min: f(5), Max: f(300), Step: f(1), Optimize: true},
		{Name: "closeCountLong", Kind: types.ParamInt, Default: 7, Min: f(1), Max: f(30), Step: f(1), Optimize: true},
		{Name: "closeCountShort", Kind: types.ParamInt, Default: 5, Min: f(1), Max: f(30), Step: f(1), Optimize: true},
		{Name: "stopLongX", Kind: types.ParamFloat, Default: 2.0, Min: f(0.5), Max: f(6), Step: f(0.1), Optimize: true},
		{Name: "stopLongRR", Kind: types.ParamFloat, Default: 3.0, Min: f(0.5), Max: f(8), Step: f(0.1), Optimize: true},
		{Name: "stopLongLP", Kind: types.ParamInt, Default: 2, Min: f(1), Max: f(20), Step: f(1), Optimize: true},
		{Name: "stopShortX", Kind: types.ParamFloat, Default: 2.0, Min: f(0.5), Max: f(6), Step: f(0.1), Optimize: true},
		{Name: "stopShortRR", Kind: types.ParamFloat, Default: 3.0, Min: f(0.5), Max: f(8), Step: f(0.1), Optimize: true},
		{Name: "stopShortLP", Kind: types.ParamInt, Default: 2, Min: f(1), Max: f(20), Step: f(1), Optimize: true},
		{Name: "stopLongMaxPct", Kind: types.ParamFloat, Default: 3.0, Min: f(0), Max: f(20), Step: f(0.5)},
		{Name: "stopShortMaxPct", Kind: types.ParamFloat, Default: 3.0, Min: f(0), Max: f(20), Step: f(0.5)},
		{Name: "stopLongMaxDays", Kind: types.ParamInt, Default: 2, Min: f(0), Max: f(60), Step: f(1), Optimize: true},
		{Name: "stopShortMaxDays", Kind: types.ParamInt, Default: 4, Min: f(0), Max: f(60), Step: f(1), Optimize: true},
		{Name: "trailRRLong", Kind: types.ParamFloat, Default: 1.0, Min: f(0), Max: f(5), Step: f(0.1), Optimize: true},
		{Name: "trailRRShort", Kind: types.ParamFloat, Default: 1.0, Min: f(0), Max: f(5), Step: f(0.1), Optimize: true},
		{Name: "trailLongType", Kind: types.ParamCategorical, Default: "SMA", Options: []string{"SMA", "EMA", "WMA", "HMA", "VWMA", "VWAP", "ALMA", "DEMA", "KAMA", "TMA", "T3"}},
		{Name: "trailLongLength", Kind: types.ParamInt, Default: 160, Min: f(0), Max: f(400), Step: f(1), Optimize: true},
		{Name: "trailLongOffset", Kind: types.ParamFloat, Default: -1.0, Min: f(-10), Max: f(10), Step: f(0.1)},
		{Name: "trailShortType", Kind: types.ParamCategorical, Default: "SMA", Options: []string{"SMA", "EMA", "WMA", "HMA", "VWMA", "VWAP", "ALMA", "DEMA", "KAMA", "TMA", "T3"}},
		{Name: "trailShortLength", Kind: types.ParamInt, Default: 160, Min: f(0), Max: f(400), Step: f(1), Optimize: true},
		{Name: "trailShortOffset", Kind: types.ParamFloat, Default: 1.0, Min: f(-10), Max: f(10), Step: f(0.1)},
		{Name: "riskPerTrade", Kind: types.ParamFloat, Default: 2.0, Min: f(0.1), Max: f(10), Step: f(0.1)},
		{Name: "contractSize", Kind: types.ParamFloat, Default: 0.01, Min: f(0.0001), Max: f(10)},
		{Name: "commissionRate", Kind: types.ParamFloat, Default: 0.0005, Min: f(0), Max: f(0.01)},
		{Name: "atrPeriod", Kind: types.ParamInt, Default: defaultATRPeriod, Min: f(2), Max: f(60), Step: f(1), Optimize: true},
		{Name: "trailTriggerVariant", Kind: types.ParamCategorical, Default: string(TrailTriggerHighCross), Options: []string{string(TrailTriggerHighCross), string(TrailTriggerCloseCross)}},
	}
}

// Run steps the bar loop exactly once over table, starting equity at 100,
// and returns the complete trade ledger plus both curves. tradeStartIdx
// marks the first bar at which new entries are permitted; bars before it
// are warmup only and may still close an already-open position.
func (s *S01TrailingMA) Run(table types.OHLCVTable, params types.Params, tradeStartIdx int) (types.StrategyResult, error) {
	cfg, err := parseS01Config(params)
	if err != nil {
		return types.StrategyResult{}, err
	}

	n := table.Len()
	closeS := make([]float64, n)
	highS := make([]float64, n)
	lowS := make([]float64, n)
	volS := make([]float64, n)
	ts := make([]int64, n)
	for i := 0; i < n; i++ {
		b := table.Bar(i)
		closeS[i], highS[i], lowS[i], volS[i] = b.Close, b.High, b.Low, b.Volume
		ts[i] = b.Time
	}

	maSeries := indicators.MA(cfg.maType, closeS, cfg.maLength, volS, highS, lowS)
	atrSeries := indicators.ATR(highS, lowS, closeS, cfg.atrPeriod)
	lowestLong := rollingMin(lowS, cfg.stopLongLP)
	highestShort := rollingMax(highS, cfg.stopShortLP)

	trailLong := indicators.MA(cfg.trailLongType, closeS, cfg.trailLongLength, volS, highS, lowS)
	trailShort := indicators.MA(cfg.trailShortType, closeS, cfg.trailShortLength, volS, highS, lowS)
	if cfg.trailLongLength > 0 {
		scaleInPlace(trailLong, 1+cfg.trailLongOffset/100.0)
	}
	if cfg.trailShortLength > 0 {
		scaleInPlace(trailShort, 1+cfg.trailShortOffset/100.0)
	}

	const initialEquity = 100.0
	equity := initialEquity
	realizedEquity := equity

	position := 0
	prevPosition := 0
	positionSize := 0.0
	entryPrice := math.NaN()
	stopPrice := math.NaN()
	targetPrice := math.NaN()
	trailPriceLong := math.NaN()
	trailPriceShort := math.NaN()
	trailActivatedLong := false
	trailActivatedShort := false
	var entryTimeLong, entryTimeShort int64
	haveEntryTimeLong, haveEntryTimeShort := false, false
	entryCommission := 0.0

	counterCloseTrendLong := 0
	counterCloseTrendShort := 0
	counterTradeLong := 0
	counterTradeShort := 0

	var trades []types.TradeRecord
	realizedCurve := make([]float64, 0, n)
	mtmCurve := make([]float64, 0, n)

	for i := 0; i < n; i++ {
		t := ts[i]
		c, h, l := closeS[i], highS[i], lowS[i]
		maValue := maSeries[i]
		atrValue := atrSeries[i]
		lowestValue := lowestLong[i]
		highestValue := highestShort[i]
		trailLongValue := trailLong[i]
		trailShortValue := trailShort[i]

		if !math.IsNaN(maValue) {
			switch {
			case c > maValue:
				counterCloseTrendLong++
				counterCloseTrendShort = 0
			case c < maValue:
				counterCloseTrendShort++
				counterCloseTrendLong = 0
			default:
				counterCloseTrendLong = 0
				counterCloseTrendShort = 0
			}
		}

		switch {
		case position > 0:
			counterTradeLong, counterTradeShort = 1, 0
		case position < 0:
			counterTradeLong, counterTradeShort = 0, 1
		}

		var exitPrice float64
		haveExit := false

		if position > 0 {
			if !trailActivatedLong && !math.IsNaN(entryPrice) && !math.IsNaN(stopPrice) {
				activation := entryPrice + (entryPrice-stopPrice)*cfg.trailRRLong
				armed := h >= activation
				if cfg.trigger == TrailTriggerCloseCross {
					armed = c >= activation
				}
				if armed {
					trailActivatedLong = true
					if math.IsNaN(trailPriceLong) {
						trailPriceLong = stopPrice
					}
				}
			}
			if !math.IsNaN(trailPriceLong) && !math.IsNaN(trailLongValue) {
				if trailLongValue > trailPriceLong {
					trailPriceLong = trailLongValue
				}
			}
			if trailActivatedLong {
				if !math.IsNaN(trailPriceLong) && l <= trailPriceLong {
					exitPrice = trailPriceLong
					if trailPriceLong > h {
						exitPrice = h
					}
					haveExit = true
				}
			} else {
				if l <= stopPrice {
					exitPrice, haveExit = stopPrice, true
				} else if h >= targetPrice {
					exitPrice, haveExit = targetPrice, true
				}
			}
			if !haveExit && haveEntryTimeLong && cfg.stopLongMaxDays > 0 {
				daysInTrade := int(math.Floor(float64(t-entryTimeLong) / 86400.0))
				if daysInTrade >= cfg.stopLongMaxDays {
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
					Direction:  types.DirectionLong,
					EntryTime:  entryTimeLong,
					ExitTime:   t,
					EntryPrice: decimal.NewFromFloat(entryPrice),
					ExitPrice:  decimal.NewFromFloat(exitPrice),
					Size:       decimal.NewFromFloat(positionSize),
					NetPnL:     decimal.NewFromFloat(netPnl),
					ProfitPct:  profitPct,
				})
				position, positionSize = 0, 0
				entryPrice, stopPrice, targetPrice = math.NaN(), math.NaN(), math.NaN()
				trailPriceLong = math.NaN()
				trailActivatedLong = false
				haveEntryTimeLong = false
				entryCommission = 0
			}
		} else if position < 0 {
			if !trailActivatedShort && !math.IsNaN(entryPrice) && !math.IsNaN(stopPrice) {
				activation := entryPrice - (stopPrice-entryPrice)*cfg.trailRRShort
				armed := l <= activation
				if cfg.trigger == TrailTriggerCloseCross {
					armed = c <= activation
				}
				if armed {
					trailActivatedShort = true
					if math.IsNaN(trailPriceShort) {
						trailPriceShort = stopPrice
					}
				}
			}
			if !math.IsNaN(trailPriceShort) && !math.IsNaN(trailShortValue) {
				if trailShortValue < trailPriceShort {
					trailPriceShort = trailShortValue
				}
			}
			if trailActivatedShort {
				if !math.IsNaN(trailPriceShort) && h >= trailPriceShort {
					exitPrice = trailPriceShort
					if trailPriceShort < l {
						exitPrice = l
					}
					haveExit = true
				}
			} else {
				if h >= stopPrice {
					exitPrice, haveExit = stopPrice, true
				} else if l <= targetPrice {
					exitPrice, haveExit = targetPrice, true
				}
			}
			if !haveExit && haveEntryTimeShort && cfg.stopShortMaxDays > 0 {
				daysInTrade := int(math.Floor(float64(t-entryTimeShort) / 86400.0))
				if daysInTrade >= cfg.stopShortMaxDays {
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
					Direction:  types.DirectionShort,
					EntryTime:  entryTimeShort,
					ExitTime:   t,
					EntryPrice: decimal.NewFromFloat(entryPrice),
					ExitPrice:  decimal.NewFromFloat(exitPrice),
					Size:       decimal.NewFromFloat(positionSize),
					NetPnL:     decimal.NewFromFloat(netPnl),
					ProfitPct:  profitPct,
				})
				position, positionSize = 0, 0
				entryPrice, stopPrice, targetPrice = math.NaN(), math.NaN(), math.NaN()
				trailPriceShort = math.NaN()
				trailActivatedShort = false
				haveEntryTimeShort = false
				entryCommission = 0
			}
		}

		upTrend := counterCloseTrendLong >= cfg.closeCountLong && counterTradeLong == 0
		downTrend := counterCloseTrendShort >= cfg.closeCountShort && counterTradeShort == 0

		inRange := !cfg.useDateFilter || i >= tradeStartIdx

		canOpenLong := upTrend && position == 0 && prevPosition == 0 && inRange &&
			!math.IsNaN(atrValue) && !math.IsNaN(lowestValue)
		canOpenShort := downTrend && position == 0 && prevPosition == 0 && inRange &&
			!math.IsNaN(atrValue) && !math.IsNaN(highestValue)

		if canOpenLong {
			stopSize := atrValue * cfg.stopLongATR
			longStopPrice := lowestValue - stopSize
			longStopDistance := c - longStopPrice
			if longStopDistance > 0 {
				longStopPct := longStopDistance / c * 100
				if longStopPct <= cfg.stopLongMaxPct || cfg.stopLongMaxPct <= 0 {
					riskCash := realizedEquity * (cfg.riskPerTradePct / 100)
					qty := 0.0
					if longStopDistance != 0 {
						qty = riskCash / longStopDistance
					}
					if cfg.contractSize > 0 {
						qty = math.Floor(qty/cfg.contractSize) * cfg.contractSize
					}
					if qty > 0 {
						position = 1
						positionSize = qty
						entryPrice = c
						stopPrice = longStopPrice
						targetPrice = c + longStopDistance*cfg.stopLongRR
						trailPriceLong = longStopPrice
						trailActivatedLong = false
						entryTimeLong, haveEntryTimeLong = t, true
						entryCommission = entryPrice * positionSize * cfg.commissionRate
						realizedEquity -= entryCommission
					}
				}
			}
		}

		if canOpenShort && position == 0 {
			stopSize := atrValue * cfg.stopShortATR
			shortStopPrice := highestValue + stopSize
			shortStopDistance := shortStopPrice - c
			if shortStopDistance > 0 {
				shortStopPct := shortStopDistance / c * 100
				if shortStopPct <= cfg.stopShortMaxPct || cfg.stopShortMaxPct <= 0 {
					riskCash := realizedEquity * (cfg.riskPerTradePct / 100)
					qty := 0.0
					if shortStopDistance != 0 {
						qty = riskCash / shortStopDistance
					}
					if cfg.contractSize > 0 {
						qty = math.Floor(qty/cfg.contractSize) * cfg.contractSize
					}
					if qty > 0 {
						position = -1
						positionSize = qty
						entryPrice = c
						stopPrice = shortStopPrice
						targetPrice = c - shortStopDistance*cfg.stopShortRR
						trailPriceShort = shortStopPrice
						trailActivatedShort = false
						entryTimeShort, haveEntryTimeShort = t, true
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
		realizedCurve = append(realizedCurve, realizedEquity)
		mtmCurve = append(mtmCurve, markToMarket)
		prevPosition = position
	}

	result := types.StrategyResult{
		Trades:       trades,
		EquityCurve:  mtmCurve,
		BalanceCurve: realizedCurve,
		Timestamps:   ts,
	}
	result.Basic = metrics.CalculateBasic(result, initialEquity)
	result.Advanced = metrics.CalculateAdvanced(result, initialEquity, 0.02)
	return result, nil
}

func rollingMin(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		m := series[i]
		for j := lo; j <= i; j++ {
			if series[j] < m {
				m = series[j]
			}
		}
		out[i] = m
	}
	return out
}

func rollingMax(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		m := series[i]
		for j := lo; j <= i; j++ {
			if series[j] > m {
				m = series[j]
			}
		}
		out[i] = m
	}
	return out
}

func scaleInPlace(series []float64, factor float64) {
	for i, v := range series {
		if !math.IsNaN(v) {
			series[i] = v * factor
		}
	}
}
