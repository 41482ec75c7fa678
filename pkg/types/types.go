// Package types provides shared domain types for the research engine.
package types

import (
	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV candle. Time is Unix seconds UTC, matching the CSV
// wire format rather than a wall-clock time.Time, so a strategy run is
// reproducible independent of the host's time zone database.
type Bar struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// OHLCVTable is an immutable, ascending-by-time sequence of bars.
type OHLCVTable struct {
	bars []Bar
}

// NewOHLCVTable wraps an already-sorted, deduplicated bar slice. Callers in
// internal/ohlcv are responsible for sorting and dedup before construction.
func NewOHLCVTable(bars []Bar) OHLCVTable {
	return OHLCVTable{bars: bars}
}

// Len returns the number of bars.
func (t OHLCVTable) Len() int { return len(t.bars) }

// Bar returns the bar at index i.
func (t OHLCVTable) Bar(i int) Bar { return t.bars[i] }

// Bars returns the underlying slice. Callers must not mutate it; the table
// is shared by reference across optimizer workers (spec §5).
func (t OHLCVTable) Bars() []Bar { return t.bars }

// Slice returns the half-open sub-table [i, j).
func (t OHLCVTable) Slice(i, j int) OHLCVTable {
	if i < 0 {
		i = 0
	}
	if j > len(t.bars) {
		j = len(t.bars)
	}
	if i >= j {
		return OHLCVTable{}
	}
	return OHLCVTable{bars: t.bars[i:j]}
}

// IndexAtOrAfter returns the first index whose bar Time is >= ts, or Len()
// if none. Left-biased search, matching the reference implementation's
// boolean-mask-argmax semantics.
func (t OHLCVTable) IndexAtOrAfter(ts int64) int {
	lo, hi := 0, len(t.bars)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.bars[mid].Time < ts {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// IndexAtOrBefore returns the last index whose bar Time is <= ts, or -1 if
// none.
func (t OHLCVTable) IndexAtOrBefore(ts int64) int {
	lo, hi := 0, len(t.bars)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.bars[mid].Time <= ts {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// Direction is the side of a closed trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// TradeRecord is a single closed position.
type TradeRecord struct {
	Direction  Direction
	EntryTime  int64
	ExitTime   int64
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Size       decimal.Decimal
	NetPnL     decimal.Decimal
	ProfitPct  *float64
}

// StrategyResult is the complete output of one executor run: raw curves
// plus, after enrichment, the computed metrics.
type StrategyResult struct {
	Trades       []TradeRecord
	EquityCurve  []float64
	BalanceCurve []float64
	Timestamps   []int64

	Basic    BasicMetrics
	Advanced AdvancedMetrics
}

// BasicMetrics are always computable from any StrategyResult, even an empty
// one.
type BasicMetrics struct {
	NetProfit            float64
	NetProfitPct         float64
	GrossProfit          float64
	GrossLoss            float64
	MaxDrawdown          float64
	MaxDrawdownPct       float64
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	MaxConsecutiveLosses int
}

// AdvancedMetrics may be null (nil pointer fields) when the underlying
// statistic is degenerate (zero variance, zero trades, zero drawdown).
type AdvancedMetrics struct {
	SharpeRatio      *float64
	SortinoRatio     *float64
	ProfitFactor     *float64
	ProfitFactorInf  bool
	RoMaD            *float64
	UlcerIndex       *float64
	SQN              *float64
	ConsistencyScore *float64
	RecoveryFactor   *float64
}
